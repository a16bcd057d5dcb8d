// Package vfs provides the filesystem abstraction used to read and write
// k-mer databases.
//
// Databases are read through RandomAccessFile (positional reads, no shared
// cursor) or MappedFile (a read-only memory mapping). Implementations:
//   - Default: the OS filesystem, with mmap on unix platforms
//   - MemFS: an in-memory filesystem for tests
//   - FaultInjectionFS: a wrapper that injects read and open failures
package vfs

import (
	"errors"
	"io"
	"os"
)

// ErrNotExist is returned by in-memory filesystems for missing files.
// OS filesystems return errors satisfying errors.Is(err, os.ErrNotExist).
var ErrNotExist = os.ErrNotExist

// ErrClosed is returned when a closed file is used.
var ErrClosed = errors.New("vfs: file already closed")

// FS is the filesystem interface.
type FS interface {
	// Create creates a new writable file, truncating an existing one.
	Create(name string) (WritableFile, error)

	// OpenRandomAccess opens an existing file for positional reads.
	OpenRandomAccess(name string) (RandomAccessFile, error)

	// OpenMapped opens an existing file as a read-only memory mapping.
	OpenMapped(name string) (MappedFile, error)

	// Rename atomically renames a file.
	Rename(oldname, newname string) error

	// Remove deletes a file.
	Remove(name string) error

	// Stat returns file info.
	Stat(name string) (os.FileInfo, error)

	// Exists returns true if the file exists.
	Exists(name string) bool
}

// WritableFile is a file that can be written to.
type WritableFile interface {
	io.Writer
	io.Closer

	// Sync flushes the file contents to stable storage.
	Sync() error

	// Size returns the number of bytes written so far.
	Size() (int64, error)
}

// RandomAccessFile is a file that can be read at any offset. ReadAt must be
// safe for concurrent use.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer

	// Size returns the file size.
	Size() int64
}

// MappedFile is a RandomAccessFile whose whole content is addressable in
// memory. The slice returned by Bytes is valid until Close and must not be
// modified.
type MappedFile interface {
	RandomAccessFile

	Bytes() []byte
}

// osFS implements FS using the OS filesystem.
type osFS struct{}

// Default returns the OS filesystem.
func Default() FS {
	return &osFS{}
}

func (fs *osFS) Create(name string) (WritableFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &osWritableFile{f: f}, nil
}

func (fs *osFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &osRandomAccessFile{f: f, size: info.Size()}, nil
}

func (fs *osFS) OpenMapped(name string) (MappedFile, error) {
	return openMapped(name)
}

func (fs *osFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (fs *osFS) Remove(name string) error {
	return os.Remove(name)
}

func (fs *osFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (fs *osFS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// osWritableFile wraps os.File for the WritableFile interface.
type osWritableFile struct {
	f    *os.File
	size int64
}

func (wf *osWritableFile) Write(p []byte) (int, error) {
	n, err := wf.f.Write(p)
	wf.size += int64(n)
	return n, err
}

func (wf *osWritableFile) Close() error {
	return wf.f.Close()
}

func (wf *osWritableFile) Sync() error {
	return wf.f.Sync()
}

func (wf *osWritableFile) Size() (int64, error) {
	return wf.size, nil
}

// osRandomAccessFile wraps os.File. os.File.ReadAt uses pread and is safe for
// concurrent use.
type osRandomAccessFile struct {
	f    *os.File
	size int64
}

func (rf *osRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	return rf.f.ReadAt(p, off)
}

func (rf *osRandomAccessFile) Close() error {
	return rf.f.Close()
}

func (rf *osRandomAccessFile) Size() int64 {
	return rf.size
}

// readAtBytes implements ReadAt over an in-memory image.
func readAtBytes(data, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("vfs: negative offset")
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
