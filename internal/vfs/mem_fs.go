package vfs

import (
	"bytes"
	"io/fs"
	"os"
	"path"
	"sync"
	"time"
)

// MemFS is an in-memory filesystem. File contents become visible when the
// writer is closed; readers opened earlier keep seeing the old contents.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

// WriteFile stores data under name, replacing any previous contents.
func (m *MemFS) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(name)] = bytes.Clone(data)
}

// ReadFile returns a copy of the contents of name.
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	data, err := m.lookup(name, "read")
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

func (m *MemFS) lookup(name, op string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path.Clean(name)]
	if !ok {
		return nil, &os.PathError{Op: op, Path: name, Err: ErrNotExist}
	}
	return data, nil
}

// Create implements FS.
func (m *MemFS) Create(name string) (WritableFile, error) {
	m.WriteFile(name, nil)
	return &memWritableFile{fs: m, name: path.Clean(name)}, nil
}

// OpenRandomAccess implements FS.
func (m *MemFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	data, err := m.lookup(name, "open")
	if err != nil {
		return nil, err
	}
	return &memRandomAccessFile{data: data}, nil
}

// OpenMapped implements FS. The mapping is the stored image itself.
func (m *MemFS) OpenMapped(name string) (MappedFile, error) {
	data, err := m.lookup(name, "mmap")
	if err != nil {
		return nil, err
	}
	return &memFile{memRandomAccessFile{data: data}}, nil
}

// Rename implements FS.
func (m *MemFS) Rename(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Clean(oldname)]
	if !ok {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrNotExist}
	}
	delete(m.files, path.Clean(oldname))
	m.files[path.Clean(newname)] = data
	return nil
}

// Remove implements FS.
func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path.Clean(name)]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: ErrNotExist}
	}
	delete(m.files, path.Clean(name))
	return nil
}

// Stat implements FS.
func (m *MemFS) Stat(name string) (os.FileInfo, error) {
	data, err := m.lookup(name, "stat")
	if err != nil {
		return nil, err
	}
	return memFileInfo{name: path.Base(name), size: int64(len(data))}, nil
}

// Exists implements FS.
func (m *MemFS) Exists(name string) bool {
	_, err := m.lookup(name, "stat")
	return err == nil
}

type memWritableFile struct {
	fs     *MemFS
	name   string
	buf    bytes.Buffer
	closed bool
}

func (f *memWritableFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	return f.buf.Write(p)
}

func (f *memWritableFile) Sync() error {
	if f.closed {
		return ErrClosed
	}
	f.fs.WriteFile(f.name, f.buf.Bytes())
	return nil
}

func (f *memWritableFile) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	f.fs.WriteFile(f.name, f.buf.Bytes())
	return nil
}

func (f *memWritableFile) Size() (int64, error) {
	return int64(f.buf.Len()), nil
}

type memRandomAccessFile struct {
	data []byte
}

func (f *memRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	return readAtBytes(f.data, p, off)
}

func (f *memRandomAccessFile) Size() int64  { return int64(len(f.data)) }
func (f *memRandomAccessFile) Close() error { return nil }

// memFile is a mapped view of a stored image.
type memFile struct {
	memRandomAccessFile
}

func (f *memFile) Bytes() []byte { return f.data }

type memFileInfo struct {
	name string
	size int64
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }
