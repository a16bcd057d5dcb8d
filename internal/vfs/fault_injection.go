package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

var (
	// ErrInjectedReadError is returned when a read error is injected.
	ErrInjectedReadError = errors.New("vfs: injected read error")

	// ErrInjectedOpenError is returned when an open error is injected.
	ErrInjectedOpenError = errors.New("vfs: injected open error")

	// ErrMappingDisabled is returned by OpenMapped after DisableMappings.
	ErrMappingDisabled = errors.New("vfs: memory mapping disabled")
)

// FaultInjectionFS wraps an FS and injects failures on the read path.
// An empty path in an injection matches every file.
type FaultInjectionFS struct {
	base FS

	mu               sync.RWMutex
	injectReadError  bool
	readErrorPath    string
	readErrorAfter   int64
	injectOpenError  bool
	openErrorPath    string
	mappingsDisabled bool

	reads atomic.Int64
}

// NewFaultInjectionFS creates a fault-injecting wrapper around base.
func NewFaultInjectionFS(base FS) *FaultInjectionFS {
	return &FaultInjectionFS{base: base}
}

// InjectReadError makes ReadAt on path fail.
func (fs *FaultInjectionFS) InjectReadError(path string) {
	fs.InjectReadErrorAfter(path, 0)
}

// InjectReadErrorAfter lets n more reads succeed, then makes ReadAt on path fail.
func (fs *FaultInjectionFS) InjectReadErrorAfter(path string, n int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectReadError = true
	fs.readErrorPath = cleanPath(path)
	fs.readErrorAfter = fs.reads.Load() + n
}

// InjectOpenError makes opening path fail.
func (fs *FaultInjectionFS) InjectOpenError(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectOpenError = true
	fs.openErrorPath = cleanPath(path)
}

// DisableMappings makes OpenMapped fail with ErrMappingDisabled, as on a
// filesystem that cannot be mapped.
func (fs *FaultInjectionFS) DisableMappings() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mappingsDisabled = true
}

// ClearErrors clears all error injection.
func (fs *FaultInjectionFS) ClearErrors() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectReadError = false
	fs.injectOpenError = false
	fs.readErrorPath = ""
	fs.openErrorPath = ""
	fs.mappingsDisabled = false
}

// ReadCount returns the number of ReadAt calls made through this FS.
func (fs *FaultInjectionFS) ReadCount() int64 {
	return fs.reads.Load()
}

func cleanPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func (fs *FaultInjectionFS) shouldFailOpen(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectOpenError && (fs.openErrorPath == "" || fs.openErrorPath == path)
}

func (fs *FaultInjectionFS) shouldFailRead(path string) bool {
	n := fs.reads.Add(1)
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectReadError && n > fs.readErrorAfter &&
		(fs.readErrorPath == "" || fs.readErrorPath == path)
}

// Create implements FS.
func (fs *FaultInjectionFS) Create(name string) (WritableFile, error) {
	return fs.base.Create(name)
}

// OpenRandomAccess implements FS.
func (fs *FaultInjectionFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	path := cleanPath(name)
	if fs.shouldFailOpen(path) {
		return nil, ErrInjectedOpenError
	}
	f, err := fs.base.OpenRandomAccess(name)
	if err != nil {
		return nil, err
	}
	return &faultRandomAccessFile{RandomAccessFile: f, fs: fs, path: path}, nil
}

// OpenMapped implements FS.
func (fs *FaultInjectionFS) OpenMapped(name string) (MappedFile, error) {
	path := cleanPath(name)
	if fs.shouldFailOpen(path) {
		return nil, ErrInjectedOpenError
	}
	fs.mu.RLock()
	disabled := fs.mappingsDisabled
	fs.mu.RUnlock()
	if disabled {
		return nil, ErrMappingDisabled
	}
	f, err := fs.base.OpenMapped(name)
	if err != nil {
		return nil, err
	}
	return &faultMappedFile{MappedFile: f, fs: fs, path: path}, nil
}

// Rename implements FS.
func (fs *FaultInjectionFS) Rename(oldname, newname string) error {
	return fs.base.Rename(oldname, newname)
}

// Remove implements FS.
func (fs *FaultInjectionFS) Remove(name string) error {
	return fs.base.Remove(name)
}

// Stat implements FS.
func (fs *FaultInjectionFS) Stat(name string) (os.FileInfo, error) {
	return fs.base.Stat(name)
}

// Exists implements FS.
func (fs *FaultInjectionFS) Exists(name string) bool {
	return fs.base.Exists(name)
}

type faultRandomAccessFile struct {
	RandomAccessFile
	fs   *FaultInjectionFS
	path string
}

func (f *faultRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	if f.fs.shouldFailRead(f.path) {
		return 0, ErrInjectedReadError
	}
	return f.RandomAccessFile.ReadAt(p, off)
}

// faultMappedFile injects errors into ReadAt only; Bytes is the real mapping.
type faultMappedFile struct {
	MappedFile
	fs   *FaultInjectionFS
	path string
}

func (f *faultMappedFile) ReadAt(p []byte, off int64) (int, error) {
	if f.fs.shouldFailRead(f.path) {
		return 0, ErrInjectedReadError
	}
	return f.MappedFile.ReadAt(p, off)
}
