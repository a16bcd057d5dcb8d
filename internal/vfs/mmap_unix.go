//go:build unix

package vfs

import (
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// mmapFile is a read-only shared mapping of a whole file.
type mmapFile struct {
	data []byte

	once     sync.Once
	closeErr error
}

func openMapped(name string) (MappedFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	// The mapping stays valid after the descriptor is closed.
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &mmapFile{data: []byte{}}, nil
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("vfs: %s too large to map (%d bytes)", name, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: name, Err: err}
	}
	// Lookups jump between bins; readahead mostly wastes page cache.
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return &mmapFile{data: data}, nil
}

func (m *mmapFile) ReadAt(p []byte, off int64) (int, error) {
	return readAtBytes(m.data, p, off)
}

func (m *mmapFile) Size() int64 {
	return int64(len(m.data))
}

func (m *mmapFile) Bytes() []byte {
	return m.data
}

func (m *mmapFile) Close() error {
	m.once.Do(func() {
		if len(m.data) > 0 {
			m.closeErr = unix.Munmap(m.data)
		}
		m.data = nil
	})
	return m.closeErr
}
