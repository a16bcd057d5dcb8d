//go:build !unix

package vfs

import (
	"os"
)

// heapFile holds a whole file in memory on platforms without mmap support.
type heapFile struct {
	data []byte
}

func openMapped(name string) (MappedFile, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &heapFile{data: data}, nil
}

func (h *heapFile) ReadAt(p []byte, off int64) (int, error) {
	return readAtBytes(h.data, p, off)
}

func (h *heapFile) Size() int64 {
	return int64(len(h.data))
}

func (h *heapFile) Bytes() []byte {
	return h.data
}

func (h *heapFile) Close() error {
	h.data = nil
	return nil
}
