package format

import (
	"fmt"

	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/encoding"
)

// PageEntrySize is the encoded size of one page directory entry.
const PageEntrySize = 16

// PageEntry locates a stored page inside the bin storage.
type PageEntry struct {
	Offset   uint64 // relative to the start of the bin storage
	Size     uint32
	Checksum uint32
}

// AppendPageEntry appends the encoding of e to dst.
func AppendPageEntry(dst []byte, e PageEntry) []byte {
	dst = encoding.AppendFixed64(dst, e.Offset)
	dst = encoding.AppendFixed32(dst, e.Size)
	return encoding.AppendFixed32(dst, e.Checksum)
}

// DecodePageDirectory parses the page directory of h. Pages must tile the bin
// storage exactly, in order. Uncompressed pages must hold exactly the records
// the header assigns to them.
func DecodePageDirectory(data []byte, h *Header) ([]PageEntry, error) {
	numPages := h.NumPages()
	if uint64(len(data)) != numPages*PageEntrySize {
		return nil, fmt.Errorf("%w: page directory is %d bytes, want %d", ErrFormat, len(data), numPages*PageEntrySize)
	}
	pages := make([]PageEntry, numPages)
	var next uint64
	for i := range pages {
		b := data[i*PageEntrySize:]
		e := PageEntry{
			Offset:   encoding.DecodeFixed64(b),
			Size:     encoding.DecodeFixed32(b[8:]),
			Checksum: encoding.DecodeFixed32(b[12:]),
		}
		if e.Offset != next {
			return nil, fmt.Errorf("%w: page %d at offset %d, want %d", ErrFormat, i, e.Offset, next)
		}
		if uint64(e.Size) > h.Bins.Size-next {
			return nil, fmt.Errorf("%w: page %d extends past bin storage", ErrFormat, i)
		}
		if h.Compression == compression.NoCompression {
			if want := h.PageRecords(uint64(i)) * h.RecordSize(); int(e.Size) != want {
				return nil, fmt.Errorf("%w: page %d is %d bytes, want %d", ErrFormat, i, e.Size, want)
			}
		}
		pages[i] = e
		next += uint64(e.Size)
	}
	if next != h.Bins.Size {
		return nil, fmt.Errorf("%w: pages cover %d of %d bin storage bytes", ErrFormat, next, h.Bins.Size)
	}
	return pages, nil
}
