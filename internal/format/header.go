// Package format defines the on-disk layout of a k-mer counting database.
//
// All integers are little-endian regardless of platform:
//
//	[header: 120 bytes]
//	[lookup table: 4^P entries of (firstRecord u64, recordCount u64)]
//	[page directory: numPages entries of (offset u64, size u32, checksum u32)]
//	[bin storage: pages of fixed-size records]
//	[bloom filter block] (optional)
//
// Every canonical k-mer is split into a prefix of P bases, which selects a
// lookup table entry (its bin), and a suffix of K-P bases. A record is the
// suffix as ceil(2(K-P)/8) big-endian bytes followed by the counter in
// CounterBytes little-endian bytes. Records are sorted by k-mer, so the
// records of a bin are contiguous and strictly ascending by suffix.
//
// Records are grouped into pages of RecordsPerPage records (the last page may
// be shorter). A page is stored raw or compressed, and the page directory
// holds each stored page's offset relative to the bin storage, its stored
// size and its checksum.
package format

import (
	"errors"
	"fmt"

	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/encoding"
	"github.com/aalhour/kmerdb/internal/kmer"
)

const (
	// Magic identifies a k-mer database file.
	Magic uint64 = 0x4b4d455244420001

	// Version is the only format version this package reads and writes.
	Version uint32 = 1

	// HeaderSize is the encoded size of the header.
	HeaderSize = 120

	// MaxKmerLength is the largest supported k.
	MaxKmerLength = 256

	// MaxPrefixBases is the largest supported lookup table prefix (4^12 bins).
	MaxPrefixBases = 12

	// DefaultRecordsPerPage is the page size used by writers unless configured.
	DefaultRecordsPerPage = 4096

	// headerChecksumOffset is where the header checksum is stored. It covers
	// every byte before it and is always XXH3, independent of ChecksumType.
	headerChecksumOffset = HeaderSize - 4
)

var (
	// ErrFormat is returned for any structural problem in a database file.
	ErrFormat = errors.New("format: invalid database file")

	// ErrChecksumMismatch is returned when a stored checksum does not match.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrFormat)

	// ErrCorruption is returned when inconsistent records are found while
	// reading, after the file was accepted at open.
	ErrCorruption = fmt.Errorf("%w: corruption", ErrFormat)
)

// Header is the fixed-size file header.
type Header struct {
	KmerLength     uint32
	PrefixBases    uint8
	CounterBytes   uint8
	Compression    compression.Type
	ChecksumType   checksum.Type
	RecordsPerPage uint32
	RecordCount    uint64

	// CutoffMin and CutoffMax record the count window applied when the
	// database was built. Informational.
	CutoffMin uint32
	CutoffMax uint32

	LUT     Handle
	PageDir Handle
	Bins    Handle
	Filter  Handle

	LUTChecksum     uint32
	PageDirChecksum uint32
	FilterChecksum  uint32
}

// SuffixBases returns K-P.
func (h *Header) SuffixBases() int {
	return int(h.KmerLength) - int(h.PrefixBases)
}

// SuffixBytes returns the size of a packed suffix.
func (h *Header) SuffixBytes() int {
	return kmer.ByteCount(h.SuffixBases())
}

// RecordSize returns the size of one record.
func (h *Header) RecordSize() int {
	return h.SuffixBytes() + int(h.CounterBytes)
}

// NumBins returns 4^P.
func (h *Header) NumBins() int {
	return 1 << (2 * uint(h.PrefixBases))
}

// NumPages returns the number of pages holding RecordCount records.
func (h *Header) NumPages() uint64 {
	if h.RecordsPerPage == 0 {
		return 0
	}
	n := h.RecordCount / uint64(h.RecordsPerPage)
	if h.RecordCount%uint64(h.RecordsPerPage) != 0 {
		n++
	}
	return n
}

// PageRecords returns the number of records in page i.
func (h *Header) PageRecords(i uint64) int {
	first := i * uint64(h.RecordsPerPage)
	return int(min(uint64(h.RecordsPerPage), h.RecordCount-first))
}

// CounterBits returns the counter width in bits.
func (h *Header) CounterBits() int {
	return 8 * int(h.CounterBytes)
}

// Encode returns the 120-byte encoding of h including its checksum.
func (h *Header) Encode() []byte {
	dst := make([]byte, 0, HeaderSize)
	dst = encoding.AppendFixed64(dst, Magic)
	dst = encoding.AppendFixed32(dst, Version)
	dst = encoding.AppendFixed32(dst, h.KmerLength)
	dst = append(dst, h.PrefixBases, h.CounterBytes, byte(h.Compression), byte(h.ChecksumType))
	dst = encoding.AppendFixed32(dst, h.RecordsPerPage)
	dst = encoding.AppendFixed64(dst, h.RecordCount)
	dst = encoding.AppendFixed32(dst, h.CutoffMin)
	dst = encoding.AppendFixed32(dst, h.CutoffMax)
	dst = h.LUT.EncodeTo(dst)
	dst = h.PageDir.EncodeTo(dst)
	dst = h.Bins.EncodeTo(dst)
	dst = h.Filter.EncodeTo(dst)
	dst = encoding.AppendFixed32(dst, h.LUTChecksum)
	dst = encoding.AppendFixed32(dst, h.PageDirChecksum)
	dst = encoding.AppendFixed32(dst, h.FilterChecksum)
	return encoding.AppendFixed32(dst, checksum.XXH3Checksum(dst))
}

// DecodeHeader parses the header at the start of data. It verifies the magic
// number, the version and the header checksum, but not the field values; see
// Validate.
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: file too short for header (%d bytes)", ErrFormat, len(data))
	}
	data = data[:HeaderSize]
	if m := encoding.DecodeFixed64(data); m != Magic {
		return nil, fmt.Errorf("%w: bad magic number %#x", ErrFormat, m)
	}
	if v := encoding.DecodeFixed32(data[8:]); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, v)
	}
	stored := encoding.DecodeFixed32(data[headerChecksumOffset:])
	if actual := checksum.XXH3Checksum(data[:headerChecksumOffset]); actual != stored {
		return nil, fmt.Errorf("%w: header: stored %#x, actual %#x", ErrChecksumMismatch, stored, actual)
	}

	return &Header{
		KmerLength:      encoding.DecodeFixed32(data[12:]),
		PrefixBases:     data[16],
		CounterBytes:    data[17],
		Compression:     compression.Type(data[18]),
		ChecksumType:    checksum.Type(data[19]),
		RecordsPerPage:  encoding.DecodeFixed32(data[20:]),
		RecordCount:     encoding.DecodeFixed64(data[24:]),
		CutoffMin:       encoding.DecodeFixed32(data[32:]),
		CutoffMax:       encoding.DecodeFixed32(data[36:]),
		LUT:             decodeHandle(data[40:]),
		PageDir:         decodeHandle(data[56:]),
		Bins:            decodeHandle(data[72:]),
		Filter:          decodeHandle(data[88:]),
		LUTChecksum:     encoding.DecodeFixed32(data[104:]),
		PageDirChecksum: encoding.DecodeFixed32(data[108:]),
		FilterChecksum:  encoding.DecodeFixed32(data[112:]),
	}, nil
}

// ValidCounterBytes reports whether n is a supported counter width in bytes.
func ValidCounterBytes(n int) bool {
	switch n {
	case 1, 2, 3, 4, 8:
		return true
	default:
		return false
	}
}

// Validate checks the header fields against each other and against the size
// of the file they were read from.
func (h *Header) Validate(fileSize uint64) error {
	if h.KmerLength == 0 || h.KmerLength > MaxKmerLength {
		return fmt.Errorf("%w: k-mer length %d outside [1, %d]", ErrFormat, h.KmerLength, MaxKmerLength)
	}
	if h.PrefixBases > MaxPrefixBases || uint32(h.PrefixBases) > h.KmerLength {
		return fmt.Errorf("%w: prefix of %d bases invalid for k=%d", ErrFormat, h.PrefixBases, h.KmerLength)
	}
	if !ValidCounterBytes(int(h.CounterBytes)) {
		return fmt.Errorf("%w: unsupported counter width of %d bytes", ErrFormat, h.CounterBytes)
	}
	if !h.Compression.IsSupported() {
		return fmt.Errorf("%w: unsupported compression %s", ErrFormat, h.Compression)
	}
	if !h.ChecksumType.IsSupported() {
		return fmt.Errorf("%w: unsupported checksum type %s", ErrFormat, h.ChecksumType)
	}
	if h.RecordsPerPage == 0 {
		return fmt.Errorf("%w: zero records per page", ErrFormat)
	}
	if h.CutoffMax != 0 && h.CutoffMin > h.CutoffMax {
		return fmt.Errorf("%w: cutoff min %d above max %d", ErrFormat, h.CutoffMin, h.CutoffMax)
	}

	regions := []struct {
		name     string
		h        Handle
		optional bool
	}{
		{"lookup table", h.LUT, false},
		{"page directory", h.PageDir, h.RecordCount == 0},
		{"bin storage", h.Bins, h.RecordCount == 0},
		{"filter", h.Filter, true},
	}
	for i, r := range regions {
		if r.h.IsNull() {
			if !r.optional {
				return fmt.Errorf("%w: missing %s", ErrFormat, r.name)
			}
			continue
		}
		end, ok := r.h.End()
		if !ok || r.h.Offset < HeaderSize || end > fileSize {
			return fmt.Errorf("%w: %s %s outside file of %d bytes (truncated?)", ErrFormat, r.name, r.h, fileSize)
		}
		for _, other := range regions[:i] {
			if overlaps(r.h, other.h) {
				return fmt.Errorf("%w: %s overlaps %s", ErrFormat, r.name, other.name)
			}
		}
	}

	if want := uint64(h.NumBins()) * LUTEntrySize; h.LUT.Size != want {
		return fmt.Errorf("%w: lookup table is %d bytes, want %d", ErrFormat, h.LUT.Size, want)
	}
	if h.NumPages() > h.PageDir.Size/PageEntrySize || h.NumPages()*PageEntrySize != h.PageDir.Size {
		return fmt.Errorf("%w: page directory is %d bytes, want %d pages for %d records",
			ErrFormat, h.PageDir.Size, h.NumPages(), h.RecordCount)
	}
	if h.Compression == compression.NoCompression {
		if h.RecordCount > h.Bins.Size || h.RecordCount*uint64(h.RecordSize()) != h.Bins.Size {
			return fmt.Errorf("%w: bin storage is %d bytes, want %d records of %d bytes",
				ErrFormat, h.Bins.Size, h.RecordCount, h.RecordSize())
		}
	}
	return nil
}
