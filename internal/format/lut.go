package format

import (
	"fmt"

	"github.com/aalhour/kmerdb/internal/encoding"
)

// LUTEntrySize is the encoded size of one lookup table entry.
const LUTEntrySize = 16

// LookupTable maps a bin (prefix value) to its range of records.
type LookupTable struct {
	// bounds[i] is the first record of bin i; bounds[len-1] is the record count.
	bounds []uint64
}

// BuildLookupTable creates a table from per-bin record counts.
func BuildLookupTable(counts []uint64) *LookupTable {
	bounds := make([]uint64, len(counts)+1)
	for i, n := range counts {
		bounds[i+1] = bounds[i] + n
	}
	return &LookupTable{bounds: bounds}
}

// DecodeLookupTable parses numBins entries. Entries must be contiguous and in
// prefix order, and the last entry must end at recordCount.
func DecodeLookupTable(data []byte, numBins int, recordCount uint64) (*LookupTable, error) {
	if len(data) != numBins*LUTEntrySize {
		return nil, fmt.Errorf("%w: lookup table is %d bytes, want %d", ErrFormat, len(data), numBins*LUTEntrySize)
	}
	bounds := make([]uint64, numBins+1)
	var next uint64
	for i := range numBins {
		first := encoding.DecodeFixed64(data[i*LUTEntrySize:])
		count := encoding.DecodeFixed64(data[i*LUTEntrySize+8:])
		if first != next {
			return nil, fmt.Errorf("%w: lookup table bin %d starts at record %d, want %d", ErrFormat, i, first, next)
		}
		if count > recordCount-next {
			return nil, fmt.Errorf("%w: lookup table bin %d ends past record count %d", ErrFormat, i, recordCount)
		}
		bounds[i] = first
		next = first + count
	}
	if next != recordCount {
		return nil, fmt.Errorf("%w: lookup table ends at record %d, want %d", ErrFormat, next, recordCount)
	}
	bounds[numBins] = next
	return &LookupTable{bounds: bounds}, nil
}

// Encode returns the on-disk form of the table.
func (t *LookupTable) Encode() []byte {
	dst := make([]byte, 0, t.NumBins()*LUTEntrySize)
	for i := range t.NumBins() {
		dst = encoding.AppendFixed64(dst, t.bounds[i])
		dst = encoding.AppendFixed64(dst, t.bounds[i+1]-t.bounds[i])
	}
	return dst
}

// NumBins returns the number of bins.
func (t *LookupTable) NumBins() int {
	return len(t.bounds) - 1
}

// Range returns the first record and record count of bin.
func (t *LookupTable) Range(bin uint64) (first, count uint64) {
	return t.bounds[bin], t.bounds[bin+1] - t.bounds[bin]
}

// End returns one past the last record of bin.
func (t *LookupTable) End(bin uint64) uint64 {
	return t.bounds[bin+1]
}

// RecordCount returns the total number of records.
func (t *LookupTable) RecordCount() uint64 {
	return t.bounds[len(t.bounds)-1]
}
