// Package filter implements the cache-local Bloom filter stored at the end of a
// k-mer database.
//
// Keys are canonical k-mers hashed over their packed big-endian bytes with
// XXH3. The low half of the hash selects a 64-byte line and the high half
// drives every probe inside that line, so a query touches one cache line.
//
// Block layout:
//
//	data[0:n*64]   filter lines
//	data[n*64:+4]  number of lines n (little-endian uint32)
//	data[n*64+4]   probes per key
//	data[n*64+5:]  'K', 'B', 1 (trailer magic and version)
package filter

import (
	"errors"
	"fmt"

	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/encoding"
	"github.com/aalhour/kmerdb/internal/kmer"
)

const (
	// LineSize is the size of one filter line in bytes.
	LineSize = 64

	// LineBits is the number of bits in a line.
	LineBits = LineSize * 8

	// TrailerLen is the size of the block trailer.
	TrailerLen = 8

	trailerVersion = 1
)

// ErrInvalidFilter is returned when a filter block cannot be parsed.
var ErrInvalidFilter = errors.New("filter: invalid bloom filter block")

// Builder accumulates k-mer hashes and produces a filter block.
type Builder struct {
	bitsPerKey int
	hashes     []uint64
	buf        []byte
}

// NewBuilder creates a builder. bitsPerKey controls accuracy; 10 bits give
// roughly a 1% false positive rate.
func NewBuilder(bitsPerKey int) *Builder {
	return &Builder{bitsPerKey: max(bitsPerKey, 1)}
}

// Add adds a k-mer. Callers add canonical k-mers.
func (b *Builder) Add(k kmer.Kmer) {
	b.buf = k.AppendBytes(b.buf[:0])
	b.hashes = append(b.hashes, checksum.XXH3_64bits(b.buf))
}

// Finish builds the filter block and resets the builder.
func (b *Builder) Finish() []byte {
	numLines := (len(b.hashes)*b.bitsPerKey + LineBits - 1) / LineBits
	numLines = max(numLines, 1)
	probes := chooseNumProbes(b.bitsPerKey * 1000)

	data := make([]byte, numLines*LineSize, numLines*LineSize+TrailerLen)
	for _, h := range b.hashes {
		line := lineOf(h, uint32(numLines), data)
		h2 := uint32(h >> 32)
		for range probes {
			bit := h2 >> (32 - 9)
			line[bit>>3] |= 1 << (bit & 7)
			h2 *= 0x9e3779b9
		}
	}
	data = encoding.AppendFixed32(data, uint32(numLines))
	data = append(data, byte(probes), 'K', 'B', trailerVersion)

	b.hashes = b.hashes[:0]
	return data
}

// Reader answers membership queries against a filter block.
type Reader struct {
	data     []byte
	numLines uint32
	probes   int
}

// NewReader parses a filter block. The block is referenced, not copied.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < TrailerLen+LineSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFilter, len(data))
	}
	trailer := data[len(data)-TrailerLen:]
	if trailer[5] != 'K' || trailer[6] != 'B' || trailer[7] != trailerVersion {
		return nil, fmt.Errorf("%w: bad trailer", ErrInvalidFilter)
	}
	numLines := encoding.DecodeFixed32(trailer)
	probes := int(trailer[4])
	if uint64(numLines)*LineSize != uint64(len(data)-TrailerLen) {
		return nil, fmt.Errorf("%w: %d lines in %d bytes", ErrInvalidFilter, numLines, len(data))
	}
	if probes < 1 || probes > 30 {
		return nil, fmt.Errorf("%w: %d probes", ErrInvalidFilter, probes)
	}
	return &Reader{data: data[:len(data)-TrailerLen], numLines: numLines, probes: probes}, nil
}

// MayContain reports whether k may be in the set. False means definitely
// absent. Callers query canonical k-mers.
func (r *Reader) MayContain(k kmer.Kmer) bool {
	var stack [64]byte
	h := checksum.XXH3_64bits(k.AppendBytes(stack[:0]))
	line := lineOf(h, r.numLines, r.data)
	h2 := uint32(h >> 32)
	for range r.probes {
		bit := h2 >> (32 - 9)
		if line[bit>>3]&(1<<(bit&7)) == 0 {
			return false
		}
		h2 *= 0x9e3779b9
	}
	return true
}

func lineOf(h uint64, numLines uint32, data []byte) []byte {
	off := uint32((uint64(uint32(h))*uint64(numLines))>>32) * LineSize
	return data[off : off+LineSize]
}

// chooseNumProbes picks the probe count minimizing the false positive rate of
// a cache-local filter at the given millibits per key.
func chooseNumProbes(millibitsPerKey int) int {
	switch {
	case millibitsPerKey <= 2080:
		return 1
	case millibitsPerKey <= 3580:
		return 2
	case millibitsPerKey <= 5100:
		return 3
	case millibitsPerKey <= 6640:
		return 4
	case millibitsPerKey <= 8300:
		return 5
	case millibitsPerKey <= 10070:
		return 6
	case millibitsPerKey <= 11720:
		return 7
	case millibitsPerKey <= 14001:
		return 8
	case millibitsPerKey <= 16050:
		return 9
	case millibitsPerKey <= 18300:
		return 10
	case millibitsPerKey <= 22001:
		return 11
	case millibitsPerKey <= 25501:
		return 12
	case millibitsPerKey > 50000:
		return 24
	default:
		return (millibitsPerKey-1)/2000 - 1
	}
}
