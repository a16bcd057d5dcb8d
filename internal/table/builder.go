package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/encoding"
	"github.com/aalhour/kmerdb/internal/filter"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
)

var (
	// ErrOutOfOrder is returned when k-mers are not added in strictly ascending order.
	ErrOutOfOrder = errors.New("table: k-mers not in strictly ascending order")

	// ErrNotCanonical is returned when a k-mer is not in canonical form.
	ErrNotCanonical = errors.New("table: k-mer is not canonical")

	// ErrCounterOverflow is returned when a count does not fit the counter width.
	ErrCounterOverflow = errors.New("table: count exceeds counter width")

	// ErrBuilderFinished is returned when a finished builder is used.
	ErrBuilderFinished = errors.New("table: builder already finished")
)

// BuilderOptions configures the Builder.
type BuilderOptions struct {
	// KmerLength is k. Required.
	KmerLength int

	// PrefixBases is the lookup table prefix length (default: min(k, 4)).
	// Negative values select a prefix of zero bases.
	PrefixBases int

	// CounterBytes is the counter width in bytes: 1, 2, 3, 4 or 8 (default: 4).
	CounterBytes int

	// Compression is the page compression (default: none).
	Compression compression.Type

	// ChecksumType protects the lookup table, page directory, pages and
	// filter (default: XXH3).
	ChecksumType checksum.Type

	// RecordsPerPage is the number of records per page (default: 4096).
	RecordsPerPage int

	// BloomBitsPerKey adds a Bloom filter block when positive.
	BloomBitsPerKey int

	// CutoffMin and CutoffMax are recorded in the header.
	CutoffMin uint32
	CutoffMax uint32
}

// DefaultBuilderOptions returns default options for k-mers of length k.
func DefaultBuilderOptions(k int) BuilderOptions {
	return BuilderOptions{
		KmerLength:     k,
		PrefixBases:    min(k, 4),
		CounterBytes:   4,
		Compression:    compression.NoCompression,
		ChecksumType:   checksum.TypeXXH3,
		RecordsPerPage: format.DefaultRecordsPerPage,
	}
}

func (o *BuilderOptions) sanitize() error {
	if o.KmerLength <= 0 || o.KmerLength > format.MaxKmerLength {
		return fmt.Errorf("table: k-mer length %d outside [1, %d]", o.KmerLength, format.MaxKmerLength)
	}
	if o.PrefixBases < 0 {
		o.PrefixBases = 0
	}
	if o.PrefixBases > min(o.KmerLength, format.MaxPrefixBases) {
		return fmt.Errorf("table: prefix of %d bases invalid for k=%d", o.PrefixBases, o.KmerLength)
	}
	if o.CounterBytes == 0 {
		o.CounterBytes = 4
	}
	if !format.ValidCounterBytes(o.CounterBytes) {
		return fmt.Errorf("table: unsupported counter width of %d bytes", o.CounterBytes)
	}
	if !o.Compression.IsSupported() {
		return fmt.Errorf("table: unsupported compression %s", o.Compression)
	}
	if o.ChecksumType == checksum.TypeNoChecksum {
		o.ChecksumType = checksum.TypeXXH3
	}
	if !o.ChecksumType.IsSupported() {
		return fmt.Errorf("table: unsupported checksum type %s", o.ChecksumType)
	}
	if o.RecordsPerPage <= 0 {
		o.RecordsPerPage = format.DefaultRecordsPerPage
	}
	recordSize := kmer.ByteCount(o.KmerLength-o.PrefixBases) + o.CounterBytes
	if uint64(o.RecordsPerPage)*uint64(recordSize) > maxPageSize {
		return fmt.Errorf("table: pages of %d records of %d bytes exceed %d bytes",
			o.RecordsPerPage, recordSize, maxPageSize)
	}
	return nil
}

// Builder serializes counted canonical k-mers, added in ascending order, into
// a database file. Stored pages are buffered in memory until Finish, which
// writes the whole file.
type Builder struct {
	writer  io.Writer
	options BuilderOptions
	header  format.Header

	binCounts []uint64
	page      []byte
	pageLen   int
	bins      bytes.Buffer
	pageDir   []byte

	filterBuilder *filter.Builder

	last       kmer.Kmer
	numRecords uint64
	offset     uint64

	finished bool
	err      error
}

// maxPageReserve caps the page buffer reserved up front; larger pages grow
// as records are added.
const maxPageReserve = 1 << 20

// NewBuilder creates a Builder writing to w.
func NewBuilder(w io.Writer, opts BuilderOptions) (*Builder, error) {
	if err := opts.sanitize(); err != nil {
		return nil, err
	}
	b := &Builder{
		writer:  w,
		options: opts,
		header: format.Header{
			KmerLength:     uint32(opts.KmerLength),
			PrefixBases:    uint8(opts.PrefixBases),
			CounterBytes:   uint8(opts.CounterBytes),
			Compression:    opts.Compression,
			ChecksumType:   opts.ChecksumType,
			RecordsPerPage: uint32(opts.RecordsPerPage),
			CutoffMin:      opts.CutoffMin,
			CutoffMax:      opts.CutoffMax,
		},
	}
	b.binCounts = make([]uint64, b.header.NumBins())
	b.page = make([]byte, 0, min(opts.RecordsPerPage*b.header.RecordSize(), maxPageReserve))
	if opts.BloomBitsPerKey > 0 {
		b.filterBuilder = filter.NewBuilder(opts.BloomBitsPerKey)
	}
	return b, nil
}

// Add appends a record. k must be canonical, have the configured length and
// be greater than every previously added k-mer.
func (b *Builder) Add(k kmer.Kmer, count uint64) error {
	if b.finished {
		return ErrBuilderFinished
	}
	if b.err != nil {
		return b.err
	}
	if k.Len() != b.options.KmerLength {
		return fmt.Errorf("%w: got %d-mer, builder is for k=%d", ErrLengthMismatch, k.Len(), b.options.KmerLength)
	}
	if !kmer.IsCanonical(k) {
		return fmt.Errorf("%w: %s", ErrNotCanonical, k)
	}
	if b.numRecords > 0 && kmer.Compare(k, b.last) <= 0 {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, k, b.last)
	}
	if count > encoding.MaxFixedN(b.options.CounterBytes) {
		return fmt.Errorf("%w: %d in %d bytes", ErrCounterOverflow, count, b.options.CounterBytes)
	}

	prefix, suffix := k.Split(b.options.PrefixBases)
	b.binCounts[prefix]++
	b.page = suffix.AppendBytes(b.page)
	b.page = encoding.AppendFixedN(b.page, count, b.options.CounterBytes)
	b.pageLen++
	if b.filterBuilder != nil {
		b.filterBuilder.Add(k)
	}
	b.last = k
	b.numRecords++

	if b.pageLen == b.options.RecordsPerPage {
		if err := b.flushPage(); err != nil {
			b.err = err
			return err
		}
	}
	return nil
}

func (b *Builder) flushPage() error {
	if b.pageLen == 0 {
		return nil
	}
	stored, err := compression.EncodePage(b.options.Compression, b.page)
	if err != nil {
		return fmt.Errorf("table: compress page: %w", err)
	}
	b.pageDir = format.AppendPageEntry(b.pageDir, format.PageEntry{
		Offset:   uint64(b.bins.Len()),
		Size:     uint32(len(stored)),
		Checksum: checksum.Compute(b.options.ChecksumType, stored),
	})
	b.bins.Write(stored)
	b.page = b.page[:0]
	b.pageLen = 0
	return nil
}

// Finish writes the database. The builder cannot be used afterwards.
func (b *Builder) Finish() error {
	if b.finished {
		return ErrBuilderFinished
	}
	if b.err != nil {
		return b.err
	}
	b.finished = true
	if err := b.flushPage(); err != nil {
		return err
	}

	lut := format.BuildLookupTable(b.binCounts).Encode()
	var filterBlock []byte
	if b.filterBuilder != nil {
		filterBlock = b.filterBuilder.Finish()
	}

	h := &b.header
	h.RecordCount = b.numRecords
	off := uint64(format.HeaderSize)
	place := func(data []byte) format.Handle {
		hd := format.Handle{Offset: off, Size: uint64(len(data))}
		off += hd.Size
		return hd
	}
	h.LUT = place(lut)
	h.PageDir = place(b.pageDir)
	h.Bins = place(b.bins.Bytes())
	if filterBlock != nil {
		h.Filter = place(filterBlock)
		h.FilterChecksum = checksum.Compute(h.ChecksumType, filterBlock)
	}
	h.LUTChecksum = checksum.Compute(h.ChecksumType, lut)
	h.PageDirChecksum = checksum.Compute(h.ChecksumType, b.pageDir)

	for _, part := range [][]byte{h.Encode(), lut, b.pageDir, b.bins.Bytes(), filterBlock} {
		if err := b.write(part); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := b.writer.Write(data)
	b.offset += uint64(n)
	if err != nil {
		b.err = fmt.Errorf("table: write: %w", err)
		return b.err
	}
	return nil
}

// Abandon discards the database being built.
func (b *Builder) Abandon() {
	b.finished = true
	b.bins.Reset()
}

// NumRecords returns the number of records added so far.
func (b *Builder) NumRecords() uint64 {
	return b.numRecords
}

// FileSize returns the number of bytes written by Finish.
func (b *Builder) FileSize() uint64 {
	return b.offset
}

// Header returns the header written by Finish.
func (b *Builder) Header() format.Header {
	return b.header
}
