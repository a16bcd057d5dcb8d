// Package table reads and writes k-mer counting database files.
//
// A Reader validates the file structure at open, loads the lookup table and
// page directory, and then answers count queries by binary search inside the
// queried k-mer's bin. Pages are read lazily, either straight from a memory
// mapping or through ReadAt, checksum verification, decompression and the
// shared page cache.
//
// A Reader is immutable after Open; Lookup is safe for concurrent use.
package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/aalhour/kmerdb/internal/cache"
	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/filter"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
	"github.com/aalhour/kmerdb/internal/logging"
	"github.com/aalhour/kmerdb/internal/vfs"
)

// ErrLengthMismatch is returned when a query's length differs from the
// database's k.
var ErrLengthMismatch = errors.New("table: k-mer length does not match database")

// maxPageSize bounds the uncompressed size of a page so that corrupted
// geometry cannot trigger huge allocations.
const maxPageSize = 1 << 30

// ReaderOptions controls the behavior of the table reader.
type ReaderOptions struct {
	// VerifyChecksums verifies each page's checksum the first time it is read.
	// The header, lookup table, page directory and filter are always verified.
	VerifyChecksums bool

	// ParanoidChecks scans every record at open and verifies that bins are
	// strictly ascending and that every stored k-mer is canonical.
	ParanoidChecks bool

	// UseBloomFilter consults the filter block, when present, before searching.
	UseBloomFilter bool

	// Cache holds decoded pages that are not served from a mapping.
	// Nil disables caching.
	Cache cache.Cache

	// MinCount and MaxCount hide records with counts outside the window.
	// A MaxCount of zero means no upper bound.
	MinCount uint64
	MaxCount uint64

	// Logger receives [open] and [format] messages. Nil discards them.
	Logger logging.Logger
}

// Reader reads a k-mer database file.
type Reader struct {
	file    vfs.RandomAccessFile
	size    uint64
	options ReaderOptions
	logger  logging.Logger
	fileID  uint64

	header  *format.Header
	lut     *format.LookupTable
	pages   []format.PageEntry
	filter  *filter.Reader
	mapped  []byte
	checked []atomic.Bool // per page, when verifying mapped raw pages

	suffixBytes int
	recordSize  int
}

// Open validates file and returns a Reader over it. The Reader takes
// ownership of file on success. Structural problems are reported as errors
// wrapping format.ErrFormat.
func Open(file vfs.RandomAccessFile, opts ReaderOptions) (*Reader, error) {
	r := &Reader{
		file:    file,
		size:    uint64(file.Size()),
		options: opts,
		logger:  opts.Logger,
		fileID:  cache.NewFileID(),
	}
	if logging.IsNil(r.logger) {
		r.logger = logging.Discard
	}
	if m, ok := file.(vfs.MappedFile); ok {
		r.mapped = m.Bytes()
	}

	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if err := r.readLookupTable(); err != nil {
		return nil, err
	}
	if err := r.readPageDirectory(); err != nil {
		return nil, err
	}
	if err := r.readFilter(); err != nil {
		return nil, err
	}
	if r.mapped != nil && opts.VerifyChecksums {
		r.checked = make([]atomic.Bool, len(r.pages))
	}
	if opts.ParanoidChecks {
		if err := r.verifyAllRecords(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// readRegion returns the bytes of h, which must lie inside the file.
func (r *Reader) readRegion(h format.Handle) ([]byte, error) {
	if r.mapped != nil {
		return r.mapped[h.Offset : h.Offset+h.Size], nil
	}
	if h.Size > maxPageSize {
		return nil, fmt.Errorf("%w: region %s too large", format.ErrFormat, h)
	}
	buf := make([]byte, h.Size)
	n, err := r.file.ReadAt(buf, int64(h.Offset))
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: short read of %s (%d bytes)", format.ErrCorruption, h, n)
	}
	return nil, err
}

func (r *Reader) readHeader() error {
	if r.size < format.HeaderSize {
		return fmt.Errorf("%w: file of %d bytes is shorter than the header", format.ErrFormat, r.size)
	}
	data, err := r.readRegion(format.Handle{Offset: 0, Size: format.HeaderSize})
	if err != nil {
		return err
	}
	h, err := format.DecodeHeader(data)
	if err != nil {
		return err
	}
	if err := h.Validate(r.size); err != nil {
		return err
	}
	r.header = h
	r.suffixBytes = h.SuffixBytes()
	r.recordSize = h.RecordSize()
	if uint64(h.RecordsPerPage)*uint64(r.recordSize) > maxPageSize {
		return fmt.Errorf("%w: pages of %d records are too large", format.ErrFormat, h.RecordsPerPage)
	}
	return nil
}

// verifiedRegion reads h and checks it against stored.
func (r *Reader) verifiedRegion(name string, h format.Handle, stored uint32) ([]byte, error) {
	data, err := r.readRegion(h)
	if err != nil {
		return nil, err
	}
	if !checksum.Verify(r.header.ChecksumType, data, stored) {
		return nil, fmt.Errorf("%w: %s", format.ErrChecksumMismatch, name)
	}
	return data, nil
}

func (r *Reader) readLookupTable() error {
	data, err := r.verifiedRegion("lookup table", r.header.LUT, r.header.LUTChecksum)
	if err != nil {
		return err
	}
	r.lut, err = format.DecodeLookupTable(data, r.header.NumBins(), r.header.RecordCount)
	return err
}

func (r *Reader) readPageDirectory() error {
	data, err := r.verifiedRegion("page directory", r.header.PageDir, r.header.PageDirChecksum)
	if err != nil {
		return err
	}
	r.pages, err = format.DecodePageDirectory(data, r.header)
	return err
}

func (r *Reader) readFilter() error {
	if r.header.Filter.IsNull() {
		return nil
	}
	data, err := r.verifiedRegion("filter", r.header.Filter, r.header.FilterChecksum)
	if err != nil {
		return err
	}
	f, err := filter.NewReader(data)
	if err != nil {
		return fmt.Errorf("%w: %w", format.ErrFormat, err)
	}
	r.filter = f
	return nil
}

// verifyAllRecords scans every bin in order.
func (r *Reader) verifyAllRecords() error {
	p := int(r.header.PrefixBases)
	suffixBases := r.header.SuffixBases()
	var prev []byte
	for bin := range uint64(r.lut.NumBins()) {
		first, count := r.lut.Range(bin)
		prev = prev[:0]
		var cur pageRef
		for idx := first; idx < first+count; idx++ {
			rec, err := r.record(idx, &cur, nil)
			if err != nil {
				return err
			}
			suffix := rec[:r.suffixBytes]
			if idx > first && bytes.Compare(prev, suffix) >= 0 {
				return fmt.Errorf("%w: bin %d not strictly ascending at record %d", format.ErrFormat, bin, idx)
			}
			prev = append(prev[:0], suffix...)

			var sk kmer.Kmer
			if suffixBases > 0 {
				if sk, err = kmer.FromBytes(suffixBases, suffix); err != nil {
					return fmt.Errorf("%w: record %d: %w", format.ErrFormat, idx, err)
				}
			}
			if k := kmer.Join(bin, p, sk); !kmer.IsCanonical(k) {
				return fmt.Errorf("%w: record %d holds non-canonical k-mer %s", format.ErrFormat, idx, k)
			}
		}
	}
	r.logger.Debugf(logging.NSOpen+"paranoid scan of %d records passed", r.header.RecordCount)
	return nil
}

// Header returns a copy of the file header.
func (r *Reader) Header() format.Header {
	return *r.header
}

// KmerLength returns k.
func (r *Reader) KmerLength() uint32 {
	return r.header.KmerLength
}

// KmerCount returns the number of stored k-mers.
func (r *Reader) KmerCount() uint64 {
	return r.header.RecordCount
}

// PrefixBases returns the lookup table prefix length.
func (r *Reader) PrefixBases() int {
	return int(r.header.PrefixBases)
}

// CounterBits returns the counter width in bits.
func (r *Reader) CounterBits() int {
	return r.header.CounterBits()
}

// NumBins returns the number of lookup table entries.
func (r *Reader) NumBins() int {
	return r.lut.NumBins()
}

// BinRange returns the first record and record count of bin prefix.
func (r *Reader) BinRange(prefix uint64) (first, count uint64) {
	return r.lut.Range(prefix)
}

// BinStorageLength returns the length of the bin storage in records.
func (r *Reader) BinStorageLength() uint64 {
	return r.header.RecordCount
}

// NumPages returns the number of pages.
func (r *Reader) NumPages() int {
	return len(r.pages)
}

// HasFilter reports whether the file carries a Bloom filter.
func (r *Reader) HasFilter() bool {
	return r.filter != nil
}

// Mapped reports whether pages are served from a memory mapping.
func (r *Reader) Mapped() bool {
	return r.mapped != nil
}

// FileSize returns the size of the database file in bytes.
func (r *Reader) FileSize() uint64 {
	return r.size
}

// FileID returns the identifier of this reader's pages in the page cache.
func (r *Reader) FileID() uint64 {
	return r.fileID
}

// Close drops this reader's cached pages and closes the file.
func (r *Reader) Close() error {
	if r.options.Cache != nil {
		r.options.Cache.EraseFile(r.fileID)
	}
	r.mapped = nil
	return r.file.Close()
}
