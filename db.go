package kmerdb

// db.go implements the database handle: open, query and close.

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aalhour/kmerdb/internal/cache"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
	"github.com/aalhour/kmerdb/internal/logging"
	"github.com/aalhour/kmerdb/internal/table"
	"github.com/aalhour/kmerdb/internal/vfs"
)

// Properties describes an open database.
type Properties struct {
	KmerLength     uint32
	PrefixBases    int
	CounterBits    int
	KmerCount      uint64
	CutoffMin      uint32
	CutoffMax      uint32
	Compression    CompressionType
	ChecksumType   ChecksumType
	RecordsPerPage uint32
	NumPages       int
	HasBloomFilter bool
	MemoryMapped   bool
	FileSize       uint64
}

// DB is an open k-mer counting database.
//
// A DB is safe for concurrent use. Queries run in parallel; Close waits for
// queries in flight and makes every later query fail with ErrClosed.
type DB struct {
	name    string
	options *Options
	logger  logging.Logger
	stats   Statistics
	header  format.Header
	props   Properties

	mu     sync.RWMutex
	reader *table.Reader
	closed bool

	errMu           sync.Mutex
	backgroundError error
}

// Open opens the database file at path for random-access queries.
//
// Errors reading the file wrap ErrOpen; structural problems wrap ErrFormat.
func Open(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	fs := opts.FS
	if fs == nil {
		fs = vfs.Default()
	}

	// db.logger is never nil.
	logger := logging.OrDefault(opts.Logger)

	db := &DB{
		name:    path,
		options: opts,
		logger:  logger,
		stats:   opts.Statistics,
	}

	if !fs.Exists(path) {
		return nil, fmt.Errorf("%w: %q does not exist", ErrOpen, path)
	}
	file, err := openFile(fs, path, opts.UseMmapReads, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	pageCache := opts.BlockCache
	if pageCache == nil && opts.BlockCacheSize > 0 {
		pageCache = cache.NewShardedLRUCache(opts.BlockCacheSize, cache.DefaultShards)
	}

	r, err := table.Open(file, table.ReaderOptions{
		VerifyChecksums: opts.VerifyChecksums,
		ParanoidChecks:  opts.ParanoidChecks,
		UseBloomFilter:  opts.UseBloomFilter,
		Cache:           pageCache,
		MinCount:        opts.MinCount,
		MaxCount:        opts.MaxCount,
		Logger:          logger,
	})
	if err != nil {
		_ = file.Close()
		if errors.Is(err, format.ErrFormat) {
			logger.Errorf(logging.NSFormat+"%s: %v", path, err)
			return nil, fmt.Errorf("db: open %q: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %q: %w", ErrOpen, path, err)
	}

	db.reader = r
	db.header = r.Header()
	db.props = Properties{
		KmerLength:     db.header.KmerLength,
		PrefixBases:    r.PrefixBases(),
		CounterBits:    r.CounterBits(),
		KmerCount:      r.KmerCount(),
		CutoffMin:      db.header.CutoffMin,
		CutoffMax:      db.header.CutoffMax,
		Compression:    db.header.Compression,
		ChecksumType:   db.header.ChecksumType,
		RecordsPerPage: db.header.RecordsPerPage,
		NumPages:       r.NumPages(),
		HasBloomFilter: r.HasFilter(),
		MemoryMapped:   r.Mapped(),
		FileSize:       r.FileSize(),
	}
	db.recordTick(TickerFileOpens, 1)
	logger.Infof(logging.NSOpen+"opened %s: k=%d prefix=%d records=%d pages=%d compression=%s mmap=%v",
		path, db.header.KmerLength, db.header.PrefixBases, db.header.RecordCount,
		r.NumPages(), db.header.Compression, r.Mapped())
	return db, nil
}

// openFile opens path for reading, through a memory mapping when requested
// and possible.
func openFile(fs vfs.FS, path string, mmap bool, logger logging.Logger) (vfs.RandomAccessFile, error) {
	if mmap {
		f, err := fs.OpenMapped(path)
		if err == nil {
			return f, nil
		}
		logger.Warnf(logging.NSOpen+"%s: cannot map file, falling back to pread: %v", path, err)
	}
	return fs.OpenRandomAccess(path)
}

// Name returns the path the database was opened from.
func (db *DB) Name() string {
	return db.name
}

// KmerLength returns k, the length of every stored k-mer.
func (db *DB) KmerLength() uint32 {
	return db.header.KmerLength
}

// KmerCount returns the number of distinct canonical k-mers stored.
func (db *DB) KmerCount() uint64 {
	return db.header.RecordCount
}

// Properties returns the database's header information.
func (db *DB) Properties() Properties {
	return db.props
}

// CheckKmer returns the count of k's canonical form. found is false, with a
// zero count, when the k-mer is absent or its count lies outside the
// configured [MinCount, MaxCount] window.
func (db *DB) CheckKmer(k Kmer) (count uint64, found bool, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.checkUsable(); err != nil {
		return 0, false, err
	}
	return db.lookup(k)
}

// CheckString encodes s and returns the count of its canonical form.
func (db *DB) CheckString(s string) (count uint64, found bool, err error) {
	k, err := kmer.Encode(s)
	if err != nil {
		db.recordTick(TickerInvalidKmers, 1)
		return 0, false, err
	}
	return db.CheckKmer(k)
}

// CountersForRead returns one count per k-length window of read, in order.
// Soft-masked bases (a, c, g, t) are counted as their uppercase forms.
// Windows holding any other byte, and absent k-mers, count zero. A read
// shorter than k yields an empty slice.
func (db *DB) CountersForRead(read string) ([]uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.checkUsable(); err != nil {
		return nil, err
	}

	read = kmer.FoldBases(read)
	k := int(db.header.KmerLength)
	if len(read) < k {
		return []uint64{}, nil
	}
	counts := make([]uint64, len(read)-k+1)

	// Windows starting at or before lastInvalid contain a bad byte.
	lastInvalid := -1
	for i := range k - 1 {
		if _, ok := kmer.Code(read[i]); !ok {
			lastInvalid = i
		}
	}
	for i := range counts {
		end := i + k - 1
		if _, ok := kmer.Code(read[end]); !ok {
			lastInvalid = end
		}
		if lastInvalid >= i {
			continue
		}
		q, err := kmer.Encode(read[i : end+1])
		if err != nil {
			return nil, err
		}
		count, _, err := db.lookup(q)
		if err != nil {
			return nil, err
		}
		counts[i] = count
	}
	db.recordTick(TickerReadWindows, uint64(len(counts)))
	return counts, nil
}

// checkUsable must be called with db.mu held.
func (db *DB) checkUsable() error {
	if db.closed {
		return ErrClosed
	}
	return db.GetBackgroundError()
}

// lookup must be called with db.mu held for reading.
func (db *DB) lookup(k Kmer) (uint64, bool, error) {
	var st table.LookupStats
	start := time.Now()
	count, found, err := db.reader.Lookup(k, &st)
	db.recordLookup(&st, time.Since(start), found, err)

	switch {
	case err == nil:
		return count, found, nil
	case errors.Is(err, table.ErrLengthMismatch):
		return 0, false, err
	case errors.Is(err, format.ErrFormat):
		db.SetBackgroundError(err)
		db.logger.Fatalf(logging.NSQuery+"%s: %v", db.name, err)
		return 0, false, err
	default:
		db.logger.Errorf(logging.NSQuery+"%s: %v", db.name, err)
		return 0, false, err
	}
}

func (db *DB) recordTick(t TickerType, n uint64) {
	if db.stats != nil && n > 0 {
		db.stats.RecordTick(t, n)
	}
}

func (db *DB) recordLookup(st *table.LookupStats, elapsed time.Duration, found bool, err error) {
	if db.stats == nil {
		return
	}
	db.recordTick(TickerLookups, 1)
	switch {
	case errors.Is(err, table.ErrLengthMismatch):
		db.recordTick(TickerLengthMismatch, 1)
		return
	case errors.Is(err, format.ErrFormat):
		db.recordTick(TickerCorruptions, 1)
	case err != nil:
		db.recordTick(TickerReadErrors, 1)
	case found:
		db.recordTick(TickerLookupsFound, 1)
	default:
		db.recordTick(TickerLookupsNotFound, 1)
	}
	if st.BloomUseful {
		db.recordTick(TickerBloomFilterUseful, 1)
	}
	db.recordTick(TickerPageCacheHit, uint64(st.CacheHits))
	db.recordTick(TickerPageCacheMiss, uint64(st.CacheMisses))
	db.recordTick(TickerPagesRead, uint64(st.PagesRead))
	db.recordTick(TickerBytesRead, uint64(st.BytesRead))
	db.recordTick(TickerBytesDecompressed, uint64(st.BytesDecompressed))
	db.recordTick(TickerBinarySearchProbes, uint64(st.Probes))

	db.stats.MeasureTime(HistogramLookupMicros, uint64(elapsed.Microseconds()))
	db.stats.MeasureTime(HistogramProbesPerLookup, uint64(st.Probes))
	if st.PagesRead > 0 {
		db.stats.MeasureTime(HistogramPageReadMicros, uint64(st.PageReadTime.Microseconds()))
		db.stats.MeasureTime(HistogramBytesPerRead, uint64(st.BytesRead))
	}
}

// Close releases the file and the database's cached pages. It waits for
// queries in flight. Closing a closed database is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.reader.Close(); err != nil {
		db.logger.Warnf(logging.NSClose+"%s: %v", db.name, err)
		return fmt.Errorf("db: close %q: %w", db.name, err)
	}
	db.logger.Infof(logging.NSClose+"closed %s", db.name)
	return nil
}

// SetBackgroundError sets an unrecoverable error. Once set, every query fails
// with it. The first error wins; it is cleared only by reopening.
func (db *DB) SetBackgroundError(err error) {
	db.errMu.Lock()
	defer db.errMu.Unlock()
	if db.backgroundError == nil && err != nil {
		db.backgroundError = err
	}
}

// GetBackgroundError returns the current background error, if any.
func (db *DB) GetBackgroundError() error {
	db.errMu.Lock()
	defer db.errMu.Unlock()
	return db.backgroundError
}
