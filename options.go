package kmerdb

// options.go implements database configuration options.

import (
	"github.com/aalhour/kmerdb/internal/cache"
	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/logging"
	"github.com/aalhour/kmerdb/internal/vfs"
)

// Logger is an alias for the logging.Logger interface.
// This allows users to pass their own logger implementation.
type Logger = logging.Logger

// FS is the filesystem a database is read from.
type FS = vfs.FS

// Cache is the page cache interface. A cache may be shared by several
// databases.
type Cache = cache.Cache

// NewLRUCache returns a sharded LRU page cache holding up to capacity bytes.
func NewLRUCache(capacity uint64) Cache {
	return cache.NewShardedLRUCache(capacity, cache.DefaultShards)
}

// CompressionType is an alias for the page compression type.
type CompressionType = compression.Type

// Compression type constants
const (
	NoCompression     = compression.NoCompression
	SnappyCompression = compression.SnappyCompression
	ZlibCompression   = compression.ZlibCompression
	LZ4Compression    = compression.LZ4Compression
	LZ4HCCompression  = compression.LZ4HCCompression
	ZstdCompression   = compression.ZstdCompression
)

// ChecksumType is an alias for the checksum type.
type ChecksumType = checksum.Type

// Checksum type constants
const (
	ChecksumTypeNoChecksum = checksum.TypeNoChecksum
	ChecksumTypeCRC32C     = checksum.TypeCRC32C
	ChecksumTypeXXH3       = checksum.TypeXXH3
)

// Options controls how a database is opened and queried.
type Options struct {
	// FS is the filesystem the database file is read from.
	// Default: the OS filesystem.
	FS FS

	// Logger receives diagnostic messages.
	// Default: a WARN-level logger on stderr.
	Logger Logger

	// UseMmapReads maps the file into memory instead of reading pages with
	// pread. When mapping fails the database falls back to pread.
	// Default: false
	UseMmapReads bool

	// VerifyChecksums verifies every page's checksum on first use. The header,
	// lookup table, page directory and filter are always verified.
	// Default: true
	VerifyChecksums bool

	// ParanoidChecks scans every record at open, verifying that bins are
	// strictly ascending and that every stored k-mer is canonical.
	// Default: false
	ParanoidChecks bool

	// BlockCache holds decoded pages. When nil, a private cache of
	// BlockCacheSize bytes is created.
	BlockCache Cache

	// BlockCacheSize is the capacity of the private page cache in bytes.
	// Zero disables page caching when BlockCache is nil.
	// Default: 8MB
	BlockCacheSize uint64

	// UseBloomFilter consults the file's Bloom filter, when present, before
	// searching a bin.
	// Default: true
	UseBloomFilter bool

	// MinCount hides k-mers counted fewer than MinCount times.
	// Default: 0
	MinCount uint64

	// MaxCount hides k-mers counted more than MaxCount times. Zero means no
	// upper bound.
	// Default: 0
	MaxCount uint64

	// Statistics collects query metrics when non-nil.
	Statistics Statistics
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		VerifyChecksums: true,
		BlockCacheSize:  8 << 20,
		UseBloomFilter:  true,
	}
}
