// Package options implements options file parsing for k-mer databases.
//
// An options file is INI-style. [DBOptions] configures how a database is
// opened and queried; [WriterOptions] configures the layout of new files:
//
//	[DBOptions]
//	  use_mmap_reads=true
//	  block_cache_size=8388608
//	  min_count=2
//
//	[WriterOptions]
//	  kmer_length=31
//	  compression=kZSTD
//
// Keys that are absent keep their defaults. Unknown keys and sections are
// ignored; malformed values are errors.
//
// This package is internal and not part of the public API.
package options

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/vfs"
)

// ErrInvalidOptionsFile is returned for malformed options files.
var ErrInvalidOptionsFile = errors.New("options: invalid options file")

// Section names.
const (
	SectionDB     = "DBOptions"
	SectionWriter = "WriterOptions"
)

// DBOptions holds the [DBOptions] section.
type DBOptions struct {
	UseMmapReads    bool
	VerifyChecksums bool
	ParanoidChecks  bool
	UseBloomFilter  bool
	BlockCacheSize  uint64
	MinCount        uint64
	MaxCount        uint64
}

// WriterOptions holds the [WriterOptions] section. A zero KmerLength means
// the section did not set one.
type WriterOptions struct {
	KmerLength      int
	PrefixBases     int
	CounterBytes    int
	Compression     compression.Type
	ChecksumType    checksum.Type
	RecordsPerPage  int
	BloomBitsPerKey int
	CutoffMin       uint32
	CutoffMax       uint32
}

// ParsedOptions represents options parsed from an options file.
type ParsedOptions struct {
	DB     DBOptions
	Writer WriterOptions

	// Sections lists the sections present in the file.
	Sections []string
}

// HasSection reports whether the file contained the named section.
func (p *ParsedOptions) HasSection(name string) bool {
	for _, s := range p.Sections {
		if s == name {
			return true
		}
	}
	return false
}

// ReadOptionsFile reads and parses an options file. db and w supply the
// defaults for absent keys.
func ReadOptionsFile(fs vfs.FS, path string, db DBOptions, w WriterOptions) (*ParsedOptions, error) {
	file, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return ParseOptionsFile(io.NewSectionReader(file, 0, file.Size()), db, w)
}

// ParseOptionsFile parses options from a reader.
func ParseOptionsFile(r io.Reader, db DBOptions, w WriterOptions) (*ParsedOptions, error) {
	opts := &ParsedOptions{DB: db, Writer: w}

	scanner := bufio.NewScanner(r)
	currentSection := ""
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			opts.Sections = append(opts.Sections, currentSection)
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key=value", ErrInvalidOptionsFile, lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch currentSection {
		case SectionDB:
			err = opts.DB.set(key, value)
		case SectionWriter:
			err = opts.Writer.set(key, value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %w", ErrInvalidOptionsFile, lineNo, key, err)
		}
	}
	return opts, scanner.Err()
}

func (o *DBOptions) set(key, value string) error {
	var err error
	switch key {
	case "use_mmap_reads":
		o.UseMmapReads, err = strconv.ParseBool(value)
	case "verify_checksums":
		o.VerifyChecksums, err = strconv.ParseBool(value)
	case "paranoid_checks":
		o.ParanoidChecks, err = strconv.ParseBool(value)
	case "use_bloom_filter":
		o.UseBloomFilter, err = strconv.ParseBool(value)
	case "block_cache_size":
		o.BlockCacheSize, err = strconv.ParseUint(value, 10, 64)
	case "min_count":
		o.MinCount, err = strconv.ParseUint(value, 10, 64)
	case "max_count":
		o.MaxCount, err = strconv.ParseUint(value, 10, 64)
	}
	return err
}

func (o *WriterOptions) set(key, value string) error {
	var err error
	switch key {
	case "kmer_length":
		o.KmerLength, err = strconv.Atoi(value)
	case "prefix_bases":
		o.PrefixBases, err = strconv.Atoi(value)
	case "counter_bytes":
		o.CounterBytes, err = strconv.Atoi(value)
	case "compression":
		o.Compression, err = StringToCompressionType(value)
	case "checksum":
		o.ChecksumType, err = StringToChecksumType(value)
	case "records_per_page":
		o.RecordsPerPage, err = strconv.Atoi(value)
	case "bloom_bits_per_key":
		o.BloomBitsPerKey, err = strconv.Atoi(value)
	case "cutoff_min":
		o.CutoffMin, err = parseUint32(value)
	case "cutoff_max":
		o.CutoffMax, err = parseUint32(value)
	}
	return err
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// WriteOptionsFile writes db and w as an options file.
func WriteOptionsFile(out io.Writer, db DBOptions, w WriterOptions) error {
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "[%s]\n", SectionDB)
	fmt.Fprintf(bw, "  use_mmap_reads=%t\n", db.UseMmapReads)
	fmt.Fprintf(bw, "  verify_checksums=%t\n", db.VerifyChecksums)
	fmt.Fprintf(bw, "  paranoid_checks=%t\n", db.ParanoidChecks)
	fmt.Fprintf(bw, "  use_bloom_filter=%t\n", db.UseBloomFilter)
	fmt.Fprintf(bw, "  block_cache_size=%d\n", db.BlockCacheSize)
	fmt.Fprintf(bw, "  min_count=%d\n", db.MinCount)
	fmt.Fprintf(bw, "  max_count=%d\n", db.MaxCount)

	fmt.Fprintf(bw, "\n[%s]\n", SectionWriter)
	fmt.Fprintf(bw, "  kmer_length=%d\n", w.KmerLength)
	fmt.Fprintf(bw, "  prefix_bases=%d\n", w.PrefixBases)
	fmt.Fprintf(bw, "  counter_bytes=%d\n", w.CounterBytes)
	fmt.Fprintf(bw, "  compression=%s\n", CompressionTypeToString(w.Compression))
	fmt.Fprintf(bw, "  checksum=%s\n", ChecksumTypeToString(w.ChecksumType))
	fmt.Fprintf(bw, "  records_per_page=%d\n", w.RecordsPerPage)
	fmt.Fprintf(bw, "  bloom_bits_per_key=%d\n", w.BloomBitsPerKey)
	fmt.Fprintf(bw, "  cutoff_min=%d\n", w.CutoffMin)
	fmt.Fprintf(bw, "  cutoff_max=%d\n", w.CutoffMax)
	return bw.Flush()
}

var compressionNames = []struct {
	name string
	t    compression.Type
}{
	{"kNoCompression", compression.NoCompression},
	{"kSnappyCompression", compression.SnappyCompression},
	{"kZlibCompression", compression.ZlibCompression},
	{"kLZ4Compression", compression.LZ4Compression},
	{"kLZ4HCCompression", compression.LZ4HCCompression},
	{"kZSTD", compression.ZstdCompression},
}

// StringToCompressionType converts an options file name to compression.Type.
func StringToCompressionType(s string) (compression.Type, error) {
	for _, c := range compressionNames {
		if c.name == s {
			return c.t, nil
		}
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// CompressionTypeToString returns the options file name of t.
func CompressionTypeToString(t compression.Type) string {
	for _, c := range compressionNames {
		if c.t == t {
			return c.name
		}
	}
	return "kNoCompression"
}

var checksumNames = []struct {
	name string
	t    checksum.Type
}{
	{"kNoChecksum", checksum.TypeNoChecksum},
	{"kCRC32c", checksum.TypeCRC32C},
	{"kXXH3", checksum.TypeXXH3},
}

// StringToChecksumType converts an options file name to checksum.Type.
func StringToChecksumType(s string) (checksum.Type, error) {
	for _, c := range checksumNames {
		if c.name == s {
			return c.t, nil
		}
	}
	return 0, fmt.Errorf("unknown checksum %q", s)
}

// ChecksumTypeToString returns the options file name of t.
func ChecksumTypeToString(t checksum.Type) string {
	for _, c := range checksumNames {
		if c.t == t {
			return c.name
		}
	}
	return "kXXH3"
}
