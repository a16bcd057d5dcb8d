package kmerdb

import (
	"bytes"
	"fmt"

	"github.com/aalhour/kmerdb/internal/options"
	"github.com/aalhour/kmerdb/internal/vfs"
)

// ErrInvalidOptionsFile is returned when an options file cannot be parsed.
var ErrInvalidOptionsFile = options.ErrInvalidOptionsFile

// LoadOptionsFile reads query and layout options from an INI-style options
// file. Keys missing from the [DBOptions] section keep the values of
// DefaultOptions. The writer options are returned only when the file has a
// [WriterOptions] section with a kmer_length; otherwise w is nil.
//
// fs may be nil for the OS filesystem. The returned Options use fs.
func LoadOptionsFile(path string, fs FS) (opts *Options, w *WriterOptions, err error) {
	if fs == nil {
		fs = vfs.Default()
	}
	defaults := DefaultOptions()
	parsed, err := options.ReadOptionsFile(fs, path, dbSection(defaults), options.WriterOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("db: load options %q: %w", path, err)
	}

	opts = defaults
	opts.FS = fs
	opts.UseMmapReads = parsed.DB.UseMmapReads
	opts.VerifyChecksums = parsed.DB.VerifyChecksums
	opts.ParanoidChecks = parsed.DB.ParanoidChecks
	opts.UseBloomFilter = parsed.DB.UseBloomFilter
	opts.BlockCacheSize = parsed.DB.BlockCacheSize
	opts.MinCount = parsed.DB.MinCount
	opts.MaxCount = parsed.DB.MaxCount

	if parsed.HasSection(options.SectionWriter) && parsed.Writer.KmerLength > 0 {
		// Layout keys absent from the file take the defaults for k.
		defaults := options.WriterOptions(DefaultWriterOptions(parsed.Writer.KmerLength))
		parsed, err = options.ReadOptionsFile(fs, path, dbSection(opts), defaults)
		if err != nil {
			return nil, nil, fmt.Errorf("db: load options %q: %w", path, err)
		}
		wo := WriterOptions(parsed.Writer)
		w = &wo
	}
	return opts, w, nil
}

// SaveOptionsFile writes opts, and w when non-nil, to an options file at path.
func SaveOptionsFile(path string, fs FS, opts *Options, w *WriterOptions) error {
	if fs == nil {
		fs = vfs.Default()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	var wo options.WriterOptions
	if w != nil {
		wo = options.WriterOptions(*w)
	}

	var buf bytes.Buffer
	if err := options.WriteOptionsFile(&buf, dbSection(opts), wo); err != nil {
		return err
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("db: save options %q: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("db: save options %q: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("db: save options %q: %w", path, err)
	}
	return f.Close()
}

func dbSection(o *Options) options.DBOptions {
	return options.DBOptions{
		UseMmapReads:    o.UseMmapReads,
		VerifyChecksums: o.VerifyChecksums,
		ParanoidChecks:  o.ParanoidChecks,
		UseBloomFilter:  o.UseBloomFilter,
		BlockCacheSize:  o.BlockCacheSize,
		MinCount:        o.MinCount,
		MaxCount:        o.MaxCount,
	}
}
