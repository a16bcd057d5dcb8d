package kmerdb

// writer.go implements DatabaseWriter, which serializes already counted
// canonical k-mers into a database file.

import (
	"errors"
	"fmt"

	"github.com/aalhour/kmerdb/internal/table"
	"github.com/aalhour/kmerdb/internal/vfs"
)

var (
	// ErrWriterAlreadyOpened is returned when Open is called twice.
	ErrWriterAlreadyOpened = errors.New("db: database writer already opened")

	// ErrWriterNotOpened is returned when Add or Finish is called before Open.
	ErrWriterNotOpened = errors.New("db: database writer not opened")

	// ErrOutOfOrder is returned when k-mers are not added in strictly
	// ascending order.
	ErrOutOfOrder = table.ErrOutOfOrder

	// ErrNotCanonical is returned when an added k-mer is not canonical.
	ErrNotCanonical = table.ErrNotCanonical

	// ErrCounterOverflow is returned when a count does not fit the counter width.
	ErrCounterOverflow = table.ErrCounterOverflow
)

// WriterOptions configures the file layout. See DefaultWriterOptions.
type WriterOptions = table.BuilderOptions

// DefaultWriterOptions returns default layout options for k-mers of length k.
func DefaultWriterOptions(k int) WriterOptions {
	return table.DefaultBuilderOptions(k)
}

// DatabaseWriter writes a database file. The file is written under a
// temporary name and renamed into place by Finish.
type DatabaseWriter struct {
	options WriterOptions
	fs      vfs.FS

	path    string
	tmpPath string
	file    vfs.WritableFile
	builder *table.Builder
}

// NewDatabaseWriter creates a writer. fs may be nil for the OS filesystem.
func NewDatabaseWriter(opts WriterOptions, fs FS) *DatabaseWriter {
	if fs == nil {
		fs = vfs.Default()
	}
	return &DatabaseWriter{options: opts, fs: fs}
}

// Open starts a new database at path.
func (w *DatabaseWriter) Open(path string) error {
	if w.builder != nil {
		return ErrWriterAlreadyOpened
	}
	tmpPath := path + ".tmp"
	f, err := w.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("db: create %q: %w", tmpPath, err)
	}
	b, err := table.NewBuilder(f, w.options)
	if err != nil {
		_ = f.Close()
		_ = w.fs.Remove(tmpPath)
		return err
	}
	w.path, w.tmpPath, w.file, w.builder = path, tmpPath, f, b
	return nil
}

// Add appends a k-mer and its count. K-mers must be canonical and added in
// strictly ascending order.
func (w *DatabaseWriter) Add(k Kmer, count uint64) error {
	if w.builder == nil {
		return ErrWriterNotOpened
	}
	return w.builder.Add(k, count)
}

// NumKmers returns the number of k-mers added so far.
func (w *DatabaseWriter) NumKmers() uint64 {
	if w.builder == nil {
		return 0
	}
	return w.builder.NumRecords()
}

// Finish writes the database, syncs it and renames it into place.
func (w *DatabaseWriter) Finish() error {
	if w.builder == nil {
		return ErrWriterNotOpened
	}
	defer w.reset()

	if err := w.builder.Finish(); err != nil {
		w.discard()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("db: sync %q: %w", w.tmpPath, err)
	}
	if err := w.file.Close(); err != nil {
		_ = w.fs.Remove(w.tmpPath)
		return fmt.Errorf("db: close %q: %w", w.tmpPath, err)
	}
	if err := w.fs.Rename(w.tmpPath, w.path); err != nil {
		_ = w.fs.Remove(w.tmpPath)
		return fmt.Errorf("db: rename %q: %w", w.tmpPath, err)
	}
	return nil
}

// Abandon discards the database being written.
func (w *DatabaseWriter) Abandon() {
	if w.builder == nil {
		return
	}
	w.builder.Abandon()
	w.discard()
	w.reset()
}

func (w *DatabaseWriter) discard() {
	_ = w.file.Close()
	_ = w.fs.Remove(w.tmpPath)
}

func (w *DatabaseWriter) reset() {
	w.path, w.tmpPath, w.file, w.builder = "", "", nil, nil
}
