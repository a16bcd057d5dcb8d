package kmerdb

// writer_test.go implements tests for the database writer.

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/aalhour/kmerdb/internal/vfs"
)

func TestDatabaseWriterOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.kdb")
	w := NewDatabaseWriter(DefaultWriterOptions(5), nil)

	if err := w.Open(path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := w.Open(path); !errors.Is(err, ErrWriterAlreadyOpened) {
		t.Errorf("Expected ErrWriterAlreadyOpened, got %v", err)
	}
	w.Abandon()

	if vfs.Default().Exists(path) || vfs.Default().Exists(path+".tmp") {
		t.Error("Abandon left files behind")
	}
}

func TestDatabaseWriterNotOpened(t *testing.T) {
	w := NewDatabaseWriter(DefaultWriterOptions(5), nil)
	if err := w.Add(MustEncode("AAAAA"), 1); !errors.Is(err, ErrWriterNotOpened) {
		t.Errorf("Add = %v", err)
	}
	if err := w.Finish(); !errors.Is(err, ErrWriterNotOpened) {
		t.Errorf("Finish = %v", err)
	}
	w.Abandon()
}

func TestDatabaseWriterInvalidOptions(t *testing.T) {
	fs := vfs.NewMemFS()
	opts := DefaultWriterOptions(5)
	opts.CounterBytes = 7
	w := NewDatabaseWriter(opts, fs)
	if err := w.Open("/bad.kdb"); err == nil {
		t.Fatal("Open accepted a 7-byte counter")
	}
	if fs.Exists("/bad.kdb.tmp") {
		t.Error("temporary file left behind")
	}
}

func TestDatabaseWriterAddErrors(t *testing.T) {
	fs := vfs.NewMemFS()
	opts := DefaultWriterOptions(5)
	opts.CounterBytes = 1
	w := NewDatabaseWriter(opts, fs)
	if err := w.Open("/db.kdb"); err != nil {
		t.Fatal(err)
	}
	defer w.Abandon()

	if err := w.Add(MustEncode("ACGTA"), 3); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		kmer  string
		count uint64
		want  error
	}{
		{"AAAAA", 1, ErrOutOfOrder},
		{"TTTTT", 1, ErrNotCanonical},
		{"ACGTC", 1000, ErrCounterOverflow},
		{"ACGT", 1, ErrLengthMismatch},
	}
	for _, tt := range tests {
		if err := w.Add(MustEncode(tt.kmer), tt.count); !errors.Is(err, tt.want) {
			t.Errorf("Add(%s, %d) = %v, want %v", tt.kmer, tt.count, err, tt.want)
		}
	}
	if w.NumKmers() != 1 {
		t.Errorf("NumKmers = %d, want 1", w.NumKmers())
	}
}

func TestDatabaseWriterRoundTrip(t *testing.T) {
	compressions := []CompressionType{
		NoCompression, SnappyCompression, ZlibCompression,
		LZ4Compression, LZ4HCCompression, ZstdCompression,
	}
	for _, ct := range compressions {
		t.Run(ct.String(), func(t *testing.T) {
			fs := vfs.NewMemFS()
			opts := fixtureWriterOptions()
			opts.Compression = ct
			opts.ChecksumType = ChecksumTypeCRC32C
			writeDB(t, fs, "/db.kdb", opts, fixtureRecords())
			if fs.Exists("/db.kdb.tmp") {
				t.Error("temporary file not renamed")
			}

			dbOpts := DefaultOptions()
			dbOpts.FS = fs
			dbOpts.ParanoidChecks = true
			db, err := Open("/db.kdb", dbOpts)
			if err != nil {
				t.Fatal(err)
			}
			defer db.Close()
			if p := db.Properties(); p.Compression != ct || p.ChecksumType != ChecksumTypeCRC32C {
				t.Errorf("Properties = %+v", p)
			}
			for _, r := range fixtureRecords() {
				count, found, err := db.CheckString(r.kmer)
				if err != nil || !found || count != r.count {
					t.Fatalf("CheckString(%s) = %d, %v, %v; want %d", r.kmer, count, found, err, r.count)
				}
			}
		})
	}
}
