package table

import (
	"bytes"
	"testing"

	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
	"github.com/aalhour/kmerdb/internal/vfs"
)

type record struct {
	k     kmer.Kmer
	count uint64
}

// fiveMers returns 291 canonical 5-mers in ascending order: the first 290
// canonical 5-mers other than TAAGA, plus TAAGA with count 4. Other counts
// cycle through 2..8.
func fiveMers() []record {
	taaga := kmer.MustEncode("TAAGA")
	var out []record
	taken := 0
	for v := range uint64(1 << 10) {
		k, _ := kmer.FromUint64(5, v)
		if !kmer.IsCanonical(k) {
			continue
		}
		if kmer.Equal(k, taaga) {
			out = append(out, record{k, 4})
			continue
		}
		if taken < 290 {
			out = append(out, record{k, uint64(taken%7) + 2})
			taken++
		}
	}
	return out
}

// allCanonical returns every canonical k-mer of length k <= 10 with count 1+i%200.
func allCanonical(k int) []record {
	var out []record
	for v := range uint64(1) << (2 * k) {
		km, _ := kmer.FromUint64(k, v)
		if kmer.IsCanonical(km) {
			out = append(out, record{km, uint64(1 + len(out)%200)})
		}
	}
	return out
}

func fixtureOptions() BuilderOptions {
	opts := DefaultBuilderOptions(5)
	opts.PrefixBases = 2
	opts.CounterBytes = 1
	opts.RecordsPerPage = 16
	opts.CutoffMin = 2
	opts.CutoffMax = 255
	return opts
}

func buildDB(t testing.TB, opts BuilderOptions, recs []record) []byte {
	t.Helper()
	var buf bytes.Buffer
	b, err := NewBuilder(&buf, opts)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	for _, rec := range recs {
		if err := b.Add(rec.k, rec.count); err != nil {
			t.Fatalf("Add(%s): %v", rec.k, err)
		}
	}
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if b.FileSize() != uint64(buf.Len()) {
		t.Fatalf("FileSize = %d, wrote %d", b.FileSize(), buf.Len())
	}
	return buf.Bytes()
}

func openData(t testing.TB, data []byte, mapped bool, opts ReaderOptions) (*Reader, error) {
	t.Helper()
	fs := vfs.NewMemFS()
	fs.WriteFile("/test.kdb", data)
	var (
		f   vfs.RandomAccessFile
		err error
	)
	if mapped {
		f, err = fs.OpenMapped("/test.kdb")
	} else {
		f, err = fs.OpenRandomAccess("/test.kdb")
	}
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return Open(f, opts)
}

func mustOpen(t testing.TB, data []byte, mapped bool, opts ReaderOptions) *Reader {
	t.Helper()
	r, err := openData(t, data, mapped, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// patchBins lets mutate edit the raw bin storage of an uncompressed database
// and then reseals page, page directory and header checksums so that only the
// record contents are inconsistent.
func patchBins(t testing.TB, data []byte, mutate func(h *format.Header, bins []byte)) []byte {
	t.Helper()
	out := bytes.Clone(data)
	h, err := format.DecodeHeader(out)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	bins := out[h.Bins.Offset : h.Bins.Offset+h.Bins.Size]
	mutate(h, bins)

	pages, err := format.DecodePageDirectory(out[h.PageDir.Offset:h.PageDir.Offset+h.PageDir.Size], h)
	if err != nil {
		t.Fatalf("DecodePageDirectory: %v", err)
	}
	var dir []byte
	for _, p := range pages {
		p.Checksum = checksum.Compute(h.ChecksumType, bins[p.Offset:p.Offset+uint64(p.Size)])
		dir = format.AppendPageEntry(dir, p)
	}
	copy(out[h.PageDir.Offset:], dir)
	h.PageDirChecksum = checksum.Compute(h.ChecksumType, dir)
	copy(out, h.Encode())
	return out
}
