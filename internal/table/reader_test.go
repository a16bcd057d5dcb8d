package table

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aalhour/kmerdb/internal/cache"
	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/encoding"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
	"github.com/aalhour/kmerdb/internal/vfs"
)

func TestFiveMerFixture(t *testing.T) {
	recs := fiveMers()
	data := buildDB(t, fixtureOptions(), recs)

	for _, mapped := range []bool{false, true} {
		t.Run(fmt.Sprintf("mapped=%v", mapped), func(t *testing.T) {
			r := mustOpen(t, data, mapped, ReaderOptions{VerifyChecksums: true})
			if r.KmerLength() != 5 {
				t.Errorf("KmerLength = %d, want 5", r.KmerLength())
			}
			if r.KmerCount() != 291 {
				t.Errorf("KmerCount = %d, want 291", r.KmerCount())
			}
			if r.Mapped() != mapped {
				t.Errorf("Mapped = %v", r.Mapped())
			}
			count, found, err := r.Lookup(kmer.MustEncode("TAAGA"), nil)
			if err != nil || !found || count != 4 {
				t.Errorf("Lookup(TAAGA) = %d, %v, %v; want 4, true, nil", count, found, err)
			}
			// TCTTA is the reverse complement of TAAGA.
			count, found, err = r.Lookup(kmer.MustEncode("TCTTA"), nil)
			if err != nil || !found || count != 4 {
				t.Errorf("Lookup(TCTTA) = %d, %v, %v; want 4, true, nil", count, found, err)
			}
		})
	}
}

func TestLookupEveryRecord(t *testing.T) {
	recs := fiveMers()
	data := buildDB(t, fixtureOptions(), recs)
	r := mustOpen(t, data, false, ReaderOptions{VerifyChecksums: true})

	stored := make(map[string]uint64)
	for _, rec := range recs {
		stored[rec.k.String()] = rec.count
	}
	for v := range uint64(1 << 10) {
		q, _ := kmer.FromUint64(5, v)
		want, ok := stored[kmer.Canonical(q).String()]

		count, found, err := r.Lookup(q, nil)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", q, err)
		}
		if found != ok || count != want {
			t.Fatalf("Lookup(%s) = %d, %v; want %d, %v", q, count, found, want, ok)
		}
		// Lookup symmetry.
		rcCount, rcFound, err := r.Lookup(kmer.ReverseComplement(q), nil)
		if err != nil || rcCount != count || rcFound != found {
			t.Fatalf("Lookup(RC(%s)) = %d, %v, %v; want %d, %v", q, rcCount, rcFound, err, count, found)
		}
	}
}

func TestLookupLengthMismatch(t *testing.T) {
	data := buildDB(t, fixtureOptions(), fiveMers())
	r := mustOpen(t, data, false, ReaderOptions{})
	for _, s := range []string{"ACGT", "ACGTAC", "A"} {
		if _, _, err := r.Lookup(kmer.MustEncode(s), nil); !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("Lookup(%s) = %v, want ErrLengthMismatch", s, err)
		}
	}
}

func TestLookupTableMonotonic(t *testing.T) {
	data := buildDB(t, fixtureOptions(), fiveMers())
	r := mustOpen(t, data, false, ReaderOptions{})

	if r.NumBins() != 16 {
		t.Fatalf("NumBins = %d, want 16", r.NumBins())
	}
	var next uint64
	for bin := range uint64(r.NumBins()) {
		first, count := r.BinRange(bin)
		if first != next {
			t.Errorf("bin %d starts at %d, want %d", bin, first, next)
		}
		next = first + count
	}
	if next != r.BinStorageLength() {
		t.Errorf("last bin ends at %d, bin storage has %d records", next, r.BinStorageLength())
	}
}

func TestWideKmers(t *testing.T) {
	// Lengths around word boundaries, with prefixes that leave suffixes of
	// every byte alignment.
	for _, k := range []int{31, 32, 33, 64, 65, 100, 256} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			var recs []record
			seq := make([]byte, k)
			for i := range 200 {
				for j := range seq {
					seq[j] = kmer.Alphabet[(i*7+j*j+i*j)%4]
				}
				recs = append(recs, record{kmer.Canonical(kmer.MustEncode(string(seq))), uint64(i + 1)})
			}
			recs = sortUnique(recs)

			opts := DefaultBuilderOptions(k)
			opts.PrefixBases = 3
			opts.RecordsPerPage = 7
			r := mustOpen(t, buildDB(t, opts, recs), true, ReaderOptions{ParanoidChecks: true})
			for _, rec := range recs {
				count, found, err := r.Lookup(kmer.ReverseComplement(rec.k), nil)
				if err != nil || !found || count != rec.count {
					t.Fatalf("Lookup(%s) = %d, %v, %v; want %d", rec.k, count, found, err, rec.count)
				}
			}
		})
	}
}

func sortUnique(recs []record) []record {
	byKey := make(map[string]record)
	for _, r := range recs {
		byKey[r.k.String()] = r
	}
	out := make([]record, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && kmer.Compare(out[j].k, out[j-1].k) < 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func TestPrefixCoversWholeKmer(t *testing.T) {
	opts := DefaultBuilderOptions(3)
	opts.PrefixBases = 3
	recs := allCanonical(3)
	r := mustOpen(t, buildDB(t, opts, recs), false, ReaderOptions{ParanoidChecks: true})
	h := r.Header()
	if h.SuffixBytes() != 0 {
		t.Fatalf("SuffixBytes = %d, want 0", h.SuffixBytes())
	}
	for _, rec := range recs {
		count, found, err := r.Lookup(rec.k, nil)
		if err != nil || !found || count != rec.count {
			t.Errorf("Lookup(%s) = %d, %v, %v", rec.k, count, found, err)
		}
	}
}

func TestZeroPrefix(t *testing.T) {
	opts := DefaultBuilderOptions(4)
	opts.PrefixBases = -1
	recs := allCanonical(4)
	r := mustOpen(t, buildDB(t, opts, recs), false, ReaderOptions{})
	if r.NumBins() != 1 {
		t.Errorf("NumBins = %d, want 1", r.NumBins())
	}
	for _, rec := range recs {
		if count, found, err := r.Lookup(rec.k, nil); err != nil || !found || count != rec.count {
			t.Errorf("Lookup(%s) = %d, %v, %v", rec.k, count, found, err)
		}
	}
}

func TestEmptyDatabase(t *testing.T) {
	r := mustOpen(t, buildDB(t, fixtureOptions(), nil), false, ReaderOptions{ParanoidChecks: true})
	if r.KmerCount() != 0 || r.NumPages() != 0 {
		t.Errorf("KmerCount=%d NumPages=%d", r.KmerCount(), r.NumPages())
	}
	if _, found, err := r.Lookup(kmer.MustEncode("ACGTA"), nil); found || err != nil {
		t.Errorf("Lookup on empty database = %v, %v", found, err)
	}
}

func TestCompressionTypes(t *testing.T) {
	recs := allCanonical(7)
	for _, ct := range []compression.Type{
		compression.NoCompression,
		compression.SnappyCompression,
		compression.ZlibCompression,
		compression.LZ4Compression,
		compression.LZ4HCCompression,
		compression.ZstdCompression,
	} {
		for _, mapped := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/mapped=%v", ct, mapped), func(t *testing.T) {
				opts := DefaultBuilderOptions(7)
				opts.Compression = ct
				opts.RecordsPerPage = 100
				opts.CounterBytes = 2
				data := buildDB(t, opts, recs)

				c := cache.NewLRUCache(1 << 20)
				r := mustOpen(t, data, mapped, ReaderOptions{VerifyChecksums: true, ParanoidChecks: true, Cache: c})
				for i, rec := range recs {
					if i%5 != 0 {
						continue
					}
					count, found, err := r.Lookup(rec.k, nil)
					if err != nil || !found || count != rec.count {
						t.Fatalf("Lookup(%s) = %d, %v, %v; want %d", rec.k, count, found, err, rec.count)
					}
				}
			})
		}
	}
}

func TestPageCache(t *testing.T) {
	opts := DefaultBuilderOptions(6)
	opts.RecordsPerPage = 32
	recs := allCanonical(6)
	data := buildDB(t, opts, recs)

	c := cache.NewLRUCache(1 << 20)
	r := mustOpen(t, data, false, ReaderOptions{Cache: c})

	var first, second LookupStats
	if _, _, err := r.Lookup(recs[100].k, &first); err != nil {
		t.Fatal(err)
	}
	if first.PagesRead == 0 || first.CacheMisses == 0 || first.BytesRead == 0 {
		t.Errorf("first lookup stats: %+v", first)
	}
	if _, _, err := r.Lookup(recs[100].k, &second); err != nil {
		t.Fatal(err)
	}
	if second.PagesRead != 0 || second.CacheHits == 0 {
		t.Errorf("second lookup should be served from cache: %+v", second)
	}
	if second.Probes == 0 {
		t.Error("probes not counted")
	}

	if c.Len() == 0 {
		t.Fatal("no pages cached")
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("Close left %d pages in the cache", c.Len())
	}
}

func TestMappedRawPagesBypassCache(t *testing.T) {
	data := buildDB(t, fixtureOptions(), fiveMers())
	c := cache.NewLRUCache(1 << 20)
	r := mustOpen(t, data, true, ReaderOptions{Cache: c, VerifyChecksums: true})
	var st LookupStats
	if _, _, err := r.Lookup(kmer.MustEncode("TAAGA"), &st); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 || st.PagesRead != 0 {
		t.Errorf("mapped raw pages should not be read or cached: len=%d stats=%+v", c.Len(), st)
	}
}

func TestBloomFilter(t *testing.T) {
	opts := DefaultBuilderOptions(9)
	opts.BloomBitsPerKey = 10
	recs := allCanonical(9)[:5000]
	r := mustOpen(t, buildDB(t, opts, recs), false, ReaderOptions{UseBloomFilter: true})
	if !r.HasFilter() {
		t.Fatal("filter block missing")
	}
	for _, rec := range recs {
		if _, found, err := r.Lookup(rec.k, nil); err != nil || !found {
			t.Fatalf("Lookup(%s) = %v, %v", rec.k, found, err)
		}
	}
	useful := 0
	for _, rec := range allCanonical(9)[5000:6000] {
		var st LookupStats
		if _, found, _ := r.Lookup(rec.k, &st); found {
			t.Fatalf("absent k-mer %s found", rec.k)
		}
		if st.BloomUseful {
			useful++
		}
	}
	if useful < 900 {
		t.Errorf("filter rejected only %d of 1000 absent k-mers", useful)
	}
}

func TestCountWindow(t *testing.T) {
	data := buildDB(t, fixtureOptions(), fiveMers())
	r := mustOpen(t, data, false, ReaderOptions{MinCount: 3, MaxCount: 4})

	if count, found, _ := r.Lookup(kmer.MustEncode("TAAGA"), nil); !found || count != 4 {
		t.Errorf("TAAGA inside window: %d, %v", count, found)
	}
	for _, rec := range fiveMers() {
		_, found, err := r.Lookup(rec.k, nil)
		if err != nil {
			t.Fatal(err)
		}
		if want := rec.count >= 3 && rec.count <= 4; found != want {
			t.Fatalf("%s with count %d: found=%v, want %v", rec.k, rec.count, found, want)
		}
	}
}

func TestConcurrentLookups(t *testing.T) {
	opts := DefaultBuilderOptions(8)
	opts.Compression = compression.SnappyCompression
	opts.RecordsPerPage = 64
	recs := allCanonical(8)
	data := buildDB(t, opts, recs)
	r := mustOpen(t, data, false, ReaderOptions{VerifyChecksums: true, Cache: cache.NewShardedLRUCache(64<<10, 4)})

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := g; i < len(recs); i += 8 {
				count, found, err := r.Lookup(recs[i].k, nil)
				if err != nil || !found || count != recs[i].count {
					t.Errorf("Lookup(%s) = %d, %v, %v", recs[i].k, count, found, err)
					return
				}
			}
		})
	}
	wg.Wait()
}

func TestOpenRejectsDamagedFiles(t *testing.T) {
	good := buildDB(t, fixtureOptions(), fiveMers())
	h, err := format.DecodeHeader(good)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]func(d []byte) []byte{
		"empty":          func(d []byte) []byte { return nil },
		"header only":    func(d []byte) []byte { return d[:format.HeaderSize] },
		"truncated":      func(d []byte) []byte { return d[:len(d)-1] },
		"magic":          func(d []byte) []byte { d[1] ^= 0xff; return d },
		"header bit":     func(d []byte) []byte { d[20] ^= 1; return d },
		"lut byte":       func(d []byte) []byte { d[h.LUT.Offset+3] ^= 1; return d },
		"page directory": func(d []byte) []byte { d[h.PageDir.Offset+9] ^= 1; return d },
	}
	for name, mutate := range tests {
		for _, mapped := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/mapped=%v", name, mapped), func(t *testing.T) {
				data := mutate(append([]byte(nil), good...))
				if _, err := openData(t, data, mapped, ReaderOptions{}); !errors.Is(err, format.ErrFormat) {
					t.Errorf("Open = %v, want ErrFormat", err)
				}
			})
		}
	}
}

func TestOpenRejectsDamagedFilter(t *testing.T) {
	opts := fixtureOptions()
	opts.BloomBitsPerKey = 10
	good := buildDB(t, opts, fiveMers())
	h, _ := format.DecodeHeader(good)

	data := append([]byte(nil), good...)
	data[h.Filter.Offset] ^= 1
	if _, err := openData(t, data, false, ReaderOptions{}); !errors.Is(err, format.ErrChecksumMismatch) {
		t.Errorf("Open = %v, want ErrChecksumMismatch", err)
	}
}

func TestPageChecksumMismatch(t *testing.T) {
	good := buildDB(t, fixtureOptions(), fiveMers())
	h, _ := format.DecodeHeader(good)
	data := append([]byte(nil), good...)
	// Flip a counter byte of the first record; the suffix order stays intact.
	data[h.Bins.Offset+uint64(h.SuffixBytes())] ^= 0x40

	for _, mapped := range []bool{false, true} {
		r := mustOpen(t, data, mapped, ReaderOptions{VerifyChecksums: true})
		first := fiveMers()[0].k
		if _, _, err := r.Lookup(first, nil); !errors.Is(err, format.ErrChecksumMismatch) {
			t.Errorf("mapped=%v: Lookup = %v, want ErrChecksumMismatch", mapped, err)
		}

		// Without verification the damaged counter is returned as is.
		r = mustOpen(t, data, mapped, ReaderOptions{})
		if _, _, err := r.Lookup(first, nil); err != nil {
			t.Errorf("mapped=%v: unverified Lookup = %v", mapped, err)
		}
	}
}

func TestCompressedPageCorruption(t *testing.T) {
	opts := fixtureOptions()
	opts.Compression = compression.SnappyCompression
	good := buildDB(t, opts, fiveMers())
	h, _ := format.DecodeHeader(good)
	data := append([]byte(nil), good...)
	// The first byte of the first page is its uncompressed size prefix.
	data[h.Bins.Offset]++

	r := mustOpen(t, data, false, ReaderOptions{})
	if _, _, err := r.Lookup(fiveMers()[0].k, nil); !errors.Is(err, format.ErrCorruption) {
		t.Errorf("Lookup = %v, want ErrCorruption", err)
	}
}

func TestNonMonotonicBinDetected(t *testing.T) {
	good := buildDB(t, fixtureOptions(), fiveMers())
	// Swap the first and last records of the largest bin.
	data := patchBins(t, good, func(h *format.Header, bins []byte) {
		lut, err := format.DecodeLookupTable(good[h.LUT.Offset:h.LUT.Offset+h.LUT.Size], h.NumBins(), h.RecordCount)
		if err != nil {
			t.Fatal(err)
		}
		var first, count uint64
		for bin := range uint64(lut.NumBins()) {
			if f, n := lut.Range(bin); n > count {
				first, count = f, n
			}
		}
		if count < 3 {
			t.Fatalf("largest bin has %d records", count)
		}
		rs := uint64(h.RecordSize())
		a := bins[first*rs : (first+1)*rs]
		b := bins[(first+count-1)*rs : (first+count)*rs]
		tmp := bytes.Clone(a)
		copy(a, b)
		copy(b, tmp)
	})

	if _, err := openData(t, data, false, ReaderOptions{ParanoidChecks: true}); !errors.Is(err, format.ErrFormat) {
		t.Errorf("paranoid Open = %v, want ErrFormat", err)
	}

	// Without the scan, a lookup crossing the swapped records reports corruption.
	r := mustOpen(t, data, false, ReaderOptions{VerifyChecksums: true})
	var corrupt bool
	for _, rec := range fiveMers() {
		if _, _, err := r.Lookup(rec.k, nil); err != nil {
			if !errors.Is(err, format.ErrCorruption) {
				t.Fatalf("Lookup(%s) = %v, want ErrCorruption", rec.k, err)
			}
			corrupt = true
		}
	}
	if !corrupt {
		t.Error("no lookup detected the out-of-order bin")
	}
}

func TestDuplicateRecordDetected(t *testing.T) {
	good := buildDB(t, fixtureOptions(), fiveMers())
	// Records 0 and 1 (AAAAA and AAAAC) share bin 0; give record 1 record 0's suffix.
	data := patchBins(t, good, func(h *format.Header, bins []byte) {
		rs := h.RecordSize()
		copy(bins[rs:rs+h.SuffixBytes()], bins[:h.SuffixBytes()])
	})

	if _, err := openData(t, data, false, ReaderOptions{ParanoidChecks: true}); !errors.Is(err, format.ErrFormat) {
		t.Errorf("paranoid Open = %v, want ErrFormat", err)
	}
	r := mustOpen(t, data, false, ReaderOptions{})
	if _, _, err := r.Lookup(kmer.MustEncode("AAAAA"), nil); !errors.Is(err, format.ErrCorruption) {
		t.Errorf("Lookup(AAAAA) = %v, want ErrCorruption", err)
	}
}

func TestNonCanonicalRecordDetected(t *testing.T) {
	// A single-record database whose only record is rewritten to TTTTT.
	opts := fixtureOptions()
	opts.PrefixBases = 0
	good := buildDB(t, opts, []record{{kmer.MustEncode("AAAAA"), 3}})
	data := patchBins(t, good, func(h *format.Header, bins []byte) {
		copy(bins, []byte{0x03, 0xff})
	})
	if _, err := openData(t, data, false, ReaderOptions{ParanoidChecks: true}); !errors.Is(err, format.ErrFormat) {
		t.Errorf("paranoid Open = %v, want ErrFormat", err)
	}
}

func TestCounterWidths(t *testing.T) {
	for _, width := range []int{1, 2, 3, 4, 8} {
		t.Run(fmt.Sprintf("bytes=%d", width), func(t *testing.T) {
			opts := DefaultBuilderOptions(5)
			opts.CounterBytes = width
			maxCount := encoding.MaxFixedN(width)
			recs := []record{
				{kmer.MustEncode("AAAAA"), 0},
				{kmer.MustEncode("AAAAC"), 1},
				{kmer.MustEncode("AAAAG"), maxCount},
			}
			r := mustOpen(t, buildDB(t, opts, recs), false, ReaderOptions{})
			if r.CounterBits() != 8*width {
				t.Errorf("CounterBits = %d", r.CounterBits())
			}
			for _, rec := range recs {
				count, found, err := r.Lookup(rec.k, nil)
				if err != nil || !found || count != rec.count {
					t.Errorf("Lookup(%s) = %d, %v, %v; want %d", rec.k, count, found, err, rec.count)
				}
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	data := buildDB(t, fixtureOptions(), fiveMers())
	mem := vfs.NewMemFS()
	mem.WriteFile("/db.kdb", data)
	fs := vfs.NewFaultInjectionFS(mem)

	f, err := fs.OpenRandomAccess("/db.kdb")
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(f, ReaderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	fs.InjectReadError("")
	_, _, err = r.Lookup(kmer.MustEncode("TAAGA"), nil)
	if !errors.Is(err, vfs.ErrInjectedReadError) {
		t.Fatalf("Lookup = %v, want injected read error", err)
	}
	if errors.Is(err, format.ErrFormat) {
		t.Error("read errors must not be reported as format errors")
	}

	fs.ClearErrors()
	if count, found, err := r.Lookup(kmer.MustEncode("TAAGA"), nil); err != nil || !found || count != 4 {
		t.Errorf("Lookup after clearing = %d, %v, %v", count, found, err)
	}

	// Open fails when the header cannot be read.
	fs.InjectReadError("/db.kdb")
	f, err = fs.OpenRandomAccess("/db.kdb")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(f, ReaderOptions{}); !errors.Is(err, vfs.ErrInjectedReadError) {
		t.Errorf("Open = %v, want injected read error", err)
	}
}

func BenchmarkLookup(b *testing.B) {
	opts := DefaultBuilderOptions(9)
	recs := allCanonical(9)
	data := buildDB(b, opts, recs)
	for _, mapped := range []bool{false, true} {
		b.Run(fmt.Sprintf("mapped=%v", mapped), func(b *testing.B) {
			r := mustOpen(b, data, mapped, ReaderOptions{Cache: cache.NewLRUCache(64 << 20)})
			i := 0
			for b.Loop() {
				if _, _, err := r.Lookup(recs[i%len(recs)].k, nil); err != nil {
					b.Fatal(err)
				}
				i += 7919
			}
		})
	}
}
