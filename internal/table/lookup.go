package table

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aalhour/kmerdb/internal/encoding"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
)

// LookupStats collects what a lookup did. A nil *LookupStats is valid and
// records nothing.
type LookupStats struct {
	Probes            int
	BloomUseful       bool
	CacheHits         int
	CacheMisses       int
	PagesRead         int
	BytesRead         int
	BytesDecompressed int
	PageReadTime      time.Duration
}

func (st *LookupStats) addCacheHit() {
	if st != nil {
		st.CacheHits++
	}
}

func (st *LookupStats) addCacheMiss() {
	if st != nil {
		st.CacheMisses++
	}
}

func (st *LookupStats) addRead(n int) {
	if st != nil {
		st.PagesRead++
		st.BytesRead += n
	}
}

func (st *LookupStats) addDecompressed(n int) {
	if st != nil {
		st.BytesDecompressed += n
	}
}

func (st *LookupStats) addPageMicros(d time.Duration) {
	if st != nil {
		st.PageReadTime += d
	}
}

// Lookup returns the count of q's canonical form. found is false when the
// k-mer is absent or its count lies outside the configured window.
//
// Every probe of the binary search is checked against the closest records
// already seen on either side; a record out of order, or a hit with an equal
// neighbour, is reported as format.ErrCorruption.
func (r *Reader) Lookup(q kmer.Kmer, st *LookupStats) (count uint64, found bool, err error) {
	if q.Len() != int(r.header.KmerLength) {
		return 0, false, fmt.Errorf("%w: query has %d bases, database k=%d",
			ErrLengthMismatch, q.Len(), r.header.KmerLength)
	}
	c := kmer.Canonical(q)

	if r.filter != nil && r.options.UseBloomFilter {
		if !r.filter.MayContain(c) {
			if st != nil {
				st.BloomUseful = true
			}
			return 0, false, nil
		}
	}

	prefix, suffix := c.Split(int(r.header.PrefixBases))
	first, n := r.lut.Range(prefix)
	if n == 0 {
		return 0, false, nil
	}
	var tbuf [format.MaxKmerLength / 4]byte
	target := suffix.AppendBytes(tbuf[:0])

	var (
		cur          pageRef
		lower, upper []byte
		lo, hi       = first, first + n
	)
	for lo < hi {
		mid := lo + (hi-lo)/2
		rec, err := r.record(mid, &cur, st)
		if err != nil {
			return 0, false, err
		}
		if st != nil {
			st.Probes++
		}
		s := rec[:r.suffixBytes]
		if (lower != nil && bytes.Compare(s, lower) <= 0) || (upper != nil && bytes.Compare(s, upper) >= 0) {
			return 0, false, fmt.Errorf("%w: bin %d out of order at record %d", format.ErrCorruption, prefix, mid)
		}
		switch cmp := bytes.Compare(s, target); {
		case cmp < 0:
			lower = s
			lo = mid + 1
		case cmp > 0:
			upper = s
			hi = mid
		default:
			if err := r.checkNeighbours(mid, first, first+n, s, &cur, st); err != nil {
				return 0, false, err
			}
			count = encoding.DecodeFixedN(rec[r.suffixBytes:], int(r.header.CounterBytes))
			if count < r.options.MinCount || (r.options.MaxCount != 0 && count > r.options.MaxCount) {
				return 0, false, nil
			}
			return count, true, nil
		}
	}
	return 0, false, nil
}

// checkNeighbours rejects a hit whose adjacent records in the bin hold the
// same suffix.
func (r *Reader) checkNeighbours(idx, first, end uint64, s []byte, cur *pageRef, st *LookupStats) error {
	for _, nb := range []uint64{idx - 1, idx + 1} {
		// idx-1 wraps to MaxUint64 when idx is 0.
		if nb < first || nb >= end {
			continue
		}
		rec, err := r.record(nb, cur, st)
		if err != nil {
			return err
		}
		if bytes.Equal(rec[:r.suffixBytes], s) {
			return fmt.Errorf("%w: duplicate k-mer at records %d and %d", format.ErrCorruption, idx, nb)
		}
	}
	return nil
}
