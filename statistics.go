package kmerdb

// statistics.go implements the Statistics interface for collecting query metrics.

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// TickerType represents different types of counters.
type TickerType int

const (
	// TickerLookups is the count of k-mer lookups.
	TickerLookups TickerType = iota
	// TickerLookupsFound is the count of lookups that found the k-mer.
	TickerLookupsFound
	// TickerLookupsNotFound is the count of lookups that did not find the k-mer.
	TickerLookupsNotFound
	// TickerLengthMismatch is the count of queries with the wrong length.
	TickerLengthMismatch
	// TickerInvalidKmers is the count of query strings that could not be encoded.
	TickerInvalidKmers
	// TickerBloomFilterUseful is the count of lookups answered by the Bloom filter.
	TickerBloomFilterUseful
	// TickerPageCacheMiss is the count of page cache misses.
	TickerPageCacheMiss
	// TickerPageCacheHit is the count of page cache hits.
	TickerPageCacheHit
	// TickerPagesRead is the count of pages read from the file.
	TickerPagesRead
	// TickerBytesRead is the total bytes read from the file by lookups.
	TickerBytesRead
	// TickerBytesDecompressed is the total bytes produced by page decompression.
	TickerBytesDecompressed
	// TickerBinarySearchProbes is the total number of records probed.
	TickerBinarySearchProbes
	// TickerCorruptions is the count of lookups that found damaged data.
	TickerCorruptions
	// TickerReadErrors is the count of lookups that failed to read the file.
	TickerReadErrors
	// TickerFileOpens is the count of database opens.
	TickerFileOpens
	// TickerReadWindows is the count of windows looked up by CountersForRead.
	TickerReadWindows

	// TickerEnumMax is the maximum ticker type for sizing arrays.
	TickerEnumMax
)

var tickerNames = [TickerEnumMax]string{
	"kmerdb.lookups",
	"kmerdb.lookups.found",
	"kmerdb.lookups.notfound",
	"kmerdb.lookups.length.mismatch",
	"kmerdb.lookups.invalid.kmer",
	"kmerdb.bloom.filter.useful",
	"kmerdb.page.cache.miss",
	"kmerdb.page.cache.hit",
	"kmerdb.pages.read",
	"kmerdb.bytes.read",
	"kmerdb.bytes.decompressed",
	"kmerdb.binary.search.probes",
	"kmerdb.corruptions",
	"kmerdb.read.errors",
	"kmerdb.file.opens",
	"kmerdb.read.windows",
}

// String returns the name of the ticker type.
func (t TickerType) String() string {
	if t >= 0 && t < TickerEnumMax {
		return tickerNames[t]
	}
	return "unknown"
}

// HistogramType represents different types of histograms.
type HistogramType int

const (
	// HistogramLookupMicros is the histogram for lookup latency.
	HistogramLookupMicros HistogramType = iota
	// HistogramPageReadMicros is the histogram for reading and decoding a page.
	HistogramPageReadMicros
	// HistogramProbesPerLookup is the histogram for binary search probes per lookup.
	HistogramProbesPerLookup
	// HistogramBytesPerRead is the histogram for bytes read per lookup that
	// touched the file.
	HistogramBytesPerRead

	// HistogramEnumMax is the maximum histogram type for sizing arrays.
	HistogramEnumMax
)

var histogramNames = [HistogramEnumMax]string{
	"kmerdb.lookup.micros",
	"kmerdb.page.read.micros",
	"kmerdb.probes.per.lookup",
	"kmerdb.bytes.per.read",
}

// String returns the name of the histogram type.
func (h HistogramType) String() string {
	if h >= 0 && h < HistogramEnumMax {
		return histogramNames[h]
	}
	return "unknown"
}

// HistogramData contains histogram statistics.
type HistogramData struct {
	Average float64
	Max     float64
	Min     float64
	Count   uint64
	Sum     uint64
}

// Statistics collects and reports database metrics.
type Statistics interface {
	// GetTickerCount returns the current value of a ticker.
	GetTickerCount(tickerType TickerType) uint64

	// RecordTick increments a ticker by count.
	RecordTick(tickerType TickerType, count uint64)

	// SetTickerCount sets the ticker to a specific value.
	SetTickerCount(tickerType TickerType, count uint64)

	// GetHistogramData returns histogram statistics.
	GetHistogramData(histogramType HistogramType) HistogramData

	// MeasureTime records a value to a histogram.
	MeasureTime(histogramType HistogramType, value uint64)

	// Reset clears all statistics.
	Reset()

	// String returns a formatted string of all statistics.
	String() string
}

// statisticsImpl is the default implementation of Statistics.
type statisticsImpl struct {
	tickers    [TickerEnumMax]atomic.Uint64
	histograms [HistogramEnumMax]histogramImpl
}

// histogramImpl tracks count, sum and extremes; it keeps no samples.
type histogramImpl struct {
	min   atomic.Uint64
	max   atomic.Uint64
	sum   atomic.Uint64
	count atomic.Uint64
}

func (h *histogramImpl) reset() {
	h.min.Store(^uint64(0))
	h.max.Store(0)
	h.sum.Store(0)
	h.count.Store(0)
}

// NewStatistics creates a new Statistics instance.
func NewStatistics() Statistics {
	s := &statisticsImpl{}
	for i := range s.histograms {
		s.histograms[i].reset()
	}
	return s
}

// GetTickerCount returns the current value of a ticker.
func (s *statisticsImpl) GetTickerCount(tickerType TickerType) uint64 {
	if tickerType < 0 || tickerType >= TickerEnumMax {
		return 0
	}
	return s.tickers[tickerType].Load()
}

// RecordTick increments a ticker by count.
func (s *statisticsImpl) RecordTick(tickerType TickerType, count uint64) {
	if tickerType < 0 || tickerType >= TickerEnumMax {
		return
	}
	s.tickers[tickerType].Add(count)
}

// SetTickerCount sets the ticker to a specific value.
func (s *statisticsImpl) SetTickerCount(tickerType TickerType, count uint64) {
	if tickerType < 0 || tickerType >= TickerEnumMax {
		return
	}
	s.tickers[tickerType].Store(count)
}

// GetHistogramData returns histogram statistics.
func (s *statisticsImpl) GetHistogramData(histogramType HistogramType) HistogramData {
	if histogramType < 0 || histogramType >= HistogramEnumMax {
		return HistogramData{}
	}
	h := &s.histograms[histogramType]
	count := h.count.Load()
	if count == 0 {
		return HistogramData{}
	}
	sum := h.sum.Load()
	return HistogramData{
		Count:   count,
		Sum:     sum,
		Min:     float64(h.min.Load()),
		Max:     float64(h.max.Load()),
		Average: float64(sum) / float64(count),
	}
}

// MeasureTime records a value to a histogram.
func (s *statisticsImpl) MeasureTime(histogramType HistogramType, value uint64) {
	if histogramType < 0 || histogramType >= HistogramEnumMax {
		return
	}
	h := &s.histograms[histogramType]
	h.count.Add(1)
	h.sum.Add(value)

	for {
		old := h.min.Load()
		if value >= old || h.min.CompareAndSwap(old, value) {
			break
		}
	}
	for {
		old := h.max.Load()
		if value <= old || h.max.CompareAndSwap(old, value) {
			break
		}
	}
}

// Reset clears all statistics.
func (s *statisticsImpl) Reset() {
	for i := range s.tickers {
		s.tickers[i].Store(0)
	}
	for i := range s.histograms {
		s.histograms[i].reset()
	}
}

// String returns a formatted string of all non-zero statistics.
func (s *statisticsImpl) String() string {
	var sb strings.Builder
	sb.WriteString("TICKERS:\n")
	for i := range TickerEnumMax {
		if count := s.GetTickerCount(i); count > 0 {
			fmt.Fprintf(&sb, "  %s : %d\n", i, count)
		}
	}
	sb.WriteString("\nHISTOGRAMS:\n")
	for i := range HistogramEnumMax {
		data := s.GetHistogramData(i)
		if data.Count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  %s :\n    Count: %d\n    Avg: %.2f\n    Min: %.2f\n    Max: %.2f\n",
			i, data.Count, data.Average, data.Min, data.Max)
	}
	return sb.String()
}
