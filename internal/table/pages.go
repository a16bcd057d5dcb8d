package table

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aalhour/kmerdb/internal/cache"
	"github.com/aalhour/kmerdb/internal/checksum"
	"github.com/aalhour/kmerdb/internal/compression"
	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/logging"
)

// pageRef remembers the last page a lookup touched; consecutive probes
// usually land on the same page.
type pageRef struct {
	index uint64
	data  []byte
}

// record returns the bytes of record idx.
func (r *Reader) record(idx uint64, cur *pageRef, st *LookupStats) ([]byte, error) {
	rpp := uint64(r.header.RecordsPerPage)
	pi := idx / rpp
	if cur.data == nil || cur.index != pi {
		data, err := r.page(pi, st)
		if err != nil {
			return nil, err
		}
		cur.index, cur.data = pi, data
	}
	off := int(idx%rpp) * r.recordSize
	if off+r.recordSize > len(cur.data) {
		return nil, fmt.Errorf("%w: record %d outside page %d", format.ErrCorruption, idx, pi)
	}
	return cur.data[off : off+r.recordSize], nil
}

// page returns the decoded contents of page i.
func (r *Reader) page(i uint64, st *LookupStats) ([]byte, error) {
	e := r.pages[i]
	raw := r.header.Compression == compression.NoCompression

	// Raw pages in a mapping are used in place.
	if r.mapped != nil && raw {
		stored := r.mappedPage(e)
		if r.checked != nil && !r.checked[i].Load() {
			if err := r.verifyPage(i, e, stored); err != nil {
				return nil, err
			}
			r.checked[i].Store(true)
		}
		return stored, nil
	}

	key := cache.Key{FileID: r.fileID, PageIndex: i}
	if c := r.options.Cache; c != nil {
		if data, ok := c.Lookup(key); ok {
			st.addCacheHit()
			return data, nil
		}
		st.addCacheMiss()
	}

	start := time.Now()
	var stored []byte
	if r.mapped != nil {
		stored = r.mappedPage(e)
	} else {
		buf := make([]byte, e.Size)
		n, err := r.file.ReadAt(buf, int64(r.header.Bins.Offset+e.Offset))
		if n < len(buf) {
			if err == nil || errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: short read of page %d", format.ErrCorruption, i)
			}
			return nil, fmt.Errorf("table: read page %d: %w", i, err)
		}
		stored = buf
		st.addRead(len(buf))
	}
	if r.options.VerifyChecksums {
		if err := r.verifyPage(i, e, stored); err != nil {
			return nil, err
		}
	}

	want := r.header.PageRecords(i) * r.recordSize
	data, err := compression.DecodePage(r.header.Compression, stored, want)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", format.ErrCorruption, i, err)
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: page %d holds %d bytes, want %d", format.ErrCorruption, i, len(data), want)
	}
	if !raw {
		st.addDecompressed(len(data))
	}
	st.addPageMicros(time.Since(start))

	if c := r.options.Cache; c != nil {
		c.Insert(key, data)
		r.logger.Debugf(logging.NSCache+"file %d: cached page %d (%d bytes)", r.fileID, i, len(data))
	}
	return data, nil
}

func (r *Reader) mappedPage(e format.PageEntry) []byte {
	start := r.header.Bins.Offset + e.Offset
	return r.mapped[start : start+uint64(e.Size)]
}

func (r *Reader) verifyPage(i uint64, e format.PageEntry, stored []byte) error {
	if !checksum.Verify(r.header.ChecksumType, stored, e.Checksum) {
		return fmt.Errorf("%w: page %d", format.ErrChecksumMismatch, i)
	}
	return nil
}
