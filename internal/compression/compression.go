// Package compression compresses and decompresses database bin pages.
//
// A compressed page is stored as a varint32 holding the uncompressed length
// followed by the compressed bytes. Uncompressed pages are stored as is.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aalhour/kmerdb/internal/encoding"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type uint8

const (
	// NoCompression indicates no compression.
	NoCompression Type = 0x0

	// SnappyCompression uses Google Snappy compression.
	SnappyCompression Type = 0x1

	// ZlibCompression uses zlib compression.
	ZlibCompression Type = 0x2

	// LZ4Compression uses the LZ4 frame format at the fast level.
	LZ4Compression Type = 0x4

	// LZ4HCCompression uses LZ4 high compression mode.
	LZ4HCCompression Type = 0x5

	// ZstdCompression uses Zstandard compression.
	ZstdCompression Type = 0x7
)

var (
	// ErrUnsupported is returned for compression types this package cannot handle.
	ErrUnsupported = errors.New("compression: unsupported type")

	// ErrCorrupt is returned when a page cannot be decompressed or its
	// decompressed length does not match the stored length.
	ErrCorrupt = errors.New("compression: corrupt page")
)

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	case ZlibCompression:
		return "Zlib"
	case LZ4Compression:
		return "LZ4"
	case LZ4HCCompression:
		return "LZ4HC"
	case ZstdCompression:
		return "ZSTD"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// IsSupported returns true if the compression type is supported.
func (t Type) IsSupported() bool {
	switch t {
	case NoCompression, SnappyCompression, ZlibCompression, LZ4Compression, LZ4HCCompression, ZstdCompression:
		return true
	default:
		return false
	}
}

// Shared zstd codec. EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

// Compress compresses data using the specified compression type.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil

	case SnappyCompression:
		return snappy.Encode(nil, data), nil

	case ZlibCompression:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zlib write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib close: %w", err)
		}
		return buf.Bytes(), nil

	case LZ4Compression:
		return compressLZ4(data, lz4.Fast)

	case LZ4HCCompression:
		return compressLZ4(data, lz4.Level9)

	case ZstdCompression:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return enc.EncodeAll(data, nil), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

func compressLZ4(data []byte, level lz4.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, fmt.Errorf("lz4 apply level: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data produced by Compress. At most limit bytes are
// produced; a larger output is reported as ErrCorrupt.
func Decompress(t Type, data []byte, limit int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch t {
	case NoCompression:
		out = data

	case SnappyCompression:
		n, lerr := snappy.DecodedLen(data)
		if lerr != nil {
			return nil, fmt.Errorf("%w: snappy: %w", ErrCorrupt, lerr)
		}
		if n > limit {
			return nil, fmt.Errorf("%w: snappy length %d exceeds %d", ErrCorrupt, n, limit)
		}
		out, err = snappy.Decode(nil, data)

	case ZlibCompression:
		var r io.ReadCloser
		r, err = zlib.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = readLimited(r, limit)
			_ = r.Close()
		}

	case LZ4Compression, LZ4HCCompression:
		out, err = readLimited(lz4.NewReader(bytes.NewReader(data)), limit)

	case ZstdCompression:
		dec, derr := zstdDecoder()
		if derr != nil {
			return nil, fmt.Errorf("zstd decoder: %w", derr)
		}
		out, err = dec.DecodeAll(data, make([]byte, 0, limit))

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, t, err)
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: %s output %d exceeds %d", ErrCorrupt, t, len(out), limit)
	}
	return out, nil
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, int64(limit)+1))
}

// EncodePage returns the stored form of an uncompressed page.
func EncodePage(t Type, page []byte) ([]byte, error) {
	if t == NoCompression {
		return page, nil
	}
	compressed, err := Compress(t, page)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, encoding.MaxVarint32Length+len(compressed))
	out = encoding.AppendVarint32(out, uint32(len(page)))
	return append(out, compressed...), nil
}

// DecodePage reverses EncodePage. The stored uncompressed length must not
// exceed maxSize and must match the decompressed output.
func DecodePage(t Type, stored []byte, maxSize int) ([]byte, error) {
	if t == NoCompression {
		if len(stored) > maxSize {
			return nil, fmt.Errorf("%w: page of %d bytes exceeds %d", ErrCorrupt, len(stored), maxSize)
		}
		return stored, nil
	}
	size, n, err := encoding.DecodeVarint32(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: size prefix: %w", ErrCorrupt, err)
	}
	if int64(size) > int64(maxSize) {
		return nil, fmt.Errorf("%w: declared size %d exceeds %d", ErrCorrupt, size, maxSize)
	}
	out, err := Decompress(t, stored[n:], int(size))
	if err != nil {
		return nil, err
	}
	if len(out) != int(size) {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, len(out), size)
	}
	return out, nil
}
