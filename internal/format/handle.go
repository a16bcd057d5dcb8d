package format

import (
	"fmt"

	"github.com/aalhour/kmerdb/internal/encoding"
)

// HandleSize is the encoded size of a Handle.
const HandleSize = 16

// Handle locates a region of a database file.
type Handle struct {
	Offset uint64
	Size   uint64
}

// NullHandle marks an absent region.
var NullHandle = Handle{}

// IsNull returns true for the absent region.
func (h Handle) IsNull() bool {
	return h.Offset == 0 && h.Size == 0
}

// End returns the offset one past the region. ok is false on overflow.
func (h Handle) End() (end uint64, ok bool) {
	end = h.Offset + h.Size
	return end, end >= h.Offset
}

// String returns "[offset, end)".
func (h Handle) String() string {
	return fmt.Sprintf("[%d, %d)", h.Offset, h.Offset+h.Size)
}

// EncodeTo appends the fixed 16-byte encoding of h to dst.
func (h Handle) EncodeTo(dst []byte) []byte {
	dst = encoding.AppendFixed64(dst, h.Offset)
	return encoding.AppendFixed64(dst, h.Size)
}

func decodeHandle(src []byte) Handle {
	return Handle{
		Offset: encoding.DecodeFixed64(src),
		Size:   encoding.DecodeFixed64(src[8:]),
	}
}

// overlaps reports whether two non-null regions share a byte.
func overlaps(a, b Handle) bool {
	if a.Size == 0 || b.Size == 0 {
		return false
	}
	return a.Offset < b.Offset+b.Size && b.Offset < a.Offset+a.Size
}
