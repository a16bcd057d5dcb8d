// Package checksum provides the checksum functions of the k-mer database file
// format.
//
// Every region of a database file (header, lookup table, page directory, bin
// pages, filter block) carries a 32-bit checksum of the type declared in the
// header.
package checksum

import "fmt"

// Type represents the type of checksum algorithm.
type Type uint8

const (
	// TypeNoChecksum means no checksum is used.
	TypeNoChecksum Type = 0
	// TypeCRC32C is a masked CRC32C (Castagnoli) checksum.
	TypeCRC32C Type = 1
	// TypeXXH3 is the low 32 bits of XXH3-64. This is the default.
	TypeXXH3 Type = 4
)

// String returns a human-readable name for the checksum type.
func (t Type) String() string {
	switch t {
	case TypeNoChecksum:
		return "NoChecksum"
	case TypeCRC32C:
		return "CRC32C"
	case TypeXXH3:
		return "XXH3"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// IsSupported returns true if the checksum type can be computed.
func (t Type) IsSupported() bool {
	switch t {
	case TypeNoChecksum, TypeCRC32C, TypeXXH3:
		return true
	default:
		return false
	}
}

// Compute computes a checksum of the given type over data.
// TypeNoChecksum and unsupported types yield 0.
func Compute(t Type, data []byte) uint32 {
	switch t {
	case TypeCRC32C:
		return MaskedValue(data)
	case TypeXXH3:
		return XXH3Checksum(data)
	default:
		return 0
	}
}

// Verify reports whether stored matches the checksum of data.
// It always succeeds for TypeNoChecksum.
func Verify(t Type, data []byte, stored uint32) bool {
	if t == TypeNoChecksum {
		return true
	}
	return Compute(t, data) == stored
}
