package checksum

import (
	"github.com/zeebo/xxh3"
)

// XXH3_64bits computes the 64-bit XXH3 hash of data.
func XXH3_64bits(data []byte) uint64 {
	return xxh3.Hash(data)
}

// XXH3Checksum returns the low 32 bits of the XXH3-64 hash of data.
func XXH3Checksum(data []byte) uint32 {
	return uint32(xxh3.Hash(data))
}
