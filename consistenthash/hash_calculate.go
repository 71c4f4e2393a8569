package consistenthash

import (
	"hash/fnv"

	"github.com/cespare/xxhash"
)

// FNV1a returns the 32-bit FNV-1a hash of data. It is the default key hash
// for the ring.
func FNV1a(data []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(data)
	return h.Sum32()
}

// XXHash returns the low 32 bits of the 64-bit xxHash of data, usable as an
// alternative key hash via NewCustomHashRing.
func XXHash(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}
