// Package murmur3 implements the 32-bit x86 variant of MurmurHash3.
//
// Grounded on original_source/src/2page/page.cc, which computes a page's
// on-flush checksum as:
//
//	MurmurHash3_x86_32(payload, size, address, &header.crc32)
//
// i.e. the page's own address is used as the hash seed. No third-party
// Murmur3 module was retrieved with the example pack, and the algorithm
// is small, well-known and public domain (Austin Appleby), so it is
// implemented directly here rather than hand-rolling a stdlib substitute
// for a library concern.
package murmur3

const (
	c1 uint32 = 0xcc9e2d51
	c2 uint32 = 0x1b873593
)

// Sum32 computes MurmurHash3_x86_32(data, seed).
func Sum32(data []byte, seed uint32) uint32 {
	h := seed
	n := len(data)
	nblocks := n / 4

	for i := 0; i < nblocks; i++ {
		k := uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24

		k *= c1
		k = rotl32(k, 15)
		k *= c2

		h ^= k
		h = rotl32(h, 13)
		h = h*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = rotl32(k1, 15)
		k1 *= c2
		h ^= k1
	}

	h ^= uint32(n)
	h = fmix32(h)
	return h
}

func rotl32(x uint32, r uint8) uint32 {
	return (x << r) | (x >> (32 - r))
}

func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
