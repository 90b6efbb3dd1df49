// Package bitmap provides a compact, growable set of non-negative chunk
// indexes. It serializes as a plain JSON array of 64-bit words so it can be
// stored inside an aggregate record.
package bitmap

import "math/bits"

// Bitmap is a bitset backed by a slice of uint64 words. Bit i of word w
// represents index w*64+i. The zero value is an empty set.
type Bitmap []uint64

// New allocates a bitmap with room for indexes in [0, n) without growing.
// If n <= 0 the bitmap starts empty.
func New(n int) Bitmap {
	if n <= 0 {
		return nil
	}
	return make(Bitmap, (n+63)/64)
}

// Add sets the bit for id, growing the backing slice as needed. It reports
// whether the bit was newly set; negative ids are ignored and return false.
func (b *Bitmap) Add(id int) bool {
	if id < 0 {
		return false
	}
	word := id / 64
	if word >= len(*b) {
		grown := make(Bitmap, word+1)
		copy(grown, *b)
		*b = grown
	}
	mask := uint64(1) << uint(id%64)
	if (*b)[word]&mask != 0 {
		return false
	}
	(*b)[word] |= mask
	return true
}

// Has reports whether the bit for id is set. Negative ids always return false.
func (b Bitmap) Has(id int) bool {
	if id < 0 {
		return false
	}
	word := id / 64
	if word >= len(b) {
		return false
	}
	return b[word]&(uint64(1)<<uint(id%64)) != 0
}

// Len returns the number of set bits.
func (b Bitmap) Len() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}
