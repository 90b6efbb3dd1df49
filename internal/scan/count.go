package scan

import (
	"encoding/binary"
	"math/bits"
)

// CountZeroBits returns the number of zero bits in b: for every byte,
// 8 minus its population count, with bytes treated as unsigned.
func CountZeroBits(b []byte) uint64 {
	var ones uint64
	i := 0
	// Eight bytes per step; byte order does not matter for popcount.
	for ; i+32 <= len(b); i += 32 {
		ones += uint64(bits.OnesCount64(binary.LittleEndian.Uint64(b[i:])))
		ones += uint64(bits.OnesCount64(binary.LittleEndian.Uint64(b[i+8:])))
		ones += uint64(bits.OnesCount64(binary.LittleEndian.Uint64(b[i+16:])))
		ones += uint64(bits.OnesCount64(binary.LittleEndian.Uint64(b[i+24:])))
	}
	for ; i+8 <= len(b); i += 8 {
		ones += uint64(bits.OnesCount64(binary.LittleEndian.Uint64(b[i:])))
	}
	for ; i < len(b); i++ {
		ones += uint64(bits.OnesCount8(b[i]))
	}
	return uint64(len(b))*8 - ones
}
