/*
Package bitint provides the power-of-two helpers used to size audio
buffers. PortAudio hosts deliver quanta most reliably when the frames per
buffer is a power of two, so configuration is validated against these.

All functions are O(1), allocation-free and safe to call from the audio
callback.

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two are preserved:

	size = 8:  bits.Len(7) = 3, 1<<3 = 8
	size = 9:  bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two
// have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NearestPowerOfTwo returns whichever power of two is closest to size,
// preferring the larger one on a tie. It is used to suggest a valid
// frames-per-buffer value when a configured one is rejected.
func NearestPowerOfTwo(size int) int {
	upper := NextPowerOfTwo(size)
	lower := upper >> 1
	if lower == 0 || upper-size <= size-lower {
		return upper
	}
	return lower
}
