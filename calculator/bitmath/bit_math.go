package bitmath

import (
	"errors"
	"math/bits"
)

// ErrInputIsZero is returned when a function requires a non-zero input but receives zero.
var ErrInputIsZero = errors.New("input must be greater than zero")

// MostSignificantBit64 returns the index of the most significant bit of x,
// where the least significant bit is at index 0.
//
// The function satisfies the property: x >= 2**msb(x) and x < 2**(msb(x)+1)
func MostSignificantBit64(x uint64) (uint8, error) {
	if x == 0 {
		return 0, ErrInputIsZero
	}
	return uint8(63 - bits.LeadingZeros64(x)), nil
}

// LeastSignificantBit64 returns the index of the least significant bit of x.
//
// The function satisfies the property: (x & 2**lsb(x)) != 0
func LeastSignificantBit64(x uint64) (uint8, error) {
	if x == 0 {
		return 0, ErrInputIsZero
	}
	return uint8(bits.TrailingZeros64(x)), nil
}
