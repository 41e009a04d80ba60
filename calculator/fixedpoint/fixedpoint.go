package fixedpoint

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var (
	// Resolution is the number of fractional bits in a Q64.64 value.
	Resolution = uint(64)
	// Q64 is the Q64.64 fixed-point number representing 1.
	Q64 = new(uint256.Int).Lsh(uint256.NewInt(1), 64)

	// MaxUint64 is 2^64 - 1.
	MaxUint64 = uint256.NewInt(math.MaxUint64)
	// MaxUint128 is 2^128 - 1.
	MaxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	ErrOverflow     = errors.New("arithmetic overflow")
	ErrDivideByZero = errors.New("division by zero")

	one = uint256.NewInt(1)
)

// MulDiv returns floor(a * b / c) using a 512-bit intermediate product.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, ErrDivideByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(a * b / c).
func MulDivRoundingUp(a, b, c *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, c)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, c).IsZero() {
		if _, overflow := z.AddOverflow(z, one); overflow {
			return nil, ErrOverflow
		}
	}
	return z, nil
}

// DivRoundingUp returns ceil(a / b).
func DivRoundingUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(a, b, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// MulShiftRight64 returns (a * b) >> 64 when it fits in a uint64. Both
// operands must be at most 128 bits wide.
func MulShiftRight64(a, b *uint256.Int) (uint64, bool) {
	if !FitsUint128(a) || !FitsUint128(b) {
		return 0, false
	}
	z := new(uint256.Int).Mul(a, b)
	z.Rsh(z, Resolution)
	if !z.IsUint64() {
		return 0, false
	}
	return z.Uint64(), true
}

// FitsUint128 reports whether x < 2^128.
func FitsUint128(x *uint256.Int) bool {
	return x.BitLen() <= 128
}

// ToUint64 narrows x, failing with ErrOverflow when it does not fit.
func ToUint64(x *uint256.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}
