package liquiditymath

import (
	"errors"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/sqrtpricemath"
	"github.com/holiman/uint256"
)

var (
	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
	// ErrTokenMaxExceeded is returned when a token amount does not fit in 64 bits.
	ErrTokenMaxExceeded   = errors.New("token amount exceeds u64")
	ErrInvalidPriceRange  = errors.New("lower sqrt price must be below upper sqrt price")
)

// Rounding selects the direction integer division rounds towards.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

// AddDelta adds a signed liquidity delta to an unsigned 128-bit liquidity
// value, returning an error if the result leaves [0, 2^128).
func AddDelta(x *uint256.Int, y fixedpoint.Int128) (*uint256.Int, error) {
	abs := y.Abs()
	z := new(uint256.Int)
	if y.Sign() < 0 {
		if x.Lt(abs) {
			return nil, ErrLiquidityUnderflow
		}
		return z.Sub(x, abs), nil
	}

	z.Add(x, abs)
	if !fixedpoint.FitsUint128(z) {
		return nil, ErrLiquidityOverflow
	}
	return z, nil
}

// GetTokenAmounts returns the token A and token B amounts represented by
// liquidity over [sqrtPriceLower, sqrtPriceUpper] when the pool sits at
// sqrtPrice. A range above the price holds only token A; a range below it
// holds only token B.
func GetTokenAmounts(sqrtPrice, sqrtPriceLower, sqrtPriceUpper, liquidity *uint256.Int, rounding Rounding) (uint64, uint64, error) {
	if !sqrtPriceLower.Lt(sqrtPriceUpper) {
		return 0, 0, ErrInvalidPriceRange
	}
	roundUp := rounding == RoundUp
	amountA, amountB := new(uint256.Int), new(uint256.Int)

	var err error
	switch {
	case sqrtPrice.Cmp(sqrtPriceLower) <= 0:
		err = sqrtpricemath.GetAmountADelta(amountA, sqrtPriceLower, sqrtPriceUpper, liquidity, roundUp)
	case sqrtPrice.Lt(sqrtPriceUpper):
		if err = sqrtpricemath.GetAmountADelta(amountA, sqrtPrice, sqrtPriceUpper, liquidity, roundUp); err == nil {
			err = sqrtpricemath.GetAmountBDelta(amountB, sqrtPriceLower, sqrtPrice, liquidity, roundUp)
		}
	default:
		err = sqrtpricemath.GetAmountBDelta(amountB, sqrtPriceLower, sqrtPriceUpper, liquidity, roundUp)
	}
	if err != nil {
		return 0, 0, err
	}

	if !amountA.IsUint64() || !amountB.IsUint64() {
		return 0, 0, ErrTokenMaxExceeded
	}
	return amountA.Uint64(), amountB.Uint64(), nil
}

// GetLiquidityForAmounts returns the largest liquidity over
// [sqrtPriceLower, sqrtPriceUpper] that amountA and amountB can fund at sqrtPrice.
func GetLiquidityForAmounts(sqrtPrice, sqrtPriceLower, sqrtPriceUpper *uint256.Int, amountA, amountB uint64) (*uint256.Int, error) {
	if !sqrtPriceLower.Lt(sqrtPriceUpper) {
		return nil, ErrInvalidPriceRange
	}

	var (
		liquidity *uint256.Int
		err       error
	)
	switch {
	case sqrtPrice.Cmp(sqrtPriceLower) <= 0:
		liquidity, err = liquidityForAmountA(sqrtPriceLower, sqrtPriceUpper, amountA)
	case sqrtPrice.Lt(sqrtPriceUpper):
		var fromA, fromB *uint256.Int
		if fromA, err = liquidityForAmountA(sqrtPrice, sqrtPriceUpper, amountA); err != nil {
			return nil, err
		}
		if fromB, err = liquidityForAmountB(sqrtPriceLower, sqrtPrice, amountB); err != nil {
			return nil, err
		}
		liquidity = fromA
		if fromB.Lt(fromA) {
			liquidity = fromB
		}
	default:
		liquidity, err = liquidityForAmountB(sqrtPriceLower, sqrtPriceUpper, amountB)
	}
	if err != nil {
		return nil, err
	}
	if !fixedpoint.FitsUint128(liquidity) {
		return nil, ErrLiquidityOverflow
	}
	return liquidity, nil
}

// liquidityForAmountA is amount·√a·√b / (√b - √a).
func liquidityForAmountA(sqrtPriceA, sqrtPriceB *uint256.Int, amount uint64) (*uint256.Int, error) {
	intermediate, err := fixedpoint.MulDiv(sqrtPriceA, sqrtPriceB, fixedpoint.Q64)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(uint256.NewInt(amount), intermediate, new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA))
}

// liquidityForAmountB is amount / (√b - √a).
func liquidityForAmountB(sqrtPriceA, sqrtPriceB *uint256.Int, amount uint64) (*uint256.Int, error) {
	return fixedpoint.MulDiv(uint256.NewInt(amount), fixedpoint.Q64, new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA))
}
