package sqrtpricemath

import (
	"errors"
	"fmt"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/holiman/uint256"
)

// Token A is priced as Δ(1/√P)·L and token B as Δ√P·L. Moving "A to B" sells
// A into the pool and lowers the price.

var (
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
	// ErrPriceOutOfRange is returned when an output amount would take the
	// price past zero or past the representable range.
	ErrPriceOutOfRange = errors.New("next sqrt price out of range")
)

// GetNextSqrtPriceFromAmountARoundingUp writes the sqrt price after adding
// (add) or removing amount of token A, rounded up.
//
//	next = L·√P / (L ± amount·√P)
func GetNextSqrtPriceFromAmountARoundingUp(dest, sqrtPrice, liquidity, amount *uint256.Int, add bool) error {
	if amount.IsZero() {
		dest.Set(sqrtPrice)
		return nil
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution)
	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPrice)
	if overflow {
		return fmt.Errorf("%w: amount times price overflows", ErrPriceOutOfRange)
	}

	denominator := new(uint256.Int)
	if add {
		if _, overflow := denominator.AddOverflow(numerator1, product); overflow {
			return fmt.Errorf("%w: denominator overflows", ErrPriceOutOfRange)
		}
	} else {
		if numerator1.Cmp(product) <= 0 {
			return fmt.Errorf("%w: output exceeds token A reserves", ErrPriceOutOfRange)
		}
		denominator.Sub(numerator1, product)
	}

	next, err := fixedpoint.MulDivRoundingUp(numerator1, sqrtPrice, denominator)
	if err != nil {
		return err
	}
	dest.Set(next)
	return nil
}

// GetNextSqrtPriceFromAmountBRoundingDown writes the sqrt price after adding
// (add) or removing amount of token B, rounded down.
//
//	next = √P ± amount / L
func GetNextSqrtPriceFromAmountBRoundingDown(dest, sqrtPrice, liquidity, amount *uint256.Int, add bool) error {
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}
	shifted := new(uint256.Int).Lsh(amount, fixedpoint.Resolution)

	if add {
		quotient := new(uint256.Int).Div(shifted, liquidity)
		if _, overflow := dest.AddOverflow(sqrtPrice, quotient); overflow {
			return fmt.Errorf("%w: price overflows", ErrPriceOutOfRange)
		}
		return nil
	}

	quotient, err := fixedpoint.DivRoundingUp(shifted, liquidity)
	if err != nil {
		return err
	}
	if sqrtPrice.Cmp(quotient) <= 0 {
		return fmt.Errorf("%w: output exceeds token B reserves", ErrPriceOutOfRange)
	}
	dest.Sub(sqrtPrice, quotient)
	return nil
}

// GetNextSqrtPriceFromInput writes the sqrt price after amountIn is added on
// the input side of the trade.
func GetNextSqrtPriceFromInput(dest, sqrtPrice, liquidity, amountIn *uint256.Int, aToB bool) error {
	if sqrtPrice.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if aToB {
		return GetNextSqrtPriceFromAmountARoundingUp(dest, sqrtPrice, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmountBRoundingDown(dest, sqrtPrice, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput writes the sqrt price after amountOut is removed
// on the output side of the trade.
func GetNextSqrtPriceFromOutput(dest, sqrtPrice, liquidity, amountOut *uint256.Int, aToB bool) error {
	if sqrtPrice.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if aToB {
		return GetNextSqrtPriceFromAmountBRoundingDown(dest, sqrtPrice, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmountARoundingUp(dest, sqrtPrice, liquidity, amountOut, false)
}

// GetAmountADelta writes the token A amount between two sqrt prices:
//
//	L·(√Pb - √Pa) / (√Pa·√Pb)
func GetAmountADelta(dest, sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, roundUp bool) error {
	if sqrtPriceA.Gt(sqrtPriceB) {
		sqrtPriceA, sqrtPriceB = sqrtPriceB, sqrtPriceA
	}
	if sqrtPriceA.IsZero() {
		return ErrSqrtPriceZero
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution)
	numerator2 := new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA)

	if roundUp {
		term, err := fixedpoint.MulDivRoundingUp(numerator1, numerator2, sqrtPriceB)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.DivRoundingUp(term, sqrtPriceA)
		if err != nil {
			return err
		}
		dest.Set(amount)
		return nil
	}

	term, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtPriceB)
	if err != nil {
		return err
	}
	dest.Div(term, sqrtPriceA)
	return nil
}

// GetAmountBDelta writes the token B amount between two sqrt prices:
//
//	L·(√Pb - √Pa)
func GetAmountBDelta(dest, sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, roundUp bool) error {
	if sqrtPriceA.Gt(sqrtPriceB) {
		sqrtPriceA, sqrtPriceB = sqrtPriceB, sqrtPriceA
	}

	diff := new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA)
	var (
		amount *uint256.Int
		err    error
	)
	if roundUp {
		amount, err = fixedpoint.MulDivRoundingUp(liquidity, diff, fixedpoint.Q64)
	} else {
		amount, err = fixedpoint.MulDiv(liquidity, diff, fixedpoint.Q64)
	}
	if err != nil {
		return err
	}
	dest.Set(amount)
	return nil
}
