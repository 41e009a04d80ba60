package swapmath

import (
	"errors"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/sqrtpricemath"
	"github.com/holiman/uint256"
)

const (
	// FeeRateDenominator expresses fee rates in hundredths of a basis point.
	FeeRateDenominator = 1_000_000
)

var (
	feeDenominator = uint256.NewInt(FeeRateDenominator)

	ErrFeeRateTooLarge = errors.New("fee rate must be below the denominator")
)

// SwapStep is the outcome of a swap confined to one constant-liquidity range.
type SwapStep struct {
	SqrtPriceNext uint256.Int
	AmountIn      uint256.Int
	AmountOut     uint256.Int
	FeeAmount     uint256.Int
}

// ComputeSwapStep calculates the result of swapping amountRemaining between
// the current price and the target price at constant liquidity. The direction
// follows from the prices: a target at or below the current price sells token A.
// With exactIn, amountRemaining is the input budget including fees; otherwise
// it is the output still wanted.
func ComputeSwapStep(
	sqrtPriceCurrent *uint256.Int,
	sqrtPriceTarget *uint256.Int,
	liquidity *uint256.Int,
	amountRemaining *uint256.Int,
	feeRate uint32,
	exactIn bool,
) (SwapStep, error) {
	var step SwapStep
	if feeRate >= FeeRateDenominator {
		return step, ErrFeeRateTooLarge
	}

	aToB := sqrtPriceCurrent.Cmp(sqrtPriceTarget) >= 0
	fee := uint256.NewInt(uint64(feeRate))
	feeComplement := new(uint256.Int).Sub(feeDenominator, fee)

	if exactIn {
		remainingLessFee, err := fixedpoint.MulDiv(amountRemaining, feeComplement, feeDenominator)
		if err != nil {
			return step, err
		}

		if aToB {
			err = sqrtpricemath.GetAmountADelta(&step.AmountIn, sqrtPriceTarget, sqrtPriceCurrent, liquidity, true)
		} else {
			err = sqrtpricemath.GetAmountBDelta(&step.AmountIn, sqrtPriceCurrent, sqrtPriceTarget, liquidity, true)
		}
		if err != nil {
			return step, err
		}

		if remainingLessFee.Cmp(&step.AmountIn) >= 0 {
			step.SqrtPriceNext.Set(sqrtPriceTarget)
		} else if err := sqrtpricemath.GetNextSqrtPriceFromInput(&step.SqrtPriceNext, sqrtPriceCurrent, liquidity, remainingLessFee, aToB); err != nil {
			return step, err
		}
	} else {
		var err error
		if aToB {
			err = sqrtpricemath.GetAmountBDelta(&step.AmountOut, sqrtPriceTarget, sqrtPriceCurrent, liquidity, false)
		} else {
			err = sqrtpricemath.GetAmountADelta(&step.AmountOut, sqrtPriceCurrent, sqrtPriceTarget, liquidity, false)
		}
		if err != nil {
			return step, err
		}

		if amountRemaining.Cmp(&step.AmountOut) >= 0 {
			step.SqrtPriceNext.Set(sqrtPriceTarget)
		} else if err := sqrtpricemath.GetNextSqrtPriceFromOutput(&step.SqrtPriceNext, sqrtPriceCurrent, liquidity, amountRemaining, aToB); err != nil {
			return step, err
		}
	}

	max := sqrtPriceTarget.Eq(&step.SqrtPriceNext)

	// Recalculate amounts for the price actually reached.
	var err error
	if aToB {
		if !(max && exactIn) {
			if err = sqrtpricemath.GetAmountADelta(&step.AmountIn, &step.SqrtPriceNext, sqrtPriceCurrent, liquidity, true); err != nil {
				return step, err
			}
		}
		if !(max && !exactIn) {
			if err = sqrtpricemath.GetAmountBDelta(&step.AmountOut, &step.SqrtPriceNext, sqrtPriceCurrent, liquidity, false); err != nil {
				return step, err
			}
		}
	} else {
		if !(max && exactIn) {
			if err = sqrtpricemath.GetAmountBDelta(&step.AmountIn, sqrtPriceCurrent, &step.SqrtPriceNext, liquidity, true); err != nil {
				return step, err
			}
		}
		if !(max && !exactIn) {
			if err = sqrtpricemath.GetAmountADelta(&step.AmountOut, sqrtPriceCurrent, &step.SqrtPriceNext, liquidity, false); err != nil {
				return step, err
			}
		}
	}

	if !exactIn && step.AmountOut.Gt(amountRemaining) {
		step.AmountOut.Set(amountRemaining)
	}

	if exactIn && !max {
		// The target was not reached, so whatever input is left over is fee.
		step.FeeAmount.Sub(amountRemaining, &step.AmountIn)
	} else {
		feeAmount, err := fixedpoint.MulDivRoundingUp(&step.AmountIn, fee, feeComplement)
		if err != nil {
			return step, err
		}
		step.FeeAmount.Set(feeAmount)
	}

	return step, nil
}
