package swapmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a random value below 2^bits.
func newRandInt(bits int) *uint256.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return uint256.MustFromBig(n)
}

var (
	priceTick0     = uint256.MustFromDecimal("18446744073709551616")
	priceTick64    = uint256.MustFromDecimal("18505865242158250042")
	priceTickNeg64 = uint256.MustFromDecimal("18387811781193591353")
	million        = uint256.NewInt(1_000_000)
)

func TestComputeSwapStep(t *testing.T) {
	t.Run("exact input that stops short of the target", func(t *testing.T) {
		step, err := ComputeSwapStep(priceTick0, priceTickNeg64, million, uint256.NewInt(1000), 3000, true)
		require.NoError(t, err)
		assert.Equal(t, "18428370987834680440", step.SqrtPriceNext.Dec())
		assert.Equal(t, uint64(997), step.AmountIn.Uint64())
		assert.Equal(t, uint64(996), step.AmountOut.Uint64())
		assert.Equal(t, uint64(3), step.FeeAmount.Uint64())
	})

	t.Run("exact input that reaches the target", func(t *testing.T) {
		step, err := ComputeSwapStep(priceTick0, priceTickNeg64, million, uint256.NewInt(10000), 3000, true)
		require.NoError(t, err)
		assert.Equal(t, priceTickNeg64, &step.SqrtPriceNext)
		assert.Equal(t, uint64(3205), step.AmountIn.Uint64())
		assert.Equal(t, uint64(3194), step.AmountOut.Uint64())
		assert.Equal(t, uint64(10), step.FeeAmount.Uint64())
	})

	t.Run("exact output that stops short of the target", func(t *testing.T) {
		step, err := ComputeSwapStep(priceTick0, priceTick64, million, uint256.NewInt(1000), 3000, false)
		require.NoError(t, err)
		assert.Equal(t, "18465209282992544161", step.SqrtPriceNext.Dec())
		assert.Equal(t, uint64(1002), step.AmountIn.Uint64())
		assert.Equal(t, uint64(1000), step.AmountOut.Uint64())
		assert.Equal(t, uint64(4), step.FeeAmount.Uint64())
	})

	t.Run("exact output that reaches the target", func(t *testing.T) {
		step, err := ComputeSwapStep(priceTick0, priceTick64, million, uint256.NewInt(10000), 3000, false)
		require.NoError(t, err)
		assert.Equal(t, priceTick64, &step.SqrtPriceNext)
		assert.Equal(t, uint64(3205), step.AmountIn.Uint64())
		assert.Equal(t, uint64(3194), step.AmountOut.Uint64())
		assert.Equal(t, uint64(10), step.FeeAmount.Uint64())
	})

	t.Run("zero liquidity moves the price for free", func(t *testing.T) {
		step, err := ComputeSwapStep(priceTick0, priceTickNeg64, new(uint256.Int), uint256.NewInt(1000), 3000, true)
		require.NoError(t, err)
		assert.Equal(t, priceTickNeg64, &step.SqrtPriceNext)
		assert.True(t, step.AmountIn.IsZero())
		assert.True(t, step.AmountOut.IsZero())
		assert.True(t, step.FeeAmount.IsZero())
	})

	t.Run("rejects a fee rate of 100 percent", func(t *testing.T) {
		_, err := ComputeSwapStep(priceTick0, priceTickNeg64, million, uint256.NewInt(1000), FeeRateDenominator, true)
		assert.ErrorIs(t, err, ErrFeeRateTooLarge)
	})
}

// TestComputeSwapStep_Invariants runs the step on random inputs and checks
// the properties every step must satisfy.
func TestComputeSwapStep_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtPrice := newRandInt(96)
		sqrtPriceTarget := newRandInt(96)
		liquidity := newRandInt(96)
		amountRemaining := newRandInt(64)
		feeRate := uint32(newRandInt(16).Uint64())
		exactIn := i%2 == 0

		if sqrtPrice.Lt(uint256.NewInt(1 << 32)) {
			sqrtPrice.SetUint64(1 << 32)
		}
		if sqrtPriceTarget.Lt(uint256.NewInt(1 << 32)) {
			sqrtPriceTarget.SetUint64(1 << 32)
		}

		step, err := ComputeSwapStep(sqrtPrice, sqrtPriceTarget, liquidity, amountRemaining, feeRate, exactIn)
		if err != nil {
			// output-side requests can exceed the reserves of a tiny range
			continue
		}

		if exactIn {
			spent := new(uint256.Int).Add(&step.AmountIn, &step.FeeAmount)
			assert.True(t, spent.Cmp(amountRemaining) <= 0, "spent more than the budget")
		} else {
			assert.True(t, step.AmountOut.Cmp(amountRemaining) <= 0, "received more than requested")
		}

		aToB := sqrtPrice.Cmp(sqrtPriceTarget) >= 0
		if aToB {
			assert.True(t, step.SqrtPriceNext.Cmp(sqrtPrice) <= 0)
			assert.True(t, step.SqrtPriceNext.Cmp(sqrtPriceTarget) >= 0)
		} else {
			assert.True(t, step.SqrtPriceNext.Cmp(sqrtPrice) >= 0)
			assert.True(t, step.SqrtPriceNext.Cmp(sqrtPriceTarget) <= 0)
		}

		// a step that stops short of the target consumes the whole amount
		if !step.SqrtPriceNext.Eq(sqrtPriceTarget) {
			if exactIn {
				spent := new(uint256.Int).Add(&step.AmountIn, &step.FeeAmount)
				assert.Equal(t, amountRemaining, spent)
			} else {
				assert.Equal(t, amountRemaining, &step.AmountOut)
			}
		}
	}
}
