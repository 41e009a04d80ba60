package sqrtpricemath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRandInt generates a random value below 2^bits.
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

func TestGetAmountDeltas(t *testing.T) {
	t.Run("token A across one spacing above the price", func(t *testing.T) {
		up, down := new(uint256.Int), new(uint256.Int)
		require.NoError(t, GetAmountADelta(up, priceTick0, priceTick64, million, true))
		require.NoError(t, GetAmountADelta(down, priceTick64, priceTick0, million, false))
		assert.Equal(t, uint64(3195), up.Uint64())
		assert.Equal(t, uint64(3194), down.Uint64())
	})

	t.Run("token B across one spacing below the price", func(t *testing.T) {
		up, down := new(uint256.Int), new(uint256.Int)
		require.NoError(t, GetAmountBDelta(up, priceTickNeg64, priceTick0, million, true))
		require.NoError(t, GetAmountBDelta(down, priceTick0, priceTickNeg64, million, false))
		assert.Equal(t, uint64(3195), up.Uint64())
		assert.Equal(t, uint64(3194), down.Uint64())
	})

	t.Run("zero price is rejected for token A", func(t *testing.T) {
		err := GetAmountADelta(new(uint256.Int), new(uint256.Int), priceTick0, million, true)
		assert.ErrorIs(t, err, ErrSqrtPriceZero)
	})

	t.Run("zero liquidity yields zero amounts", func(t *testing.T) {
		a, b := new(uint256.Int), new(uint256.Int)
		require.NoError(t, GetAmountADelta(a, priceTick0, priceTick64, new(uint256.Int), true))
		require.NoError(t, GetAmountBDelta(b, priceTick0, priceTick64, new(uint256.Int), true))
		assert.True(t, a.IsZero())
		assert.True(t, b.IsZero())
	})
}

func TestGetNextSqrtPrice(t *testing.T) {
	amount := uint256.NewInt(1000)

	t.Run("input of token A lowers the price, rounding up", func(t *testing.T) {
		next := new(uint256.Int)
		require.NoError(t, GetNextSqrtPriceFromInput(next, priceTick0, million, amount, true))
		assert.Equal(t, "18428315757951600016", next.Dec())
	})

	t.Run("input of token B raises the price, rounding down", func(t *testing.T) {
		next := new(uint256.Int)
		require.NoError(t, GetNextSqrtPriceFromInput(next, priceTick0, million, amount, false))
		assert.Equal(t, "18465190817783261167", next.Dec())
	})

	t.Run("output of token A raises the price", func(t *testing.T) {
		next := new(uint256.Int)
		require.NoError(t, GetNextSqrtPriceFromOutput(next, priceTick0, million, amount, false))
		assert.Equal(t, "18465209282992544161", next.Dec())
	})

	t.Run("output of token B lowers the price", func(t *testing.T) {
		next := new(uint256.Int)
		require.NoError(t, GetNextSqrtPriceFromOutput(next, priceTick0, million, amount, true))
		assert.Equal(t, "18428297329635842064", next.Dec())
	})

	t.Run("zero amount keeps the price", func(t *testing.T) {
		next := new(uint256.Int)
		require.NoError(t, GetNextSqrtPriceFromInput(next, priceTick0, million, new(uint256.Int), true))
		assert.Equal(t, priceTick0, next)
	})

	t.Run("zero liquidity is rejected", func(t *testing.T) {
		err := GetNextSqrtPriceFromInput(new(uint256.Int), priceTick0, new(uint256.Int), amount, true)
		assert.ErrorIs(t, err, ErrLiquidityZero)
		err = GetNextSqrtPriceFromOutput(new(uint256.Int), priceTick0, new(uint256.Int), amount, true)
		assert.ErrorIs(t, err, ErrLiquidityZero)
	})

	t.Run("output beyond reserves is rejected", func(t *testing.T) {
		huge := new(uint256.Int).Lsh(uint256.NewInt(1), 80)
		err := GetNextSqrtPriceFromOutput(new(uint256.Int), priceTick0, million, huge, true)
		assert.ErrorIs(t, err, ErrPriceOutOfRange)
		err = GetNextSqrtPriceFromOutput(new(uint256.Int), priceTick0, million, huge, false)
		assert.ErrorIs(t, err, ErrPriceOutOfRange)
	})
}

func TestGetAmountADelta_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtP := newRandInt(96)
		sqrtQ := newRandInt(96)
		liquidity := newRandInt(128)
		if sqrtP.IsZero() {
			sqrtP.SetOne()
		}
		if sqrtQ.IsZero() {
			sqrtQ.SetOne()
		}

		down, up := new(uint256.Int), new(uint256.Int)
		require.NoError(t, GetAmountADelta(down, sqrtP, sqrtQ, liquidity, false))
		require.NoError(t, GetAmountADelta(up, sqrtP, sqrtQ, liquidity, true))

		assert.True(t, down.Cmp(up) <= 0)
		assert.True(t, new(uint256.Int).Sub(up, down).Cmp(uint256.NewInt(1)) <= 0)

		// the result does not depend on argument order
		swapped := new(uint256.Int)
		require.NoError(t, GetAmountADelta(swapped, sqrtQ, sqrtP, liquidity, true))
		assert.Equal(t, up, swapped)
	}
}

func TestGetAmountBDelta_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtP := newRandInt(96)
		sqrtQ := newRandInt(96)
		liquidity := newRandInt(128)

		down, up := new(uint256.Int), new(uint256.Int)
		require.NoError(t, GetAmountBDelta(down, sqrtP, sqrtQ, liquidity, false))
		require.NoError(t, GetAmountBDelta(up, sqrtP, sqrtQ, liquidity, true))

		assert.True(t, down.Cmp(up) <= 0)
		assert.True(t, new(uint256.Int).Sub(up, down).Cmp(uint256.NewInt(1)) <= 0)
	}
}

func TestGetNextSqrtPriceFromInput_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtP := newRandInt(96)
		liquidity := newRandInt(96)
		amountIn := newRandInt(64)
		if sqrtP.Lt(uint256.NewInt(1 << 32)) {
			sqrtP.SetUint64(1 << 32)
		}
		if liquidity.IsZero() {
			liquidity.SetOne()
		}

		aToB := i%2 == 0
		next := new(uint256.Int)
		require.NoError(t, GetNextSqrtPriceFromInput(next, sqrtP, liquidity, amountIn, aToB))

		if aToB {
			assert.True(t, next.Cmp(sqrtP) <= 0)
		} else {
			assert.True(t, next.Cmp(sqrtP) >= 0)
		}
	}
}
