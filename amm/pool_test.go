package amm

import (
	"encoding/json"
	"testing"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoolParams() InitializePoolParams {
	return InitializePoolParams{
		SyntheticMint:   "sETH",
		QuoteMint:       "USDC",
		TickSpacing:     64,
		FeeRate:         3000,
		ProtocolFeeRate: 300,
		SqrtPrice:       new(uint256.Int).Set(fixedpoint.Q64),
		Timestamp:       1_000,
	}
}

func TestNewPool(t *testing.T) {
	t.Run("derives tick, id and vaults", func(t *testing.T) {
		p, err := NewPool(testPoolParams())
		require.NoError(t, err)
		assert.True(t, p.IsActive())
		assert.Equal(t, int32(0), p.TickCurrentIndex)
		assert.Equal(t, PoolID("sETH", "USDC", 64), p.ID)
		assert.NotEqual(t, p.QuoteVault, p.SyntheticVault)
		assert.Equal(t, uint64(1_000), p.RewardLastUpdatedTimestamp)
		assert.True(t, p.Liquidity.IsZero())
	})

	t.Run("validates parameters", func(t *testing.T) {
		params := testPoolParams()
		params.TickSpacing = 0
		_, err := NewPool(params)
		assert.ErrorIs(t, err, ErrInvalidTickSpacing)

		params = testPoolParams()
		params.FeeRate = MaxFeeRate + 1
		_, err = NewPool(params)
		assert.ErrorIs(t, err, ErrFeeRateMaxExceeded)

		params = testPoolParams()
		params.ProtocolFeeRate = MaxProtocolFeeRate + 1
		_, err = NewPool(params)
		assert.ErrorIs(t, err, ErrProtocolFeeRateMaxExceeded)

		params = testPoolParams()
		params.SqrtPrice = uint256.NewInt(1)
		_, err = NewPool(params)
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)

		params = testPoolParams()
		params.QuoteMint = params.SyntheticMint
		_, err = NewPool(params)
		assert.Error(t, err)
	})

	t.Run("zero value is not active", func(t *testing.T) {
		var p Pool
		assert.False(t, p.IsActive())
	})
}

func TestIDs(t *testing.T) {
	a := PoolID("sETH", "USDC", 64)
	assert.Equal(t, a, PoolID("sETH", "USDC", 64))
	assert.NotEqual(t, a, PoolID("sETH", "USDC", 128))
	assert.NotEqual(t, a, PoolID("USDC", "sETH", 64))
	// length prefixes keep concatenations apart
	assert.NotEqual(t, PoolID("ab", "c", 1), PoolID("a", "bc", 1))

	p1 := PositionID(a, "alice", -64, 64, 0)
	assert.NotEqual(t, p1, PositionID(a, "alice", -64, 64, 1))
	assert.NotEqual(t, p1, PositionID(a, "bob", -64, 64, 0))
}

func TestFullRangeTicks(t *testing.T) {
	lo, hi := FullRangeTicks(64)
	assert.Equal(t, int32(-443584), lo)
	assert.Equal(t, int32(443584), hi)

	lo, hi = FullRangeTicks(1)
	assert.Equal(t, MinTick, lo)
	assert.Equal(t, MaxTick, hi)
}

func TestDirectionText(t *testing.T) {
	var d Direction
	require.NoError(t, json.Unmarshal([]byte(`"synthetic_to_quote"`), &d))
	assert.Equal(t, SyntheticToQuote, d)
	assert.False(t, d.AToB())
	assert.True(t, QuoteToSynthetic.AToB())
	assert.Error(t, json.Unmarshal([]byte(`"sideways"`), &d))
}
