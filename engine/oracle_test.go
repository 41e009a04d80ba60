package engine

import (
	"testing"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/tickmath"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqrtPriceFromOracle(t *testing.T) {
	testCases := []struct {
		name  string
		price OraclePrice
		want  *uint256.Int
	}{
		{"unit price with negative exponent", OraclePrice{Price: 100, Expo: -2}, fixedpoint.Q64},
		{"quarter of a synthetic per quote", OraclePrice{Price: 4}, new(uint256.Int).Rsh(fixedpoint.Q64, 1)},
		{"positive exponent", OraclePrice{Price: 25, Expo: 2}, new(uint256.Int).Div(fixedpoint.Q64, uint256.NewInt(50))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SqrtPriceFromOracle(tc.price, OracleGuard{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("rejects non-positive prices", func(t *testing.T) {
		_, err := SqrtPriceFromOracle(OraclePrice{Price: 0}, OracleGuard{})
		assert.ErrorIs(t, err, ErrInvalidOraclePrice)
		_, err = SqrtPriceFromOracle(OraclePrice{Price: -5}, OracleGuard{})
		assert.ErrorIs(t, err, ErrInvalidOraclePrice)
	})

	t.Run("rejects prices outside the tick domain", func(t *testing.T) {
		_, err := SqrtPriceFromOracle(OraclePrice{Price: 1, Expo: 60}, OracleGuard{})
		assert.ErrorIs(t, err, tickmath.ErrSqrtPriceOutOfBounds)
	})
}

func TestOracleGuard(t *testing.T) {
	guard := OracleGuard{MaxSlotDelay: 10, MaxConfidenceBps: 100}

	assert.NoError(t, guard.Check(OraclePrice{Price: 100, Confidence: 1, SlotDelay: 10}))
	assert.ErrorIs(t, guard.Check(OraclePrice{Price: 100, Confidence: 2}), ErrStaleOracle)
	assert.ErrorIs(t, guard.Check(OraclePrice{Price: 100, SlotDelay: 11}), ErrStaleOracle)
	assert.NoError(t, OracleGuard{}.Check(OraclePrice{Price: 100, Confidence: 1_000, SlotDelay: 1_000}))
}
