package fixedpoint

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	t.Run("rounds down and up", func(t *testing.T) {
		down, err := MulDiv(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
		require.NoError(t, err)
		assert.Equal(t, uint64(33), down.Uint64())

		up, err := MulDivRoundingUp(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
		require.NoError(t, err)
		assert.Equal(t, uint64(34), up.Uint64())
	})

	t.Run("exact division does not round up", func(t *testing.T) {
		up, err := MulDivRoundingUp(uint256.NewInt(6), uint256.NewInt(4), uint256.NewInt(3))
		require.NoError(t, err)
		assert.Equal(t, uint64(8), up.Uint64())
	})

	t.Run("uses a wide intermediate product", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		z, err := MulDiv(max, uint256.NewInt(4), uint256.NewInt(8))
		require.NoError(t, err)
		assert.Equal(t, new(uint256.Int).Rsh(max, 1), z)
	})

	t.Run("reports overflow", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		_, err := MulDiv(max, max, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("rejects a zero divisor", func(t *testing.T) {
		_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivideByZero)
		_, err = DivRoundingUp(uint256.NewInt(1), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivideByZero)
	})
}

func TestMulShiftRight64(t *testing.T) {
	t.Run("scales a Q64.64 growth by liquidity", func(t *testing.T) {
		growth := new(uint256.Int).Lsh(uint256.NewInt(2), 64)
		v, ok := MulShiftRight64(uint256.NewInt(500), growth)
		require.True(t, ok)
		assert.Equal(t, uint64(1000), v)
	})

	t.Run("fails when the result exceeds 64 bits", func(t *testing.T) {
		_, ok := MulShiftRight64(MaxUint128, MaxUint128)
		assert.False(t, ok)
	})
}

func TestGrowth(t *testing.T) {
	t.Run("wraps at 2^128", func(t *testing.T) {
		g := NewGrowth(MaxUint128)
		next := g.Add(uint256.NewInt(5))
		assert.Equal(t, uint64(4), next.Since(NewGrowth(new(uint256.Int))).Uint64())
		assert.Equal(t, uint64(5), next.Since(g).Uint64())
	})

	t.Run("difference across the wrap is the accrued amount", func(t *testing.T) {
		checkpoint := NewGrowth(new(uint256.Int).Sub(MaxUint128, uint256.NewInt(9)))
		later := checkpoint.Add(uint256.NewInt(100))
		assert.Equal(t, uint64(100), later.Since(checkpoint).Uint64())
	})

	t.Run("sub wraps below zero", func(t *testing.T) {
		a := NewGrowth(uint256.NewInt(3))
		b := NewGrowth(uint256.NewInt(5))
		assert.True(t, a.Sub(b).Equal(NewGrowth(new(uint256.Int).Sub(MaxUint128, uint256.NewInt(1)))))
	})

	t.Run("encodes as a decimal string", func(t *testing.T) {
		g := NewGrowth(uint256.NewInt(42))
		b, err := json.Marshal(g)
		require.NoError(t, err)
		assert.Equal(t, `"42"`, string(b))

		var decoded Growth
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.True(t, decoded.Equal(g))
	})
}

func TestInt128(t *testing.T) {
	t.Run("adds across signs", func(t *testing.T) {
		v, err := NewInt128(100).Add(NewInt128(-250))
		require.NoError(t, err)
		assert.Equal(t, "-150", v.String())
		assert.Equal(t, -1, v.Sign())

		v, err = v.Sub(NewInt128(-150))
		require.NoError(t, err)
		assert.True(t, v.IsZero())
		assert.Equal(t, 0, v.Sign())
	})

	t.Run("rejects values outside the signed range", func(t *testing.T) {
		max, err := Int128FromUint(maxInt128Abs, false)
		require.NoError(t, err)
		_, err = max.Add(NewInt128(1))
		assert.ErrorIs(t, err, ErrOverflow)

		min, err := Int128FromUint(minInt128Abs, true)
		require.NoError(t, err)
		_, err = min.Add(NewInt128(-1))
		assert.ErrorIs(t, err, ErrOverflow)

		_, err = Int128FromUint(minInt128Abs, false)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("formats the signed extremes", func(t *testing.T) {
		min, err := Int128FromUint(minInt128Abs, true)
		require.NoError(t, err)
		assert.Equal(t, "-170141183460469231731687303715884105728", min.String())
		max, err := Int128FromUint(maxInt128Abs, false)
		require.NoError(t, err)
		assert.Equal(t, "170141183460469231731687303715884105727", max.String())
	})

	t.Run("negating zero stays non-negative", func(t *testing.T) {
		assert.Equal(t, 0, NewInt128(0).Neg().Sign())
		assert.Equal(t, "0", NewInt128(0).Neg().String())
	})

	t.Run("round trips through text", func(t *testing.T) {
		var v Int128
		require.NoError(t, json.Unmarshal([]byte(`"-77"`), &v))
		assert.True(t, v.Equal(NewInt128(-77)))
		b, err := json.Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, `"-77"`, string(b))
	})
}
