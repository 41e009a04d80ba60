package amm

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	pool, err := NewPool(testPoolParams())
	require.NoError(t, err)
	pool.Liquidity.SetUint64(1_000)

	ta, err := NewTickArray(pool.ID, StartTickIndex(-64, 64), 64)
	require.NoError(t, err)
	require.NoError(t, ta.UpdateTick(-64, initializedUpdate(1_000)))
	tb, err := NewTickArray(pool.ID, 0, 64)
	require.NoError(t, err)
	require.NoError(t, tb.UpdateTick(64, initializedUpdate(1_000)))

	pos := Position{
		ID:             PositionID(pool.ID, "alice", -64, 64, 0),
		PoolID:         pool.ID,
		Owner:          "alice",
		TickLowerIndex: -64,
		TickUpperIndex: 64,
	}
	pos.Liquidity.SetUint64(1_000)

	return &Snapshot{
		Pool:        pool,
		PositionSeq: 1,
		TickArrays:  []*TickArray{ta, tb},
		Positions:   []Position{pos},
	}
}

func TestDiffer(t *testing.T) {
	t.Run("identical snapshots produce an empty diff", func(t *testing.T) {
		s := newTestSnapshot(t)
		diff := Differ(s, s.Clone())
		assert.True(t, diff.IsEmpty())
	})

	t.Run("should identify pool field updates", func(t *testing.T) {
		old := newTestSnapshot(t)
		next := old.Clone()
		next.Pool.SqrtPrice.Add(&next.Pool.SqrtPrice, uint256.NewInt(1))

		diff := Differ(old, next)
		require.NotNil(t, diff.Pool)
		assert.Equal(t, next.Pool.SqrtPrice, diff.Pool.SqrtPrice)
		assert.Empty(t, diff.TickArrayUpserts)
	})

	t.Run("should identify tick array changes", func(t *testing.T) {
		old := newTestSnapshot(t)
		next := old.Clone()
		require.NoError(t, next.TickArrays[1].UpdateTick(128, initializedUpdate(5)))
		next.TickArrays = next.TickArrays[1:]

		diff := Differ(old, next)
		require.Len(t, diff.TickArrayUpserts, 1)
		assert.Equal(t, int32(0), diff.TickArrayUpserts[0].StartTickIndex)
		assert.Equal(t, []int32{StartTickIndex(-64, 64)}, diff.TickArrayDeletions)
	})

	t.Run("should identify position additions, updates and deletions", func(t *testing.T) {
		old := newTestSnapshot(t)
		next := old.Clone()
		next.Positions[0].FeeOwedQuote = 12
		added := next.Positions[0]
		added.ID = PositionID(old.Pool.ID, "bob", -64, 64, 1)
		next.Positions = append(next.Positions, added)
		next.PositionSeq = 2

		diff := Differ(old, next)
		assert.Len(t, diff.PositionUpdates, 1)
		assert.Len(t, diff.PositionAdditions, 1)
		assert.Empty(t, diff.PositionDeletions)

		back := Differ(next, old)
		assert.Len(t, back.PositionDeletions, 1)
	})
}

func TestPatcher(t *testing.T) {
	t.Run("diff then patch reproduces the newer snapshot", func(t *testing.T) {
		old := newTestSnapshot(t)
		next := old.Clone()
		next.Pool.TickCurrentIndex = -10
		require.NoError(t, next.TickArrays[0].UpdateTick(-128, initializedUpdate(3)))
		next.Positions[0].FeeOwedSynthetic = 9
		next.Sort()

		patched, err := Patcher(old, Differ(old, next))
		require.NoError(t, err)
		assert.Equal(t, next.Pool, patched.Pool)
		require.Len(t, patched.TickArrays, len(next.TickArrays))
		for i := range next.TickArrays {
			assert.True(t, next.TickArrays[i].Equal(patched.TickArrays[i]))
		}
		assert.Equal(t, next.Positions, patched.Positions)
	})

	t.Run("does not modify the previous snapshot", func(t *testing.T) {
		old := newTestSnapshot(t)
		before := old.Clone()
		next := old.Clone()
		require.NoError(t, next.TickArrays[0].UpdateTick(-128, initializedUpdate(3)))

		_, err := Patcher(old, Differ(old, next))
		require.NoError(t, err)
		assert.True(t, before.TickArrays[0].Equal(old.TickArrays[0]))
	})

	t.Run("rejects a diff for another pool", func(t *testing.T) {
		old := newTestSnapshot(t)
		diff := Differ(old, old)
		diff.PoolID[0] ^= 0xff
		_, err := Patcher(old, diff)
		assert.Error(t, err)
	})

	t.Run("snapshot survives a json round trip", func(t *testing.T) {
		s := newTestSnapshot(t)
		b, err := json.Marshal(s)
		require.NoError(t, err)

		var decoded Snapshot
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, s.Pool, decoded.Pool)
		assert.Equal(t, s.Positions, decoded.Positions)
		assert.True(t, Differ(s, &decoded).IsEmpty())
	})
}
