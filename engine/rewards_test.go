package engine

import (
	"testing"

	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewardPool(liquidity uint64, timestamp uint64) *amm.Pool {
	pool := &amm.Pool{RewardLastUpdatedTimestamp: timestamp}
	pool.Liquidity.SetUint64(liquidity)
	pool.RewardInfos[0].Mint = "RWD"
	pool.RewardInfos[0].EmissionsPerSecondX64.Lsh(uint256.NewInt(10), 64)
	return pool
}

func TestNextRewardInfos(t *testing.T) {
	t.Run("growth is elapsed times emissions over liquidity", func(t *testing.T) {
		infos, err := NextRewardInfos(rewardPool(500, 1_000), 1_100)
		require.NoError(t, err)
		assert.True(t, infos[0].GrowthGlobalX64.Equal(growth(2, 64)))
		assert.True(t, infos[1].GrowthGlobalX64.IsZero())
	})

	t.Run("no accrual without liquidity or time", func(t *testing.T) {
		infos, err := NextRewardInfos(rewardPool(0, 1_000), 2_000)
		require.NoError(t, err)
		assert.True(t, infos[0].GrowthGlobalX64.IsZero())

		infos, err = NextRewardInfos(rewardPool(500, 1_000), 1_000)
		require.NoError(t, err)
		assert.True(t, infos[0].GrowthGlobalX64.IsZero())
	})

	t.Run("timestamp must not go backwards", func(t *testing.T) {
		_, err := NextRewardInfos(rewardPool(500, 1_000), 999)
		assert.ErrorIs(t, err, amm.ErrInvalidTimestamp)
	})

	t.Run("growth wraps", func(t *testing.T) {
		pool := rewardPool(1, 0)
		max128 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
		pool.RewardInfos[0].GrowthGlobalX64 = fixedpoint.NewGrowth(max128)

		infos, err := NextRewardInfos(pool, 1)
		require.NoError(t, err)
		// 2^128 - 1 + 10·2^64 wraps to 10·2^64 - 1.
		want := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(10), 64), uint256.NewInt(1))
		assert.True(t, infos[0].GrowthGlobalX64.Equal(fixedpoint.NewGrowth(want)))
	})
}

func TestNextRewardEmissions(t *testing.T) {
	emissions := new(uint256.Int).Lsh(uint256.NewInt(1), 64)

	t.Run("rolls forward at the old rate before switching", func(t *testing.T) {
		pool := rewardPool(500, 1_000)
		infos, err := NextRewardEmissions(pool, 0, emissions, amm.SecondsPerDay, 1_100)
		require.NoError(t, err)
		assert.True(t, infos[0].GrowthGlobalX64.Equal(growth(2, 64)))
		assert.Equal(t, emissions, &infos[0].EmissionsPerSecondX64)
	})

	t.Run("vault must cover one day", func(t *testing.T) {
		_, err := NextRewardEmissions(rewardPool(500, 1_000), 0, emissions, amm.SecondsPerDay-1, 1_000)
		assert.ErrorIs(t, err, amm.ErrRewardVaultAmountInsufficient)
	})

	t.Run("slot must be initialized", func(t *testing.T) {
		_, err := NextRewardEmissions(rewardPool(500, 1_000), 1, emissions, amm.SecondsPerDay, 1_000)
		assert.ErrorIs(t, err, amm.ErrInvalidRewardIndex)
	})

	t.Run("rate must fit 128 bits", func(t *testing.T) {
		huge := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
		_, err := NextRewardEmissions(rewardPool(500, 1_000), 0, huge, ^uint64(0), 1_000)
		assert.ErrorIs(t, err, amm.ErrOverflow)
	})
}

func TestCheckRewardInitialization(t *testing.T) {
	pool := rewardPool(0, 0)
	assert.NoError(t, CheckRewardInitialization(pool, 1))
	assert.ErrorIs(t, CheckRewardInitialization(pool, 0), amm.ErrInvalidRewardIndex)
	assert.ErrorIs(t, CheckRewardInitialization(pool, 2), amm.ErrInvalidRewardIndex)
	assert.ErrorIs(t, CheckRewardInitialization(pool, -1), amm.ErrInvalidRewardIndex)

	pool.RewardInfos[1].Mint = "OP"
	pool.RewardInfos[2].Mint = "ARB"
	assert.ErrorIs(t, CheckRewardInitialization(pool, 2), amm.ErrInvalidRewardIndex)
}

func TestRewardTransferAmount(t *testing.T) {
	assert.Equal(t, uint64(5), rewardTransferAmount(5, 10))
	assert.Equal(t, uint64(3), rewardTransferAmount(5, 3))
	assert.Equal(t, uint64(0), rewardTransferAmount(0, 3))
}
