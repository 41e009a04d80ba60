package engine

import (
	"fmt"

	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/holiman/uint256"
)

var secondsPerDay = uint256.NewInt(amm.SecondsPerDay)

// NextRewardInfos returns the pool's reward slots rolled forward to
// timestamp. Each initialized slot grows by
// elapsed × emissions_per_second / liquidity. Seconds that pass while the
// pool has no liquidity in range are not accrued.
func NextRewardInfos(pool *amm.Pool, timestamp uint64) ([amm.NumRewards]amm.RewardInfo, error) {
	infos := pool.RewardInfos
	if timestamp < pool.RewardLastUpdatedTimestamp {
		return infos, fmt.Errorf("%w: %d < %d", amm.ErrInvalidTimestamp, timestamp, pool.RewardLastUpdatedTimestamp)
	}

	elapsed := timestamp - pool.RewardLastUpdatedTimestamp
	if elapsed == 0 || pool.Liquidity.IsZero() {
		return infos, nil
	}

	elapsedSeconds := uint256.NewInt(elapsed)
	for i := range infos {
		if !infos[i].Initialized() {
			continue
		}
		delta, err := fixedpoint.MulDiv(elapsedSeconds, &infos[i].EmissionsPerSecondX64, &pool.Liquidity)
		if err != nil {
			return infos, fmt.Errorf("reward %d growth: %w", i, err)
		}
		infos[i].GrowthGlobalX64 = infos[i].GrowthGlobalX64.Add(delta)
	}
	return infos, nil
}

// CheckRewardInitialization verifies that index is the lowest uninitialized
// reward slot, so slots fill strictly in order.
func CheckRewardInitialization(pool *amm.Pool, index int) error {
	if !amm.RewardIndexValid(index) {
		return fmt.Errorf("%w: %d", amm.ErrInvalidRewardIndex, index)
	}
	for i := range pool.RewardInfos {
		if !pool.RewardInfos[i].Initialized() {
			if i != index {
				return fmt.Errorf("%w: next free slot is %d, got %d", amm.ErrInvalidRewardIndex, i, index)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: all slots are initialized", amm.ErrInvalidRewardIndex)
}

// NextRewardEmissions rolls the pool's rewards forward to timestamp and sets
// the emission rate of slot index. The reward vault must hold at least one
// day of emissions at the new rate.
func NextRewardEmissions(pool *amm.Pool, index int, emissionsPerSecondX64 *uint256.Int, vaultBalance, timestamp uint64) ([amm.NumRewards]amm.RewardInfo, error) {
	if !amm.RewardIndexValid(index) || !pool.RewardInfos[index].Initialized() {
		return pool.RewardInfos, fmt.Errorf("%w: %d", amm.ErrInvalidRewardIndex, index)
	}
	if !fixedpoint.FitsUint128(emissionsPerSecondX64) {
		return pool.RewardInfos, fmt.Errorf("emissions per second: %w", amm.ErrOverflow)
	}

	emissionsPerDay := new(uint256.Int).Mul(emissionsPerSecondX64, secondsPerDay)
	emissionsPerDay.Rsh(emissionsPerDay, fixedpoint.Resolution)
	if emissionsPerDay.Gt(uint256.NewInt(vaultBalance)) {
		return pool.RewardInfos, fmt.Errorf("%w: vault holds %d, one day needs %s", amm.ErrRewardVaultAmountInsufficient, vaultBalance, emissionsPerDay.Dec())
	}

	infos, err := NextRewardInfos(pool, timestamp)
	if err != nil {
		return infos, err
	}
	infos[index].EmissionsPerSecondX64.Set(emissionsPerSecondX64)
	return infos, nil
}

// rewardTransferAmount pays what the vault can cover; the rest stays owed.
func rewardTransferAmount(owed, vaultBalance uint64) uint64 {
	return min(owed, vaultBalance)
}
