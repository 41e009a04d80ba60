package amm

import (
	"fmt"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/holiman/uint256"
)

// Tick holds the liquidity and fee/reward bookkeeping of one initialized
// price boundary. "Outside" values are relative to the current tick: the
// portion of global growth on the far side of this boundary.
type Tick struct {
	LiquidityNet              fixedpoint.Int128             `json:"liquidityNet"`
	LiquidityGross            uint256.Int                   `json:"liquidityGross"`
	FeeGrowthOutsideQuote     fixedpoint.Growth             `json:"feeGrowthOutsideQuote"`
	FeeGrowthOutsideSynthetic fixedpoint.Growth             `json:"feeGrowthOutsideSynthetic"`
	RewardGrowthsOutside      [NumRewards]fixedpoint.Growth `json:"rewardGrowthsOutside"`
}

// Initialized reports whether any position references the tick.
func (t *Tick) Initialized() bool {
	return !t.LiquidityGross.IsZero()
}

// TickUpdate is the full replacement value for a tick, computed before any
// state is written.
type TickUpdate Tick

// ToUpdate returns the tick's current value as an update.
func (t *Tick) ToUpdate() TickUpdate {
	return TickUpdate(*t)
}

// Apply overwrites the tick with update.
func (t *Tick) Apply(update TickUpdate) {
	*t = Tick(update)
}

// CheckIsUsableTick reports whether tickIndex may bound a position for the
// given spacing.
func CheckIsUsableTick(tickIndex int32, tickSpacing uint16) bool {
	if tickSpacing == 0 || tickIndex < MinTick || tickIndex > MaxTick {
		return false
	}
	return tickIndex%int32(tickSpacing) == 0
}

// IsFullRangeOnly reports whether pools with tickSpacing only accept
// full-range positions.
func IsFullRangeOnly(tickSpacing uint16) bool {
	return tickSpacing >= FullRangeOnlyTickSpacing
}

// CheckTickRange validates a position's bounds for a pool.
func CheckTickRange(tickLower, tickUpper int32, tickSpacing uint16) error {
	if !CheckIsUsableTick(tickLower, tickSpacing) {
		return fmt.Errorf("%w: lower %d with spacing %d", ErrInvalidTickIndex, tickLower, tickSpacing)
	}
	if !CheckIsUsableTick(tickUpper, tickSpacing) {
		return fmt.Errorf("%w: upper %d with spacing %d", ErrInvalidTickIndex, tickUpper, tickSpacing)
	}
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: lower %d must be below upper %d", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if IsFullRangeOnly(tickSpacing) {
		lo, hi := FullRangeTicks(tickSpacing)
		if tickLower != lo || tickUpper != hi {
			return ErrFullRangeOnlyPool
		}
	}
	return nil
}
