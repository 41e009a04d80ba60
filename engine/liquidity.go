package engine

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/liquiditymath"
	"github.com/defistate/synthamm/calculator/tickmath"
	"github.com/holiman/uint256"
)

// GrowthsInside is the fee and reward growth accrued inside a tick range.
type GrowthsInside struct {
	FeeQuote     fixedpoint.Growth
	FeeSynthetic fixedpoint.Growth
	Rewards      [amm.NumRewards]fixedpoint.Growth
}

// PositionSettlement is a position's next state together with the owed
// amounts whose accrual overflowed and was dropped.
type PositionSettlement struct {
	Update    amm.PositionUpdate
	Forfeited []string
}

// ModifyLiquidityUpdate carries every write a liquidity change makes. It is
// computed without touching state and applied in one step.
type ModifyLiquidityUpdate struct {
	PoolLiquidity              uint256.Int
	RewardInfos                [amm.NumRewards]amm.RewardInfo
	RewardLastUpdatedTimestamp uint64
	TickLowerUpdate            amm.TickUpdate
	TickUpperUpdate            amm.TickUpdate
	Position                   PositionSettlement
}

// NextTickModifyLiquidityUpdate returns tick after adding liquidityDelta to
// a position bounded by it. A tick initialized by this change records all
// growth so far as outside when the current tick is at or above it.
func NextTickModifyLiquidityUpdate(
	tick *amm.Tick,
	tickIndex int32,
	tickCurrentIndex int32,
	feeGrowthGlobalQuote fixedpoint.Growth,
	feeGrowthGlobalSynthetic fixedpoint.Growth,
	rewardInfos *[amm.NumRewards]amm.RewardInfo,
	liquidityDelta fixedpoint.Int128,
	isUpperTick bool,
) (amm.TickUpdate, error) {
	if liquidityDelta.IsZero() {
		return tick.ToUpdate(), nil
	}

	gross, err := liquiditymath.AddDelta(&tick.LiquidityGross, liquidityDelta)
	if err != nil {
		return amm.TickUpdate{}, fmt.Errorf("tick %d gross: %w", tickIndex, err)
	}
	if gross.IsZero() {
		return amm.TickUpdate{}, nil
	}

	update := tick.ToUpdate()
	if tick.LiquidityGross.IsZero() {
		if tickCurrentIndex >= tickIndex {
			update.FeeGrowthOutsideQuote = feeGrowthGlobalQuote
			update.FeeGrowthOutsideSynthetic = feeGrowthGlobalSynthetic
			for i := range rewardInfos {
				if rewardInfos[i].Initialized() {
					update.RewardGrowthsOutside[i] = rewardInfos[i].GrowthGlobalX64
				}
			}
		} else {
			update.FeeGrowthOutsideQuote = fixedpoint.Growth{}
			update.FeeGrowthOutsideSynthetic = fixedpoint.Growth{}
			update.RewardGrowthsOutside = [amm.NumRewards]fixedpoint.Growth{}
		}
	}

	var net fixedpoint.Int128
	if isUpperTick {
		net, err = tick.LiquidityNet.Sub(liquidityDelta)
	} else {
		net, err = tick.LiquidityNet.Add(liquidityDelta)
	}
	if err != nil {
		return amm.TickUpdate{}, fmt.Errorf("%w: tick %d", amm.ErrLiquidityNetOverflow, tickIndex)
	}

	update.LiquidityGross = *gross
	update.LiquidityNet = net
	return update, nil
}

// growthInside splits global into the part accrued between lower and
// upper. Uninitialized bounds count all growth as below the range, which is
// what an initialization at the current tick would record.
func growthInside(
	global fixedpoint.Growth,
	lowerOutside fixedpoint.Growth, lowerInitialized bool, tickLowerIndex int32,
	upperOutside fixedpoint.Growth, upperInitialized bool, tickUpperIndex int32,
	tickCurrentIndex int32,
) fixedpoint.Growth {
	var below fixedpoint.Growth
	switch {
	case !lowerInitialized:
		below = global
	case tickCurrentIndex < tickLowerIndex:
		below = global.Sub(lowerOutside)
	default:
		below = lowerOutside
	}

	var above fixedpoint.Growth
	switch {
	case !upperInitialized:
	case tickCurrentIndex < tickUpperIndex:
		above = upperOutside
	default:
		above = global.Sub(upperOutside)
	}

	return global.Sub(below).Sub(above)
}

// NextGrowthsInside computes the fee and reward growth inside
// [tickLowerIndex, tickUpperIndex) from the bounding ticks as they are now.
func NextGrowthsInside(
	tickCurrentIndex int32,
	tickLower *amm.Tick, tickLowerIndex int32,
	tickUpper *amm.Tick, tickUpperIndex int32,
	feeGrowthGlobalQuote fixedpoint.Growth,
	feeGrowthGlobalSynthetic fixedpoint.Growth,
	rewardInfos *[amm.NumRewards]amm.RewardInfo,
) GrowthsInside {
	lowerInit, upperInit := tickLower.Initialized(), tickUpper.Initialized()

	inside := GrowthsInside{
		FeeQuote: growthInside(feeGrowthGlobalQuote,
			tickLower.FeeGrowthOutsideQuote, lowerInit, tickLowerIndex,
			tickUpper.FeeGrowthOutsideQuote, upperInit, tickUpperIndex,
			tickCurrentIndex),
		FeeSynthetic: growthInside(feeGrowthGlobalSynthetic,
			tickLower.FeeGrowthOutsideSynthetic, lowerInit, tickLowerIndex,
			tickUpper.FeeGrowthOutsideSynthetic, upperInit, tickUpperIndex,
			tickCurrentIndex),
	}
	for i := range rewardInfos {
		if !rewardInfos[i].Initialized() {
			continue
		}
		inside.Rewards[i] = growthInside(rewardInfos[i].GrowthGlobalX64,
			tickLower.RewardGrowthsOutside[i], lowerInit, tickLowerIndex,
			tickUpper.RewardGrowthsOutside[i], upperInit, tickUpperIndex,
			tickCurrentIndex)
	}
	return inside
}

// accrue adds liquidity × (inside − checkpoint) >> 64 to owed. When the
// product or the sum does not fit in 64 bits the accrual is dropped and ok
// is false; the caller still advances the checkpoint.
func accrue(owed uint64, liquidity *uint256.Int, inside, checkpoint fixedpoint.Growth) (uint64, bool) {
	delta, ok := fixedpoint.MulShiftRight64(liquidity, inside.Since(checkpoint))
	if !ok {
		return owed, false
	}
	sum, carry := bits.Add64(owed, delta, 0)
	if carry != 0 {
		return owed, false
	}
	return sum, true
}

// NextPositionModifyLiquidityUpdate settles fees and rewards accrued by the
// position's current liquidity up to inside, then applies liquidityDelta.
func NextPositionModifyLiquidityUpdate(position *amm.Position, liquidityDelta fixedpoint.Int128, inside GrowthsInside) (PositionSettlement, error) {
	var s PositionSettlement

	liquidity, err := liquiditymath.AddDelta(&position.Liquidity, liquidityDelta)
	if err != nil {
		return s, fmt.Errorf("position liquidity: %w", err)
	}

	var ok bool
	if s.Update.FeeOwedQuote, ok = accrue(position.FeeOwedQuote, &position.Liquidity, inside.FeeQuote, position.FeeGrowthCheckpointQuote); !ok {
		s.Forfeited = append(s.Forfeited, "fee_quote")
	}
	if s.Update.FeeOwedSynthetic, ok = accrue(position.FeeOwedSynthetic, &position.Liquidity, inside.FeeSynthetic, position.FeeGrowthCheckpointSynthetic); !ok {
		s.Forfeited = append(s.Forfeited, "fee_synthetic")
	}
	for i := range position.RewardInfos {
		prev := position.RewardInfos[i]
		owed, ok := accrue(prev.AmountOwed, &position.Liquidity, inside.Rewards[i], prev.GrowthInsideCheckpoint)
		if !ok {
			s.Forfeited = append(s.Forfeited, fmt.Sprintf("reward_%d", i))
		}
		s.Update.RewardInfos[i] = amm.PositionRewardInfo{
			GrowthInsideCheckpoint: inside.Rewards[i],
			AmountOwed:             owed,
		}
	}

	s.Update.Liquidity = *liquidity
	s.Update.FeeGrowthCheckpointQuote = inside.FeeQuote
	s.Update.FeeGrowthCheckpointSynthetic = inside.FeeSynthetic
	return s, nil
}

// CalculateModifyLiquidity computes the pool, tick and position writes of
// adding liquidityDelta (negative to remove) to position at timestamp.
// tickLower and tickUpper are the position's bounding ticks before the change.
func CalculateModifyLiquidity(
	pool *amm.Pool,
	position *amm.Position,
	tickLower *amm.Tick,
	tickUpper *amm.Tick,
	liquidityDelta fixedpoint.Int128,
	timestamp uint64,
) (ModifyLiquidityUpdate, error) {
	var update ModifyLiquidityUpdate
	if liquidityDelta.IsZero() && position.Liquidity.IsZero() {
		return update, amm.ErrLiquidityZero
	}

	rewardInfos, err := NextRewardInfos(pool, timestamp)
	if err != nil {
		return update, err
	}

	update.PoolLiquidity = pool.Liquidity
	if pool.InRange(position.TickLowerIndex, position.TickUpperIndex) {
		next, err := liquiditymath.AddDelta(&pool.Liquidity, liquidityDelta)
		if err != nil {
			return update, fmt.Errorf("pool liquidity: %w", err)
		}
		update.PoolLiquidity = *next
	}

	update.TickLowerUpdate, err = NextTickModifyLiquidityUpdate(
		tickLower, position.TickLowerIndex, pool.TickCurrentIndex,
		pool.FeeGrowthGlobalQuote, pool.FeeGrowthGlobalSynthetic,
		&rewardInfos, liquidityDelta, false,
	)
	if err != nil {
		return update, err
	}
	update.TickUpperUpdate, err = NextTickModifyLiquidityUpdate(
		tickUpper, position.TickUpperIndex, pool.TickCurrentIndex,
		pool.FeeGrowthGlobalQuote, pool.FeeGrowthGlobalSynthetic,
		&rewardInfos, liquidityDelta, true,
	)
	if err != nil {
		return update, err
	}

	inside := NextGrowthsInside(
		pool.TickCurrentIndex,
		tickLower, position.TickLowerIndex,
		tickUpper, position.TickUpperIndex,
		pool.FeeGrowthGlobalQuote, pool.FeeGrowthGlobalSynthetic,
		&rewardInfos,
	)
	update.Position, err = NextPositionModifyLiquidityUpdate(position, liquidityDelta, inside)
	if err != nil {
		return update, err
	}

	update.RewardInfos = rewardInfos
	update.RewardLastUpdatedTimestamp = timestamp
	return update, nil
}

// CalculateFeesAndRewards previews what position would be owed if it were
// settled at timestamp. It has no side effects.
func CalculateFeesAndRewards(pool *amm.Pool, position *amm.Position, tickLower, tickUpper *amm.Tick, timestamp uint64) (PositionSettlement, error) {
	rewardInfos, err := NextRewardInfos(pool, timestamp)
	if err != nil {
		return PositionSettlement{}, err
	}
	inside := NextGrowthsInside(
		pool.TickCurrentIndex,
		tickLower, position.TickLowerIndex,
		tickUpper, position.TickUpperIndex,
		pool.FeeGrowthGlobalQuote, pool.FeeGrowthGlobalSynthetic,
		&rewardInfos,
	)
	return NextPositionModifyLiquidityUpdate(position, fixedpoint.Int128{}, inside)
}

// CalculateLiquidityTokenDeltas returns the quote and synthetic amounts that
// move when liquidityDelta is applied to [tickLowerIndex, tickUpperIndex) at
// the pool's price. Deposits round up and withdrawals round down.
func CalculateLiquidityTokenDeltas(pool *amm.Pool, tickLowerIndex, tickUpperIndex int32, liquidityDelta fixedpoint.Int128) (quote, synthetic uint64, err error) {
	if liquidityDelta.IsZero() {
		return 0, 0, nil
	}

	var lower, upper uint256.Int
	if err := tickmath.GetSqrtPriceAtTick(&lower, tickLowerIndex); err != nil {
		return 0, 0, err
	}
	if err := tickmath.GetSqrtPriceAtTick(&upper, tickUpperIndex); err != nil {
		return 0, 0, err
	}

	rounding := liquiditymath.RoundDown
	if liquidityDelta.Sign() > 0 {
		rounding = liquiditymath.RoundUp
	}
	quote, synthetic, err = liquiditymath.GetTokenAmounts(&pool.SqrtPrice, &lower, &upper, liquidityDelta.Abs(), rounding)
	if errors.Is(err, liquiditymath.ErrTokenMaxExceeded) {
		return 0, 0, fmt.Errorf("%w: liquidity delta %s", amm.ErrTokenMaxExceeded, liquidityDelta)
	}
	return quote, synthetic, err
}

// LiquidityForTokenAmounts returns the largest liquidity over
// [tickLowerIndex, tickUpperIndex) that the given budgets can fund at the
// pool's price.
func LiquidityForTokenAmounts(pool *amm.Pool, tickLowerIndex, tickUpperIndex int32, quote, synthetic uint64) (*uint256.Int, error) {
	var lower, upper uint256.Int
	if err := tickmath.GetSqrtPriceAtTick(&lower, tickLowerIndex); err != nil {
		return nil, err
	}
	if err := tickmath.GetSqrtPriceAtTick(&upper, tickUpperIndex); err != nil {
		return nil, err
	}
	return liquiditymath.GetLiquidityForAmounts(&pool.SqrtPrice, &lower, &upper, quote, synthetic)
}
