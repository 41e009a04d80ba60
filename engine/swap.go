package engine

import (
	"fmt"

	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/liquiditymath"
	"github.com/defistate/synthamm/calculator/swapmath"
	"github.com/defistate/synthamm/calculator/tickmath"
	"github.com/holiman/uint256"
)

var protocolFeeRateDenominator = uint256.NewInt(amm.ProtocolFeeRateDenominator)

// SwapParams describes one swap against a pool.
type SwapParams struct {
	// Amount is the exact input when AmountSpecifiedIsInput, otherwise the
	// exact output wanted.
	Amount uint64 `json:"amount"`
	// OtherAmountThreshold is the minimum output for exact-input swaps and
	// the maximum input for exact-output swaps.
	OtherAmountThreshold   uint64        `json:"otherAmountThreshold"`
	SqrtPriceLimit         *uint256.Int  `json:"sqrtPriceLimit,omitempty"`
	AmountSpecifiedIsInput bool          `json:"amountSpecifiedIsInput"`
	Direction              amm.Direction `json:"direction"`
}

// SwapUpdate is the complete outcome of a swap, computed without touching
// pool state.
type SwapUpdate struct {
	AmountQuote     uint64
	AmountSynthetic uint64

	NextLiquidity                uint256.Int
	NextTickIndex                int32
	NextSqrtPrice                uint256.Int
	NextFeeGrowthGlobalQuote     fixedpoint.Growth
	NextFeeGrowthGlobalSynthetic fixedpoint.Growth
	NextProtocolFeeOwedQuote     uint64
	NextProtocolFeeOwedSynthetic uint64
	NextRewardInfos              [amm.NumRewards]amm.RewardInfo
	RewardLastUpdatedTimestamp   uint64

	TickUpdates  map[int32]amm.TickUpdate
	TicksCrossed int
}

// AmountIn returns the amount the trader pays.
func (u *SwapUpdate) AmountIn(direction amm.Direction) uint64 {
	if direction.AToB() {
		return u.AmountQuote
	}
	return u.AmountSynthetic
}

// AmountOut returns the amount the trader receives.
func (u *SwapUpdate) AmountOut(direction amm.Direction) uint64 {
	if direction.AToB() {
		return u.AmountSynthetic
	}
	return u.AmountQuote
}

// applyToPool writes the pool-level fields of the swap.
func (u *SwapUpdate) applyToPool(pool *amm.Pool) {
	pool.Liquidity = u.NextLiquidity
	pool.TickCurrentIndex = u.NextTickIndex
	pool.SqrtPrice = u.NextSqrtPrice
	pool.FeeGrowthGlobalQuote = u.NextFeeGrowthGlobalQuote
	pool.FeeGrowthGlobalSynthetic = u.NextFeeGrowthGlobalSynthetic
	pool.ProtocolFeeOwedQuote = u.NextProtocolFeeOwedQuote
	pool.ProtocolFeeOwedSynthetic = u.NextProtocolFeeOwedSynthetic
	pool.RewardInfos = u.NextRewardInfos
	pool.RewardLastUpdatedTimestamp = u.RewardLastUpdatedTimestamp
}

// CheckSwapThreshold rejects a computed swap whose other amount violates the
// caller's bound.
func CheckSwapThreshold(params SwapParams, update *SwapUpdate) error {
	if params.AmountSpecifiedIsInput {
		if out := update.AmountOut(params.Direction); out < params.OtherAmountThreshold {
			return fmt.Errorf("%w: %d < %d", amm.ErrAmountOutBelowMinimum, out, params.OtherAmountThreshold)
		}
		return nil
	}
	if in := update.AmountIn(params.Direction); in > params.OtherAmountThreshold {
		return fmt.Errorf("%w: %d > %d", amm.ErrAmountInAboveMaximum, in, params.OtherAmountThreshold)
	}
	return nil
}

// swapState holds the running values of a swap as it walks the ticks.
type swapState struct {
	amountRemaining  uint256.Int
	amountCalculated uint256.Int
	sqrtPrice        uint256.Int
	tick             int32
	liquidity        uint256.Int

	feeGrowthGlobalQuote     fixedpoint.Growth
	feeGrowthGlobalSynthetic fixedpoint.Growth
	protocolFee              uint256.Int
	ticksCrossed             int
}

// sqrtPriceLimit resolves the caller's limit. No limit means the price may
// move to the end of the tick domain.
func sqrtPriceLimit(pool *amm.Pool, limit *uint256.Int, aToB bool) (uint256.Int, error) {
	var l uint256.Int
	if limit == nil || limit.IsZero() {
		if aToB {
			l.Set(tickmath.MIN_SQRT_PRICE)
		} else {
			l.Set(tickmath.MAX_SQRT_PRICE)
		}
		return l, nil
	}
	if err := tickmath.CheckSqrtPrice(limit); err != nil {
		return l, fmt.Errorf("sqrt price limit %s: %w", limit.Dec(), err)
	}
	if (aToB && limit.Gt(&pool.SqrtPrice)) || (!aToB && limit.Lt(&pool.SqrtPrice)) {
		return l, fmt.Errorf("%w: limit %s, price %s", amm.ErrInvalidSqrtPriceLimitDirection, limit.Dec(), pool.SqrtPrice.Dec())
	}
	l.Set(limit)
	return l, nil
}

// beyond reports whether price lies past limit in the swap direction.
func beyond(price, limit *uint256.Int, aToB bool) bool {
	if aToB {
		return price.Lt(limit)
	}
	return price.Gt(limit)
}

// CalculateSwap walks the pool's initialized ticks from the current price
// toward the limit, filling params.Amount at constant liquidity between
// ticks. Each step charges the fee on its input, earmarks the protocol share
// and spreads the rest over the step's liquidity. Crossing a tick flips its
// outside growths and applies its liquidity net. ticks buffers every tick
// write; nothing is written to pool.
func CalculateSwap(pool *amm.Pool, ticks *TickSequence, params SwapParams, timestamp uint64) (SwapUpdate, error) {
	var update SwapUpdate
	if params.Amount == 0 {
		return update, amm.ErrZeroTradableAmount
	}
	aToB := params.Direction.AToB()
	exactIn := params.AmountSpecifiedIsInput

	limit, err := sqrtPriceLimit(pool, params.SqrtPriceLimit, aToB)
	if err != nil {
		return update, err
	}

	rewardInfos, err := NextRewardInfos(pool, timestamp)
	if err != nil {
		return update, err
	}

	var state swapState
	state.amountRemaining.SetUint64(params.Amount)
	state.sqrtPrice = pool.SqrtPrice
	state.tick = pool.TickCurrentIndex
	state.liquidity = pool.Liquidity
	state.feeGrowthGlobalQuote = pool.FeeGrowthGlobalQuote
	state.feeGrowthGlobalSynthetic = pool.FeeGrowthGlobalSynthetic

	if state.liquidity.IsZero() {
		next, found := ticks.NextInitializedTick(state.tick, aToB)
		if !found {
			return update, amm.ErrLiquidityZero
		}
		var nextPrice uint256.Int
		if err := tickmath.GetSqrtPriceAtTick(&nextPrice, next); err != nil {
			return update, err
		}
		if beyond(&nextPrice, &limit, aToB) {
			return update, amm.ErrLiquidityZero
		}
	}

	var (
		sqrtPriceStart uint256.Int
		nextTickPrice  uint256.Int
		target         uint256.Int
		spent          uint256.Int
		growthDelta    uint256.Int
	)
	for !state.amountRemaining.IsZero() && !state.sqrtPrice.Eq(&limit) {
		sqrtPriceStart = state.sqrtPrice

		nextTick, initialized := ticks.NextInitializedTick(state.tick, aToB)
		if !initialized {
			nextTick = amm.MaxTick
			if aToB {
				nextTick = amm.MinTick
			}
		}
		if err := tickmath.GetSqrtPriceAtTick(&nextTickPrice, nextTick); err != nil {
			return update, err
		}
		target = nextTickPrice
		if beyond(&nextTickPrice, &limit, aToB) {
			target = limit
		}

		step, err := swapmath.ComputeSwapStep(&state.sqrtPrice, &target, &state.liquidity, &state.amountRemaining, uint32(pool.FeeRate), exactIn)
		if err != nil {
			return update, fmt.Errorf("swap step at tick %d: %w", state.tick, err)
		}

		if exactIn {
			spent.Add(&step.AmountIn, &step.FeeAmount)
			if spent.Gt(&state.amountRemaining) {
				return update, fmt.Errorf("swap step spends %s of %s: %w", spent.Dec(), state.amountRemaining.Dec(), amm.ErrOverflow)
			}
			state.amountRemaining.Sub(&state.amountRemaining, &spent)
			state.amountCalculated.Add(&state.amountCalculated, &step.AmountOut)
		} else {
			state.amountRemaining.Sub(&state.amountRemaining, &step.AmountOut)
			state.amountCalculated.Add(&state.amountCalculated, &step.AmountIn)
			state.amountCalculated.Add(&state.amountCalculated, &step.FeeAmount)
		}

		lpFee := step.FeeAmount
		if pool.ProtocolFeeRate > 0 {
			protocolFee := new(uint256.Int).Mul(&step.FeeAmount, uint256.NewInt(uint64(pool.ProtocolFeeRate)))
			protocolFee.Div(protocolFee, protocolFeeRateDenominator)
			lpFee.Sub(&lpFee, protocolFee)
			state.protocolFee.Add(&state.protocolFee, protocolFee)
		}
		// A step with no liquidity in range moves the price for free.
		if !state.liquidity.IsZero() {
			growthDelta.Lsh(&lpFee, fixedpoint.Resolution)
			growthDelta.Div(&growthDelta, &state.liquidity)
			if aToB {
				state.feeGrowthGlobalQuote = state.feeGrowthGlobalQuote.Add(&growthDelta)
			} else {
				state.feeGrowthGlobalSynthetic = state.feeGrowthGlobalSynthetic.Add(&growthDelta)
			}
		}

		state.sqrtPrice = step.SqrtPriceNext
		switch {
		case initialized && state.sqrtPrice.Eq(&nextTickPrice):
			if err := crossTick(&state, ticks, nextTick, &rewardInfos, aToB); err != nil {
				return update, err
			}
			if aToB {
				state.tick = nextTick - 1
			} else {
				state.tick = nextTick
			}
		case !state.sqrtPrice.Eq(&sqrtPriceStart):
			if state.tick, err = tickmath.GetTickAtSqrtPrice(&state.sqrtPrice); err != nil {
				return update, err
			}
		}
	}

	calculated, err := fixedpoint.ToUint64(&state.amountCalculated)
	if err != nil {
		return update, fmt.Errorf("%w: swap amount %s", amm.ErrTokenMaxExceeded, state.amountCalculated.Dec())
	}
	specified := params.Amount - state.amountRemaining.Uint64()
	if aToB == exactIn {
		update.AmountQuote, update.AmountSynthetic = specified, calculated
	} else {
		update.AmountQuote, update.AmountSynthetic = calculated, specified
	}

	update.NextProtocolFeeOwedQuote = pool.ProtocolFeeOwedQuote
	update.NextProtocolFeeOwedSynthetic = pool.ProtocolFeeOwedSynthetic
	owed := &update.NextProtocolFeeOwedSynthetic
	if aToB {
		owed = &update.NextProtocolFeeOwedQuote
	}
	total := new(uint256.Int).AddUint64(&state.protocolFee, *owed)
	if *owed, err = fixedpoint.ToUint64(total); err != nil {
		return update, fmt.Errorf("protocol fee owed: %w", err)
	}

	update.NextLiquidity = state.liquidity
	update.NextTickIndex = state.tick
	update.NextSqrtPrice = state.sqrtPrice
	update.NextFeeGrowthGlobalQuote = state.feeGrowthGlobalQuote
	update.NextFeeGrowthGlobalSynthetic = state.feeGrowthGlobalSynthetic
	update.NextRewardInfos = rewardInfos
	update.RewardLastUpdatedTimestamp = timestamp
	update.TickUpdates = ticks.Updates()
	update.TicksCrossed = state.ticksCrossed
	return update, nil
}

// crossTick flips the outside growths of tickIndex against the running
// globals and applies its liquidity net in the swap direction.
func crossTick(state *swapState, ticks *TickSequence, tickIndex int32, rewardInfos *[amm.NumRewards]amm.RewardInfo, aToB bool) error {
	tick, err := ticks.Tick(tickIndex)
	if err != nil {
		return err
	}

	crossed := tick.ToUpdate()
	crossed.FeeGrowthOutsideQuote = state.feeGrowthGlobalQuote.Sub(tick.FeeGrowthOutsideQuote)
	crossed.FeeGrowthOutsideSynthetic = state.feeGrowthGlobalSynthetic.Sub(tick.FeeGrowthOutsideSynthetic)
	for i := range rewardInfos {
		if rewardInfos[i].Initialized() {
			crossed.RewardGrowthsOutside[i] = rewardInfos[i].GrowthGlobalX64.Sub(tick.RewardGrowthsOutside[i])
		}
	}
	ticks.Update(tickIndex, crossed)

	net := tick.LiquidityNet
	if aToB {
		net = net.Neg()
	}
	liquidity, err := liquiditymath.AddDelta(&state.liquidity, net)
	if err != nil {
		return fmt.Errorf("crossing tick %d: %w", tickIndex, err)
	}
	state.liquidity = *liquidity
	state.ticksCrossed++
	return nil
}
