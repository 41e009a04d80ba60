package amm

import (
	"github.com/defistate/synthamm/calculator/swapmath"
	"github.com/defistate/synthamm/calculator/tickmath"
)

const (
	// TickArraySize is the number of tick slots held by one TickArray.
	TickArraySize = 88
	// NumRewards is the number of reward slots per pool and per position.
	NumRewards = 3

	MinTick = tickmath.MIN_TICK
	MaxTick = tickmath.MAX_TICK

	// FeeRateDenominator expresses FeeRate in hundredths of a basis point.
	FeeRateDenominator = swapmath.FeeRateDenominator
	MaxFeeRate         = 30_000

	// ProtocolFeeRateDenominator expresses ProtocolFeeRate in basis points of the fee.
	ProtocolFeeRateDenominator = 10_000
	MaxProtocolFeeRate         = 2_500

	// FullRangeOnlyTickSpacing is the smallest tick spacing whose pools only
	// accept full-range positions.
	FullRangeOnlyTickSpacing = 32768

	// SecondsPerDay scales emissions when checking reward vault coverage.
	SecondsPerDay = 86_400
)
