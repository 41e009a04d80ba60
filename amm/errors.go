package amm

import (
	"errors"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/liquiditymath"
	"github.com/defistate/synthamm/calculator/sqrtpricemath"
	"github.com/defistate/synthamm/calculator/swapmath"
	"github.com/defistate/synthamm/calculator/tickmath"
)

// Calculator errors surfaced by pool operations.
var (
	ErrOverflow             = fixedpoint.ErrOverflow
	ErrDivideByZero         = fixedpoint.ErrDivideByZero
	ErrTickOutOfBounds      = tickmath.ErrTickOutOfBounds
	ErrSqrtPriceOutOfBounds = tickmath.ErrSqrtPriceOutOfBounds
	ErrLiquidityOverflow    = liquiditymath.ErrLiquidityOverflow
	ErrLiquidityUnderflow   = liquiditymath.ErrLiquidityUnderflow
	ErrTokenMaxExceeded     = liquiditymath.ErrTokenMaxExceeded
	ErrPriceOutOfRange      = sqrtpricemath.ErrPriceOutOfRange
	ErrFeeRateTooLarge      = swapmath.ErrFeeRateTooLarge
)

var (
	// input validation
	ErrInvalidTickIndex               = errors.New("invalid tick index")
	ErrInvalidTickSpacing             = errors.New("invalid tick spacing")
	ErrInvalidStartTick               = errors.New("invalid tick array start index")
	ErrInvalidTickRange               = errors.New("invalid tick range")
	ErrFullRangeOnlyPool              = errors.New("pool only accepts full-range positions")
	ErrInvalidSqrtPriceLimitDirection = errors.New("sqrt price limit is on the wrong side of the current price")
	ErrZeroTradableAmount             = errors.New("swap amount must be greater than zero")
	ErrFeeRateMaxExceeded             = errors.New("fee rate exceeds maximum")
	ErrProtocolFeeRateMaxExceeded     = errors.New("protocol fee rate exceeds maximum")
	ErrInvalidRewardIndex             = errors.New("invalid reward index")
	ErrInvalidTimestamp               = errors.New("timestamp is earlier than the last reward update")

	// liquidity
	ErrLiquidityZero        = errors.New("liquidity is zero")
	ErrLiquidityNetOverflow = errors.New("tick liquidity net overflow")

	// slippage
	ErrTokenMinSubceeded     = errors.New("token amount below minimum")
	ErrAmountOutBelowMinimum = errors.New("amount out below minimum")
	ErrAmountInAboveMaximum  = errors.New("amount in above maximum")

	// rewards
	ErrRewardVaultAmountInsufficient = errors.New("reward vault cannot cover one day of emissions")

	// state
	ErrPoolNotInitialized    = errors.New("pool not initialized")
	ErrPoolExists            = errors.New("pool already exists")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPositionNotFound      = errors.New("position not found")
	ErrPositionNotEmpty      = errors.New("position still holds liquidity, fees or rewards")
	ErrTickArrayNotFound     = errors.New("tick array not found")
	ErrTickArrayExists       = errors.New("tick array already exists")
	ErrTickArrayPoolMismatch = errors.New("tick array belongs to another pool")
)
