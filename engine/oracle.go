package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/tickmath"
	"github.com/holiman/uint256"
)

var (
	ErrStaleOracle        = errors.New("oracle price is stale or too uncertain")
	ErrInvalidOraclePrice = errors.New("oracle price must be positive")
	ErrNoOracle           = errors.New("no oracle configured")
)

const oraclePrecision = 256

// OracleGuard bounds which oracle readings may seed a pool price. Zero
// fields disable the corresponding check.
type OracleGuard struct {
	MaxSlotDelay     uint64
	MaxConfidenceBps uint64
}

// Check rejects stale or low-confidence readings.
func (g OracleGuard) Check(p OraclePrice) error {
	if p.Price <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOraclePrice, p.Price)
	}
	if g.MaxSlotDelay > 0 && p.SlotDelay > g.MaxSlotDelay {
		return fmt.Errorf("%w: slot delay %d > %d", ErrStaleOracle, p.SlotDelay, g.MaxSlotDelay)
	}
	if g.MaxConfidenceBps > 0 {
		// confidence / price > bps / 10000
		lhs := new(uint256.Int).Mul(uint256.NewInt(p.Confidence), uint256.NewInt(amm.ProtocolFeeRateDenominator))
		rhs := new(uint256.Int).Mul(uint256.NewInt(uint64(p.Price)), uint256.NewInt(g.MaxConfidenceBps))
		if lhs.Gt(rhs) {
			return fmt.Errorf("%w: confidence %d on price %d exceeds %d bps", ErrStaleOracle, p.Confidence, p.Price, g.MaxConfidenceBps)
		}
	}
	return nil
}

// SqrtPriceFromOracle converts a quote-per-synthetic oracle price into the
// pool's Q64.64 sqrt price of synthetic per quote.
func SqrtPriceFromOracle(p OraclePrice, guard OracleGuard) (*uint256.Int, error) {
	if err := guard.Check(p); err != nil {
		return nil, err
	}

	num := new(big.Int).SetInt64(1)
	den := new(big.Int).SetInt64(p.Price)
	if p.Expo < 0 {
		num.Exp(big.NewInt(10), big.NewInt(int64(-p.Expo)), nil)
	} else {
		den.Mul(den, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p.Expo)), nil))
	}

	ratio := new(big.Float).SetPrec(oraclePrecision).SetInt(num)
	ratio.Quo(ratio, new(big.Float).SetPrec(oraclePrecision).SetInt(den))
	ratio.Sqrt(ratio)
	ratio.SetMantExp(ratio, 64)

	i, _ := ratio.Int(nil)
	sqrtPrice, overflow := uint256.FromBig(i)
	if overflow {
		return nil, tickmath.ErrSqrtPriceOutOfBounds
	}
	if err := tickmath.CheckSqrtPrice(sqrtPrice); err != nil {
		return nil, fmt.Errorf("oracle price %d×10^%d: %w", p.Price, p.Expo, err)
	}
	return sqrtPrice, nil
}
