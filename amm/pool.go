package amm

import (
	"fmt"

	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/defistate/synthamm/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Direction names the side of the pool a swap sells into.
type Direction int

const (
	// QuoteToSynthetic sells quote (token A) and lowers the price.
	QuoteToSynthetic Direction = iota
	// SyntheticToQuote sells synthetic (token B) and raises the price.
	SyntheticToQuote
)

// AToB reports whether the swap sells token A.
func (d Direction) AToB() bool { return d == QuoteToSynthetic }

func (d Direction) String() string {
	if d == QuoteToSynthetic {
		return "quote_to_synthetic"
	}
	return "synthetic_to_quote"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "quote_to_synthetic":
		*d = QuoteToSynthetic
	case "synthetic_to_quote":
		*d = SyntheticToQuote
	default:
		return fmt.Errorf("unknown swap direction %q", b)
	}
	return nil
}

// RewardInfo is one reward emission slot of a pool.
type RewardInfo struct {
	Mint  Mint    `json:"mint,omitempty"`
	Vault Account `json:"vault,omitempty"`
	// EmissionsPerSecondX64 is the Q64.64 token amount emitted per second.
	EmissionsPerSecondX64 uint256.Int `json:"emissionsPerSecondX64"`
	// GrowthGlobalX64 is rewards emitted per unit of in-range liquidity.
	GrowthGlobalX64 fixedpoint.Growth `json:"growthGlobalX64"`
}

// Initialized reports whether the slot has a reward token.
func (r *RewardInfo) Initialized() bool {
	return r.Mint != ""
}

// Pool is the state of one synthetic/quote concentrated-liquidity pool.
// Quote is token A and synthetic is token B, so sqrt price is
// sqrt(synthetic per quote) in Q64.64.
type Pool struct {
	ID             common.Hash `json:"id"`
	SyntheticMint  Mint        `json:"syntheticMint"`
	QuoteMint      Mint        `json:"quoteMint"`
	SyntheticVault Account     `json:"syntheticVault"`
	QuoteVault     Account     `json:"quoteVault"`

	TickSpacing     uint16 `json:"tickSpacing"`
	FeeRate         uint16 `json:"feeRate"`
	ProtocolFeeRate uint16 `json:"protocolFeeRate"`

	Liquidity        uint256.Int `json:"liquidity"`
	SqrtPrice        uint256.Int `json:"sqrtPrice"`
	TickCurrentIndex int32       `json:"tickCurrentIndex"`

	ProtocolFeeOwedQuote     uint64            `json:"protocolFeeOwedQuote"`
	ProtocolFeeOwedSynthetic uint64            `json:"protocolFeeOwedSynthetic"`
	FeeGrowthGlobalQuote     fixedpoint.Growth `json:"feeGrowthGlobalQuote"`
	FeeGrowthGlobalSynthetic fixedpoint.Growth `json:"feeGrowthGlobalSynthetic"`

	RewardLastUpdatedTimestamp uint64                 `json:"rewardLastUpdatedTimestamp"`
	RewardInfos                [NumRewards]RewardInfo `json:"rewardInfos"`
}

// InitializePoolParams configures a new pool.
type InitializePoolParams struct {
	SyntheticMint   Mint
	QuoteMint       Mint
	TickSpacing     uint16
	FeeRate         uint16
	ProtocolFeeRate uint16
	SqrtPrice       *uint256.Int
	Timestamp       uint64
}

// NewPool validates params and returns an active pool with no liquidity.
func NewPool(params InitializePoolParams) (Pool, error) {
	if params.TickSpacing == 0 {
		return Pool{}, ErrInvalidTickSpacing
	}
	if params.FeeRate > MaxFeeRate {
		return Pool{}, fmt.Errorf("%w: %d > %d", ErrFeeRateMaxExceeded, params.FeeRate, MaxFeeRate)
	}
	if params.ProtocolFeeRate > MaxProtocolFeeRate {
		return Pool{}, fmt.Errorf("%w: %d > %d", ErrProtocolFeeRateMaxExceeded, params.ProtocolFeeRate, MaxProtocolFeeRate)
	}
	if params.SyntheticMint == "" || params.QuoteMint == "" || params.SyntheticMint == params.QuoteMint {
		return Pool{}, fmt.Errorf("pool needs two distinct mints, got %q and %q", params.SyntheticMint, params.QuoteMint)
	}
	if params.SqrtPrice == nil {
		return Pool{}, ErrSqrtPriceOutOfBounds
	}
	tick, err := tickmath.GetTickAtSqrtPrice(params.SqrtPrice)
	if err != nil {
		return Pool{}, err
	}

	id := PoolID(params.SyntheticMint, params.QuoteMint, params.TickSpacing)
	p := Pool{
		ID:                         id,
		SyntheticMint:              params.SyntheticMint,
		QuoteMint:                  params.QuoteMint,
		SyntheticVault:             VaultAccount(id, params.SyntheticMint),
		QuoteVault:                 VaultAccount(id, params.QuoteMint),
		TickSpacing:                params.TickSpacing,
		FeeRate:                    params.FeeRate,
		ProtocolFeeRate:            params.ProtocolFeeRate,
		TickCurrentIndex:           tick,
		RewardLastUpdatedTimestamp: params.Timestamp,
	}
	p.SqrtPrice.Set(params.SqrtPrice)
	return p, nil
}

// IsActive reports whether the pool has been initialized with a price.
func (p *Pool) IsActive() bool {
	return !p.SqrtPrice.IsZero()
}

// FullRangeTicks returns the widest usable tick range for the pool's spacing.
func (p *Pool) FullRangeTicks() (int32, int32) {
	return FullRangeTicks(p.TickSpacing)
}

// FullRangeTicks returns the widest usable tick range for tickSpacing.
func FullRangeTicks(tickSpacing uint16) (int32, int32) {
	spacing := int32(tickSpacing)
	upper := MaxTick / spacing * spacing
	return -upper, upper
}

// InRange reports whether [tickLower, tickUpper) contains the current tick.
func (p *Pool) InRange(tickLower, tickUpper int32) bool {
	return tickLower <= p.TickCurrentIndex && p.TickCurrentIndex < tickUpper
}

// RewardIndexValid reports whether index addresses a reward slot.
func RewardIndexValid(index int) bool {
	return index >= 0 && index < NumRewards
}
