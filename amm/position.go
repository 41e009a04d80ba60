package amm

import (
	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionRewardInfo tracks one reward slot for a position.
type PositionRewardInfo struct {
	GrowthInsideCheckpoint fixedpoint.Growth `json:"growthInsideCheckpoint"`
	AmountOwed             uint64            `json:"amountOwed"`
}

// Position is liquidity supplied over [TickLowerIndex, TickUpperIndex).
type Position struct {
	ID             common.Hash `json:"id"`
	PoolID         common.Hash `json:"poolId"`
	Owner          Account     `json:"owner"`
	TickLowerIndex int32       `json:"tickLowerIndex"`
	TickUpperIndex int32       `json:"tickUpperIndex"`

	Liquidity                    uint256.Int       `json:"liquidity"`
	FeeGrowthCheckpointQuote     fixedpoint.Growth `json:"feeGrowthCheckpointQuote"`
	FeeGrowthCheckpointSynthetic fixedpoint.Growth `json:"feeGrowthCheckpointSynthetic"`
	FeeOwedQuote                 uint64            `json:"feeOwedQuote"`
	FeeOwedSynthetic             uint64            `json:"feeOwedSynthetic"`

	RewardInfos [NumRewards]PositionRewardInfo `json:"rewardInfos"`
}

// PositionUpdate carries the settled liquidity, checkpoints and owed
// amounts for a position.
type PositionUpdate struct {
	Liquidity                    uint256.Int
	FeeGrowthCheckpointQuote     fixedpoint.Growth
	FeeGrowthCheckpointSynthetic fixedpoint.Growth
	FeeOwedQuote                 uint64
	FeeOwedSynthetic             uint64
	RewardInfos                  [NumRewards]PositionRewardInfo
}

// Apply writes update to the position.
func (p *Position) Apply(update PositionUpdate) {
	p.Liquidity = update.Liquidity
	p.FeeGrowthCheckpointQuote = update.FeeGrowthCheckpointQuote
	p.FeeGrowthCheckpointSynthetic = update.FeeGrowthCheckpointSynthetic
	p.FeeOwedQuote = update.FeeOwedQuote
	p.FeeOwedSynthetic = update.FeeOwedSynthetic
	p.RewardInfos = update.RewardInfos
}

// IsEmpty reports whether the position holds nothing and may be closed.
func (p *Position) IsEmpty() bool {
	if !p.Liquidity.IsZero() || p.FeeOwedQuote != 0 || p.FeeOwedSynthetic != 0 {
		return false
	}
	for i := range p.RewardInfos {
		if p.RewardInfos[i].AmountOwed != 0 {
			return false
		}
	}
	return true
}
