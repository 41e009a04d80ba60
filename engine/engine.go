package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultQuoteWorkers = 4

	opInitializePool       = "initialize_pool"
	opInitializeTickArray  = "initialize_tick_array"
	opOpenPosition         = "open_position"
	opClosePosition        = "close_position"
	opIncreaseLiquidity    = "increase_liquidity"
	opDecreaseLiquidity    = "decrease_liquidity"
	opUpdateFeesAndRewards = "update_fees_and_rewards"
	opCollectFees          = "collect_fees"
	opCollectReward        = "collect_reward"
	opCollectProtocolFees  = "collect_protocol_fees"
	opInitializeReward     = "initialize_reward"
	opSetRewardEmissions   = "set_reward_emissions"
	opSwap                 = "swap"
	opQuoteSwap            = "quote_swap"
	opRestore              = "restore"
)

// Config holds the engine's collaborators.
type Config struct {
	Ledger Ledger
	Clock  Clock
	// Oracle seeds pools created without an explicit price. Optional.
	Oracle      Oracle
	OracleGuard OracleGuard
	// QuoteWorkers bounds concurrent quotes in QuoteBatch.
	QuoteWorkers int
	Registry     prometheus.Registerer
	Logger       Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *Config) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Clock == nil {
		return errors.New("config: Clock is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.QuoteWorkers < 0 {
		return errors.New("config: QuoteWorkers cannot be negative")
	}
	return nil
}

// Engine runs pool operations. Each operation on a pool runs to completion
// under that pool's lock and either commits every write or none.
type Engine struct {
	ledger  Ledger
	clock   Clock
	oracle  Oracle
	guard   OracleGuard
	pools   *Registry
	quoters pond.Pool
	metrics *Metrics
	logger  Logger
}

// New constructs an engine from a configuration, returning an error if the config is invalid.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	workers := cfg.QuoteWorkers
	if workers == 0 {
		workers = defaultQuoteWorkers
	}
	return &Engine{
		ledger:  cfg.Ledger,
		clock:   cfg.Clock,
		oracle:  cfg.Oracle,
		guard:   cfg.OracleGuard,
		pools:   NewRegistry(),
		quoters: pond.NewPool(workers, pond.WithQueueSize(workers*16)),
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Close stops the quote workers.
func (e *Engine) Close() {
	e.quoters.StopAndWait()
}

// instrument times op and counts its result. Use as
// defer e.instrument(op)(&err).
func (e *Engine) instrument(op string) func(*error) {
	timer := prometheus.NewTimer(e.metrics.operationDuration.WithLabelValues(op))
	return func(errp *error) {
		timer.ObserveDuration()
		e.metrics.observe(op, *errp)
		if *errp != nil {
			e.logger.Debug("operation rejected", "op", op, "error", *errp)
		}
	}
}

// withPool runs fn under the pool's lock and republishes the pool's view
// when fn succeeds. fn must leave the state untouched when it fails.
func (e *Engine) withPool(id common.Hash, fn func(*poolState) error) error {
	h, err := e.pools.get(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := fn(h.state); err != nil {
		return err
	}
	h.updateCachedView()
	return nil
}

type transfer struct {
	from, to amm.Account
	mint     amm.Mint
	amount   uint64
}

// settle executes transfers in order. When one fails the transfers already
// made are reversed, leaving balances as they were.
func (e *Engine) settle(transfers ...transfer) error {
	for i, t := range transfers {
		if t.amount == 0 {
			continue
		}
		if err := e.ledger.Transfer(t.from, t.to, t.mint, t.amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				r := transfers[j]
				if r.amount == 0 {
					continue
				}
				if rerr := e.ledger.Transfer(r.to, r.from, r.mint, r.amount); rerr != nil {
					e.logger.Error("failed to reverse transfer", "from", r.to, "to", r.from, "mint", r.mint, "amount", r.amount, "error", rerr)
				}
			}
			return fmt.Errorf("transfer %d %s from %s to %s: %w", t.amount, t.mint, t.from, t.to, err)
		}
	}
	return nil
}

func (e *Engine) reportForfeits(position *amm.Position, kinds []string) {
	for _, kind := range kinds {
		e.metrics.forfeited.WithLabelValues(kind).Inc()
		e.logger.Warn("owed amount overflowed, accrual dropped", "position", position.ID.Hex(), "kind", kind)
	}
}

// --- Pool lifecycle ---

// InitializePoolRequest configures a new pool. When SqrtPrice is nil the
// price is read from OracleFeed.
type InitializePoolRequest struct {
	SyntheticMint   amm.Mint     `json:"syntheticMint"`
	QuoteMint       amm.Mint     `json:"quoteMint"`
	TickSpacing     uint16       `json:"tickSpacing"`
	FeeRate         uint16       `json:"feeRate"`
	ProtocolFeeRate uint16       `json:"protocolFeeRate"`
	SqrtPrice       *uint256.Int `json:"sqrtPrice,omitempty"`
	OracleFeed      string       `json:"oracleFeed,omitempty"`
}

func (e *Engine) InitializePool(req InitializePoolRequest) (pool amm.Pool, err error) {
	defer e.instrument(opInitializePool)(&err)

	sqrtPrice := req.SqrtPrice
	if sqrtPrice == nil {
		if e.oracle == nil {
			return amm.Pool{}, ErrNoOracle
		}
		reading, err := e.oracle.GetPrice(req.OracleFeed)
		if err != nil {
			return amm.Pool{}, fmt.Errorf("oracle feed %q: %w", req.OracleFeed, err)
		}
		if sqrtPrice, err = SqrtPriceFromOracle(reading, e.guard); err != nil {
			return amm.Pool{}, fmt.Errorf("oracle feed %q: %w", req.OracleFeed, err)
		}
	}

	pool, err = amm.NewPool(amm.InitializePoolParams{
		SyntheticMint:   req.SyntheticMint,
		QuoteMint:       req.QuoteMint,
		TickSpacing:     req.TickSpacing,
		FeeRate:         req.FeeRate,
		ProtocolFeeRate: req.ProtocolFeeRate,
		SqrtPrice:       sqrtPrice,
		Timestamp:       e.clock.Now(),
	})
	if err != nil {
		return amm.Pool{}, err
	}
	if err := e.pools.add(newPoolHandle(newPoolState(pool))); err != nil {
		return amm.Pool{}, err
	}

	e.logger.Info("pool initialized",
		"pool", pool.ID.Hex(),
		"synthetic", pool.SyntheticMint,
		"quote", pool.QuoteMint,
		"tickSpacing", pool.TickSpacing,
		"tick", pool.TickCurrentIndex,
	)
	return pool, nil
}

// InitializeTickArray creates the empty tick array starting at start.
func (e *Engine) InitializeTickArray(poolID common.Hash, start int32) (err error) {
	defer e.instrument(opInitializeTickArray)(&err)

	return e.withPool(poolID, func(s *poolState) error {
		if _, exists := s.tickArrays[start]; exists {
			return fmt.Errorf("%w: %d", amm.ErrTickArrayExists, start)
		}
		ta, err := amm.NewTickArray(s.pool.ID, start, s.pool.TickSpacing)
		if err != nil {
			return err
		}
		s.tickArrays[start] = ta
		return nil
	})
}

// boundArrays are the tick arrays holding a position's bounds. created lists
// arrays that do not exist yet and are stored on commit.
type boundArrays struct {
	lower, upper *amm.TickArray
	created      []*amm.TickArray
}

func (s *poolState) boundArrays(tickLowerIndex, tickUpperIndex int32) (boundArrays, error) {
	var b boundArrays
	get := func(tickIndex int32) (*amm.TickArray, error) {
		start := amm.StartTickIndex(tickIndex, s.pool.TickSpacing)
		if ta, ok := s.tickArrays[start]; ok {
			return ta, nil
		}
		for _, ta := range b.created {
			if ta.StartTickIndex == start {
				return ta, nil
			}
		}
		ta, err := amm.NewTickArray(s.pool.ID, start, s.pool.TickSpacing)
		if err != nil {
			return nil, err
		}
		b.created = append(b.created, ta)
		return ta, nil
	}

	var err error
	if b.lower, err = get(tickLowerIndex); err != nil {
		return b, err
	}
	if b.upper, err = get(tickUpperIndex); err != nil {
		return b, err
	}
	return b, nil
}

func (s *poolState) storeArrays(b boundArrays) {
	for _, ta := range b.created {
		s.tickArrays[ta.StartTickIndex] = ta
	}
}

func (s *poolState) position(id common.Hash) (*amm.Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", amm.ErrPositionNotFound, id.Hex())
	}
	return p, nil
}

// OpenPosition creates an empty position over [tickLower, tickUpper).
func (e *Engine) OpenPosition(poolID common.Hash, owner amm.Account, tickLower, tickUpper int32) (position amm.Position, err error) {
	defer e.instrument(opOpenPosition)(&err)

	err = e.withPool(poolID, func(s *poolState) error {
		if err := amm.CheckTickRange(tickLower, tickUpper, s.pool.TickSpacing); err != nil {
			return err
		}
		arrays, err := s.boundArrays(tickLower, tickUpper)
		if err != nil {
			return err
		}

		position = amm.Position{
			ID:             amm.PositionID(s.pool.ID, owner, tickLower, tickUpper, s.positionSeq),
			PoolID:         s.pool.ID,
			Owner:          owner,
			TickLowerIndex: tickLower,
			TickUpperIndex: tickUpper,
		}
		s.storeArrays(arrays)
		s.positionSeq++
		p := position
		s.positions[p.ID] = &p
		return nil
	})
	if err != nil {
		return amm.Position{}, err
	}

	e.logger.Info("position opened",
		"pool", poolID.Hex(),
		"position", position.ID.Hex(),
		"owner", owner,
		"tickLower", tickLower,
		"tickUpper", tickUpper,
	)
	return position, nil
}

// ClosePosition removes a position that holds no liquidity and is owed
// nothing.
func (e *Engine) ClosePosition(poolID, positionID common.Hash) (err error) {
	defer e.instrument(opClosePosition)(&err)

	err = e.withPool(poolID, func(s *poolState) error {
		p, err := s.position(positionID)
		if err != nil {
			return err
		}
		if !p.IsEmpty() {
			return fmt.Errorf("%w: %s", amm.ErrPositionNotEmpty, positionID.Hex())
		}
		delete(s.positions, positionID)
		return nil
	})
	if err == nil {
		e.logger.Info("position closed", "pool", poolID.Hex(), "position", positionID.Hex())
	}
	return err
}

// --- Liquidity ---

// LiquidityResult is a position after a liquidity change and the token
// amounts that moved.
type LiquidityResult struct {
	Position        amm.Position
	AmountQuote     uint64
	AmountSynthetic uint64
}

type IncreaseLiquidityRequest struct {
	PoolID            common.Hash
	PositionID        common.Hash
	Liquidity         *uint256.Int
	TokenMaxQuote     uint64
	TokenMaxSynthetic uint64
}

type DecreaseLiquidityRequest struct {
	PoolID            common.Hash
	PositionID        common.Hash
	Liquidity         *uint256.Int
	TokenMinQuote     uint64
	TokenMinSynthetic uint64
}

// modifyLiquidity computes a liquidity change on s without writing it.
func (e *Engine) modifyLiquidity(s *poolState, position *amm.Position, delta fixedpoint.Int128, timestamp uint64) (ModifyLiquidityUpdate, boundArrays, error) {
	arrays, err := s.boundArrays(position.TickLowerIndex, position.TickUpperIndex)
	if err != nil {
		return ModifyLiquidityUpdate{}, arrays, err
	}
	lower, err := arrays.lower.GetTick(position.TickLowerIndex)
	if err != nil {
		return ModifyLiquidityUpdate{}, arrays, err
	}
	upper, err := arrays.upper.GetTick(position.TickUpperIndex)
	if err != nil {
		return ModifyLiquidityUpdate{}, arrays, err
	}
	update, err := CalculateModifyLiquidity(&s.pool, position, &lower, &upper, delta, timestamp)
	return update, arrays, err
}

// commitModifyLiquidity writes a computed liquidity change.
func (e *Engine) commitModifyLiquidity(s *poolState, position *amm.Position, arrays boundArrays, update *ModifyLiquidityUpdate) error {
	s.storeArrays(arrays)
	if err := arrays.lower.UpdateTick(position.TickLowerIndex, update.TickLowerUpdate); err != nil {
		return err
	}
	if err := arrays.upper.UpdateTick(position.TickUpperIndex, update.TickUpperUpdate); err != nil {
		return err
	}
	s.pool.Liquidity = update.PoolLiquidity
	s.pool.RewardInfos = update.RewardInfos
	s.pool.RewardLastUpdatedTimestamp = update.RewardLastUpdatedTimestamp
	position.Apply(update.Position.Update)
	e.reportForfeits(position, update.Position.Forfeited)
	return nil
}

// IncreaseLiquidity deposits liquidity into a position. The owner pays the
// rounded-up token amounts, bounded by the request's maxima.
func (e *Engine) IncreaseLiquidity(req IncreaseLiquidityRequest) (result LiquidityResult, err error) {
	defer e.instrument(opIncreaseLiquidity)(&err)

	if req.Liquidity == nil || req.Liquidity.IsZero() {
		return result, amm.ErrLiquidityZero
	}
	delta, err := fixedpoint.Int128FromUint(req.Liquidity, false)
	if err != nil {
		return result, fmt.Errorf("%w: %s", amm.ErrLiquidityOverflow, req.Liquidity.Dec())
	}

	err = e.withPool(req.PoolID, func(s *poolState) error {
		position, err := s.position(req.PositionID)
		if err != nil {
			return err
		}
		update, arrays, err := e.modifyLiquidity(s, position, delta, e.clock.Now())
		if err != nil {
			return err
		}
		quote, synthetic, err := CalculateLiquidityTokenDeltas(&s.pool, position.TickLowerIndex, position.TickUpperIndex, delta)
		if err != nil {
			return err
		}
		if quote > req.TokenMaxQuote {
			return fmt.Errorf("%w: quote %d > %d", amm.ErrTokenMaxExceeded, quote, req.TokenMaxQuote)
		}
		if synthetic > req.TokenMaxSynthetic {
			return fmt.Errorf("%w: synthetic %d > %d", amm.ErrTokenMaxExceeded, synthetic, req.TokenMaxSynthetic)
		}

		if err := e.settle(
			transfer{from: position.Owner, to: s.pool.QuoteVault, mint: s.pool.QuoteMint, amount: quote},
			transfer{from: position.Owner, to: s.pool.SyntheticVault, mint: s.pool.SyntheticMint, amount: synthetic},
		); err != nil {
			return err
		}
		if err := e.commitModifyLiquidity(s, position, arrays, &update); err != nil {
			return err
		}
		result = LiquidityResult{Position: *position, AmountQuote: quote, AmountSynthetic: synthetic}
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}

	e.logger.Debug("liquidity increased",
		"position", req.PositionID.Hex(),
		"liquidity", req.Liquidity.Dec(),
		"quote", result.AmountQuote,
		"synthetic", result.AmountSynthetic,
	)
	return result, nil
}

// DecreaseLiquidity withdraws liquidity from a position. The owner receives
// the rounded-down token amounts, bounded below by the request's minima.
// Accrued fees and rewards stay owed.
func (e *Engine) DecreaseLiquidity(req DecreaseLiquidityRequest) (result LiquidityResult, err error) {
	defer e.instrument(opDecreaseLiquidity)(&err)

	if req.Liquidity == nil || req.Liquidity.IsZero() {
		return result, amm.ErrLiquidityZero
	}
	delta, err := fixedpoint.Int128FromUint(req.Liquidity, true)
	if err != nil {
		return result, fmt.Errorf("%w: %s", amm.ErrLiquidityUnderflow, req.Liquidity.Dec())
	}

	err = e.withPool(req.PoolID, func(s *poolState) error {
		position, err := s.position(req.PositionID)
		if err != nil {
			return err
		}
		update, arrays, err := e.modifyLiquidity(s, position, delta, e.clock.Now())
		if err != nil {
			return err
		}
		quote, synthetic, err := CalculateLiquidityTokenDeltas(&s.pool, position.TickLowerIndex, position.TickUpperIndex, delta)
		if err != nil {
			return err
		}
		if quote < req.TokenMinQuote {
			return fmt.Errorf("%w: quote %d < %d", amm.ErrTokenMinSubceeded, quote, req.TokenMinQuote)
		}
		if synthetic < req.TokenMinSynthetic {
			return fmt.Errorf("%w: synthetic %d < %d", amm.ErrTokenMinSubceeded, synthetic, req.TokenMinSynthetic)
		}

		if err := e.settle(
			transfer{from: s.pool.QuoteVault, to: position.Owner, mint: s.pool.QuoteMint, amount: quote},
			transfer{from: s.pool.SyntheticVault, to: position.Owner, mint: s.pool.SyntheticMint, amount: synthetic},
		); err != nil {
			return err
		}
		if err := e.commitModifyLiquidity(s, position, arrays, &update); err != nil {
			return err
		}
		result = LiquidityResult{Position: *position, AmountQuote: quote, AmountSynthetic: synthetic}
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}

	e.logger.Debug("liquidity decreased",
		"position", req.PositionID.Hex(),
		"liquidity", req.Liquidity.Dec(),
		"quote", result.AmountQuote,
		"synthetic", result.AmountSynthetic,
	)
	return result, nil
}

// UpdateFeesAndRewards settles a position's accrued fees and rewards into
// its owed amounts without changing its liquidity.
func (e *Engine) UpdateFeesAndRewards(poolID, positionID common.Hash) (position amm.Position, err error) {
	defer e.instrument(opUpdateFeesAndRewards)(&err)

	err = e.withPool(poolID, func(s *poolState) error {
		p, err := s.position(positionID)
		if err != nil {
			return err
		}
		update, arrays, err := e.modifyLiquidity(s, p, fixedpoint.Int128{}, e.clock.Now())
		if err != nil {
			return err
		}
		if err := e.commitModifyLiquidity(s, p, arrays, &update); err != nil {
			return err
		}
		position = *p
		return nil
	})
	return position, err
}

// CalculateFeesAndRewards previews the position's owed amounts as if it were
// settled now. Nothing is written.
func (e *Engine) CalculateFeesAndRewards(poolID, positionID common.Hash) (amm.PositionUpdate, error) {
	h, err := e.pools.get(poolID)
	if err != nil {
		return amm.PositionUpdate{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.state
	p, err := s.position(positionID)
	if err != nil {
		return amm.PositionUpdate{}, err
	}
	lower, err := s.tick(p.TickLowerIndex)
	if err != nil {
		return amm.PositionUpdate{}, err
	}
	upper, err := s.tick(p.TickUpperIndex)
	if err != nil {
		return amm.PositionUpdate{}, err
	}
	settlement, err := CalculateFeesAndRewards(&s.pool, p, &lower, &upper, e.clock.Now())
	return settlement.Update, err
}

// settleIfLiquid computes the settlement of a position that still holds
// liquidity. It returns ok=false for an empty position, which accrues
// nothing.
func (e *Engine) settleIfLiquid(s *poolState, p *amm.Position) (ModifyLiquidityUpdate, boundArrays, bool, error) {
	if p.Liquidity.IsZero() {
		return ModifyLiquidityUpdate{}, boundArrays{}, false, nil
	}
	update, arrays, err := e.modifyLiquidity(s, p, fixedpoint.Int128{}, e.clock.Now())
	return update, arrays, err == nil, err
}

// --- Collection ---

// CollectFees settles the position and pays out all fees it is owed.
func (e *Engine) CollectFees(poolID, positionID common.Hash) (quote, synthetic uint64, err error) {
	defer e.instrument(opCollectFees)(&err)

	err = e.withPool(poolID, func(s *poolState) error {
		p, err := s.position(positionID)
		if err != nil {
			return err
		}
		update, arrays, settled, err := e.settleIfLiquid(s, p)
		if err != nil {
			return err
		}
		quote, synthetic = p.FeeOwedQuote, p.FeeOwedSynthetic
		if settled {
			quote, synthetic = update.Position.Update.FeeOwedQuote, update.Position.Update.FeeOwedSynthetic
		}

		if err := e.settle(
			transfer{from: s.pool.QuoteVault, to: p.Owner, mint: s.pool.QuoteMint, amount: quote},
			transfer{from: s.pool.SyntheticVault, to: p.Owner, mint: s.pool.SyntheticMint, amount: synthetic},
		); err != nil {
			return err
		}
		if settled {
			if err := e.commitModifyLiquidity(s, p, arrays, &update); err != nil {
				return err
			}
		}
		p.FeeOwedQuote, p.FeeOwedSynthetic = 0, 0
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return quote, synthetic, nil
}

// CollectReward settles the position and pays out reward index, up to what
// the reward vault holds. Any shortfall stays owed.
func (e *Engine) CollectReward(poolID, positionID common.Hash, index int) (amount uint64, err error) {
	defer e.instrument(opCollectReward)(&err)

	err = e.withPool(poolID, func(s *poolState) error {
		if !amm.RewardIndexValid(index) || !s.pool.RewardInfos[index].Initialized() {
			return fmt.Errorf("%w: %d", amm.ErrInvalidRewardIndex, index)
		}
		p, err := s.position(positionID)
		if err != nil {
			return err
		}
		update, arrays, settled, err := e.settleIfLiquid(s, p)
		if err != nil {
			return err
		}
		owed := p.RewardInfos[index].AmountOwed
		if settled {
			owed = update.Position.Update.RewardInfos[index].AmountOwed
		}

		reward := s.pool.RewardInfos[index]
		amount = rewardTransferAmount(owed, e.ledger.Balance(reward.Vault, reward.Mint))
		if err := e.settle(transfer{from: reward.Vault, to: p.Owner, mint: reward.Mint, amount: amount}); err != nil {
			return err
		}
		if settled {
			if err := e.commitModifyLiquidity(s, p, arrays, &update); err != nil {
				return err
			}
		}
		p.RewardInfos[index].AmountOwed = owed - amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// CollectProtocolFees pays the pool's accumulated protocol fees to recipient.
func (e *Engine) CollectProtocolFees(poolID common.Hash, recipient amm.Account) (quote, synthetic uint64, err error) {
	defer e.instrument(opCollectProtocolFees)(&err)

	err = e.withPool(poolID, func(s *poolState) error {
		quote, synthetic = s.pool.ProtocolFeeOwedQuote, s.pool.ProtocolFeeOwedSynthetic
		if err := e.settle(
			transfer{from: s.pool.QuoteVault, to: recipient, mint: s.pool.QuoteMint, amount: quote},
			transfer{from: s.pool.SyntheticVault, to: recipient, mint: s.pool.SyntheticMint, amount: synthetic},
		); err != nil {
			return err
		}
		s.pool.ProtocolFeeOwedQuote, s.pool.ProtocolFeeOwedSynthetic = 0, 0
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return quote, synthetic, nil
}

// --- Rewards ---

// InitializeReward assigns mint to reward slot index. Slots fill in order.
func (e *Engine) InitializeReward(poolID common.Hash, index int, mint amm.Mint) (err error) {
	defer e.instrument(opInitializeReward)(&err)

	if mint == "" {
		return errors.New("reward mint is required")
	}
	err = e.withPool(poolID, func(s *poolState) error {
		if err := CheckRewardInitialization(&s.pool, index); err != nil {
			return err
		}
		s.pool.RewardInfos[index].Mint = mint
		s.pool.RewardInfos[index].Vault = amm.VaultAccount(s.pool.ID, mint)
		return nil
	})
	if err == nil {
		e.logger.Info("reward initialized", "pool", poolID.Hex(), "index", index, "mint", mint)
	}
	return err
}

// SetRewardEmissions sets the Q64.64 per-second emission rate of reward
// index after rolling accrued rewards forward at the old rate.
func (e *Engine) SetRewardEmissions(poolID common.Hash, index int, emissionsPerSecondX64 *uint256.Int) (err error) {
	defer e.instrument(opSetRewardEmissions)(&err)

	if emissionsPerSecondX64 == nil {
		emissionsPerSecondX64 = new(uint256.Int)
	}
	err = e.withPool(poolID, func(s *poolState) error {
		var balance uint64
		if amm.RewardIndexValid(index) && s.pool.RewardInfos[index].Initialized() {
			reward := s.pool.RewardInfos[index]
			balance = e.ledger.Balance(reward.Vault, reward.Mint)
		}
		timestamp := e.clock.Now()
		infos, err := NextRewardEmissions(&s.pool, index, emissionsPerSecondX64, balance, timestamp)
		if err != nil {
			return err
		}
		s.pool.RewardInfos = infos
		s.pool.RewardLastUpdatedTimestamp = timestamp
		return nil
	})
	if err == nil {
		e.logger.Info("reward emissions set", "pool", poolID.Hex(), "index", index, "emissionsPerSecondX64", emissionsPerSecondX64.Dec())
	}
	return err
}

// --- Swaps ---

// SwapRequest is a swap by Trader against PoolID.
type SwapRequest struct {
	PoolID common.Hash `json:"poolId"`
	Trader amm.Account `json:"trader,omitempty"`
	SwapParams
}

// SwapResult summarizes a computed swap.
type SwapResult struct {
	AmountQuote     uint64      `json:"amountQuote"`
	AmountSynthetic uint64      `json:"amountSynthetic"`
	AmountIn        uint64      `json:"amountIn"`
	AmountOut       uint64      `json:"amountOut"`
	NextSqrtPrice   uint256.Int `json:"nextSqrtPrice"`
	NextTickIndex   int32       `json:"nextTickIndex"`
	TicksCrossed    int         `json:"ticksCrossed"`
}

func newSwapResult(direction amm.Direction, u *SwapUpdate) SwapResult {
	return SwapResult{
		AmountQuote:     u.AmountQuote,
		AmountSynthetic: u.AmountSynthetic,
		AmountIn:        u.AmountIn(direction),
		AmountOut:       u.AmountOut(direction),
		NextSqrtPrice:   u.NextSqrtPrice,
		NextTickIndex:   u.NextTickIndex,
		TicksCrossed:    u.TicksCrossed,
	}
}

// Swap executes a swap and settles it with the trader.
func (e *Engine) Swap(req SwapRequest) (result SwapResult, err error) {
	defer e.instrument(opSwap)(&err)

	err = e.withPool(req.PoolID, func(s *poolState) error {
		ticks := NewTickSequence(s.tickArrays, s.pool.TickSpacing)
		update, err := CalculateSwap(&s.pool, ticks, req.SwapParams, e.clock.Now())
		if err != nil {
			return err
		}
		if err := CheckSwapThreshold(req.SwapParams, &update); err != nil {
			return err
		}

		in := transfer{from: req.Trader, to: s.pool.QuoteVault, mint: s.pool.QuoteMint, amount: update.AmountQuote}
		out := transfer{from: s.pool.SyntheticVault, to: req.Trader, mint: s.pool.SyntheticMint, amount: update.AmountSynthetic}
		if !req.Direction.AToB() {
			in = transfer{from: req.Trader, to: s.pool.SyntheticVault, mint: s.pool.SyntheticMint, amount: update.AmountSynthetic}
			out = transfer{from: s.pool.QuoteVault, to: req.Trader, mint: s.pool.QuoteMint, amount: update.AmountQuote}
		}
		if err := e.settle(in, out); err != nil {
			return err
		}

		for tickIndex, tu := range update.TickUpdates {
			ta, ok := s.tickArrays[amm.StartTickIndex(tickIndex, s.pool.TickSpacing)]
			if !ok {
				return fmt.Errorf("%w: for tick %d", amm.ErrTickArrayNotFound, tickIndex)
			}
			if err := ta.UpdateTick(tickIndex, tu); err != nil {
				return err
			}
		}
		update.applyToPool(&s.pool)

		e.metrics.ticksCrossed.Observe(float64(update.TicksCrossed))
		result = newSwapResult(req.Direction, &update)
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}

	e.logger.Debug("swap executed",
		"pool", req.PoolID.Hex(),
		"direction", req.Direction,
		"in", result.AmountIn,
		"out", result.AmountOut,
		"tick", result.NextTickIndex,
		"ticksCrossed", result.TicksCrossed,
	)
	return result, nil
}

// QuoteSwap computes a swap against the pool's last committed state and
// discards it. It never waits on writers.
func (e *Engine) QuoteSwap(req SwapRequest) (result SwapResult, err error) {
	defer e.instrument(opQuoteSwap)(&err)

	h, err := e.pools.get(req.PoolID)
	if err != nil {
		return result, err
	}
	view := h.view()
	arrays := make(map[int32]*amm.TickArray, len(view.TickArrays))
	for _, ta := range view.TickArrays {
		arrays[ta.StartTickIndex] = ta
	}

	timestamp := max(e.clock.Now(), view.Pool.RewardLastUpdatedTimestamp)
	update, err := CalculateSwap(&view.Pool, NewTickSequence(arrays, view.Pool.TickSpacing), req.SwapParams, timestamp)
	if err != nil {
		return result, err
	}
	if err := CheckSwapThreshold(req.SwapParams, &update); err != nil {
		return result, err
	}
	return newSwapResult(req.Direction, &update), nil
}

// QuoteResult pairs a quote request with its outcome.
type QuoteResult struct {
	Request SwapRequest
	Result  SwapResult
	Err     error
}

// QuoteBatch runs QuoteSwap for every request on the quote worker pool.
// Results are returned in request order.
func (e *Engine) QuoteBatch(ctx context.Context, reqs []SwapRequest) ([]QuoteResult, error) {
	results := make([]QuoteResult, len(reqs))
	group := e.quoters.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i, req := range reqs {
		results[i].Request = req
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				results[i].Err = err
				return
			}
			results[i].Result, results[i].Err = e.QuoteSwap(req)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// LiquidityForTokenAmounts returns the largest liquidity the given budgets
// can fund over [tickLower, tickUpper) at the pool's current price.
func (e *Engine) LiquidityForTokenAmounts(poolID common.Hash, tickLower, tickUpper int32, quote, synthetic uint64) (*uint256.Int, error) {
	h, err := e.pools.get(poolID)
	if err != nil {
		return nil, err
	}
	view := h.view()
	if err := amm.CheckTickRange(tickLower, tickUpper, view.Pool.TickSpacing); err != nil {
		return nil, err
	}
	return LiquidityForTokenAmounts(&view.Pool, tickLower, tickUpper, quote, synthetic)
}

// --- State ---

// Pool returns the pool's last committed state.
func (e *Engine) Pool(poolID common.Hash) (amm.Pool, error) {
	h, err := e.pools.get(poolID)
	if err != nil {
		return amm.Pool{}, err
	}
	return h.view().Pool, nil
}

// Position returns a position's last committed state.
func (e *Engine) Position(poolID, positionID common.Hash) (amm.Position, error) {
	h, err := e.pools.get(poolID)
	if err != nil {
		return amm.Position{}, err
	}
	for _, p := range h.view().Positions {
		if p.ID == positionID {
			return p, nil
		}
	}
	return amm.Position{}, fmt.Errorf("%w: %s", amm.ErrPositionNotFound, positionID.Hex())
}

// Pools returns the ids of every pool, in ascending order.
func (e *Engine) Pools() []common.Hash {
	return e.pools.IDs()
}

// Snapshot returns a deep copy of the pool's last committed state.
func (e *Engine) Snapshot(poolID common.Hash) (*amm.Snapshot, error) {
	h, err := e.pools.get(poolID)
	if err != nil {
		return nil, err
	}
	return h.view().Clone(), nil
}

// Restore loads a pool from a snapshot, replacing any pool with the same id.
func (e *Engine) Restore(snapshot *amm.Snapshot) (err error) {
	defer e.instrument(opRestore)(&err)

	state, err := poolStateFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	e.pools.replace(newPoolHandle(state))
	e.logger.Info("pool restored",
		"pool", snapshot.Pool.ID.Hex(),
		"tickArrays", len(snapshot.TickArrays),
		"positions", len(snapshot.Positions),
	)
	return nil
}
