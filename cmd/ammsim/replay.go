package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/defistate/synthamm/amm"
	"github.com/defistate/synthamm/calculator/tickmath"
	"github.com/defistate/synthamm/engine"
	"github.com/defistate/synthamm/ledger"
	"github.com/defistate/synthamm/storage"
	"github.com/defistate/synthamm/storage/postgres"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxScriptLine = 1 << 20

// scriptLine is one operation of a replay script:
//
//	{"op": "swap", "args": {"pool": "eth", "amount": 1000, ...}}
type scriptLine struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// target names the pool or position an operation acts on.
type target struct {
	Pool     string `json:"pool"`
	Position string `json:"position"`
}

type positionRef struct {
	pool common.Hash
	id   common.Hash
}

// opHandler applies one operation and returns the pool it changed, or the
// zero hash when it changed no pool.
type opHandler func(r *replayer, args json.RawMessage) (common.Hash, error)

var opHandlers = map[string]opHandler{
	"init_pool":               (*replayer).initPool,
	"set_oracle":              (*replayer).setOracle,
	"fund":                    (*replayer).fund,
	"fund_reward":             (*replayer).fundReward,
	"advance":                 (*replayer).advance,
	"initialize_tick_array":   (*replayer).initializeTickArray,
	"open_position":           (*replayer).openPosition,
	"increase_liquidity":      (*replayer).increaseLiquidity,
	"decrease_liquidity":      (*replayer).decreaseLiquidity,
	"update_fees_and_rewards": (*replayer).updateFeesAndRewards,
	"collect_fees":            (*replayer).collectFees,
	"collect_reward":          (*replayer).collectReward,
	"collect_protocol_fees":   (*replayer).collectProtocolFees,
	"close_position":          (*replayer).closePosition,
	"initialize_reward":       (*replayer).initializeReward,
	"set_reward_emissions":    (*replayer).setRewardEmissions,
	"swap":                    (*replayer).swap,
}

// replaySummary counts the outcome of a replay.
type replaySummary struct {
	Applied int
	Failed  int
}

type replayer struct {
	rt        *runtime
	journal   storage.Journal
	logger    *zap.Logger
	pools     map[string]common.Hash
	positions map[string]positionRef
	seq       uint64
}

func newReplayer(rt *runtime, journal storage.Journal, logger *zap.Logger) *replayer {
	return &replayer{
		rt:        rt,
		journal:   journal,
		logger:    logger,
		pools:     make(map[string]common.Hash),
		positions: make(map[string]positionRef),
	}
}

// run applies every operation read from script. A failed operation is
// journaled with its error and the replay continues.
func (r *replayer) run(ctx context.Context, script io.Reader) (replaySummary, error) {
	var summary replaySummary
	scanner := bufio.NewScanner(script)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScriptLine)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		var op scriptLine
		if err := json.Unmarshal(raw, &op); err != nil {
			return summary, fmt.Errorf("script line %d: %w", line, err)
		}
		if err := r.apply(op); err != nil {
			summary.Failed++
			r.logger.Warn("operation failed", zap.Int("line", line), zap.String("op", op.Op), zap.Error(err))
		} else {
			summary.Applied++
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read script: %w", err)
	}
	return summary, nil
}

// apply runs one operation and journals its effect on the pool it touched.
func (r *replayer) apply(op scriptLine) error {
	handler, ok := opHandlers[op.Op]
	if !ok {
		err := fmt.Errorf("unknown op %q", op.Op)
		return r.record(op.Op, common.Hash{}, nil, err)
	}

	var t target
	if len(op.Args) > 0 {
		if err := json.Unmarshal(op.Args, &t); err != nil {
			return r.record(op.Op, common.Hash{}, nil, fmt.Errorf("parse args: %w", err))
		}
	}
	var before *amm.Snapshot
	targetID, targeted := r.targetPool(t)
	if targeted {
		snap, err := r.rt.engine.Snapshot(targetID)
		if err != nil {
			return r.record(op.Op, targetID, nil, err)
		}
		before = snap
	}

	poolID, err := handler(r, op.Args)
	if err != nil && targeted {
		poolID = targetID
	}
	return r.record(op.Op, poolID, before, err)
}

func (r *replayer) targetPool(t target) (common.Hash, bool) {
	if t.Position != "" {
		ref, ok := r.positions[t.Position]
		return ref.pool, ok
	}
	id, ok := r.pools[t.Pool]
	return id, ok
}

// record journals an operation. opErr is returned unchanged unless the
// journal itself fails.
func (r *replayer) record(op string, poolID common.Hash, before *amm.Snapshot, opErr error) error {
	entry := storage.JournalEntry{
		Seq:       r.seq,
		Op:        op,
		Timestamp: r.rt.clock.Now(),
		PoolID:    poolID,
	}
	r.seq++

	if opErr != nil {
		entry.Error = opErr.Error()
	} else if poolID != (common.Hash{}) {
		after, err := r.rt.engine.Snapshot(poolID)
		if err != nil {
			return err
		}
		if before == nil {
			before = &amm.Snapshot{Pool: amm.Pool{ID: poolID}}
		}
		entry.Diff = amm.Differ(before, after)
	}

	if err := r.journal.Append(entry); err != nil {
		return errors.Join(opErr, fmt.Errorf("journal: %w", err))
	}
	return opErr
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing args")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	return nil
}

func (r *replayer) pool(name string) (common.Hash, error) {
	id, ok := r.pools[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown pool %q", name)
	}
	return id, nil
}

func (r *replayer) position(name string) (positionRef, error) {
	ref, ok := r.positions[name]
	if !ok {
		return positionRef{}, fmt.Errorf("unknown position %q", name)
	}
	return ref, nil
}

func (r *replayer) initPool(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Name string `json:"name"`
		engine.InitializePoolRequest
		Tick *int32 `json:"tick,omitempty"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	if args.Name == "" {
		return common.Hash{}, errors.New("pool name is required")
	}
	if _, exists := r.pools[args.Name]; exists {
		return common.Hash{}, fmt.Errorf("pool name %q already used", args.Name)
	}
	if args.Tick != nil {
		if args.SqrtPrice != nil {
			return common.Hash{}, errors.New("set either sqrtPrice or tick, not both")
		}
		args.SqrtPrice = new(uint256.Int)
		if err := tickmath.GetSqrtPriceAtTick(args.SqrtPrice, *args.Tick); err != nil {
			return common.Hash{}, err
		}
	}

	pool, err := r.rt.engine.InitializePool(args.InitializePoolRequest)
	if err != nil {
		return common.Hash{}, err
	}
	r.pools[args.Name] = pool.ID
	return pool.ID, nil
}

func (r *replayer) setOracle(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Feed       string `json:"feed"`
		Price      int64  `json:"price"`
		Expo       int32  `json:"expo"`
		Confidence uint64 `json:"confidence"`
		SlotDelay  uint64 `json:"slotDelay"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	if args.Feed == "" {
		return common.Hash{}, errors.New("oracle feed is required")
	}
	r.rt.oracle.Set(args.Feed, engine.OraclePrice{
		Price:      args.Price,
		Expo:       args.Expo,
		Confidence: args.Confidence,
		SlotDelay:  args.SlotDelay,
	})
	return common.Hash{}, nil
}

func (r *replayer) fund(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Account amm.Account `json:"account"`
		Mint    amm.Mint    `json:"mint"`
		Amount  uint64      `json:"amount"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	return common.Hash{}, r.rt.ledger.Mint(args.Account, args.Mint, args.Amount)
}

// fundReward mints reward tokens straight into a pool's reward vault.
func (r *replayer) fundReward(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Pool   string `json:"pool"`
		Index  int    `json:"index"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	pool, err := r.rt.engine.Pool(poolID)
	if err != nil {
		return common.Hash{}, err
	}
	if !amm.RewardIndexValid(args.Index) || !pool.RewardInfos[args.Index].Initialized() {
		return common.Hash{}, fmt.Errorf("%w: %d", amm.ErrInvalidRewardIndex, args.Index)
	}
	reward := pool.RewardInfos[args.Index]
	return common.Hash{}, r.rt.ledger.Mint(reward.Vault, reward.Mint, args.Amount)
}

func (r *replayer) advance(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Seconds uint64 `json:"seconds"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	now := r.rt.clock.Advance(args.Seconds)
	r.logger.Debug("clock advanced", zap.Uint64("now", now))
	return common.Hash{}, nil
}

func (r *replayer) initializeTickArray(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Pool           string `json:"pool"`
		StartTickIndex int32  `json:"startTickIndex"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	return poolID, r.rt.engine.InitializeTickArray(poolID, args.StartTickIndex)
}

func (r *replayer) openPosition(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Name      string      `json:"name"`
		Pool      string      `json:"pool"`
		Owner     amm.Account `json:"owner"`
		TickLower int32       `json:"tickLower"`
		TickUpper int32       `json:"tickUpper"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	if args.Name == "" {
		return common.Hash{}, errors.New("position name is required")
	}
	if _, exists := r.positions[args.Name]; exists {
		return common.Hash{}, fmt.Errorf("position name %q already used", args.Name)
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	position, err := r.rt.engine.OpenPosition(poolID, args.Owner, args.TickLower, args.TickUpper)
	if err != nil {
		return common.Hash{}, err
	}
	r.positions[args.Name] = positionRef{pool: poolID, id: position.ID}
	return poolID, nil
}

// increaseLiquidity adds Liquidity to a position, or when Liquidity is
// omitted the most liquidity the token maximums can fund.
func (r *replayer) increaseLiquidity(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Position          string       `json:"position"`
		Liquidity         *uint256.Int `json:"liquidity,omitempty"`
		TokenMaxQuote     uint64       `json:"tokenMaxQuote"`
		TokenMaxSynthetic uint64       `json:"tokenMaxSynthetic"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	ref, err := r.position(args.Position)
	if err != nil {
		return common.Hash{}, err
	}
	liquidity := args.Liquidity
	if liquidity == nil {
		position, err := r.rt.engine.Position(ref.pool, ref.id)
		if err != nil {
			return common.Hash{}, err
		}
		liquidity, err = r.rt.engine.LiquidityForTokenAmounts(ref.pool, position.TickLowerIndex, position.TickUpperIndex, args.TokenMaxQuote, args.TokenMaxSynthetic)
		if err != nil {
			return common.Hash{}, err
		}
	}

	result, err := r.rt.engine.IncreaseLiquidity(engine.IncreaseLiquidityRequest{
		PoolID:            ref.pool,
		PositionID:        ref.id,
		Liquidity:         liquidity,
		TokenMaxQuote:     args.TokenMaxQuote,
		TokenMaxSynthetic: args.TokenMaxSynthetic,
	})
	if err != nil {
		return common.Hash{}, err
	}
	r.logger.Debug("liquidity increased",
		zap.String("position", args.Position),
		zap.String("liquidity", liquidity.Dec()),
		zap.Uint64("amountQuote", result.AmountQuote),
		zap.Uint64("amountSynthetic", result.AmountSynthetic),
	)
	return ref.pool, nil
}

// decreaseLiquidity removes Liquidity from a position, or all of it when
// Liquidity is omitted.
func (r *replayer) decreaseLiquidity(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Position          string       `json:"position"`
		Liquidity         *uint256.Int `json:"liquidity,omitempty"`
		TokenMinQuote     uint64       `json:"tokenMinQuote"`
		TokenMinSynthetic uint64       `json:"tokenMinSynthetic"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	ref, err := r.position(args.Position)
	if err != nil {
		return common.Hash{}, err
	}
	liquidity := args.Liquidity
	if liquidity == nil {
		position, err := r.rt.engine.Position(ref.pool, ref.id)
		if err != nil {
			return common.Hash{}, err
		}
		liquidity = new(uint256.Int).Set(&position.Liquidity)
	}

	result, err := r.rt.engine.DecreaseLiquidity(engine.DecreaseLiquidityRequest{
		PoolID:            ref.pool,
		PositionID:        ref.id,
		Liquidity:         liquidity,
		TokenMinQuote:     args.TokenMinQuote,
		TokenMinSynthetic: args.TokenMinSynthetic,
	})
	if err != nil {
		return common.Hash{}, err
	}
	r.logger.Debug("liquidity decreased",
		zap.String("position", args.Position),
		zap.String("liquidity", liquidity.Dec()),
		zap.Uint64("amountQuote", result.AmountQuote),
		zap.Uint64("amountSynthetic", result.AmountSynthetic),
	)
	return ref.pool, nil
}

type positionArgs struct {
	Position string `json:"position"`
}

func (r *replayer) positionTarget(raw json.RawMessage) (positionRef, error) {
	var args positionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return positionRef{}, err
	}
	return r.position(args.Position)
}

func (r *replayer) updateFeesAndRewards(raw json.RawMessage) (common.Hash, error) {
	ref, err := r.positionTarget(raw)
	if err != nil {
		return common.Hash{}, err
	}
	_, err = r.rt.engine.UpdateFeesAndRewards(ref.pool, ref.id)
	return ref.pool, err
}

func (r *replayer) collectFees(raw json.RawMessage) (common.Hash, error) {
	ref, err := r.positionTarget(raw)
	if err != nil {
		return common.Hash{}, err
	}
	quote, synthetic, err := r.rt.engine.CollectFees(ref.pool, ref.id)
	if err != nil {
		return common.Hash{}, err
	}
	r.logger.Debug("fees collected", zap.Uint64("quote", quote), zap.Uint64("synthetic", synthetic))
	return ref.pool, nil
}

func (r *replayer) collectReward(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Position string `json:"position"`
		Index    int    `json:"index"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	ref, err := r.position(args.Position)
	if err != nil {
		return common.Hash{}, err
	}
	amount, err := r.rt.engine.CollectReward(ref.pool, ref.id, args.Index)
	if err != nil {
		return common.Hash{}, err
	}
	r.logger.Debug("reward collected", zap.Int("index", args.Index), zap.Uint64("amount", amount))
	return ref.pool, nil
}

func (r *replayer) collectProtocolFees(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Pool      string      `json:"pool"`
		Recipient amm.Account `json:"recipient"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	_, _, err = r.rt.engine.CollectProtocolFees(poolID, args.Recipient)
	return poolID, err
}

func (r *replayer) closePosition(raw json.RawMessage) (common.Hash, error) {
	var args positionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	ref, err := r.position(args.Position)
	if err != nil {
		return common.Hash{}, err
	}
	if err := r.rt.engine.ClosePosition(ref.pool, ref.id); err != nil {
		return common.Hash{}, err
	}
	delete(r.positions, args.Position)
	return ref.pool, nil
}

func (r *replayer) initializeReward(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Pool  string   `json:"pool"`
		Index int      `json:"index"`
		Mint  amm.Mint `json:"mint"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	return poolID, r.rt.engine.InitializeReward(poolID, args.Index, args.Mint)
}

func (r *replayer) setRewardEmissions(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Pool                  string       `json:"pool"`
		Index                 int          `json:"index"`
		EmissionsPerSecondX64 *uint256.Int `json:"emissionsPerSecondX64"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	return poolID, r.rt.engine.SetRewardEmissions(poolID, args.Index, args.EmissionsPerSecondX64)
}

func (r *replayer) swap(raw json.RawMessage) (common.Hash, error) {
	var args struct {
		Pool   string      `json:"pool"`
		Trader amm.Account `json:"trader"`
		engine.SwapParams
	}
	if err := decodeArgs(raw, &args); err != nil {
		return common.Hash{}, err
	}
	poolID, err := r.pool(args.Pool)
	if err != nil {
		return common.Hash{}, err
	}
	result, err := r.rt.engine.Swap(engine.SwapRequest{PoolID: poolID, Trader: args.Trader, SwapParams: args.SwapParams})
	if err != nil {
		return common.Hash{}, err
	}
	r.logger.Debug("swap",
		zap.String("pool", args.Pool),
		zap.Stringer("direction", args.Direction),
		zap.Uint64("amountIn", result.AmountIn),
		zap.Uint64("amountOut", result.AmountOut),
		zap.Int32("tick", result.NextTickIndex),
		zap.Int("ticksCrossed", result.TicksCrossed),
	)
	return poolID, nil
}

// snapshots returns the final state of every pool, ordered by id.
func (r *replayer) snapshots() ([]*amm.Snapshot, error) {
	ids := r.rt.engine.Pools()
	out := make([]*amm.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := r.rt.engine.Snapshot(id)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Script == "" {
		return fmt.Errorf("script is required")
	}
	script, err := os.Open(cfg.Script)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer script.Close()

	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.engine.Close()

	r := newReplayer(rt, storage.NewJsonlJournal(cfg.Journal), logger)
	summary, err := r.run(ctx, script)
	if err != nil {
		return err
	}

	snapshots, err := r.snapshots()
	if err != nil {
		return err
	}
	if cfg.SnapshotOut != "" {
		if err := storage.NewSnapshotStore(cfg.SnapshotOut).Save(snapshots); err != nil {
			return err
		}
	}
	if cfg.PgDSN != "" {
		if err := saveToPostgres(ctx, cfg.PgDSN, snapshots); err != nil {
			return err
		}
	}

	counts, err := rt.operationCounts()
	if err != nil {
		return err
	}
	logger.Info("replay complete",
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
		zap.Int("pools", len(snapshots)),
		zap.Any("operations", counts),
		zap.String("journal", cfg.Journal),
		zap.String("snapshot", cfg.SnapshotOut),
	)
	return printSummary(cmd.OutOrStdout(), snapshots, rt)
}

func saveToPostgres(ctx context.Context, dsn string, snapshots []*amm.Snapshot) error {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	for _, snap := range snapshots {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

type poolSummary struct {
	ID               common.Hash `json:"id"`
	SyntheticMint    amm.Mint    `json:"syntheticMint"`
	QuoteMint        amm.Mint    `json:"quoteMint"`
	SqrtPrice        string      `json:"sqrtPrice"`
	TickCurrentIndex int32       `json:"tickCurrentIndex"`
	Liquidity        string      `json:"liquidity"`
	Positions        int         `json:"positions"`
}

// printSummary writes the final pools and ledger balances as indented JSON.
func printSummary(w io.Writer, snapshots []*amm.Snapshot, rt *runtime) error {
	out := struct {
		Pools    []poolSummary  `json:"pools"`
		Balances []ledger.Entry `json:"balances"`
	}{
		Balances: rt.ledger.Entries(),
	}
	for _, snap := range snapshots {
		out.Pools = append(out.Pools, poolSummary{
			ID:               snap.Pool.ID,
			SyntheticMint:    snap.Pool.SyntheticMint,
			QuoteMint:        snap.Pool.QuoteMint,
			SqrtPrice:        snap.Pool.SqrtPrice.Dec(),
			TickCurrentIndex: snap.Pool.TickCurrentIndex,
			Liquidity:        snap.Pool.Liquidity.Dec(),
			Positions:        len(snap.Positions),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}
