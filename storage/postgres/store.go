package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/defistate/synthamm/amm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables the store writes. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_id        TEXT PRIMARY KEY,
	synthetic_mint TEXT NOT NULL,
	quote_mint     TEXT NOT NULL,
	tick_spacing   INTEGER NOT NULL,
	sqrt_price     NUMERIC(39, 0) NOT NULL,
	tick_current   INTEGER NOT NULL,
	liquidity      NUMERIC(39, 0) NOT NULL,
	position_seq   BIGINT NOT NULL,
	state          JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	position_id TEXT PRIMARY KEY,
	pool_id     TEXT NOT NULL REFERENCES pools (pool_id) ON DELETE CASCADE,
	owner       TEXT NOT NULL,
	tick_lower  INTEGER NOT NULL,
	tick_upper  INTEGER NOT NULL,
	liquidity   NUMERIC(39, 0) NOT NULL,
	state       JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tick_arrays (
	pool_id          TEXT NOT NULL REFERENCES pools (pool_id) ON DELETE CASCADE,
	start_tick_index INTEGER NOT NULL,
	PRIMARY KEY (pool_id, start_tick_index)
);
CREATE TABLE IF NOT EXISTS ticks (
	pool_id         TEXT NOT NULL REFERENCES pools (pool_id) ON DELETE CASCADE,
	tick_index      INTEGER NOT NULL,
	liquidity_net   NUMERIC(40, 0) NOT NULL,
	liquidity_gross NUMERIC(39, 0) NOT NULL,
	state           JSONB NOT NULL,
	PRIMARY KEY (pool_id, tick_index)
);
`

// Store provides Postgres persistence for pool snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the store's tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// tickRow is one initialized tick of a pool.
type tickRow struct {
	TickIndex int32
	Tick      amm.Tick
}

// tickRows lists the initialized ticks of arrays in ascending order.
func tickRows(arrays []*amm.TickArray) ([]tickRow, error) {
	var rows []tickRow
	for _, ta := range arrays {
		next := ta.StartTickIndex - 1
		for {
			tickIndex, ok := ta.NextInitializedTick(next, false)
			if !ok {
				break
			}
			tick, err := ta.GetTick(tickIndex)
			if err != nil {
				return nil, err
			}
			rows = append(rows, tickRow{TickIndex: tickIndex, Tick: tick})
			next = tickIndex
		}
	}
	return rows, nil
}

// arraysFromTickRows rebuilds the tick arrays starting at starts and fills
// in rows. Every row must fall inside one of the arrays.
func arraysFromTickRows(poolID common.Hash, tickSpacing uint16, starts []int32, rows []tickRow) ([]*amm.TickArray, error) {
	arrays := make(map[int32]*amm.TickArray, len(starts))
	out := make([]*amm.TickArray, 0, len(starts))
	for _, start := range starts {
		if _, ok := arrays[start]; ok {
			continue
		}
		ta, err := amm.NewTickArray(poolID, start, tickSpacing)
		if err != nil {
			return nil, err
		}
		arrays[start] = ta
		out = append(out, ta)
	}

	for _, row := range rows {
		ta, ok := arrays[amm.StartTickIndex(row.TickIndex, tickSpacing)]
		if !ok {
			return nil, fmt.Errorf("tick %d has no tick array", row.TickIndex)
		}
		if err := ta.UpdateTick(row.TickIndex, row.Tick.ToUpdate()); err != nil {
			return nil, fmt.Errorf("tick %d: %w", row.TickIndex, err)
		}
	}
	return out, nil
}

// SaveSnapshot replaces the stored state of the snapshot's pool in one
// transaction. Tick arrays are stored as their initialized ticks.
func (s *Store) SaveSnapshot(ctx context.Context, snap *amm.Snapshot) error {
	rows, err := tickRows(snap.TickArrays)
	if err != nil {
		return err
	}
	poolState, err := json.Marshal(&snap.Pool)
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}

	poolID := snap.Pool.ID.Hex()
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO pools (
			pool_id, synthetic_mint, quote_mint, tick_spacing, sqrt_price, tick_current, liquidity, position_seq, state, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9, now())
		ON CONFLICT (pool_id)
		DO UPDATE SET
			sqrt_price = EXCLUDED.sqrt_price,
			tick_current = EXCLUDED.tick_current,
			liquidity = EXCLUDED.liquidity,
			position_seq = EXCLUDED.position_seq,
			state = EXCLUDED.state,
			updated_at = now()
	`,
		poolID,
		string(snap.Pool.SyntheticMint),
		string(snap.Pool.QuoteMint),
		int32(snap.Pool.TickSpacing),
		snap.Pool.SqrtPrice.Dec(),
		snap.Pool.TickCurrentIndex,
		snap.Pool.Liquidity.Dec(),
		int64(snap.PositionSeq),
		poolState,
	)
	batch.Queue(`DELETE FROM positions WHERE pool_id = $1`, poolID)
	batch.Queue(`DELETE FROM ticks WHERE pool_id = $1`, poolID)
	batch.Queue(`DELETE FROM tick_arrays WHERE pool_id = $1`, poolID)

	for i := range snap.Positions {
		p := &snap.Positions[i]
		state, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal position %s: %w", p.ID.Hex(), err)
		}
		batch.Queue(`
			INSERT INTO positions (
				position_id, pool_id, owner, tick_lower, tick_upper, liquidity, state, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, now())
		`,
			p.ID.Hex(),
			poolID,
			string(p.Owner),
			p.TickLowerIndex,
			p.TickUpperIndex,
			p.Liquidity.Dec(),
			state,
		)
	}
	for _, ta := range snap.TickArrays {
		batch.Queue(`INSERT INTO tick_arrays (pool_id, start_tick_index) VALUES ($1, $2)`, poolID, ta.StartTickIndex)
	}
	for i := range rows {
		row := &rows[i]
		state, err := json.Marshal(&row.Tick)
		if err != nil {
			return fmt.Errorf("marshal tick %d: %w", row.TickIndex, err)
		}
		batch.Queue(`
			INSERT INTO ticks (
				pool_id, tick_index, liquidity_net, liquidity_gross, state
			) VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		`,
			poolID,
			row.TickIndex,
			row.Tick.LiquidityNet.String(),
			row.Tick.LiquidityGross.Dec(),
			state,
		)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("save pool %s: %w", poolID, err)
			}
		}
		return br.Close()
	})
}

// LoadSnapshot reads the stored state of a pool. ok is false when the pool
// has never been saved.
func (s *Store) LoadSnapshot(ctx context.Context, poolID common.Hash) (*amm.Snapshot, bool, error) {
	snap := &amm.Snapshot{}

	var (
		poolState   []byte
		positionSeq int64
	)
	row := s.pool.QueryRow(ctx, `SELECT state, position_seq FROM pools WHERE pool_id = $1`, poolID.Hex())
	if err := row.Scan(&poolState, &positionSeq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := json.Unmarshal(poolState, &snap.Pool); err != nil {
		return nil, false, fmt.Errorf("parse pool %s: %w", poolID.Hex(), err)
	}
	snap.PositionSeq = uint64(positionSeq)

	positionRows, err := s.pool.Query(ctx, `SELECT state FROM positions WHERE pool_id = $1`, poolID.Hex())
	if err != nil {
		return nil, false, err
	}
	defer positionRows.Close()
	for positionRows.Next() {
		var state []byte
		if err := positionRows.Scan(&state); err != nil {
			return nil, false, err
		}
		var p amm.Position
		if err := json.Unmarshal(state, &p); err != nil {
			return nil, false, fmt.Errorf("parse position: %w", err)
		}
		snap.Positions = append(snap.Positions, p)
	}
	if err := positionRows.Err(); err != nil {
		return nil, false, err
	}

	startQuery, err := s.pool.Query(ctx, `SELECT start_tick_index FROM tick_arrays WHERE pool_id = $1 ORDER BY start_tick_index`, poolID.Hex())
	if err != nil {
		return nil, false, err
	}
	starts, err := pgx.CollectRows(startQuery, pgx.RowTo[int32])
	if err != nil {
		return nil, false, err
	}

	tickQuery, err := s.pool.Query(ctx, `SELECT tick_index, state FROM ticks WHERE pool_id = $1 ORDER BY tick_index`, poolID.Hex())
	if err != nil {
		return nil, false, err
	}
	defer tickQuery.Close()
	var ticks []tickRow
	for tickQuery.Next() {
		var (
			r     tickRow
			state []byte
		)
		if err := tickQuery.Scan(&r.TickIndex, &state); err != nil {
			return nil, false, err
		}
		if err := json.Unmarshal(state, &r.Tick); err != nil {
			return nil, false, fmt.Errorf("parse tick %d: %w", r.TickIndex, err)
		}
		ticks = append(ticks, r)
	}
	if err := tickQuery.Err(); err != nil {
		return nil, false, err
	}

	if snap.TickArrays, err = arraysFromTickRows(snap.Pool.ID, snap.Pool.TickSpacing, starts, ticks); err != nil {
		return nil, false, err
	}
	snap.Sort()
	return snap, true, nil
}
