package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new snapshot by applying diff to prev. prev is not
// modified.
func Patcher(prev *Snapshot, diff SnapshotDiff) (*Snapshot, error) {
	if prev.Pool.ID != diff.PoolID {
		return nil, fmt.Errorf("patcher: pool mismatch (snapshot=%s, diff=%s)", prev.Pool.ID.Hex(), diff.PoolID.Hex())
	}

	// 1. Index a deep copy of the previous state.
	arrays := make(map[int32]*TickArray, len(prev.TickArrays))
	for _, ta := range prev.TickArrays {
		arrays[ta.StartTickIndex] = ta.Clone()
	}
	positions := make(map[common.Hash]Position, len(prev.Positions))
	for _, p := range prev.Positions {
		positions[p.ID] = p
	}

	// 2. Deletions first, then replacements and additions.
	for _, start := range diff.TickArrayDeletions {
		delete(arrays, start)
	}
	for _, ta := range diff.TickArrayUpserts {
		if ta.PoolID != diff.PoolID {
			return nil, fmt.Errorf("patcher: %w at %d", ErrTickArrayPoolMismatch, ta.StartTickIndex)
		}
		arrays[ta.StartTickIndex] = ta.Clone()
	}
	for _, id := range diff.PositionDeletions {
		delete(positions, id)
	}
	for _, p := range diff.PositionUpdates {
		if _, exists := positions[p.ID]; !exists {
			return nil, fmt.Errorf("patcher: update for unknown position %s", p.ID.Hex())
		}
		positions[p.ID] = p
	}
	for _, p := range diff.PositionAdditions {
		positions[p.ID] = p
	}

	// 3. Convert the maps back into a sorted snapshot.
	next := &Snapshot{
		Pool:        prev.Pool,
		PositionSeq: diff.PositionSeq,
		TickArrays:  make([]*TickArray, 0, len(arrays)),
		Positions:   make([]Position, 0, len(positions)),
	}
	if diff.Pool != nil {
		next.Pool = *diff.Pool
	}
	for _, ta := range arrays {
		next.TickArrays = append(next.TickArrays, ta)
	}
	for _, p := range positions {
		next.Positions = append(next.Positions, p)
	}
	next.Sort()
	return next, nil
}
