package amm

import (
	"github.com/ethereum/go-ethereum/common"
)

// SnapshotDiff lists what changed between two snapshots of the same pool.
type SnapshotDiff struct {
	PoolID             common.Hash   `json:"poolId"`
	Pool               *Pool         `json:"pool,omitempty"`
	PositionSeq        uint64        `json:"positionSeq"`
	TickArrayUpserts   []*TickArray  `json:"tickArrayUpserts,omitempty"`
	TickArrayDeletions []int32       `json:"tickArrayDeletions,omitempty"`
	PositionAdditions  []Position    `json:"positionAdditions,omitempty"`
	PositionUpdates    []Position    `json:"positionUpdates,omitempty"`
	PositionDeletions  []common.Hash `json:"positionDeletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d SnapshotDiff) IsEmpty() bool {
	return d.Pool == nil &&
		len(d.TickArrayUpserts) == 0 && len(d.TickArrayDeletions) == 0 &&
		len(d.PositionAdditions) == 0 && len(d.PositionUpdates) == 0 && len(d.PositionDeletions) == 0
}

// Differ calculates the difference between two snapshots of one pool.
// Entities are matched by key through maps, so slice order is irrelevant.
func Differ(old, new *Snapshot) SnapshotDiff {
	diff := SnapshotDiff{
		PoolID:      new.Pool.ID,
		PositionSeq: new.PositionSeq,
	}

	// Pool, RewardInfo and Growth are plain values, so == compares every field.
	if old.Pool != new.Pool {
		pool := new.Pool
		diff.Pool = &pool
	}

	// --- Tick arrays ---
	oldArrays := make(map[int32]*TickArray, len(old.TickArrays))
	for _, ta := range old.TickArrays {
		oldArrays[ta.StartTickIndex] = ta
	}
	newArrays := make(map[int32]struct{}, len(new.TickArrays))
	for _, ta := range new.TickArrays {
		newArrays[ta.StartTickIndex] = struct{}{}
		prev, exists := oldArrays[ta.StartTickIndex]
		if !exists || !prev.Equal(ta) {
			diff.TickArrayUpserts = append(diff.TickArrayUpserts, ta.Clone())
		}
	}
	for start := range oldArrays {
		if _, exists := newArrays[start]; !exists {
			diff.TickArrayDeletions = append(diff.TickArrayDeletions, start)
		}
	}

	// --- Positions ---
	oldPositions := make(map[common.Hash]Position, len(old.Positions))
	for _, p := range old.Positions {
		oldPositions[p.ID] = p
	}
	newPositions := make(map[common.Hash]struct{}, len(new.Positions))
	for _, p := range new.Positions {
		newPositions[p.ID] = struct{}{}
		prev, exists := oldPositions[p.ID]
		switch {
		case !exists:
			diff.PositionAdditions = append(diff.PositionAdditions, p)
		case prev != p:
			diff.PositionUpdates = append(diff.PositionUpdates, p)
		}
	}
	for id := range oldPositions {
		if _, exists := newPositions[id]; !exists {
			diff.PositionDeletions = append(diff.PositionDeletions, id)
		}
	}

	return diff
}
