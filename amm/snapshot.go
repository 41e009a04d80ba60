package amm

import (
	"sort"
)

// Snapshot is the complete persisted state of one pool.
type Snapshot struct {
	Pool Pool `json:"pool"`
	// PositionSeq counts positions ever opened, for id derivation.
	PositionSeq uint64       `json:"positionSeq"`
	TickArrays  []*TickArray `json:"tickArrays"`
	Positions   []Position   `json:"positions"`
}

// Sort orders tick arrays by start index and positions by id so encoded
// snapshots are deterministic.
func (s *Snapshot) Sort() {
	sort.Slice(s.TickArrays, func(i, j int) bool {
		return s.TickArrays[i].StartTickIndex < s.TickArrays[j].StartTickIndex
	})
	sort.Slice(s.Positions, func(i, j int) bool {
		return s.Positions[i].ID.Cmp(s.Positions[j].ID) < 0
	})
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Pool:        s.Pool,
		PositionSeq: s.PositionSeq,
		TickArrays:  make([]*TickArray, len(s.TickArrays)),
		Positions:   make([]Position, len(s.Positions)),
	}
	for i, ta := range s.TickArrays {
		c.TickArrays[i] = ta.Clone()
	}
	copy(c.Positions, s.Positions)
	return c
}
