package engine

import (
	"fmt"
	"sort"

	"github.com/defistate/synthamm/amm"
)

// TickSequence reads a pool's tick arrays in price order and buffers tick
// writes, so a swap can cross ticks without touching the arrays until it
// commits.
type TickSequence struct {
	tickSpacing uint16
	arrays      map[int32]*amm.TickArray
	starts      []int32
	pending     map[int32]amm.TickUpdate
}

// NewTickSequence indexes arrays by start tick. The arrays are only read.
func NewTickSequence(arrays map[int32]*amm.TickArray, tickSpacing uint16) *TickSequence {
	starts := make([]int32, 0, len(arrays))
	for start := range arrays {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	return &TickSequence{
		tickSpacing: tickSpacing,
		arrays:      arrays,
		starts:      starts,
		pending:     make(map[int32]amm.TickUpdate),
	}
}

// Tick returns the tick at tickIndex including buffered writes. Ticks in
// arrays that do not exist are uninitialized.
func (s *TickSequence) Tick(tickIndex int32) (amm.Tick, error) {
	if update, ok := s.pending[tickIndex]; ok {
		return amm.Tick(update), nil
	}
	ta, ok := s.arrays[amm.StartTickIndex(tickIndex, s.tickSpacing)]
	if !ok {
		if !amm.CheckIsUsableTick(tickIndex, s.tickSpacing) {
			return amm.Tick{}, fmt.Errorf("%w: %d with spacing %d", amm.ErrInvalidTickIndex, tickIndex, s.tickSpacing)
		}
		return amm.Tick{}, nil
	}
	return ta.GetTick(tickIndex)
}

// Update buffers a write to the tick at tickIndex.
func (s *TickSequence) Update(tickIndex int32, update amm.TickUpdate) {
	s.pending[tickIndex] = update
}

// Updates returns the buffered writes keyed by tick index.
func (s *TickSequence) Updates() map[int32]amm.TickUpdate {
	return s.pending
}

// NextInitializedTick finds the nearest initialized tick in the swap
// direction: at or below tickIndex when aToB, strictly above it otherwise.
// Buffered writes never change which ticks are initialized.
func (s *TickSequence) NextInitializedTick(tickIndex int32, aToB bool) (int32, bool) {
	if len(s.starts) == 0 {
		return 0, false
	}
	width := amm.TicksInArray(s.tickSpacing)
	home := amm.StartTickIndex(tickIndex, s.tickSpacing)

	if aToB {
		// last array whose start is <= home
		i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > home }) - 1
		for ; i >= 0; i-- {
			start := s.starts[i]
			from := start + width - 1
			if start == home {
				from = tickIndex
			}
			if next, ok := s.arrays[start].NextInitializedTick(from, true); ok {
				return next, true
			}
		}
		return 0, false
	}

	i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] >= home })
	for ; i < len(s.starts); i++ {
		start := s.starts[i]
		from := start - 1
		if start == home {
			from = tickIndex
		}
		if next, ok := s.arrays[start].NextInitializedTick(from, false); ok {
			return next, true
		}
	}
	return 0, false
}
