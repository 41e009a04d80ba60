package amm

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/synthamm/bitset"
	"github.com/ethereum/go-ethereum/common"
)

// TickArray is a fixed window of TickArraySize tick slots starting at
// StartTickIndex, spaced TickSpacing apart. Ticks are reachable only
// through GetTick and UpdateTick so the initialized bitmap stays in sync.
type TickArray struct {
	PoolID         common.Hash
	StartTickIndex int32
	TickSpacing    uint16

	ticks       [TickArraySize]Tick
	initialized bitset.BitSet
}

// TicksInArray is the tick distance covered by one array.
func TicksInArray(tickSpacing uint16) int32 {
	return TickArraySize * int32(tickSpacing)
}

// StartTickIndex returns the start index of the array holding tickIndex.
func StartTickIndex(tickIndex int32, tickSpacing uint16) int32 {
	return floorDiv(tickIndex, TicksInArray(tickSpacing)) * TicksInArray(tickSpacing)
}

// CheckIsValidStartTick reports whether start begins an array that
// overlaps the tick domain.
func CheckIsValidStartTick(start int32, tickSpacing uint16) bool {
	if tickSpacing == 0 {
		return false
	}
	ticksInArray := TicksInArray(tickSpacing)
	if start%ticksInArray != 0 {
		return false
	}
	return start > MinTick-ticksInArray && start <= MaxTick
}

func NewTickArray(pool common.Hash, start int32, tickSpacing uint16) (*TickArray, error) {
	if !CheckIsValidStartTick(start, tickSpacing) {
		return nil, fmt.Errorf("%w: %d with spacing %d", ErrInvalidStartTick, start, tickSpacing)
	}
	return &TickArray{
		PoolID:         pool,
		StartTickIndex: start,
		TickSpacing:    tickSpacing,
		initialized:    bitset.NewBitSet(TickArraySize),
	}, nil
}

// offset returns the slot of tickIndex, which must be a usable tick in this array.
func (ta *TickArray) offset(tickIndex int32) (int, error) {
	if !CheckIsUsableTick(tickIndex, ta.TickSpacing) {
		return 0, fmt.Errorf("%w: %d with spacing %d", ErrInvalidTickIndex, tickIndex, ta.TickSpacing)
	}
	offset := (tickIndex - ta.StartTickIndex) / int32(ta.TickSpacing)
	if tickIndex < ta.StartTickIndex || offset >= TickArraySize {
		return 0, fmt.Errorf("%w: %d outside array starting at %d", ErrInvalidTickIndex, tickIndex, ta.StartTickIndex)
	}
	return int(offset), nil
}

// GetTick returns a copy of the tick at tickIndex.
func (ta *TickArray) GetTick(tickIndex int32) (Tick, error) {
	offset, err := ta.offset(tickIndex)
	if err != nil {
		return Tick{}, err
	}
	return ta.ticks[offset], nil
}

// UpdateTick replaces the tick at tickIndex and tracks its initialized bit.
func (ta *TickArray) UpdateTick(tickIndex int32, update TickUpdate) error {
	offset, err := ta.offset(tickIndex)
	if err != nil {
		return err
	}
	ta.ticks[offset].Apply(update)
	if ta.ticks[offset].Initialized() {
		ta.initialized.Set(uint64(offset))
	} else {
		ta.initialized.Unset(uint64(offset))
	}
	return nil
}

// NextInitializedTick searches this array for the nearest initialized tick
// in the swap direction: the greatest one at or below tickIndex when aToB,
// otherwise the least one strictly above tickIndex.
func (ta *TickArray) NextInitializedTick(tickIndex int32, aToB bool) (int32, bool) {
	spacing := int32(ta.TickSpacing)
	rel := floorDiv(tickIndex-ta.StartTickIndex, spacing)

	if aToB {
		if rel < 0 {
			return 0, false
		}
		offset, found := ta.initialized.PrevSet(uint64(min(rel, TickArraySize-1)))
		if !found {
			return 0, false
		}
		return ta.StartTickIndex + int32(offset)*spacing, true
	}

	rel++
	if rel >= TickArraySize {
		return 0, false
	}
	offset, found := ta.initialized.NextSet(uint64(max(rel, 0)))
	if !found {
		return 0, false
	}
	return ta.StartTickIndex + int32(offset)*spacing, true
}

// IsEmpty reports whether no tick in the array is initialized.
func (ta *TickArray) IsEmpty() bool {
	return ta.initialized.IsEmpty()
}

// Clone returns a deep copy.
func (ta *TickArray) Clone() *TickArray {
	c := *ta
	c.initialized = ta.initialized.Clone()
	return &c
}

// Equal compares two arrays slot by slot.
func (ta *TickArray) Equal(o *TickArray) bool {
	return ta.PoolID == o.PoolID && ta.StartTickIndex == o.StartTickIndex && ta.TickSpacing == o.TickSpacing && ta.ticks == o.ticks
}

type tickEntry struct {
	Index int32 `json:"index"`
	Tick  *Tick `json:"tick"`
}

type tickArrayJSON struct {
	PoolID         common.Hash `json:"poolId"`
	StartTickIndex int32       `json:"startTickIndex"`
	TickSpacing    uint16      `json:"tickSpacing"`
	Ticks          []tickEntry `json:"ticks"`
}

// MarshalJSON writes only the initialized ticks.
func (ta *TickArray) MarshalJSON() ([]byte, error) {
	out := tickArrayJSON{PoolID: ta.PoolID, StartTickIndex: ta.StartTickIndex, TickSpacing: ta.TickSpacing}
	for i := range ta.ticks {
		if ta.initialized.IsSet(uint64(i)) {
			out.Ticks = append(out.Ticks, tickEntry{
				Index: ta.StartTickIndex + int32(i)*int32(ta.TickSpacing),
				Tick:  &ta.ticks[i],
			})
		}
	}
	return json.Marshal(out)
}

func (ta *TickArray) UnmarshalJSON(b []byte) error {
	var in tickArrayJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	decoded, err := NewTickArray(in.PoolID, in.StartTickIndex, in.TickSpacing)
	if err != nil {
		return err
	}
	for _, e := range in.Ticks {
		if e.Tick == nil {
			return fmt.Errorf("tick %d has no body", e.Index)
		}
		if err := decoded.UpdateTick(e.Index, e.Tick.ToUpdate()); err != nil {
			return err
		}
	}
	*ta = *decoded
	return nil
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
