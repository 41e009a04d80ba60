package bitset

import (
	"fmt"

	"github.com/defistate/synthamm/calculator/bitmath"
)

func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	bits := make([]uint64, words)
	return bits
}

type BitSet []uint64

func (b BitSet) IsSet(index uint64) bool {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	return (b[wordPosition] & mask) != 0
}

func (b BitSet) Set(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] |= mask
}

func (b BitSet) Unset(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] = b[wordPosition] &^ mask
}

func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}

// Clone returns an independent copy.
func (b BitSet) Clone() BitSet {
	c := make(BitSet, len(b))
	c.SetFrom(b)
	return c
}

func (b BitSet) IsEmpty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

// NextSet returns the smallest set index >= from.
func (b BitSet) NextSet(from uint64) (uint64, bool) {
	wordPosition := from / 64
	if wordPosition >= uint64(len(b)) {
		return 0, false
	}
	// drop bits below from in the first word
	word := b[wordPosition] &^ ((uint64(1) << (from % 64)) - 1)
	for {
		if lsb, err := bitmath.LeastSignificantBit64(word); err == nil {
			return wordPosition*64 + uint64(lsb), true
		}
		wordPosition++
		if wordPosition >= uint64(len(b)) {
			return 0, false
		}
		word = b[wordPosition]
	}
}

// PrevSet returns the largest set index <= from.
func (b BitSet) PrevSet(from uint64) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	wordPosition := from / 64
	word := ^uint64(0)
	if wordPosition >= uint64(len(b)) {
		wordPosition = uint64(len(b)) - 1
	} else if shift := from % 64; shift < 63 {
		// keep bits at or below from in the first word
		word = (uint64(1) << (shift + 1)) - 1
	}
	word &= b[wordPosition]
	for {
		if msb, err := bitmath.MostSignificantBit64(word); err == nil {
			return wordPosition*64 + uint64(msb), true
		}
		if wordPosition == 0 {
			return 0, false
		}
		wordPosition--
		word = b[wordPosition]
	}
}
