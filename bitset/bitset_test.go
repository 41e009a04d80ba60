package bitset

import (
	"testing"
)

func TestBitSet_SetUnset(t *testing.T) {
	// 88 bits spans two words, like a tick array.
	bs := NewBitSet(88)
	if len(bs) != 2 {
		t.Fatalf("expected 2 words, got %d", len(bs))
	}

	for _, i := range []uint64{0, 63, 64, 87} {
		bs.Set(i)
		if !bs.IsSet(i) {
			t.Errorf("expected bit %d to be set", i)
		}
	}
	if bs.IsSet(1) {
		t.Error("expected bit 1 to be unset")
	}

	bs.Unset(63)
	if bs.IsSet(63) || !bs.IsSet(64) {
		t.Error("unset must only clear bit 63")
	}

	for _, i := range []uint64{0, 64, 87} {
		bs.Unset(i)
	}
	if !bs.IsEmpty() {
		t.Error("expected empty bitset after unsetting every bit")
	}
}

func TestBitSet_SetFrom(t *testing.T) {
	src := BitSet{0b1010, 0b1111}
	dst := src.Clone()
	dst.Set(0)
	if src.IsSet(0) {
		t.Error("Clone must not share storage")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("BitSet.SetFrom did not panic on mismatched lengths")
		}
	}()
	BitSet{0}.SetFrom(src)
}

func TestBitSet_NextSet(t *testing.T) {
	bs := NewBitSet(88)
	bs.Set(3)
	bs.Set(64)
	bs.Set(87)

	cases := []struct {
		from  uint64
		want  uint64
		found bool
	}{
		{0, 3, true},
		{3, 3, true},
		{4, 64, true},
		{65, 87, true},
		{88, 0, false},
		{200, 0, false},
	}
	for _, c := range cases {
		got, found := bs.NextSet(c.from)
		if found != c.found || (found && got != c.want) {
			t.Errorf("NextSet(%d) = %d,%v want %d,%v", c.from, got, found, c.want, c.found)
		}
	}
}

func TestBitSet_PrevSet(t *testing.T) {
	bs := NewBitSet(88)
	bs.Set(3)
	bs.Set(63)
	bs.Set(64)

	cases := []struct {
		from  uint64
		want  uint64
		found bool
	}{
		{87, 64, true},
		{64, 64, true},
		{63, 63, true},
		{62, 3, true},
		{3, 3, true},
		{2, 0, false},
		{500, 64, true},
	}
	for _, c := range cases {
		got, found := bs.PrevSet(c.from)
		if found != c.found || (found && got != c.want) {
			t.Errorf("PrevSet(%d) = %d,%v want %d,%v", c.from, got, found, c.want, c.found)
		}
	}
}
