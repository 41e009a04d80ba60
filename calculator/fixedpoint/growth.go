package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Growth is a cumulative per-unit-of-liquidity amount in Q64.64 that wraps
// modulo 2^128. A single reading means nothing; only the difference between
// two readings of the same accumulator does, so the raw value is reachable
// only through Since.
type Growth struct {
	v uint256.Int
}

// NewGrowth returns the accumulator reading v mod 2^128.
func NewGrowth(v *uint256.Int) Growth {
	var g Growth
	g.v.And(v, MaxUint128)
	return g
}

// Add advances the accumulator by delta, wrapping at 2^128.
func (g Growth) Add(delta *uint256.Int) Growth {
	var r Growth
	r.v.Add(&g.v, delta)
	r.v.And(&r.v, MaxUint128)
	return r
}

// Sub returns g - o mod 2^128. Used to flip an outside value across a tick
// and to split a global accumulator into below/inside/above parts.
func (g Growth) Sub(o Growth) Growth {
	var r Growth
	r.v.Sub(&g.v, &o.v)
	r.v.And(&r.v, MaxUint128)
	return r
}

// Since returns the growth accrued from checkpoint to g.
func (g Growth) Since(checkpoint Growth) *uint256.Int {
	d := g.Sub(checkpoint)
	return new(uint256.Int).Set(&d.v)
}

func (g Growth) Equal(o Growth) bool {
	return g.v.Eq(&o.v)
}

func (g Growth) IsZero() bool {
	return g.v.IsZero()
}

func (g Growth) String() string {
	return g.v.Dec()
}

// MarshalText encodes the reading as a decimal string.
func (g Growth) MarshalText() ([]byte, error) {
	return []byte(g.v.Dec()), nil
}

func (g *Growth) UnmarshalText(b []byte) error {
	v, err := uint256.FromDecimal(string(b))
	if err != nil {
		return fmt.Errorf("growth %q: %w", b, err)
	}
	if !FitsUint128(v) {
		return fmt.Errorf("growth %q: %w", b, ErrOverflow)
	}
	g.v.Set(v)
	return nil
}
