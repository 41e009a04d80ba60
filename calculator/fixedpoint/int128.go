package fixedpoint

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// maxInt128Abs is 2^127 - 1, the largest positive magnitude.
	maxInt128Abs = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 127), uint256.NewInt(1))
	// minInt128Abs is 2^127, the magnitude of the most negative value.
	minInt128Abs = new(uint256.Int).Lsh(uint256.NewInt(1), 127)
)

// Int128 is a signed 128-bit quantity held as sign and magnitude. The zero
// value is 0 and values copy by assignment.
type Int128 struct {
	neg bool
	abs uint256.Int
}

func NewInt128(v int64) Int128 {
	var x Int128
	if v < 0 {
		x.neg = true
		// -(v+1)+1 avoids overflowing on math.MinInt64.
		x.abs.SetUint64(uint64(-(v + 1)) + 1)
	} else {
		x.abs.SetUint64(uint64(v))
	}
	return x
}

// Int128FromUint returns +abs or -abs, checking the signed range.
func Int128FromUint(abs *uint256.Int, negative bool) (Int128, error) {
	x := Int128{neg: negative && !abs.IsZero()}
	x.abs.Set(abs)
	if !x.inRange() {
		return Int128{}, ErrOverflow
	}
	return x, nil
}

func (x Int128) inRange() bool {
	if x.neg {
		return x.abs.Cmp(minInt128Abs) <= 0
	}
	return x.abs.Cmp(maxInt128Abs) <= 0
}

func (x Int128) Sign() int {
	switch {
	case x.abs.IsZero():
		return 0
	case x.neg:
		return -1
	default:
		return 1
	}
}

func (x Int128) IsZero() bool { return x.abs.IsZero() }

// Abs returns a copy of the magnitude.
func (x Int128) Abs() *uint256.Int { return new(uint256.Int).Set(&x.abs) }

// Neg returns -x. Negating the minimum value yields +2^127, which is outside
// the signed range and is only valid as an operand to AddDelta-style checks.
func (x Int128) Neg() Int128 {
	r := x
	r.neg = !x.neg && !x.abs.IsZero()
	return r
}

// Add returns x + y, failing with ErrOverflow outside the signed 128-bit range.
func (x Int128) Add(y Int128) (Int128, error) {
	var r Int128
	if x.neg == y.neg {
		r.neg = x.neg
		r.abs.Add(&x.abs, &y.abs)
	} else if x.abs.Cmp(&y.abs) >= 0 {
		r.neg = x.neg
		r.abs.Sub(&x.abs, &y.abs)
	} else {
		r.neg = y.neg
		r.abs.Sub(&y.abs, &x.abs)
	}
	if r.abs.IsZero() {
		r.neg = false
	}
	if !r.inRange() {
		return Int128{}, ErrOverflow
	}
	return r, nil
}

func (x Int128) Sub(y Int128) (Int128, error) {
	return x.Add(y.Neg())
}

func (x Int128) Equal(y Int128) bool {
	return x.neg == y.neg && x.abs.Eq(&y.abs)
}

func (x Int128) String() string {
	if x.neg {
		return "-" + x.abs.Dec()
	}
	return x.abs.Dec()
}

func (x Int128) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

func (x *Int128) UnmarshalText(b []byte) error {
	s := string(b)
	neg := strings.HasPrefix(s, "-")
	abs, err := uint256.FromDecimal(strings.TrimPrefix(s, "-"))
	if err != nil {
		return fmt.Errorf("int128 %q: %w", s, err)
	}
	v, err := Int128FromUint(abs, neg)
	if err != nil {
		return fmt.Errorf("int128 %q: %w", s, err)
	}
	*x = v
	return nil
}
