package tickmath

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// MIN_TICK is the minimum tick that may be passed to GetSqrtPriceAtTick.
	MIN_TICK = int32(-443636)
	// MAX_TICK is the maximum tick that may be passed to GetSqrtPriceAtTick.
	MAX_TICK = int32(443636)
)

var (
	// MIN_SQRT_PRICE is GetSqrtPriceAtTick(MIN_TICK) in Q64.64.
	MIN_SQRT_PRICE = uint256.MustFromDecimal("4295048017")
	// MAX_SQRT_PRICE is GetSqrtPriceAtTick(MAX_TICK) in Q64.64.
	MAX_SQRT_PRICE = uint256.MustFromDecimal("79226673515401279992447579062")

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	one        = uint256.NewInt(1)
	maxUint256 = new(uint256.Int).SetAllOne()
	// lowMask selects the 64 bits dropped when narrowing UQ128.128 to Q64.64.
	lowMask = uint256.NewInt(0xffffffffffffffff)

	// ratioConstants hold 1/sqrt(1.0001^(2^i)) in UQ128.128 for i in 0..19,
	// preceded by 1 in UQ128.128 at index 1.
	ratioConstants = [21]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),  // 2^0
		uint256.MustFromHex("0x100000000000000000000000000000000"), // 1
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),  // 2^1
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),  // 2^2
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),  // 2^3
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),  // 2^4
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),  // 2^5
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),  // 2^6
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),  // 2^7
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),  // 2^8
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),  // 2^9
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),  // 2^10
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),  // 2^11
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),  // 2^12
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),  // 2^13
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),  // 2^14
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),  // 2^15
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),   // 2^16
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),    // 2^17
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),      // 2^18
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),           // 2^19
	}
)

// tickMath holds reusable scratch values to avoid allocations.
type tickMath struct {
	ratio  *uint256.Int
	rem    *uint256.Int
	sqrtAt *uint256.Int
}

// pool manages tickMath objects for safe concurrent use.
var pool = sync.Pool{
	New: func() any {
		return &tickMath{
			ratio:  new(uint256.Int),
			rem:    new(uint256.Int),
			sqrtAt: new(uint256.Int),
		}
	},
}

// GetSqrtPriceAtTick writes sqrt(1.0001^tick) * 2^64 into dest, rounded up.
func GetSqrtPriceAtTick(dest *uint256.Int, tick int32) error {
	if tick < MIN_TICK || tick > MAX_TICK {
		return ErrTickOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	tm.sqrtPriceAtTick(dest, tick)
	return nil
}

func (tm *tickMath) sqrtPriceAtTick(dest *uint256.Int, tick int32) {
	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}

	if absTick&0x1 != 0 {
		tm.ratio.Set(ratioConstants[0])
	} else {
		tm.ratio.Set(ratioConstants[1])
	}
	for i := 2; i < len(ratioConstants); i++ {
		if absTick&(1<<(i-1)) != 0 {
			tm.ratio.Mul(tm.ratio, ratioConstants[i]).Rsh(tm.ratio, 128)
		}
	}

	// The table encodes negative ticks; positive ones take the reciprocal.
	if tick > 0 {
		tm.ratio.Div(maxUint256, tm.ratio)
	}

	// Narrow UQ128.128 to Q64.64, rounding up.
	tm.rem.And(tm.ratio, lowMask)
	dest.Rsh(tm.ratio, 64)
	if !tm.rem.IsZero() {
		dest.Add(dest, one)
	}
}

// GetTickAtSqrtPrice returns the greatest tick whose sqrt price is <= sqrtPrice.
func GetTickAtSqrtPrice(sqrtPrice *uint256.Int) (int32, error) {
	if sqrtPrice.Lt(MIN_SQRT_PRICE) || sqrtPrice.Gt(MAX_SQRT_PRICE) {
		return 0, ErrSqrtPriceOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	low, high := MIN_TICK, MAX_TICK
	tick := MIN_TICK
	for low <= high {
		mid := low + (high-low)/2
		tm.sqrtPriceAtTick(tm.sqrtAt, mid)
		if tm.sqrtAt.Cmp(sqrtPrice) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

// CheckSqrtPrice reports whether sqrtPrice lies within [MIN_SQRT_PRICE, MAX_SQRT_PRICE].
func CheckSqrtPrice(sqrtPrice *uint256.Int) error {
	if sqrtPrice.Lt(MIN_SQRT_PRICE) || sqrtPrice.Gt(MAX_SQRT_PRICE) {
		return ErrSqrtPriceOutOfBounds
	}
	return nil
}
