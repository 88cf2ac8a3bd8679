package math

import (
	"errors"
	"math/big"
	"sync"
)

// Amounts are unsigned integers scaled by the market's decimal factor
// (10^decimals). Net quantities that can flip sign (total position size,
// funding rate) use int64. Products of two scaled uint64 values can exceed
// 64 bits, so multiply-divide goes through a big.Int intermediate.

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/a != b {
		return 0, ErrOverflow
	}
	return prod, nil
}

// MulDiv computes floor(a*b/den) through a 128-bit intermediate and also
// returns the remainder. The swap engine uses the remainder to decide its
// rounding correction, so it must come from the same division.
func MulDiv(a, b, den uint64) (quo uint64, rem uint64, err error) {
	if den == 0 {
		return 0, 0, ErrDivisionByZero
	}

	num := getBig()
	tmp := getBig()
	num.SetUint64(a)
	tmp.SetUint64(b)
	num.Mul(num, tmp)

	tmp.SetUint64(den)
	r := getBig()
	num.QuoRem(num, tmp, r)

	if !num.IsUint64() {
		putBig(num)
		putBig(tmp)
		putBig(r)
		return 0, 0, ErrOverflow
	}

	quo = num.Uint64()
	rem = r.Uint64()

	putBig(num)
	putBig(tmp)
	putBig(r)

	return quo, rem, nil
}

// MulDivInt computes a*b/den on signed values, truncating toward zero.
func MulDivInt(a, b, den int64) (int64, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}

	num := getBig()
	tmp := getBig()
	num.SetInt64(a)
	tmp.SetInt64(b)
	num.Mul(num, tmp)

	tmp.SetInt64(den)
	num.Quo(num, tmp)

	if !num.IsInt64() {
		putBig(num)
		putBig(tmp)
		return 0, ErrOverflow
	}

	out := num.Int64()
	putBig(num)
	putBig(tmp)

	return out, nil
}

// CheckedAddInt returns a+b or an overflow/underflow error on int64 wrap.
func CheckedAddInt(a, b int64) (int64, error) {
	sum := a + b
	if b > 0 && sum < a {
		return 0, ErrOverflow
	}
	if b < 0 && sum > a {
		return 0, ErrUnderflow
	}
	return sum, nil
}

// CheckedSubInt returns a-b with the same wrap checks.
func CheckedSubInt(a, b int64) (int64, error) {
	if b == minInt64 {
		if a >= 0 {
			return 0, ErrOverflow
		}
		return a - b, nil
	}
	return CheckedAddInt(a, -b)
}

const minInt64 = -1 << 63

// ToInt64 converts an unsigned amount to int64, or ErrOverflow when it does
// not fit.
func ToInt64(u uint64) (int64, error) {
	if u > 1<<63-1 {
		return 0, ErrOverflow
	}
	return int64(u), nil
}

// AbsDiff returns |a-b| without sign juggling at call sites.
func AbsDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
