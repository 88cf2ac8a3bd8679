package math

import "math/big"

// TimeWeighted accumulates price*duration terms for a TWAP. The weighted sum
// can exceed 64 bits for long windows, so it lives in a big.Int; the final
// average is floor(sum/period).
type TimeWeighted struct {
	sum    big.Int
	tmp    big.Int
	period int64
}

func NewTimeWeighted() *TimeWeighted {
	return &TimeWeighted{}
}

// Observe adds one interval. Intervals with zero or negative duration carry
// no weight and are ignored.
func (w *TimeWeighted) Observe(price uint64, duration int64) {
	if duration <= 0 {
		return
	}
	w.tmp.SetUint64(price)
	w.tmp.Mul(&w.tmp, big.NewInt(duration))
	w.sum.Add(&w.sum, &w.tmp)
	w.period += duration
}

// Period returns the total weighted duration observed so far.
func (w *TimeWeighted) Period() int64 {
	return w.period
}

// Average returns the time-weighted mean price. ErrDivisionByZero when no
// time has been observed.
func (w *TimeWeighted) Average() (uint64, error) {
	if w.period == 0 {
		return 0, ErrDivisionByZero
	}
	w.tmp.SetInt64(w.period)
	q := new(big.Int).Quo(&w.sum, &w.tmp)
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}
