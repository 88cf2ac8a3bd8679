package vamm

import (
	"errors"

	fpmath "PerpVamm/internal/math"
)

// checkFluctuationLimit bounds the post-swap price against the price of the
// block-opening snapshot, so several swaps inside one block are limited
// cumulatively against the block's starting price rather than pairwise
// against each other. Skipped when the ratio is zero or the caller holds
// the override flag (forced liquidations must not be blocked). Caller holds
// the lock.
func (m *Market) checkFluctuationLimit(block BlockInfo, dir Direction, quoteAssetAmount, baseAssetAmount uint64, canOverride bool) error {
	if canOverride || m.cfg.FluctuationLimitRatio == 0 {
		return nil
	}

	snap, ok := m.snapshots.BlockOpening(block.Height)
	if !ok {
		return nil
	}

	scale := m.cfg.Decimals
	ratio := m.cfg.FluctuationLimitRatio

	lastPrice, err := snap.spotPrice(scale)
	if err != nil {
		return err
	}

	upperBound, _, err := fpmath.MulDiv(lastPrice, scale+ratio, scale)
	if err != nil {
		return err
	}
	var lowerBound uint64
	if ratio < scale {
		lowerBound, _, err = fpmath.MulDiv(lastPrice, scale-ratio, scale)
		if err != nil {
			return err
		}
	}

	quoteAfter, baseAfter, err := reservesAfter(dir,
		m.state.QuoteAssetReserve, m.state.BaseAssetReserve,
		quoteAssetAmount, baseAssetAmount)
	if err != nil {
		return err
	}

	price, _, err := fpmath.MulDiv(quoteAfter, scale, baseAfter)
	if err != nil {
		return err
	}

	if price > upperBound || price < lowerBound {
		return ErrFluctuationLimitExceeded
	}
	return nil
}

// reservesAfter projects the reserves a swap would leave behind without
// committing anything.
func reservesAfter(dir Direction, quoteReserve, baseReserve, quoteAssetAmount, baseAssetAmount uint64) (uint64, uint64, error) {
	var (
		q, b uint64
		err  error
	)
	switch dir {
	case AddToAMM:
		q, err = fpmath.CheckedAdd(quoteReserve, quoteAssetAmount)
		if err != nil {
			return 0, 0, err
		}
		b, err = fpmath.CheckedSub(baseReserve, baseAssetAmount)
	case RemoveFromAMM:
		q, err = fpmath.CheckedSub(quoteReserve, quoteAssetAmount)
		if err != nil {
			return 0, 0, err
		}
		b, err = fpmath.CheckedAdd(baseReserve, baseAssetAmount)
	}
	if err != nil {
		return 0, 0, err
	}
	return q, b, nil
}

// rejectReason maps an error to a metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrFluctuationLimitExceeded):
		return "fluctuation_limit"
	case errors.Is(err, fpmath.ErrUnderflow):
		return "underflow"
	case errors.Is(err, fpmath.ErrOverflow):
		return "overflow"
	case errors.Is(err, fpmath.ErrDivisionByZero):
		return "division_by_zero"
	default:
		return "other"
	}
}
