package vamm

import (
	"fmt"

	fpmath "PerpVamm/internal/math"
)

// inputPriceWithReserves prices an exact quote-asset input against the
// constant-product curve. k = floor(Q*B/scale) is recomputed fresh from the
// reserves on every call. When the division is not exact the result is
// rounded against the trader: one unit less base out when buying, one unit
// more base in when selling.
func inputPriceWithReserves(dir Direction, quoteAssetAmount, quoteReserve, baseReserve, scale uint64) (uint64, error) {
	if quoteAssetAmount == 0 {
		return 0, nil
	}

	invariantK, _, err := fpmath.MulDiv(quoteReserve, baseReserve, scale)
	if err != nil {
		return 0, err
	}

	var quoteAfter uint64
	switch dir {
	case AddToAMM:
		quoteAfter, err = fpmath.CheckedAdd(quoteReserve, quoteAssetAmount)
	case RemoveFromAMM:
		quoteAfter, err = fpmath.CheckedSub(quoteReserve, quoteAssetAmount)
	default:
		return 0, fmt.Errorf("invalid direction %d", dir)
	}
	if err != nil {
		return 0, err
	}

	baseAfter, remainder, err := fpmath.MulDiv(invariantK, scale, quoteAfter)
	if err != nil {
		return 0, err
	}

	baseBought := fpmath.AbsDiff(baseAfter, baseReserve)

	if remainder != 0 {
		if dir == AddToAMM {
			baseBought, err = fpmath.CheckedSub(baseBought, 1)
		} else {
			baseBought, err = fpmath.CheckedAdd(baseBought, 1)
		}
		if err != nil {
			return 0, err
		}
	}

	return baseBought, nil
}

// outputPriceWithReserves is the symmetric pricing with the base-asset side
// driving, using the same anti-trader rounding rule.
func outputPriceWithReserves(dir Direction, baseAssetAmount, quoteReserve, baseReserve, scale uint64) (uint64, error) {
	if baseAssetAmount == 0 {
		return 0, nil
	}

	invariantK, _, err := fpmath.MulDiv(quoteReserve, baseReserve, scale)
	if err != nil {
		return 0, err
	}

	var baseAfter uint64
	switch dir {
	case AddToAMM:
		baseAfter, err = fpmath.CheckedAdd(baseReserve, baseAssetAmount)
	case RemoveFromAMM:
		baseAfter, err = fpmath.CheckedSub(baseReserve, baseAssetAmount)
	default:
		return 0, fmt.Errorf("invalid direction %d", dir)
	}
	if err != nil {
		return 0, err
	}

	quoteAfter, remainder, err := fpmath.MulDiv(invariantK, scale, baseAfter)
	if err != nil {
		return 0, err
	}

	quoteSold := fpmath.AbsDiff(quoteAfter, quoteReserve)

	if remainder != 0 {
		if dir == AddToAMM {
			quoteSold, err = fpmath.CheckedSub(quoteSold, 1)
		} else {
			quoteSold, err = fpmath.CheckedAdd(quoteSold, 1)
		}
		if err != nil {
			return 0, err
		}
	}

	return quoteSold, nil
}

// SwapInput trades an exact quote-asset amount against the curve. Margin
// engine only; the market must be open. Returns the base-asset amount moved.
func (m *Market) SwapInput(caller string, block BlockInfo, dir Direction, quoteAssetAmount uint64, canOverrideFluctuation bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Open {
		return 0, ErrMarketClosed
	}
	if caller != m.cfg.MarginEngine {
		return 0, ErrUnauthorized
	}

	baseAssetAmount, err := inputPriceWithReserves(dir, quoteAssetAmount,
		m.state.QuoteAssetReserve, m.state.BaseAssetReserve, m.cfg.Decimals)
	if err != nil {
		return 0, fmt.Errorf("swap input price: %w", err)
	}

	if err := m.updateReserve(block, dir, quoteAssetAmount, baseAssetAmount, canOverrideFluctuation); err != nil {
		m.countSwapRejected(dir, err)
		return 0, err
	}

	m.logger.Debug().
		Str("market", m.id).
		Str("direction", dir.String()).
		Uint64("quote_asset_amount", quoteAssetAmount).
		Uint64("base_asset_amount", baseAssetAmount).
		Msg("swap input")
	m.countSwapApplied(dir)

	return baseAssetAmount, nil
}

// SwapOutput trades an exact base-asset amount against the curve. Margin
// engine only; the market must be open. Returns the quote-asset amount
// moved. The reserve update runs with the opposite direction from the
// requested one: the price computation models movement on the base side
// while the mutation is defined in the quote side's sense of add/remove.
// Fluctuation limits are never enforced on this path.
func (m *Market) SwapOutput(caller string, block BlockInfo, dir Direction, baseAssetAmount uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Open {
		return 0, ErrMarketClosed
	}
	if caller != m.cfg.MarginEngine {
		return 0, ErrUnauthorized
	}

	quoteAssetAmount, err := outputPriceWithReserves(dir, baseAssetAmount,
		m.state.QuoteAssetReserve, m.state.BaseAssetReserve, m.cfg.Decimals)
	if err != nil {
		return 0, fmt.Errorf("swap output price: %w", err)
	}

	if err := m.updateReserve(block, dir.Opposite(), quoteAssetAmount, baseAssetAmount, true); err != nil {
		m.countSwapRejected(dir, err)
		return 0, err
	}

	m.logger.Debug().
		Str("market", m.id).
		Str("direction", dir.String()).
		Uint64("base_asset_amount", baseAssetAmount).
		Uint64("quote_asset_amount", quoteAssetAmount).
		Msg("swap output")
	m.countSwapApplied(dir)

	return quoteAssetAmount, nil
}

// updateReserve applies a priced swap to the reserves under the fluctuation
// limit, keeps total position size in sync with the base delta, and appends
// a snapshot. Caller holds the lock. Nothing is mutated on error.
func (m *Market) updateReserve(block BlockInfo, dir Direction, quoteAssetAmount, baseAssetAmount uint64, canOverrideFluctuation bool) error {
	if err := m.checkFluctuationLimit(block, dir, quoteAssetAmount, baseAssetAmount, canOverrideFluctuation); err != nil {
		return err
	}

	baseDelta, err := fpmath.ToInt64(baseAssetAmount)
	if err != nil {
		return fmt.Errorf("base asset amount: %w", err)
	}

	next := m.state
	switch dir {
	case AddToAMM:
		next.QuoteAssetReserve, err = fpmath.CheckedAdd(m.state.QuoteAssetReserve, quoteAssetAmount)
		if err != nil {
			return fmt.Errorf("quote reserve: %w", err)
		}
		next.BaseAssetReserve, err = fpmath.CheckedSub(m.state.BaseAssetReserve, baseAssetAmount)
		if err != nil {
			return fmt.Errorf("base reserve: %w", err)
		}
		next.TotalPositionSize, err = fpmath.CheckedAddInt(m.state.TotalPositionSize, baseDelta)
		if err != nil {
			return fmt.Errorf("total position size: %w", err)
		}
	case RemoveFromAMM:
		next.BaseAssetReserve, err = fpmath.CheckedAdd(m.state.BaseAssetReserve, baseAssetAmount)
		if err != nil {
			return fmt.Errorf("base reserve: %w", err)
		}
		next.QuoteAssetReserve, err = fpmath.CheckedSub(m.state.QuoteAssetReserve, quoteAssetAmount)
		if err != nil {
			return fmt.Errorf("quote reserve: %w", err)
		}
		next.TotalPositionSize, err = fpmath.CheckedSubInt(m.state.TotalPositionSize, baseDelta)
		if err != nil {
			return fmt.Errorf("total position size: %w", err)
		}
	}

	// Reserves must remain strictly positive; a fully drained side would
	// make the curve unpriceable.
	if next.QuoteAssetReserve == 0 || next.BaseAssetReserve == 0 {
		return fmt.Errorf("reserve depleted: %w", fpmath.ErrUnderflow)
	}

	m.state = next

	snap := ReserveSnapshot{
		BlockHeight:       block.Height,
		Timestamp:         block.Time,
		QuoteAssetReserve: next.QuoteAssetReserve,
		BaseAssetReserve:  next.BaseAssetReserve,
	}
	m.snapshots.Append(snap)
	m.emit(UpdateSwap, block.Time, &snap)

	if m.metrics != nil {
		if price, err := m.spotPriceLocked(); err == nil {
			m.metrics.SpotPrice.WithLabelValues(m.id).Set(float64(price))
		}
		m.metrics.SnapshotCount.WithLabelValues(m.id).Set(float64(m.snapshots.Len()))
	}

	return nil
}

func (m *Market) countSwapApplied(dir Direction) {
	if m.metrics != nil {
		m.metrics.SwapsApplied.WithLabelValues(m.id, dir.String()).Inc()
	}
}

func (m *Market) countSwapRejected(dir Direction, err error) {
	if m.metrics != nil {
		m.metrics.SwapsRejected.WithLabelValues(m.id, rejectReason(err)).Inc()
	}
}
