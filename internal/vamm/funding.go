package vamm

import (
	"context"
	"fmt"

	fpmath "PerpVamm/internal/math"
)

// SettleFunding runs one periodic funding-rate settlement. Margin engine
// only; the market must be open; ErrSettleTooEarly before next_funding_time.
//
// The premium keeps the literal sign convention of the settlement formula:
// own (mark) TWAP minus external (index) TWAP, even though the two legs are
// named the other way around in most funding-rate literature. The stored
// funding rate is premiumFraction / indexTwap with plain truncating integer
// division.
//
// Returns the signed premium fraction applied.
func (m *Market) SettleFunding(ctx context.Context, caller string, block BlockInfo) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Open {
		return 0, ErrMarketClosed
	}
	if caller != m.cfg.MarginEngine {
		return 0, ErrUnauthorized
	}
	if block.Time < m.state.NextFundingTime {
		return 0, ErrSettleTooEarly
	}

	indexTwap, err := m.oracle.TwapPrice(ctx, m.cfg.SpotPriceTwapInterval)
	if err != nil {
		return 0, fmt.Errorf("query oracle twap: %w", err)
	}

	markTwap, err := m.snapshots.TwapPrice(block.Time, m.cfg.SpotPriceTwapInterval, m.cfg.Decimals)
	if err != nil {
		return 0, fmt.Errorf("compute mark twap: %w", err)
	}

	mark, err := fpmath.ToInt64(markTwap)
	if err != nil {
		return 0, fmt.Errorf("mark twap: %w", err)
	}
	index, err := fpmath.ToInt64(indexTwap)
	if err != nil {
		return 0, fmt.Errorf("index twap: %w", err)
	}

	premium, err := fpmath.CheckedSubInt(mark, index)
	if err != nil {
		return 0, fmt.Errorf("premium: %w", err)
	}

	premiumFraction, err := fpmath.MulDivInt(premium, m.cfg.FundingPeriod, secondsPerDay)
	if err != nil {
		return 0, fmt.Errorf("premium fraction: %w", err)
	}

	if index == 0 {
		return 0, fmt.Errorf("funding rate: %w", fpmath.ErrDivisionByZero)
	}
	fundingRate := premiumFraction / index

	// Reschedule: the hour boundary after one funding period, but never
	// sooner than the buffer floor. Rate-limits repeated settlements after
	// congestion while keeping the schedule on hour marks.
	onHour := (block.Time + m.cfg.FundingPeriod) / secondsPerHour * secondsPerHour
	bufferFloor := block.Time + m.cfg.FundingBufferPeriod
	nextFundingTime := onHour
	if bufferFloor > nextFundingTime {
		nextFundingTime = bufferFloor
	}

	m.state.FundingRate = fundingRate
	m.state.NextFundingTime = nextFundingTime

	m.logger.Info().
		Str("market", m.id).
		Int64("premium_fraction", premiumFraction).
		Int64("funding_rate", fundingRate).
		Int64("next_funding_time", nextFundingTime).
		Msg("funding settled")

	if m.metrics != nil {
		m.metrics.FundingSettled.WithLabelValues(m.id).Inc()
		m.metrics.FundingRate.WithLabelValues(m.id).Set(float64(fundingRate))
	}

	m.emit(UpdateFunding, block.Time, nil)
	return premiumFraction, nil
}
