package vamm

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	fpmath "PerpVamm/internal/math"
	"PerpVamm/internal/observability"
)

const (
	secondsPerHour = 3600
	secondsPerDay  = 86400
)

// PriceOracle is the external price-feed collaborator. The funding settler
// is the sole consumer of TwapPrice; IsOverSpreadLimit uses Price.
type PriceOracle interface {
	Price(ctx context.Context) (uint64, error)
	TwapPrice(ctx context.Context, interval int64) (uint64, error)
}

// Market is one vAMM market instance: config, mutable state, and the reserve
// snapshot history. Every entry point runs under the market lock as one
// atomic operation; a failed call leaves no partial mutation behind.
type Market struct {
	mu        sync.Mutex
	id        string
	cfg       Config
	state     State
	snapshots *SnapshotLog
	oracle    PriceOracle
	logger    zerolog.Logger
	metrics   *observability.Metrics
	updates   chan<- Update
}

// Params configures a new market. Updates is an optional write-behind sink;
// sends on it block, so a consumer must drain it for the market to make
// progress. Resume, when set, seeds the whole mutable state from a persisted
// record and takes precedence over QuoteAssetReserve and BaseAssetReserve.
type Params struct {
	ID                string
	Config            Config
	QuoteAssetReserve uint64
	BaseAssetReserve  uint64
	Resume            *State
	Oracle            PriceOracle
	Logger            zerolog.Logger
	Metrics           *observability.Metrics
	Updates           chan<- Update
	Genesis           BlockInfo
}

// NewMarket validates params and creates a market with a genesis reserve
// snapshot. A fresh market starts closed and trading begins once the owner
// calls SetOpen; a resumed market carries the persisted open flag, position
// total, and funding schedule forward.
func NewMarket(p Params) (*Market, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("vamm: market id is required")
	}
	if err := p.Config.validate(); err != nil {
		return nil, fmt.Errorf("vamm %s: %w", p.ID, err)
	}

	state := State{
		QuoteAssetReserve: p.QuoteAssetReserve,
		BaseAssetReserve:  p.BaseAssetReserve,
	}
	if p.Resume != nil {
		state = *p.Resume
	}
	if state.QuoteAssetReserve == 0 || state.BaseAssetReserve == 0 {
		return nil, fmt.Errorf("vamm %s: initial reserves must be strictly positive", p.ID)
	}
	if p.Oracle == nil {
		return nil, fmt.Errorf("vamm %s: price oracle is required", p.ID)
	}

	m := &Market{
		id:        p.ID,
		cfg:       p.Config,
		state:     state,
		snapshots: NewSnapshotLog(),
		oracle:    p.Oracle,
		logger:    p.Logger,
		metrics:   p.Metrics,
		updates:   p.Updates,
	}

	m.snapshots.Append(ReserveSnapshot{
		BlockHeight:       p.Genesis.Height,
		Timestamp:         p.Genesis.Time,
		QuoteAssetReserve: state.QuoteAssetReserve,
		BaseAssetReserve:  state.BaseAssetReserve,
	})

	return m, nil
}

func (m *Market) ID() string {
	return m.id
}

// Config returns a copy of the current config.
func (m *Market) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// State returns a copy of the current state.
func (m *Market) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SnapshotCount reports the length of the reserve history.
func (m *Market) SnapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots.Len()
}

// SetOpen enables or disables trading. Owner only; a toggle to the current
// value is rejected the same way an unauthorized caller is. Opening the
// market schedules the first funding settlement on the next period boundary.
func (m *Market) SetOpen(caller string, block BlockInfo, open bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.cfg.Owner || m.state.Open == open {
		return ErrUnauthorized
	}

	m.state.Open = open
	if open {
		m.state.NextFundingTime = block.Time +
			m.cfg.FundingPeriod/secondsPerHour*secondsPerHour
	}

	m.logger.Info().
		Str("market", m.id).
		Bool("open", open).
		Int64("next_funding_time", m.state.NextFundingTime).
		Msg("market open flag changed")

	m.emit(UpdateOpen, block.Time, nil)
	return nil
}

// UpdateConfig applies whitelisted config changes. Owner only.
func (m *Market) UpdateConfig(caller string, upd ConfigUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.cfg.Owner {
		return ErrUnauthorized
	}

	next := m.cfg
	if err := upd.apply(&next); err != nil {
		return err
	}
	m.cfg = next

	m.logger.Info().Str("market", m.id).Msg("config updated")
	return nil
}

// SpotPrice returns the instantaneous quote-per-base price.
func (m *Market) SpotPrice() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spotPriceLocked()
}

func (m *Market) spotPriceLocked() (uint64, error) {
	price, _, err := fpmath.MulDiv(
		m.state.QuoteAssetReserve, m.cfg.Decimals, m.state.BaseAssetReserve)
	return price, err
}

// TwapPrice returns the time-weighted average price over the trailing
// window ending at now.
func (m *Market) TwapPrice(now, interval int64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots.TwapPrice(now, interval, m.cfg.Decimals)
}

// InputPrice quotes the base amount a hypothetical quote-asset swap would
// return against the current reserves. Read-only.
func (m *Market) InputPrice(dir Direction, quoteAssetAmount uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return inputPriceWithReserves(dir, quoteAssetAmount,
		m.state.QuoteAssetReserve, m.state.BaseAssetReserve, m.cfg.Decimals)
}

// OutputPrice quotes the quote amount a hypothetical base-asset swap would
// move against the current reserves. Read-only.
func (m *Market) OutputPrice(dir Direction, baseAssetAmount uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return outputPriceWithReserves(dir, baseAssetAmount,
		m.state.QuoteAssetReserve, m.state.BaseAssetReserve, m.cfg.Decimals)
}

// FeeCalculation is the fee breakdown for a notional amount.
type FeeCalculation struct {
	TollFee   uint64 `json:"toll_fee"`
	SpreadFee uint64 `json:"spread_fee"`
}

// CalcFee computes the toll and spread fees owed on a quote-asset notional.
func (m *Market) CalcFee(quoteAssetAmount uint64) (FeeCalculation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	toll, _, err := fpmath.MulDiv(quoteAssetAmount, m.cfg.TollRatio, m.cfg.Decimals)
	if err != nil {
		return FeeCalculation{}, fmt.Errorf("calc toll fee: %w", err)
	}
	spread, _, err := fpmath.MulDiv(quoteAssetAmount, m.cfg.SpreadRatio, m.cfg.Decimals)
	if err != nil {
		return FeeCalculation{}, fmt.Errorf("calc spread fee: %w", err)
	}
	return FeeCalculation{TollFee: toll, SpreadFee: spread}, nil
}

// maxOracleSpreadRatio caps mark/oracle divergence at 10% of scale.
func (m *Market) maxOracleSpreadRatio() uint64 {
	return m.cfg.Decimals / 10
}

// IsOverSpreadLimit reports whether the mark price has diverged from the
// oracle spot price by 10% or more.
func (m *Market) IsOverSpreadLimit(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oraclePrice, err := m.oracle.Price(ctx)
	if err != nil {
		return false, fmt.Errorf("query oracle price: %w", err)
	}
	if oraclePrice == 0 {
		return false, fpmath.ErrDivisionByZero
	}

	spot, err := m.spotPriceLocked()
	if err != nil {
		return false, err
	}

	spread, _, err := fpmath.MulDiv(
		fpmath.AbsDiff(spot, oraclePrice), m.cfg.Decimals, oraclePrice)
	if err != nil {
		return false, err
	}
	return spread >= m.maxOracleSpreadRatio(), nil
}

// emit sends a write-behind update to the configured sink. The send blocks
// until the persistence side drains it, mirroring state commits in order.
func (m *Market) emit(kind UpdateKind, ts int64, snap *ReserveSnapshot) {
	if m.updates == nil {
		return
	}
	m.updates <- Update{
		MarketID:  m.id,
		Kind:      kind,
		State:     m.state,
		Snapshot:  snap,
		Timestamp: ts,
	}
}
