// Package query serves read-only market lookups for the HTTP API. Every
// query goes to the live in-memory market, not the persisted rows, so
// responses always reflect the last committed operation.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PerpVamm/internal/observability"
	"PerpVamm/internal/vamm"
)

var ErrMarketNotFound = errors.New("query: market not found")

// Registry resolves market IDs to live market instances.
type Registry interface {
	Market(id string) (*vamm.Market, bool)
	MarketIDs() []string
}

type Service struct {
	markets Registry
	metrics *observability.Metrics
}

func NewService(markets Registry, metrics *observability.Metrics) *Service {
	return &Service{markets: markets, metrics: metrics}
}

// MarketIDs lists the registered markets.
func (s *Service) MarketIDs() []string {
	return s.markets.MarketIDs()
}

func (s *Service) market(id string) (*vamm.Market, error) {
	m, ok := s.markets.Market(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrMarketNotFound)
	}
	return m, nil
}

// observe records request count and latency for one endpoint; the returned
// func takes the final error.
func (s *Service) observe(endpoint string) func(error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	}
	return func(err error) {
		if s.metrics == nil {
			return
		}
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
		}
	}
}

func (s *Service) Config(marketID string) (cfg vamm.Config, err error) {
	done := s.observe("config")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return vamm.Config{}, err
	}
	return m.Config(), nil
}

func (s *Service) State(marketID string) (st vamm.State, err error) {
	done := s.observe("state")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return vamm.State{}, err
	}
	return m.State(), nil
}

func (s *Service) SpotPrice(marketID string) (price uint64, err error) {
	done := s.observe("spot_price")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return 0, err
	}
	return m.SpotPrice()
}

func (s *Service) TwapPrice(marketID string, now, interval int64) (price uint64, err error) {
	done := s.observe("twap_price")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return 0, err
	}
	return m.TwapPrice(now, interval)
}

func (s *Service) InputPrice(marketID string, dir vamm.Direction, quoteAssetAmount uint64) (amount uint64, err error) {
	done := s.observe("input_price")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return 0, err
	}
	return m.InputPrice(dir, quoteAssetAmount)
}

func (s *Service) OutputPrice(marketID string, dir vamm.Direction, baseAssetAmount uint64) (amount uint64, err error) {
	done := s.observe("output_price")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return 0, err
	}
	return m.OutputPrice(dir, baseAssetAmount)
}

func (s *Service) CalcFee(marketID string, quoteAssetAmount uint64) (fees vamm.FeeCalculation, err error) {
	done := s.observe("calc_fee")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return vamm.FeeCalculation{}, err
	}
	return m.CalcFee(quoteAssetAmount)
}

func (s *Service) IsOverSpreadLimit(ctx context.Context, marketID string) (over bool, err error) {
	done := s.observe("is_over_spread_limit")
	defer func() { done(err) }()

	m, err := s.market(marketID)
	if err != nil {
		return false, err
	}
	return m.IsOverSpreadLimit(ctx)
}
