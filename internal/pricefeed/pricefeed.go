// Package pricefeed keeps append-only price histories keyed by asset pair and
// serves spot and time-weighted average prices from them. The funding settler
// consumes it through the market's oracle interface.
package pricefeed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	fpmath "PerpVamm/internal/math"
)

var (
	ErrNoPrice      = errors.New("pricefeed: no price recorded for key")
	ErrStaleAppend  = errors.New("pricefeed: timestamp older than latest entry")
	ErrUnauthorized = errors.New("pricefeed: unauthorized")
)

// PriceEntry is one recorded observation.
type PriceEntry struct {
	Timestamp int64  `json:"timestamp"`
	Price     uint64 `json:"price"`
}

// Feed holds per-key price histories. Entries are append-only and
// time-ordered per key.
type Feed struct {
	mu      sync.Mutex
	owner   string
	entries map[string][]PriceEntry
	logger  zerolog.Logger
}

func NewFeed(owner string, logger zerolog.Logger) *Feed {
	return &Feed{
		owner:   owner,
		entries: make(map[string][]PriceEntry),
		logger:  logger,
	}
}

// AppendPrice records an observation for a key. Owner only; out-of-order
// timestamps are rejected so the TWAP walk stays well-defined.
func (f *Feed) AppendPrice(caller, key string, ts int64, price uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		return ErrUnauthorized
	}

	hist := f.entries[key]
	if n := len(hist); n > 0 && ts < hist[n-1].Timestamp {
		return fmt.Errorf("append %s at %d: %w", key, ts, ErrStaleAppend)
	}

	f.entries[key] = append(hist, PriceEntry{Timestamp: ts, Price: price})
	f.logger.Debug().Str("key", key).Int64("timestamp", ts).Uint64("price", price).Msg("price appended")
	return nil
}

// Price returns the latest recorded price for a key.
func (f *Feed) Price(key string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hist := f.entries[key]
	if len(hist) == 0 {
		return 0, fmt.Errorf("%s: %w", key, ErrNoPrice)
	}
	return hist[len(hist)-1].Price, nil
}

// TwapPrice is the time-weighted average over the trailing window ending at
// now. The walk mirrors the market's own reserve TWAP: each interval's price
// weighted by its duration, the oldest interval clipped to the window
// boundary, and only the time since the first entry counted when the window
// reaches further back.
func (f *Feed) TwapPrice(key string, now, window int64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hist := f.entries[key]
	if len(hist) == 0 {
		return 0, fmt.Errorf("%s: %w", key, ErrNoPrice)
	}

	baseTime := now - window
	acc := fpmath.NewTimeWeighted()
	intervalEnd := now

	for i := len(hist) - 1; i >= 0; i-- {
		e := hist[i]
		if e.Timestamp <= baseTime {
			acc.Observe(e.Price, intervalEnd-baseTime)
			break
		}
		acc.Observe(e.Price, intervalEnd-e.Timestamp)
		intervalEnd = e.Timestamp
	}

	return acc.Average()
}
