package pricefeed

import (
	"context"
	"time"
)

// Oracle binds a Feed to one key and satisfies the market's price-oracle
// interface. The clock is injectable; the market core itself never reads
// wall time.
type Oracle struct {
	feed *Feed
	key  string
	now  func() int64
}

// Oracle returns a market-facing view over one key. A nil now defaults to
// the wall clock.
func (f *Feed) Oracle(key string, now func() int64) *Oracle {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Oracle{feed: f, key: key, now: now}
}

// Price returns the latest recorded price for the bound key.
func (o *Oracle) Price(ctx context.Context) (uint64, error) {
	return o.feed.Price(o.key)
}

// TwapPrice returns the trailing time-weighted average for the bound key.
func (o *Oracle) TwapPrice(ctx context.Context, interval int64) (uint64, error) {
	return o.feed.TwapPrice(o.key, o.now(), interval)
}
