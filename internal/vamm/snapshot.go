package vamm

import (
	"sort"

	fpmath "PerpVamm/internal/math"
)

// ReserveSnapshot is an immutable record of the reserves after a successful
// update. Snapshots are appended in time order and never mutated or removed.
type ReserveSnapshot struct {
	BlockHeight       int64  `json:"block_height"`
	Timestamp         int64  `json:"timestamp"`
	QuoteAssetReserve uint64 `json:"quote_asset_reserve"`
	BaseAssetReserve  uint64 `json:"base_asset_reserve"`
}

// SnapshotLog is the append-only reserve history of one market. Records are
// held in an insertion-ordered arena; time-range lookups binary-search on
// the timestamp column.
type SnapshotLog struct {
	snaps []ReserveSnapshot
}

func NewSnapshotLog() *SnapshotLog {
	return &SnapshotLog{}
}

// Append adds a snapshot. O(1); the log trusts callers to append in time
// order, which holds because every append happens inside a market operation.
func (l *SnapshotLog) Append(s ReserveSnapshot) {
	l.snaps = append(l.snaps, s)
}

func (l *SnapshotLog) Len() int {
	return len(l.snaps)
}

// At returns the snapshot at insertion index i.
func (l *SnapshotLog) At(i int) ReserveSnapshot {
	return l.snaps[i]
}

// Latest returns the most recent snapshot.
func (l *SnapshotLog) Latest() (ReserveSnapshot, bool) {
	if len(l.snaps) == 0 {
		return ReserveSnapshot{}, false
	}
	return l.snaps[len(l.snaps)-1], true
}

// BlockOpening returns the snapshot in effect when the given block started:
// the latest snapshot recorded in an earlier block. Falls back to the oldest
// snapshot when every record belongs to the current block, so the limiter
// always has a reference price.
func (l *SnapshotLog) BlockOpening(height int64) (ReserveSnapshot, bool) {
	if len(l.snaps) == 0 {
		return ReserveSnapshot{}, false
	}
	for i := len(l.snaps) - 1; i >= 0; i-- {
		if l.snaps[i].BlockHeight < height {
			return l.snaps[i], true
		}
	}
	return l.snaps[0], true
}

// AsOf returns the last snapshot with Timestamp <= ts.
func (l *SnapshotLog) AsOf(ts int64) (ReserveSnapshot, bool) {
	// First index with Timestamp > ts.
	i := sort.Search(len(l.snaps), func(i int) bool {
		return l.snaps[i].Timestamp > ts
	})
	if i == 0 {
		return ReserveSnapshot{}, false
	}
	return l.snaps[i-1], true
}

// spotPrice is the instantaneous quote-per-base price of a snapshot.
func (s ReserveSnapshot) spotPrice(scale uint64) (uint64, error) {
	price, _, err := fpmath.MulDiv(s.QuoteAssetReserve, scale, s.BaseAssetReserve)
	return price, err
}

// TwapPrice walks the history backward from now, weighting each interval's
// spot price by its duration. The oldest partial interval is clipped to the
// window boundary; when the window predates the first snapshot only the time
// since market open carries weight. ErrDivisionByZero when no time elapsed.
func (l *SnapshotLog) TwapPrice(now, window int64, scale uint64) (uint64, error) {
	if len(l.snaps) == 0 {
		return 0, fpmath.ErrDivisionByZero
	}

	baseTime := now - window
	acc := fpmath.NewTimeWeighted()
	intervalEnd := now

	for i := len(l.snaps) - 1; i >= 0; i-- {
		snap := l.snaps[i]
		price, err := snap.spotPrice(scale)
		if err != nil {
			return 0, err
		}

		if snap.Timestamp <= baseTime {
			acc.Observe(price, intervalEnd-baseTime)
			break
		}

		acc.Observe(price, intervalEnd-snap.Timestamp)
		intervalEnd = snap.Timestamp
	}

	return acc.Average()
}
