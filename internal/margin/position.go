package margin

import (
	"context"

	"PerpVamm/internal/vamm"
)

// Position is a trader's open position as held by the external position
// ledger. The calculator reads it and never writes it.
type Position struct {
	Trader    string         `json:"trader"`
	Direction vamm.Direction `json:"direction"`
	Size      int64          `json:"size"`
	Margin    uint64         `json:"margin"`
	Notional  uint64         `json:"notional"`
}

// PositionSource looks up the existing position for a trader in a market. A
// trader with no open position gets the zero Position.
type PositionSource interface {
	Position(ctx context.Context, marketID, trader string) (Position, error)
}

// FeeConfig is the slice of market config the calculator consumes. Only the
// toll ratio enters the funds-needed fee; the spread fee belongs to the
// market's own fee calculation and is settled there.
type FeeConfig struct {
	TollRatio uint64
	Scale     uint64
}

// FeeSource exposes a market's fee configuration.
type FeeSource interface {
	FeeConfig(ctx context.Context, marketID string) (FeeConfig, error)
}
