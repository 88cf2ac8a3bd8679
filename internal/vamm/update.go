package vamm

// UpdateKind labels what mutated the market.
type UpdateKind string

const (
	UpdateSwap    UpdateKind = "swap"
	UpdateFunding UpdateKind = "funding"
	UpdateOpen    UpdateKind = "set_open"
)

// Update is the write-behind record emitted after every committed mutation.
// Snapshot is non-nil only for reserve updates. Consumers persist and
// publish it; failures downstream never un-commit market state.
type Update struct {
	MarketID  string           `json:"market_id"`
	Kind      UpdateKind       `json:"kind"`
	State     State            `json:"state"`
	Snapshot  *ReserveSnapshot `json:"snapshot,omitempty"`
	Timestamp int64            `json:"timestamp"`
}
