package vamm

// State is the mutable market state. Reserves are fixed-point amounts scaled
// by Config.Decimals and stay strictly positive after every successful
// operation. TotalPositionSize is the signed sum of every base-asset delta
// applied through a swap since the market opened. Only the swap engine and
// the funding settler mutate this struct.
type State struct {
	Open              bool   `json:"open"`
	QuoteAssetReserve uint64 `json:"quote_asset_reserve"`
	BaseAssetReserve  uint64 `json:"base_asset_reserve"`
	TotalPositionSize int64  `json:"total_position_size"`
	FundingRate       int64  `json:"funding_rate"`
	NextFundingTime   int64  `json:"next_funding_time"`
}

// BlockInfo identifies the block a call executes in. The core never reads a
// wall clock; callers supply height and time with every mutating operation.
type BlockInfo struct {
	Height int64
	Time   int64 // unix seconds
}
