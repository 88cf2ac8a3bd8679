package vamm

import "fmt"

// Config holds the admin-mutable parameters of one market. Ratios are
// fixed-point fractions scaled by Decimals; periods and intervals are in
// seconds. Created once at market creation and mutated only through
// UpdateConfig by the owner.
type Config struct {
	Owner        string `json:"owner"`
	MarginEngine string `json:"margin_engine"`
	PriceFeed    string `json:"pricefeed"`

	QuoteAsset string `json:"quote_asset"`
	BaseAsset  string `json:"base_asset"`

	// Decimals is the fixed-point scale factor itself (10^d.p.), not the
	// number of decimal places.
	Decimals uint64 `json:"decimals"`

	TollRatio             uint64 `json:"toll_ratio"`
	SpreadRatio           uint64 `json:"spread_ratio"`
	FluctuationLimitRatio uint64 `json:"fluctuation_limit_ratio"`

	FundingPeriod         int64 `json:"funding_period"`
	FundingBufferPeriod   int64 `json:"funding_buffer_period"`
	SpotPriceTwapInterval int64 `json:"spot_price_twap_interval"`
}

func (c Config) validate() error {
	if c.Decimals == 0 {
		return fmt.Errorf("config: decimals scale must be positive")
	}
	if c.Owner == "" {
		return fmt.Errorf("config: owner is required")
	}
	if c.MarginEngine == "" {
		return fmt.Errorf("config: margin engine is required")
	}
	if c.FundingPeriod <= 0 {
		return fmt.Errorf("config: funding period must be positive")
	}
	if c.SpotPriceTwapInterval <= 0 {
		return fmt.Errorf("config: spot price twap interval must be positive")
	}
	return nil
}

// ConfigUpdate carries the whitelisted fields UpdateConfig may change. Nil
// fields are left untouched. Asset labels, the decimal scale, and the
// funding periods are fixed for the market's lifetime.
type ConfigUpdate struct {
	Owner                 *string `json:"owner,omitempty"`
	MarginEngine          *string `json:"margin_engine,omitempty"`
	PriceFeed             *string `json:"pricefeed,omitempty"`
	TollRatio             *uint64 `json:"toll_ratio,omitempty"`
	SpreadRatio           *uint64 `json:"spread_ratio,omitempty"`
	FluctuationLimitRatio *uint64 `json:"fluctuation_limit_ratio,omitempty"`
	SpotPriceTwapInterval *int64  `json:"spot_price_twap_interval,omitempty"`
}

func (u ConfigUpdate) apply(c *Config) error {
	if u.Owner != nil {
		if *u.Owner == "" {
			return fmt.Errorf("config update: owner cannot be empty")
		}
		c.Owner = *u.Owner
	}
	if u.MarginEngine != nil {
		if *u.MarginEngine == "" {
			return fmt.Errorf("config update: margin engine cannot be empty")
		}
		c.MarginEngine = *u.MarginEngine
	}
	if u.PriceFeed != nil {
		c.PriceFeed = *u.PriceFeed
	}
	if u.TollRatio != nil {
		c.TollRatio = *u.TollRatio
	}
	if u.SpreadRatio != nil {
		c.SpreadRatio = *u.SpreadRatio
	}
	if u.FluctuationLimitRatio != nil {
		c.FluctuationLimitRatio = *u.FluctuationLimitRatio
	}
	if u.SpotPriceTwapInterval != nil {
		if *u.SpotPriceTwapInterval <= 0 {
			return fmt.Errorf("config update: twap interval must be positive")
		}
		c.SpotPriceTwapInterval = *u.SpotPriceTwapInterval
	}
	return nil
}
