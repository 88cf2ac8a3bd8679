package vamm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	fpmath "PerpVamm/internal/math"
)

const (
	testOwner  = "market-owner"
	testEngine = "margin-engine"
	testScale  = uint64(1_000_000)

	genesisHeight = int64(1)
	genesisTime   = int64(1_000_000)
)

type stubOracle struct {
	price uint64
	twap  uint64
	err   error
}

func (o *stubOracle) Price(context.Context) (uint64, error) {
	return o.price, o.err
}

func (o *stubOracle) TwapPrice(context.Context, int64) (uint64, error) {
	return o.twap, o.err
}

// newTestMarket builds a closed market with 1e9 quote / 1e8 base reserves
// (spot price 10x scale) and a genesis snapshot at block 1.
func newTestMarket(t *testing.T, mutate func(*Params)) *Market {
	t.Helper()

	p := Params{
		ID: "ubtc:uusd",
		Config: Config{
			Owner:                 testOwner,
			MarginEngine:          testEngine,
			PriceFeed:             "oracle",
			QuoteAsset:            "uusd",
			BaseAsset:             "ubtc",
			Decimals:              testScale,
			TollRatio:             100_000,
			FundingPeriod:         3600,
			FundingBufferPeriod:   600,
			SpotPriceTwapInterval: 3600,
		},
		QuoteAssetReserve: 1_000_000_000,
		BaseAssetReserve:  100_000_000,
		Oracle:            &stubOracle{price: 10 * testScale, twap: 10 * testScale},
		Logger:            zerolog.Nop(),
		Genesis:           BlockInfo{Height: genesisHeight, Time: genesisTime},
	}
	if mutate != nil {
		mutate(&p)
	}

	m, err := NewMarket(p)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return m
}

func openTestMarket(t *testing.T, m *Market) {
	t.Helper()
	if err := m.SetOpen(testOwner, BlockInfo{Height: genesisHeight, Time: genesisTime}, true); err != nil {
		t.Fatalf("SetOpen: %v", err)
	}
}

func TestNewMarketValidation(t *testing.T) {
	base := func() Params {
		return Params{
			ID: "m",
			Config: Config{
				Owner:                 testOwner,
				MarginEngine:          testEngine,
				Decimals:              testScale,
				FundingPeriod:         3600,
				SpotPriceTwapInterval: 3600,
			},
			QuoteAssetReserve: 100,
			BaseAssetReserve:  100,
			Oracle:            &stubOracle{},
			Logger:            zerolog.Nop(),
		}
	}

	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing id", func(p *Params) { p.ID = "" }},
		{"zero decimals", func(p *Params) { p.Config.Decimals = 0 }},
		{"missing owner", func(p *Params) { p.Config.Owner = "" }},
		{"missing margin engine", func(p *Params) { p.Config.MarginEngine = "" }},
		{"zero quote reserve", func(p *Params) { p.QuoteAssetReserve = 0 }},
		{"zero base reserve", func(p *Params) { p.BaseAssetReserve = 0 }},
		{"nil oracle", func(p *Params) { p.Oracle = nil }},
		{"zero funding period", func(p *Params) { p.Config.FundingPeriod = 0 }},
		{"zero twap interval", func(p *Params) { p.Config.SpotPriceTwapInterval = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base()
			tc.mutate(&p)
			if _, err := NewMarket(p); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNewMarketResume(t *testing.T) {
	persisted := State{
		Open:              true,
		QuoteAssetReserve: 1_600_000_000,
		BaseAssetReserve:  62_500_000,
		TotalPositionSize: 37_500_000,
		FundingRate:       -41_666,
		NextFundingTime:   genesisTime + 7200,
	}

	m := newTestMarket(t, func(p *Params) {
		p.Resume = &persisted
	})

	if got := m.State(); got != persisted {
		t.Fatalf("resumed state = %+v, want %+v", got, persisted)
	}

	// An open market resumes trading without a fresh SetOpen; the funding
	// schedule and signed position total carry forward through the swap.
	base, err := m.SwapInput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10},
		RemoveFromAMM, 600_000_000, false)
	if err != nil {
		t.Fatalf("SwapInput on resumed market: %v", err)
	}

	st := m.State()
	if st.TotalPositionSize != persisted.TotalPositionSize-int64(base) {
		t.Errorf("total position size = %d, want %d",
			st.TotalPositionSize, persisted.TotalPositionSize-int64(base))
	}
	if st.NextFundingTime != persisted.NextFundingTime {
		t.Errorf("next funding time = %d, want %d", st.NextFundingTime, persisted.NextFundingTime)
	}
	if st.FundingRate != persisted.FundingRate {
		t.Errorf("funding rate = %d, want %d", st.FundingRate, persisted.FundingRate)
	}
}

func TestNewMarketResumeRejectsZeroReserves(t *testing.T) {
	p := Params{
		ID: "m",
		Config: Config{
			Owner:                 testOwner,
			MarginEngine:          testEngine,
			Decimals:              testScale,
			FundingPeriod:         3600,
			SpotPriceTwapInterval: 3600,
		},
		QuoteAssetReserve: 100,
		BaseAssetReserve:  100,
		Resume:            &State{Open: true, QuoteAssetReserve: 100},
		Oracle:            &stubOracle{},
		Logger:            zerolog.Nop(),
	}
	if _, err := NewMarket(p); err == nil {
		t.Fatal("expected error for resumed state with a zero reserve, got nil")
	}
}

func TestSetOpen(t *testing.T) {
	m := newTestMarket(t, nil)

	if err := m.SetOpen("stranger", BlockInfo{Height: 1, Time: genesisTime}, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner SetOpen: got %v, want ErrUnauthorized", err)
	}

	if err := m.SetOpen(testOwner, BlockInfo{Height: 1, Time: genesisTime}, true); err != nil {
		t.Fatalf("SetOpen: %v", err)
	}

	st := m.State()
	if !st.Open {
		t.Fatal("market should be open")
	}
	if want := genesisTime + 3600; st.NextFundingTime != want {
		t.Fatalf("NextFundingTime = %d, want %d", st.NextFundingTime, want)
	}

	// Re-opening an open market is rejected like an unauthorized call.
	if err := m.SetOpen(testOwner, BlockInfo{Height: 2, Time: genesisTime + 1}, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("redundant SetOpen: got %v, want ErrUnauthorized", err)
	}

	if err := m.SetOpen(testOwner, BlockInfo{Height: 2, Time: genesisTime + 1}, false); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.State().Open {
		t.Fatal("market should be closed")
	}
}

func TestUpdateConfig(t *testing.T) {
	m := newTestMarket(t, nil)

	toll := uint64(200_000)
	if err := m.UpdateConfig("stranger", ConfigUpdate{TollRatio: &toll}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner UpdateConfig: got %v, want ErrUnauthorized", err)
	}

	if err := m.UpdateConfig(testOwner, ConfigUpdate{TollRatio: &toll}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := m.Config().TollRatio; got != toll {
		t.Fatalf("TollRatio = %d, want %d", got, toll)
	}

	empty := ""
	if err := m.UpdateConfig(testOwner, ConfigUpdate{Owner: &empty}); err == nil {
		t.Fatal("empty owner should be rejected")
	}
	if got := m.Config().Owner; got != testOwner {
		t.Fatalf("owner changed to %q on failed update", got)
	}

	bad := int64(0)
	if err := m.UpdateConfig(testOwner, ConfigUpdate{SpotPriceTwapInterval: &bad}); err == nil {
		t.Fatal("non-positive twap interval should be rejected")
	}
}

func TestSpotPrice(t *testing.T) {
	m := newTestMarket(t, nil)
	price, err := m.SpotPrice()
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	if want := 10 * testScale; price != want {
		t.Fatalf("SpotPrice = %d, want %d", price, want)
	}
}

func TestCalcFee(t *testing.T) {
	m := newTestMarket(t, func(p *Params) {
		p.Config.SpreadRatio = 50_000
	})

	fees, err := m.CalcFee(600_000_000)
	if err != nil {
		t.Fatalf("CalcFee: %v", err)
	}
	if fees.TollFee != 60_000_000 {
		t.Fatalf("TollFee = %d, want 60000000", fees.TollFee)
	}
	if fees.SpreadFee != 30_000_000 {
		t.Fatalf("SpreadFee = %d, want 30000000", fees.SpreadFee)
	}
}

func TestIsOverSpreadLimit(t *testing.T) {
	ctx := context.Background()

	oracle := &stubOracle{price: 10 * testScale}
	m := newTestMarket(t, func(p *Params) { p.Oracle = oracle })

	over, err := m.IsOverSpreadLimit(ctx)
	if err != nil {
		t.Fatalf("IsOverSpreadLimit: %v", err)
	}
	if over {
		t.Fatal("aligned prices should not be over the spread limit")
	}

	// |10 - 9| / 9 = 11.1% of scale, over the 10% cap.
	oracle.price = 9 * testScale
	over, err = m.IsOverSpreadLimit(ctx)
	if err != nil {
		t.Fatalf("IsOverSpreadLimit: %v", err)
	}
	if !over {
		t.Fatal("11% divergence should be over the spread limit")
	}

	oracle.price = 0
	if _, err := m.IsOverSpreadLimit(ctx); !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("zero oracle price: got %v, want ErrDivisionByZero", err)
	}
}

func TestMarketEmitsUpdates(t *testing.T) {
	updates := make(chan Update, 8)
	m := newTestMarket(t, func(p *Params) { p.Updates = updates })

	openTestMarket(t, m)

	upd := <-updates
	if upd.Kind != UpdateOpen {
		t.Fatalf("first update kind = %q, want %q", upd.Kind, UpdateOpen)
	}
	if upd.Snapshot != nil {
		t.Fatal("open update should not carry a snapshot")
	}

	if _, err := m.SwapInput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10}, AddToAMM, 600_000_000, false); err != nil {
		t.Fatalf("SwapInput: %v", err)
	}

	upd = <-updates
	if upd.Kind != UpdateSwap {
		t.Fatalf("swap update kind = %q, want %q", upd.Kind, UpdateSwap)
	}
	if upd.Snapshot == nil {
		t.Fatal("swap update should carry a snapshot")
	}
	if upd.Snapshot.QuoteAssetReserve != 1_600_000_000 || upd.Snapshot.BaseAssetReserve != 62_500_000 {
		t.Fatalf("snapshot reserves = (%d, %d), want (1600000000, 62500000)",
			upd.Snapshot.QuoteAssetReserve, upd.Snapshot.BaseAssetReserve)
	}
	if upd.State.TotalPositionSize != 37_500_000 {
		t.Fatalf("TotalPositionSize = %d, want 37500000", upd.State.TotalPositionSize)
	}
}
