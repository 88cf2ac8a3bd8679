package margin_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"PerpVamm/internal/margin"
	"PerpVamm/internal/vamm"
)

const scale = 1_000_000 // 6 decimal places

type stubFees struct {
	cfg margin.FeeConfig
}

func (s stubFees) FeeConfig(ctx context.Context, marketID string) (margin.FeeConfig, error) {
	return s.cfg, nil
}

type stubPositions struct {
	pos margin.Position
}

func (s stubPositions) Position(ctx context.Context, marketID, trader string) (margin.Position, error) {
	return s.pos, nil
}

func newCalculator(t *testing.T, cfg margin.FeeConfig, pos margin.Position) *margin.Calculator {
	t.Helper()
	return margin.NewCalculator(stubFees{cfg: cfg}, stubPositions{pos: pos}, zerolog.Nop())
}

func TestFundsNeededOpenFreshLong(t *testing.T) {
	// 10% toll, 60M margin at 10x leverage: 60M fee on the 600M notional
	// plus the full 60M margin.
	calc := newCalculator(t,
		margin.FeeConfig{TollRatio: 100_000, Scale: scale},
		margin.Position{},
	)

	req, err := calc.FundsNeeded(context.Background(), "ubtc:uusd", "alice",
		60_000_000, 10*scale, vamm.SideBuy)
	if err != nil {
		t.Fatalf("FundsNeeded: %v", err)
	}

	if req.FeeAmount != 60_000_000 {
		t.Errorf("fee amount = %d, want 60000000", req.FeeAmount)
	}
	if req.MarginOwed != 60_000_000 {
		t.Errorf("margin owed = %d, want 60000000", req.MarginOwed)
	}
	if req.FundsOwed != 120_000_000 {
		t.Errorf("funds owed = %d, want 120000000", req.FundsOwed)
	}
}

func TestFundsNeededIncreaseExistingSide(t *testing.T) {
	calc := newCalculator(t,
		margin.FeeConfig{TollRatio: 10_000, Scale: scale},
		margin.Position{
			Direction: vamm.RemoveFromAMM,
			Size:      -25_000_000,
			Margin:    40_000_000,
			Notional:  400_000_000,
		},
	)

	// A short position grows on a sell: margin owed is the full new amount.
	req, err := calc.FundsNeeded(context.Background(), "ubtc:uusd", "bob",
		20_000_000, 5*scale, vamm.SideSell)
	if err != nil {
		t.Fatalf("FundsNeeded: %v", err)
	}

	// 1% toll applied to 20M, then scaled by 5x leverage.
	if req.FeeAmount != 1_000_000 {
		t.Errorf("fee amount = %d, want 1000000", req.FeeAmount)
	}
	if req.MarginOwed != 20_000_000 {
		t.Errorf("margin owed = %d, want 20000000", req.MarginOwed)
	}
	if req.FundsOwed != 21_000_000 {
		t.Errorf("funds owed = %d, want 21000000", req.FundsOwed)
	}
}

func TestFundsNeededShrinkTakesFeeOnly(t *testing.T) {
	calc := newCalculator(t,
		margin.FeeConfig{TollRatio: 100_000, Scale: scale},
		margin.Position{
			Direction: vamm.AddToAMM,
			Size:      37_500_000,
			Margin:    60_000_000,
			Notional:  600_000_000,
		},
	)

	req, err := calc.FundsNeeded(context.Background(), "ubtc:uusd", "alice",
		10_000_000, 10*scale, vamm.SideSell)
	if err != nil {
		t.Fatalf("FundsNeeded: %v", err)
	}

	if req.MarginOwed != 0 {
		t.Errorf("margin owed = %d, want 0 for a shrinking position", req.MarginOwed)
	}
	if req.FundsOwed != req.FeeAmount {
		t.Errorf("funds owed = %d, want fee only %d", req.FundsOwed, req.FeeAmount)
	}
	if req.FeeAmount != 10_000_000 {
		t.Errorf("fee amount = %d, want 10000000", req.FeeAmount)
	}
}

func TestFundsNeededReversal(t *testing.T) {
	calc := newCalculator(t,
		margin.FeeConfig{TollRatio: 100_000, Scale: scale},
		margin.Position{
			Direction: vamm.AddToAMM,
			Size:      6_000_000,
			Margin:    10_000_000,
			Notional:  100_000_000,
		},
	)

	// Selling 30M at 10x flips the 100M long into a 200M short: margin on
	// the 200M excess notional is 20M, of which 10M is already posted.
	req, err := calc.FundsNeeded(context.Background(), "ubtc:uusd", "alice",
		30_000_000, 10*scale, vamm.SideSell)
	if err != nil {
		t.Fatalf("FundsNeeded: %v", err)
	}

	if req.MarginOwed != 10_000_000 {
		t.Errorf("margin owed = %d, want 10000000", req.MarginOwed)
	}
	if req.FundsOwed != 30_000_000+10_000_000 {
		t.Errorf("funds owed = %d, want 40000000", req.FundsOwed)
	}
}

func TestFundsNeededReversalNegativeMarginOwed(t *testing.T) {
	calc := newCalculator(t,
		margin.FeeConfig{TollRatio: 100_000, Scale: scale},
		margin.Position{
			Direction: vamm.AddToAMM,
			Size:      6_000_000,
			Margin:    50_000_000,
			Notional:  100_000_000,
		},
	)

	// The old position carries more margin than the reversed exposure needs.
	// The surplus is reported as a negative owed amount and funds owed carry
	// the fee alone.
	req, err := calc.FundsNeeded(context.Background(), "ubtc:uusd", "alice",
		15_000_000, 10*scale, vamm.SideSell)
	if err != nil {
		t.Fatalf("FundsNeeded: %v", err)
	}

	if req.MarginOwed != -45_000_000 {
		t.Errorf("margin owed = %d, want -45000000", req.MarginOwed)
	}
	if req.FundsOwed != req.FeeAmount {
		t.Errorf("funds owed = %d, want fee only %d", req.FundsOwed, req.FeeAmount)
	}
}
