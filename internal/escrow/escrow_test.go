package escrow_test

import (
	"errors"
	"testing"

	"PerpVamm/internal/escrow"
)

func TestVerifyFundsExactMatch(t *testing.T) {
	sent := []escrow.Coin{{Denom: "uusd", Amount: 120_000_000}}
	if err := escrow.VerifyFunds(sent, "uusd", 120_000_000); err != nil {
		t.Fatalf("VerifyFunds: %v", err)
	}
}

func TestVerifyFundsSplitCoins(t *testing.T) {
	sent := []escrow.Coin{
		{Denom: "uusd", Amount: 100_000_000},
		{Denom: "uusd", Amount: 20_000_000},
	}
	if err := escrow.VerifyFunds(sent, "uusd", 120_000_000); err != nil {
		t.Fatalf("VerifyFunds: %v", err)
	}
}

func TestVerifyFundsMismatch(t *testing.T) {
	cases := []struct {
		name     string
		sent     []escrow.Coin
		required uint64
	}{
		{"short", []escrow.Coin{{Denom: "uusd", Amount: 100}}, 120},
		{"over", []escrow.Coin{{Denom: "uusd", Amount: 200}}, 120},
		{"nothing sent", nil, 120},
		{"wrong denom", []escrow.Coin{{Denom: "uatom", Amount: 120}}, 120},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := escrow.VerifyFunds(tc.sent, "uusd", tc.required)
			if !errors.Is(err, escrow.ErrBalanceMismatch) {
				t.Errorf("err = %v, want ErrBalanceMismatch", err)
			}
		})
	}
}

func TestVerifyFundsZeroRequiredZeroSent(t *testing.T) {
	if err := escrow.VerifyFunds(nil, "uusd", 0); err != nil {
		t.Fatalf("VerifyFunds: %v", err)
	}
}
