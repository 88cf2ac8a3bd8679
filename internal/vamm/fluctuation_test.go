package vamm

import (
	"errors"
	"testing"
)

// limitMarket allows a 1% price move per block.
func limitMarket(t *testing.T) *Market {
	t.Helper()
	m := newTestMarket(t, func(p *Params) {
		p.Config.FluctuationLimitRatio = 10_000
	})
	openTestMarket(t, m)
	return m
}

func TestFluctuationLimitRejectsLargeSwap(t *testing.T) {
	m := limitMarket(t)
	before := m.State()

	// 6e6 quote in moves the price ~1.2% off the block-opening 10.0.
	_, err := m.SwapInput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10}, AddToAMM, 6_000_000, false)
	if !errors.Is(err, ErrFluctuationLimitExceeded) {
		t.Fatalf("got %v, want ErrFluctuationLimitExceeded", err)
	}
	if m.State() != before {
		t.Fatal("rejected swap mutated state")
	}
}

func TestFluctuationLimitAllowsSmallSwap(t *testing.T) {
	m := limitMarket(t)

	// 4e6 quote in moves the price ~0.8%, inside the 1% band.
	if _, err := m.SwapInput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10}, AddToAMM, 4_000_000, false); err != nil {
		t.Fatalf("SwapInput: %v", err)
	}
}

func TestFluctuationLimitIsCumulativePerBlock(t *testing.T) {
	m := limitMarket(t)
	block := BlockInfo{Height: 2, Time: genesisTime + 10}

	if _, err := m.SwapInput(testEngine, block, AddToAMM, 4_000_000, false); err != nil {
		t.Fatalf("first swap: %v", err)
	}

	// The second swap in the same block is bounded against the block-opening
	// price, not the price the first swap left behind, so the combined ~1.6%
	// move is rejected.
	_, err := m.SwapInput(testEngine, block, AddToAMM, 4_000_000, false)
	if !errors.Is(err, ErrFluctuationLimitExceeded) {
		t.Fatalf("second swap in block: got %v, want ErrFluctuationLimitExceeded", err)
	}

	// In the next block the reference price resets to the committed state and
	// the same swap passes.
	if _, err := m.SwapInput(testEngine, BlockInfo{Height: 3, Time: genesisTime + 20}, AddToAMM, 4_000_000, false); err != nil {
		t.Fatalf("swap in next block: %v", err)
	}
}

func TestFluctuationLimitOverride(t *testing.T) {
	m := limitMarket(t)

	if _, err := m.SwapInput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10}, AddToAMM, 6_000_000, true); err != nil {
		t.Fatalf("override swap: %v", err)
	}
}

func TestFluctuationLimitSkippedOnSwapOutput(t *testing.T) {
	m := limitMarket(t)

	// SwapOutput is the forced-close path and never enforces the limit; 2e7
	// base moves the price far beyond 1%.
	if _, err := m.SwapOutput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10}, AddToAMM, 20_000_000); err != nil {
		t.Fatalf("SwapOutput: %v", err)
	}
}

func TestFluctuationLimitDisabledAtZeroRatio(t *testing.T) {
	m := newTestMarket(t, nil)
	openTestMarket(t, m)

	// Default config has no limit; a 60% price move passes.
	if _, err := m.SwapInput(testEngine, BlockInfo{Height: 2, Time: genesisTime + 10}, AddToAMM, 600_000_000, false); err != nil {
		t.Fatalf("SwapInput without limit: %v", err)
	}
}
