// Package engine is the margin-engine layer in front of one market: it owns
// trader positions, computes the funds a trade requires, verifies the
// escrowed payment, and only then issues the swap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"PerpVamm/internal/escrow"
	"PerpVamm/internal/margin"
	fpmath "PerpVamm/internal/math"
	"PerpVamm/internal/vamm"
)

var ErrUnknownMarket = errors.New("engine: unknown market")

// Engine fronts a single market. Its identity must match the market's
// configured margin-engine identity or every swap is rejected.
type Engine struct {
	mu        sync.Mutex
	identity  string
	market    *vamm.Market
	calc      *margin.Calculator
	positions map[string]margin.Position
	logger    zerolog.Logger
}

func New(identity string, market *vamm.Market, logger zerolog.Logger) *Engine {
	e := &Engine{
		identity:  identity,
		market:    market,
		positions: make(map[string]margin.Position),
		logger:    logger,
	}
	e.calc = margin.NewCalculator(e, e, logger)
	return e
}

// FeeConfig exposes the market's fee parameters to the calculator.
func (e *Engine) FeeConfig(ctx context.Context, marketID string) (margin.FeeConfig, error) {
	if marketID != e.market.ID() {
		return margin.FeeConfig{}, fmt.Errorf("%s: %w", marketID, ErrUnknownMarket)
	}
	cfg := e.market.Config()
	return margin.FeeConfig{
		TollRatio: cfg.TollRatio,
		Scale:     cfg.Decimals,
	}, nil
}

// Position returns the trader's current position; the zero Position when the
// trader holds nothing.
func (e *Engine) Position(ctx context.Context, marketID, trader string) (margin.Position, error) {
	if marketID != e.market.ID() {
		return margin.Position{}, fmt.Errorf("%s: %w", marketID, ErrUnknownMarket)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.positions[trader]
	pos.Trader = trader
	return pos, nil
}

// FundsNeeded reports the payment a proposed trade requires. Read-only; the
// position can change between this call and a later OpenPosition.
func (e *Engine) FundsNeeded(ctx context.Context, trader string, quoteAssetAmount, leverage uint64, side vamm.Side) (margin.Requirement, error) {
	return e.calc.FundsNeeded(ctx, e.market.ID(), trader, quoteAssetAmount, leverage, side)
}

// OpenPosition opens, grows, shrinks, or reverses a trader's position with
// quoteAssetAmount margin at the given leverage. The payment must exactly
// cover the computed funds or the call stops before the market is touched.
func (e *Engine) OpenPosition(ctx context.Context, trader string, side vamm.Side, quoteAssetAmount, leverage uint64, payment []escrow.Coin, block vamm.BlockInfo) (margin.Position, error) {
	if quoteAssetAmount == 0 {
		return margin.Position{}, fmt.Errorf("engine: quote asset amount must be positive")
	}
	if leverage == 0 {
		return margin.Position{}, fmt.Errorf("engine: leverage must be positive")
	}

	cfg := e.market.Config()

	req, err := e.calc.FundsNeeded(ctx, e.market.ID(), trader, quoteAssetAmount, leverage, side)
	if err != nil {
		return margin.Position{}, err
	}

	if err := escrow.VerifyFunds(payment, cfg.QuoteAsset, req.FundsOwed); err != nil {
		return margin.Position{}, err
	}

	openNotional, _, err := fpmath.MulDiv(quoteAssetAmount, leverage, cfg.Decimals)
	if err != nil {
		return margin.Position{}, fmt.Errorf("open notional: %w", err)
	}

	dir := side.Direction()

	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.positions[trader]
	pos.Trader = trader

	// Dry-run the fold against the quoted amount so an unrecordable fill is
	// rejected before the reserves move.
	quotedBase, err := e.market.InputPrice(dir, openNotional)
	if err != nil {
		return margin.Position{}, err
	}
	if _, err := applyFill(pos, dir, quotedBase, openNotional, req.MarginOwed); err != nil {
		return margin.Position{}, err
	}

	baseAmount, err := e.market.SwapInput(e.identity, block, dir, openNotional, false)
	if err != nil {
		return margin.Position{}, err
	}

	pos, err = applyFill(pos, dir, baseAmount, openNotional, req.MarginOwed)
	if err != nil {
		return margin.Position{}, err
	}

	if pos.Size == 0 {
		delete(e.positions, trader)
		pos.Margin = 0
		pos.Notional = 0
	} else {
		e.positions[trader] = pos
	}

	e.logger.Info().
		Str("market", e.market.ID()).
		Str("trader", trader).
		Str("side", side.String()).
		Uint64("open_notional", openNotional).
		Int64("position_size", pos.Size).
		Uint64("margin", pos.Margin).
		Msg("position opened")

	return pos, nil
}

// applyFill folds a swap into a copy of the position. The margin delta comes
// from the calculator: the full new margin on an increase, zero on a shrink,
// and the signed difference against the residual notional on a reversal, so
// the stored margin always backs the stored notional.
func applyFill(pos margin.Position, dir vamm.Direction, baseAmount, openNotional uint64, marginDelta int64) (margin.Position, error) {
	baseDelta, err := fpmath.ToInt64(baseAmount)
	if err != nil {
		return margin.Position{}, fmt.Errorf("base amount: %w", err)
	}
	if dir == vamm.RemoveFromAMM {
		baseDelta = -baseDelta
	}

	newSize, err := fpmath.CheckedAddInt(pos.Size, baseDelta)
	if err != nil {
		return margin.Position{}, fmt.Errorf("position size: %w", err)
	}

	sameSide := pos.Size == 0 || pos.Direction == dir
	if sameSide {
		pos.Notional, err = fpmath.CheckedAdd(pos.Notional, openNotional)
	} else {
		pos.Notional = fpmath.AbsDiff(pos.Notional, openNotional)
	}
	if err != nil {
		return margin.Position{}, fmt.Errorf("position notional: %w", err)
	}

	oldMargin, err := fpmath.ToInt64(pos.Margin)
	if err != nil {
		return margin.Position{}, fmt.Errorf("position margin: %w", err)
	}
	newMargin, err := fpmath.CheckedAddInt(oldMargin, marginDelta)
	if err != nil || newMargin < 0 {
		return margin.Position{}, fmt.Errorf("position margin underflow")
	}

	pos.Size = newSize
	pos.Margin = uint64(newMargin)
	switch {
	case newSize > 0:
		pos.Direction = vamm.AddToAMM
	case newSize < 0:
		pos.Direction = vamm.RemoveFromAMM
	}

	return pos, nil
}
