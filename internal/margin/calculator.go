package margin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	fpmath "PerpVamm/internal/math"
	"PerpVamm/internal/vamm"
)

// Calculator computes the collateral a trade requires before the caller
// submits it. Pure read/compute; it never deducts or mutates anything.
type Calculator struct {
	fees      FeeSource
	positions PositionSource
	logger    zerolog.Logger
}

func NewCalculator(fees FeeSource, positions PositionSource, logger zerolog.Logger) *Calculator {
	return &Calculator{
		fees:      fees,
		positions: positions,
		logger:    logger,
	}
}

// Requirement is the funds breakdown for a proposed trade. MarginOwed is
// signed: reversing past flat can leave the trader owed margin back, in which
// case it is negative and FundsOwed carries the fee alone.
type Requirement struct {
	FeeAmount  uint64 `json:"fee_amount"`
	MarginOwed int64  `json:"margin_owed"`
	FundsOwed  uint64 `json:"funds_owed"`
}

// FundsNeeded reports the amount a trader must supply before opening a
// position of quoteAssetAmount at the given leverage on the given side.
//
// The fee and position reads are plain queries, not joined in a transaction
// with the later trade call. The position can change between this read and
// the trade; callers must re-validate or tolerate that staleness window.
func (c *Calculator) FundsNeeded(ctx context.Context, marketID, trader string, quoteAssetAmount, leverage uint64, side vamm.Side) (Requirement, error) {
	fees, err := c.fees.FeeConfig(ctx, marketID)
	if err != nil {
		return Requirement{}, fmt.Errorf("query fee config: %w", err)
	}
	if fees.Scale == 0 {
		return Requirement{}, fmt.Errorf("fee config: %w", fpmath.ErrDivisionByZero)
	}

	// Fee scales by the toll rate first, then by leverage. The two divisions
	// stay sequential; folding them changes the rounding.
	feeOnMargin, _, err := fpmath.MulDiv(fees.TollRatio, quoteAssetAmount, fees.Scale)
	if err != nil {
		return Requirement{}, fmt.Errorf("fee on margin: %w", err)
	}
	feeAmount, _, err := fpmath.MulDiv(feeOnMargin, leverage, fees.Scale)
	if err != nil {
		return Requirement{}, fmt.Errorf("fee amount: %w", err)
	}

	pos, err := c.positions.Position(ctx, marketID, trader)
	if err != nil {
		return Requirement{}, fmt.Errorf("query position: %w", err)
	}

	isIncrease := (pos.Direction == vamm.AddToAMM && side == vamm.SideBuy) ||
		(pos.Direction == vamm.RemoveFromAMM && side == vamm.SideSell)

	newNotional, _, err := fpmath.MulDiv(quoteAssetAmount, leverage, fees.Scale)
	if err != nil {
		return Requirement{}, fmt.Errorf("new notional: %w", err)
	}

	marginOwed, err := marginOwed(pos, quoteAssetAmount, newNotional, leverage, fees.Scale, isIncrease)
	if err != nil {
		return Requirement{}, err
	}

	fundsOwed := feeAmount
	if marginOwed > 0 {
		fundsOwed, err = fpmath.CheckedAdd(feeAmount, uint64(marginOwed))
		if err != nil {
			return Requirement{}, fmt.Errorf("funds owed: %w", err)
		}
	}

	c.logger.Debug().
		Str("market", marketID).
		Str("trader", trader).
		Uint64("fee_amount", feeAmount).
		Int64("margin_owed", marginOwed).
		Uint64("funds_owed", fundsOwed).
		Msg("funds needed")

	return Requirement{
		FeeAmount:  feeAmount,
		MarginOwed: marginOwed,
		FundsOwed:  fundsOwed,
	}, nil
}

// marginOwed resolves the three position transitions: growing the same side
// takes the full new margin, shrinking takes nothing, and reversing past flat
// takes the margin on the excess notional minus what the old position holds.
func marginOwed(pos Position, quoteAssetAmount, newNotional, leverage, scale uint64, isIncrease bool) (int64, error) {
	if isIncrease {
		return fpmath.ToInt64(quoteAssetAmount)
	}
	if pos.Notional > newNotional {
		return 0, nil
	}

	excess, err := fpmath.CheckedSub(newNotional, pos.Notional)
	if err != nil {
		return 0, fmt.Errorf("excess notional: %w", err)
	}
	excessMargin, _, err := fpmath.MulDiv(excess, scale, leverage)
	if err != nil {
		return 0, fmt.Errorf("excess margin: %w", err)
	}

	owed, err := fpmath.ToInt64(excessMargin)
	if err != nil {
		return 0, fmt.Errorf("excess margin: %w", err)
	}
	posMargin, err := fpmath.ToInt64(pos.Margin)
	if err != nil {
		return 0, fmt.Errorf("position margin: %w", err)
	}
	return fpmath.CheckedSubInt(owed, posMargin)
}
