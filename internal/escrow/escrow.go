// Package escrow verifies that a caller-supplied payment exactly matches a
// computed amount before any mutating market call is issued. A mismatch stops
// the trade at this boundary; the market never sees the call.
package escrow

import (
	"errors"
	"fmt"

	fpmath "PerpVamm/internal/math"
)

// ErrBalanceMismatch reports a payment that does not exactly cover the
// computed amount.
var ErrBalanceMismatch = errors.New("balance mismatch between the argument and the transferred")

// Coin is one denomination of a payment.
type Coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount"`
}

// VerifyFunds checks that the transferred coins carry exactly the required
// amount of the given denomination. Both a shortfall and an overpayment fail;
// the caller keeps custody of whatever was sent.
func VerifyFunds(sent []Coin, denom string, required uint64) error {
	var total uint64
	var err error
	for _, c := range sent {
		if c.Denom != denom {
			return fmt.Errorf("unexpected denom %q: %w", c.Denom, ErrBalanceMismatch)
		}
		total, err = fpmath.CheckedAdd(total, c.Amount)
		if err != nil {
			return fmt.Errorf("sum transferred: %w", err)
		}
	}
	if total != required {
		return fmt.Errorf("sent %d %s, require %d: %w", total, denom, required, ErrBalanceMismatch)
	}
	return nil
}
