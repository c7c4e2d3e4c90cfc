// Package currency converts between the SOL amounts exposed on the API
// surface and the integer lamport amounts stored everywhere else. All ledger
// arithmetic happens in int64 lamports; decimals exist only at the boundary.
package currency

import (
	"errors"

	"github.com/shopspring/decimal"
)

const solDecimals = 9

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more than 9 decimal places")
	ErrOutOfRange     = errors.New("amount does not fit in int64 lamports")
)

// ToLamports converts a decimal SOL amount to lamports. Amounts with more
// precision than a lamport are rejected rather than silently truncated.
func ToLamports(sol decimal.Decimal) (int64, error) {
	if sol.IsNegative() {
		return 0, ErrNegativeAmount
	}

	shifted := sol.Shift(solDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if !shifted.BigInt().IsInt64() {
		return 0, ErrOutOfRange
	}
	return shifted.IntPart(), nil
}

// FromLamports converts lamports back to a decimal SOL amount.
func FromLamports(lamports int64) decimal.Decimal {
	return decimal.NewFromInt(lamports).Shift(-solDecimals)
}
