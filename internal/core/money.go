// Package core provides the wallet ledger domain model.
//
// This file contains parsing and formatting of monetary amounts. Amounts
// are held as integer paise to keep arithmetic and SQL aggregation exact;
// decimal strings cross the boundary through shopspring/decimal.
package core

import (
	"github.com/shopspring/decimal"
)

// Money is an amount in paise (hundredths of a rupee).
type Money struct {
	Paise int64
}

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user-supplied decimal string into Money.
//
// Rounding is half-up on the third decimal place. Negative values, empty
// strings and anything decimal.NewFromString rejects (including NaN-like
// garbage) come back as ErrInvalidAmount. Zero is allowed: "/set 0" is a
// legitimate reset.
//
// Examples:
//
//	ParseAmount("12.34")  -> Money{1234}, nil
//	ParseAmount("12.345") -> Money{1235}, nil (rounds up)
//	ParseAmount("-5")     -> Money{}, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	paise := d.Mul(hundred).Round(0)
	if !paise.IsInteger() || paise.BigInt().BitLen() > 62 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Paise: paise.IntPart()}, nil
}

// Validate rejects negative amounts. Store rows carry only non-negative
// amounts; direction lives in the transaction type.
func (m Money) Validate() error {
	if m.Paise < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the rupee value as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Paise).Div(hundred)
}

// String renders the amount with two decimal places, e.g. "123.45".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Paise: m.Paise + other.Paise}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{Paise: m.Paise - other.Paise}
}
