// Package core holds the domain types shared by the evaluation engine,
// storage and the HTTP layer.
//
// All monetary values use decimal arithmetic: amounts and limits carry two
// fractional digits, exchange rates up to eight.
package core

import "github.com/shopspring/decimal"

// DefaultLimit is the limit applied to a category with no limit version,
// in the reference currency. Deployments override it via configuration.
var DefaultLimit = decimal.RequireFromString("1000.00")

// Normalize converts amount from the origin currency into the reference
// currency using rate (reference→origin), rounded half-up to 2 decimals.
//
// Examples:
//
//	Normalize(500.00, 500.00)    -> 1.00
//	Normalize(10.00, 500.00)     -> 0.02
//	Normalize(750000.00, 500.00) -> 1500.00
func Normalize(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.DivRound(rate, 2)
}

// ValidateMoney checks that v is positive and has at most 2 fractional
// digits.
func ValidateMoney(v decimal.Decimal) error {
	if !v.IsPositive() {
		return ErrInvalidAmount
	}
	if v.Exponent() < -2 {
		return ErrInvalidAmount
	}
	return nil
}
