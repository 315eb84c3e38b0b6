// Package core provides the domain types of the ledger and the pure
// functions that reduce transactions into dashboards and statistics.
//
// This file contains money parsing and signing helpers.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places kept for stored amounts.
const AmountPlaces = 2

// ParseAmount converts a decimal string to a magnitude rounded to two places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign, which is discarded: the direction of a transaction
// comes from its type, never from the sign typed by the caller.
// Returns ErrInvalidAmount for malformed input or amounts that round to zero.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35 (half away from zero)
//	ParseAmount("-30")    -> 30
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return NormalizeAmount(d)
}

// NormalizeAmount returns the rounded magnitude of d, rejecting zero.
func NormalizeAmount(d decimal.Decimal) (decimal.Decimal, error) {
	d = d.Abs().Round(AmountPlaces)
	if d.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// SignedAmount applies the direction of t to a magnitude: expenses are
// stored negative, incomes positive.
func SignedAmount(magnitude decimal.Decimal, t EntryType) decimal.Decimal {
	m := magnitude.Abs()
	if t == Expense {
		return m.Neg()
	}
	return m
}

// FormatAmount renders an amount with two decimals for exports.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}
