// Package core provides the chantier domain records and the aggregation
// engine that turns them into durations, earnings, margins and totals.
//
// This file contains the amount parsing helpers. Every numeric boundary
// (HTTP forms, database columns, CLI flags) goes through them so that
// malformed input is uniformly treated as zero.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencySymbol prefixes every formatted money value.
const CurrencySymbol = "€"

var hundred = decimal.NewFromInt(100)

// plainAmount matches unsigned digits with an optional fraction. Exponent
// forms such as "1e9" are not amounts.
var plainAmount = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount converts a decimal string to a non-negative amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Empty,
// non-numeric, negative or exponent input yields zero; it never fails.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34
//	ParseAmount("12,5")  -> 12.5
//	ParseAmount("abc")   -> 0
//	ParseAmount("-3")    -> 0
//	ParseAmount("1e3")   -> 0
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if !plainAmount.MatchString(s) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseOptionalAmount is ParseAmount for optional fields: blank input is
// absent, anything else is present (malformed input is present and zero).
func ParseOptionalAmount(s string) decimal.NullDecimal {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(ParseAmount(s))
}

// FormatMoney renders an amount with the currency symbol and exactly two
// decimals, rounding half away from zero.
func FormatMoney(d decimal.Decimal) string {
	return CurrencySymbol + d.StringFixed(2)
}

// FormatPercent renders a margin as "N%".
func FormatPercent(d decimal.Decimal) string {
	return d.String() + "%"
}
