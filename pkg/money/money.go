// Package money parses and validates monetary amounts at the system boundary.
// Amounts are fixed-point decimals; binary floating point is never used.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an amount may carry.
const Scale = 2

// MaxStorable is the largest amount a NUMERIC(18,2) column holds.
var MaxStorable = decimal.New(999999999999999999, -Scale)

var (
	amountRe   = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

	ErrMalformed    = errors.New("amount is not a plain decimal number")
	ErrTooPrecise   = fmt.Errorf("amount has more than %d fractional digits", Scale)
	ErrNotPositive  = errors.New("amount must be greater than zero")
	ErrNegative     = errors.New("amount must not be negative")
	ErrAboveMaximum = errors.New("amount exceeds the allowed maximum")
)

// Parse converts a decimal string such as "50000" or "12.50" into a Decimal.
// Exponent notation, thousands separators and more than Scale fractional
// digits are rejected.
func Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !amountRe.MatchString(s) {
		return decimal.Zero, ErrMalformed
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	if d.Exponent() < -Scale && !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, ErrTooPrecise
	}
	return d, nil
}

// Ceiling returns max, or MaxStorable when max is zero or larger than what can be stored.
func Ceiling(max decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() || max.GreaterThan(MaxStorable) {
		return MaxStorable
	}
	return max
}

// ParsePositive parses raw and requires 0 < amount <= max. A zero max
// bounds the amount by MaxStorable only.
func ParsePositive(raw string, max decimal.Decimal) (decimal.Decimal, error) {
	d, err := Parse(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}
	if d.GreaterThan(Ceiling(max)) {
		return decimal.Zero, ErrAboveMaximum
	}
	return d, nil
}

// ParseNonNegative parses raw and requires 0 <= amount <= MaxStorable.
func ParseNonNegative(raw string) (decimal.Decimal, error) {
	d, err := Parse(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegative
	}
	if d.GreaterThan(MaxStorable) {
		return decimal.Zero, ErrAboveMaximum
	}
	return d, nil
}

// ValidCurrency reports whether code looks like an ISO 4217 alpha code.
func ValidCurrency(code string) bool {
	return currencyRe.MatchString(code)
}

// Format renders an amount with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
