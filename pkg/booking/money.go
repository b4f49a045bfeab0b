package booking

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of decimal places between the major and
// minor unit for every currency the gateway settles (NGN, GHS, ZAR, KES, USD).
const minorUnitExponent = 2

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Currency is an ISO 4217 alphabetic code.
type Currency string

// CurrencyNGN is the default settlement currency.
const CurrencyNGN Currency = "NGN"

// ParseCurrency validates and normalizes an ISO 4217 code.
func ParseCurrency(raw string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if len(normalized) != 3 {
		return "", fmt.Errorf("%w: currency %q must be a 3-letter code", ErrInvalidMoney, raw)
	}
	for _, letter := range normalized {
		if letter < 'A' || letter > 'Z' {
			return "", fmt.Errorf("%w: currency %q must be alphabetic", ErrInvalidMoney, raw)
		}
	}
	return Currency(normalized), nil
}

// String returns the currency code.
func (currency Currency) String() string {
	return string(currency)
}

// Money is a non-negative amount held in the currency's minor unit.
type Money struct {
	minorUnits int64
	currency   Currency
}

// NewMoney validates a minor-unit amount.
func NewMoney(minorUnits int64, currency Currency) (Money, error) {
	if minorUnits < 0 {
		return Money{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidMoney)
	}
	normalized, err := ParseCurrency(currency.String())
	if err != nil {
		return Money{}, err
	}
	return Money{minorUnits: minorUnits, currency: normalized}, nil
}

// MoneyFromMajor converts a major-unit value (for example naira) into Money.
// Values with more precision than the minor unit are rejected, not rounded.
func MoneyFromMajor(major decimal.Decimal, currency Currency) (Money, error) {
	minor := major.Shift(minorUnitExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidMoney, major.String(), minorUnitExponent)
	}
	if minor.GreaterThan(maxMinorUnits) {
		return Money{}, fmt.Errorf("%w: %s is out of range", ErrInvalidMoney, major.String())
	}
	return NewMoney(minor.IntPart(), currency)
}

// MinorUnits returns the amount in the minor unit (kobo for NGN).
func (money Money) MinorUnits() int64 {
	return money.minorUnits
}

// Currency returns the ISO code.
func (money Money) Currency() Currency {
	return money.currency
}

// Major returns the amount in the major unit, for display and client payloads.
func (money Money) Major() decimal.Decimal {
	return decimal.New(money.minorUnits, -minorUnitExponent)
}

// IsZero reports whether the value is the zero Money.
func (money Money) IsZero() bool {
	return money.minorUnits == 0 && money.currency == ""
}

// Equal reports an exact match on currency and minor units.
func (money Money) Equal(other Money) bool {
	return money.currency == other.currency && money.minorUnits == other.minorUnits
}

// String formats the value as "NGN 11600.00".
func (money Money) String() string {
	return fmt.Sprintf("%s %s", money.currency, money.Major().StringFixed(minorUnitExponent))
}
