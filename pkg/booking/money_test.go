package booking

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyFromMajor(test *testing.T) {
	test.Parallel()
	money, err := MoneyFromMajor(decimal.RequireFromString("11600.50"), CurrencyNGN)
	if err != nil {
		test.Fatalf("money from major: %v", err)
	}
	if money.MinorUnits() != 1_160_050 {
		test.Fatalf("expected 1160050 kobo, got %d", money.MinorUnits())
	}
	if money.String() != "NGN 11600.50" {
		test.Fatalf("unexpected string %q", money.String())
	}
	if !money.Major().Equal(decimal.RequireFromString("11600.5")) {
		test.Fatalf("unexpected major value %s", money.Major())
	}
}

func TestMoneyRejectsInvalidValues(test *testing.T) {
	test.Parallel()
	if _, err := MoneyFromMajor(decimal.RequireFromString("1.001"), CurrencyNGN); !errors.Is(err, ErrInvalidMoney) {
		test.Fatalf("expected sub-kobo precision rejection, got %v", err)
	}
	if _, err := NewMoney(-1, CurrencyNGN); !errors.Is(err, ErrInvalidMoney) {
		test.Fatalf("expected negative rejection, got %v", err)
	}
	if _, err := NewMoney(1, Currency("naira")); !errors.Is(err, ErrInvalidMoney) {
		test.Fatalf("expected currency rejection, got %v", err)
	}
	if KindOf(ErrInvalidMoney) != KindInvalidParameter {
		test.Fatalf("expected invalid money to classify as invalid parameter")
	}
}

func TestMoneyEqual(test *testing.T) {
	test.Parallel()
	naira := mustMoney(test, 500)
	cedi, err := NewMoney(500, Currency("ghs"))
	if err != nil {
		test.Fatalf("money: %v", err)
	}
	if cedi.Currency() != "GHS" {
		test.Fatalf("expected normalized currency, got %s", cedi.Currency())
	}
	if naira.Equal(cedi) {
		test.Fatalf("expected different currencies to differ")
	}
	if !naira.Equal(mustMoney(test, 500)) {
		test.Fatalf("expected equal amounts to match")
	}
}
