package booking

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultPriceTolerance is the accepted relative deviation between the client
// estimate and the server price.
var DefaultPriceTolerance = decimal.RequireFromString("0.01")

// CatalogCurrency is the currency every catalog amount is quoted in.
const CatalogCurrency = CurrencyNGN

type quote struct {
	card        rateCard
	quantity    int64
	multipliers []decimal.Decimal
	discount    decimal.Decimal
	addOnsMinor int64
}

func (q quote) totalMinor() (int64, error) {
	subtotal := decimal.NewFromInt(q.card.perUnitMinor).
		Mul(decimal.NewFromInt(q.quantity)).
		Add(decimal.NewFromInt(q.card.baseMinor))
	for _, multiplier := range q.multipliers {
		subtotal = subtotal.Mul(multiplier)
	}
	subtotal = subtotal.Mul(decimal.NewFromInt(1).Sub(q.discount))
	total := subtotal.Round(0).Add(decimal.NewFromInt(q.addOnsMinor))
	if total.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("%w: price %s kobo is out of range", ErrInvalidParameter, total)
	}
	return total.IntPart(), nil
}

// ComputePrice returns the authoritative price for a service request.
func ComputePrice(serviceType ServiceType, params ServiceParams) (Money, error) {
	if params == nil {
		return Money{}, fmt.Errorf("%w: service params are required", ErrInvalidParameter)
	}
	if params.ServiceType() != serviceType {
		return Money{}, fmt.Errorf("%w: params for %s given for service type %s", ErrInvalidParameter, params.ServiceType(), serviceType)
	}
	q, err := params.quote()
	if err != nil {
		return Money{}, err
	}
	if q.quantity <= 0 {
		return Money{}, fmt.Errorf("%w: total selected quantity is zero", ErrInvalidParameter)
	}
	total, err := q.totalMinor()
	if err != nil {
		return Money{}, err
	}
	return NewMoney(total, CatalogCurrency)
}

// ReconcileClientPrice accepts the server price when the client estimate is
// within tolerance of it and rejects the request otherwise. The client value is
// never returned.
func ReconcileClientPrice(serverPrice Money, clientPrice Money, tolerance decimal.Decimal) (Money, error) {
	if tolerance.IsNegative() {
		return Money{}, fmt.Errorf("%w: price tolerance must not be negative", ErrInvalidServiceConfig)
	}
	if serverPrice.Currency() != clientPrice.Currency() {
		return Money{}, fmt.Errorf("%w: client currency %s, server currency %s", ErrPriceMismatch, clientPrice.Currency(), serverPrice.Currency())
	}
	if serverPrice.MinorUnits() == 0 {
		if clientPrice.MinorUnits() != 0 {
			return Money{}, fmt.Errorf("%w: client price %s, server price %s", ErrPriceMismatch, clientPrice, serverPrice)
		}
		return serverPrice, nil
	}
	deviation := decimal.NewFromInt(clientPrice.MinorUnits() - serverPrice.MinorUnits()).Abs()
	ratio := deviation.Div(decimal.NewFromInt(serverPrice.MinorUnits()))
	if ratio.GreaterThan(tolerance) {
		return Money{}, fmt.Errorf("%w: client price %s deviates %s%% from server price %s", ErrPriceMismatch, clientPrice, ratio.Shift(2).StringFixed(2), serverPrice)
	}
	return serverPrice, nil
}
