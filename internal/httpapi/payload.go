package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/shopspring/decimal"
)

const bookingDateLayout = "2006-01-02"

type quoteRequest struct {
	ServiceType   string          `json:"serviceType"`
	ServiceParams json.RawMessage `json:"serviceParams"`
}

type createBookingRequest struct {
	UserID               string           `json:"userId"`
	CustomerEmail        string           `json:"customerEmail"`
	ServiceType          string           `json:"serviceType"`
	ServiceParams        json.RawMessage  `json:"serviceParams"`
	BookingDate          string           `json:"bookingDate"`
	BookingTime          string           `json:"bookingTime"`
	Location             string           `json:"location"`
	ClientEstimatedPrice *decimal.Decimal `json:"clientEstimatedPrice"`
	Currency             string           `json:"currency"`
}

type verifyRequest struct {
	Reference string `json:"reference"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type moneyPayload struct {
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
}

type paymentPayload struct {
	Reference            string        `json:"reference"`
	GatewayStatus        string        `json:"gatewayStatus"`
	ChargedAmount        moneyPayload  `json:"chargedAmount"`
	PaidAmount           *moneyPayload `json:"paidAmount,omitempty"`
	VerifiedAt           *time.Time    `json:"verifiedAt,omitempty"`
	GatewayTransactionID string        `json:"gatewayTransactionId,omitempty"`
	AuthorizationURL     string        `json:"authorizationUrl"`
	AccessCode           string        `json:"accessCode"`
	Channel              string        `json:"channel,omitempty"`
}

type bookingPayload struct {
	BookingID          string                `json:"bookingId"`
	UserID             string                `json:"userId"`
	CustomerEmail      string                `json:"customerEmail"`
	ServiceType        string                `json:"serviceType"`
	ServiceCategory    string                `json:"serviceCategory"`
	ServiceParams      booking.ServiceParams `json:"serviceParams"`
	BookingDate        string                `json:"bookingDate"`
	BookingTime        string                `json:"bookingTime"`
	Location           string                `json:"location"`
	Price              moneyPayload          `json:"price"`
	Status             string                `json:"status"`
	Payment            paymentPayload        `json:"payment"`
	FailureReason      string                `json:"failureReason,omitempty"`
	CancellationReason string                `json:"cancellationReason,omitempty"`
	CompletedAt        *time.Time            `json:"completedAt,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

type createBookingResponse struct {
	BookingID        string         `json:"bookingId"`
	PaymentReference string         `json:"paymentReference"`
	AuthorizationURL string         `json:"authorizationUrl"`
	AccessCode       string         `json:"accessCode"`
	Price            moneyPayload   `json:"price"`
	Booking          bookingPayload `json:"booking"`
}

type quoteResponse struct {
	ServiceType     string       `json:"serviceType"`
	ServiceCategory string       `json:"serviceCategory"`
	Price           moneyPayload `json:"price"`
}

func newMoneyPayload(money booking.Money) moneyPayload {
	return moneyPayload{
		Amount:      money.Major().StringFixed(2),
		AmountMinor: money.MinorUnits(),
		Currency:    money.Currency().String(),
	}
}

func newBookingPayload(value booking.Booking) bookingPayload {
	payload := bookingPayload{
		BookingID:          value.ID.String(),
		UserID:             value.UserID.String(),
		CustomerEmail:      value.CustomerEmail,
		ServiceType:        value.ServiceType.String(),
		ServiceCategory:    value.ServiceCategory,
		ServiceParams:      value.ServiceDetails,
		BookingDate:        value.BookingDate.UTC().Format(bookingDateLayout),
		BookingTime:        value.BookingTime,
		Location:           value.Location,
		Price:              newMoneyPayload(value.Price),
		Status:             value.Status.String(),
		FailureReason:      value.FailureReason,
		CancellationReason: value.CancellationReason,
		CompletedAt:        value.CompletedAt,
		CreatedAt:          value.CreatedAt,
		UpdatedAt:          value.UpdatedAt,
		Payment: paymentPayload{
			Reference:            value.Payment.Reference.String(),
			GatewayStatus:        value.Payment.GatewayStatus.String(),
			ChargedAmount:        newMoneyPayload(value.Payment.ChargedAmount),
			VerifiedAt:           value.Payment.VerifiedAt,
			GatewayTransactionID: value.Payment.GatewayTransactionID,
			AuthorizationURL:     value.Payment.AuthorizationURL,
			AccessCode:           value.Payment.AccessCode,
			Channel:              value.Payment.Channel,
		},
	}
	if value.Payment.PaidAmount != nil {
		paid := newMoneyPayload(*value.Payment.PaidAmount)
		payload.Payment.PaidAmount = &paid
	}
	return payload
}

func (request createBookingRequest) toDomain(defaultCurrency string) (booking.CreateRequest, error) {
	userID, err := booking.NewUserID(request.UserID)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	serviceType, err := booking.ParseServiceType(request.ServiceType)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	params, err := booking.DecodeServiceParams(serviceType, request.ServiceParams)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	bookingDate, err := parseBookingDate(request.BookingDate)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	if request.ClientEstimatedPrice == nil {
		return booking.CreateRequest{}, fmt.Errorf("%w: clientEstimatedPrice is required", booking.ErrInvalidParameter)
	}
	currency, err := booking.ParseCurrency(defaultIfEmpty(request.Currency, defaultCurrency))
	if err != nil {
		return booking.CreateRequest{}, err
	}
	estimate, err := booking.MoneyFromMajor(*request.ClientEstimatedPrice, currency)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	return booking.CreateRequest{
		UserID:               userID,
		CustomerEmail:        request.CustomerEmail,
		ServiceType:          serviceType,
		Params:               params,
		BookingDate:          bookingDate,
		BookingTime:          request.BookingTime,
		Location:             request.Location,
		ClientEstimatedPrice: estimate,
	}, nil
}

// parseBookingDate accepts a calendar date or an RFC 3339 timestamp.
func parseBookingDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: bookingDate is required", booking.ErrInvalidParameter)
	}
	if parsed, err := time.Parse(bookingDateLayout, trimmed); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bookingDate must be YYYY-MM-DD", booking.ErrInvalidParameter)
	}
	return parsed.UTC(), nil
}

type pricedOptionPayload struct {
	Name    string        `json:"name"`
	Base    moneyPayload  `json:"base"`
	PerUnit *moneyPayload `json:"perUnit,omitempty"`
}

type choiceFieldPayload struct {
	Name    string   `json:"name"`
	Choices []string `json:"choices"`
	Default string   `json:"default"`
}

type serviceOptionsPayload struct {
	ServiceType   string                `json:"serviceType"`
	CategoryField string                `json:"categoryField"`
	Categories    []pricedOptionPayload `json:"categories"`
	QuantityField string                `json:"quantityField"`
	Rooms         []string              `json:"rooms,omitempty"`
	MaxQuantity   int                   `json:"maxQuantity"`
	Choices       []choiceFieldPayload  `json:"choices"`
	AddOns        []pricedOptionPayload `json:"additionalServices,omitempty"`
}

type catalogResponse struct {
	Currency string                  `json:"currency"`
	Services []serviceOptionsPayload `json:"services"`
}

func newCatalogResponse(catalog []booking.ServiceOptions) catalogResponse {
	response := catalogResponse{
		Currency: booking.CatalogCurrency.String(),
		Services: make([]serviceOptionsPayload, 0, len(catalog)),
	}
	for _, options := range catalog {
		service := serviceOptionsPayload{
			ServiceType:   options.ServiceType.String(),
			CategoryField: options.CategoryField,
			Categories:    newPricedOptionPayloads(options.Categories, true),
			QuantityField: options.QuantityField,
			Rooms:         options.Rooms,
			MaxQuantity:   options.MaxQuantity,
			Choices:       make([]choiceFieldPayload, 0, len(options.Choices)),
			AddOns:        newPricedOptionPayloads(options.AddOns, false),
		}
		for _, choice := range options.Choices {
			service.Choices = append(service.Choices, choiceFieldPayload{Name: choice.Name, Choices: choice.Choices, Default: choice.Default})
		}
		response.Services = append(response.Services, service)
	}
	return response
}

func newPricedOptionPayloads(options []booking.PricedOption, perUnit bool) []pricedOptionPayload {
	if len(options) == 0 {
		return nil
	}
	payloads := make([]pricedOptionPayload, 0, len(options))
	for _, option := range options {
		payload := pricedOptionPayload{Name: option.Name, Base: newMoneyPayload(option.Base)}
		if perUnit {
			unit := newMoneyPayload(option.PerUnit)
			payload.PerUnit = &unit
		}
		payloads = append(payloads, payload)
	}
	return payloads
}
