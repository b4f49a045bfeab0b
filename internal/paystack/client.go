// Package paystack adapts the Paystack transaction API to booking.Gateway.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.paystack.co"

	initializePath = "/transaction/initialize"
	verifyPath     = "/transaction/verify/"

	maxResponseBytes = 1 << 20

	credentialsMessage = "payment gateway rejected the merchant credentials"
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client calls the Paystack REST API. It holds no per-transaction state.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret []byte
	httpClient    *http.Client
}

var _ booking.Gateway = (*Client)(nil)

// NewClient validates config and builds a Client. WebhookSecret defaults to SecretKey.
func NewClient(config Config) (*Client, error) {
	secretKey := strings.TrimSpace(config.SecretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("%w: paystack secret key is required", booking.ErrInvalidServiceConfig)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: paystack base url %q: %v", booking.ErrInvalidServiceConfig, baseURL, err)
	}
	webhookSecret := strings.TrimSpace(config.WebhookSecret)
	if webhookSecret == "" {
		webhookSecret = secretKey
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = booking.DefaultGatewayTimeout
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: []byte(webhookSecret),
		httpClient:    httpClient,
	}, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeBody struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	ID              int64   `json:"id"`
	Status          string  `json:"status"`
	Reference       string  `json:"reference"`
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency"`
	Channel         string  `json:"channel"`
	PaidAt          *string `json:"paid_at"`
	GatewayResponse string  `json:"gateway_response"`
}

// InitializeTransaction starts a transaction for request.Amount in minor units.
func (client *Client) InitializeTransaction(ctx context.Context, request booking.InitializeRequest) (booking.Initialization, error) {
	body := initializeBody{
		Email:       request.CustomerEmail,
		Amount:      request.Amount.MinorUnits(),
		Currency:    request.Amount.Currency().String(),
		Reference:   request.Reference.String(),
		CallbackURL: request.CallbackURL,
		Metadata:    request.Metadata,
	}
	var data initializeData
	if err := client.do(ctx, http.MethodPost, initializePath, body, &data, booking.ErrGatewayRejected); err != nil {
		return booking.Initialization{}, err
	}
	if data.AuthorizationURL == "" {
		return booking.Initialization{}, &booking.GatewayError{Kind: booking.ErrGatewayRejected, Message: "gateway returned no authorization url"}
	}
	initialization := booking.Initialization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}
	if data.Reference != "" {
		reference, err := booking.NewReference(data.Reference)
		if err != nil {
			return booking.Initialization{}, &booking.GatewayError{Kind: booking.ErrGatewayRejected, Message: "gateway returned an invalid reference"}
		}
		initialization.Reference = reference
	}
	return initialization, nil
}

// VerifyTransaction fetches the authoritative transaction state. A 404 maps to
// booking.ErrTransactionNotFound.
func (client *Client) VerifyTransaction(ctx context.Context, reference booking.Reference) (booking.Verification, error) {
	var data transactionData
	if err := client.do(ctx, http.MethodGet, verifyPath+url.PathEscape(reference.String()), nil, &data, booking.ErrTransactionNotFound); err != nil {
		return booking.Verification{}, err
	}
	verification, err := data.verification()
	if err != nil {
		return booking.Verification{}, err
	}
	if verification.Reference.String() == "" {
		verification.Reference = reference
	}
	return verification, nil
}

func (data transactionData) verification() (booking.Verification, error) {
	currency := data.Currency
	if currency == "" {
		currency = booking.CatalogCurrency.String()
	}
	amount, err := booking.NewMoney(data.Amount, booking.Currency(currency))
	if err != nil {
		return booking.Verification{}, &booking.GatewayError{Kind: booking.ErrGatewayRejected, Message: "gateway returned an invalid amount", Cause: err}
	}
	verification := booking.Verification{
		Status:          mapStatus(data.Status),
		Amount:          amount,
		Channel:         data.Channel,
		GatewayResponse: data.GatewayResponse,
	}
	if data.ID != 0 {
		verification.TransactionID = fmt.Sprintf("%d", data.ID)
	}
	if data.Reference != "" {
		reference, err := booking.NewReference(data.Reference)
		if err != nil {
			return booking.Verification{}, &booking.GatewayError{Kind: booking.ErrGatewayRejected, Message: "gateway returned an invalid reference"}
		}
		verification.Reference = reference
	}
	if data.PaidAt != nil && *data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, *data.PaidAt); err == nil {
			paidAtUTC := paidAt.UTC()
			verification.PaidAt = &paidAtUTC
		}
	}
	return verification, nil
}

func mapStatus(status string) booking.PaymentResult {
	switch strings.ToLower(status) {
	case "success":
		return booking.PaymentSuccessful
	case "failed", "reversed":
		return booking.PaymentFailed
	default:
		return booking.PaymentPending
	}
}

// do performs one API call. notFound names the sentinel a 404 maps to.
func (client *Client) do(ctx context.Context, method string, path string, payload any, out any, notFound error) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paystack: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.secretKey)
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return &booking.GatewayError{Kind: booking.ErrGatewayUnavailable, Message: "payment gateway did not respond", Cause: unwrapURLError(err)}
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return &booking.GatewayError{Kind: booking.ErrGatewayUnavailable, StatusCode: response.StatusCode, Message: "payment gateway response was cut off", Cause: err}
	}
	var decoded envelope
	decodeErr := json.Unmarshal(raw, &decoded)

	switch {
	case response.StatusCode >= http.StatusInternalServerError || response.StatusCode == http.StatusTooManyRequests:
		return &booking.GatewayError{Kind: booking.ErrGatewayUnavailable, StatusCode: response.StatusCode, Message: decoded.Message}
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return &booking.GatewayError{Kind: booking.ErrGatewayRejected, StatusCode: response.StatusCode, Message: credentialsMessage}
	case response.StatusCode == http.StatusNotFound:
		return &booking.GatewayError{Kind: notFound, StatusCode: response.StatusCode, Message: decoded.Message}
	case response.StatusCode >= http.StatusBadRequest:
		return &booking.GatewayError{Kind: booking.ErrGatewayRejected, StatusCode: response.StatusCode, Message: decoded.Message}
	}
	if decodeErr != nil {
		return &booking.GatewayError{Kind: booking.ErrGatewayUnavailable, StatusCode: response.StatusCode, Message: "payment gateway returned malformed json", Cause: decodeErr}
	}
	if !decoded.Status {
		return &booking.GatewayError{Kind: booking.ErrGatewayRejected, StatusCode: response.StatusCode, Message: decoded.Message}
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return &booking.GatewayError{Kind: booking.ErrGatewayUnavailable, StatusCode: response.StatusCode, Message: "payment gateway returned malformed data", Cause: err}
	}
	return nil
}

// unwrapURLError drops the *url.Error wrapper so the request URL is not repeated
// in client-facing messages.
func unwrapURLError(err error) error {
	var urlError *url.Error
	if errors.As(err, &urlError) {
		return urlError.Err
	}
	return err
}
