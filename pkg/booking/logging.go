package booking

import (
	"context"

	"github.com/shopspring/decimal"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// ReconcilerOption configures a Reconciler instance.
type ReconcilerOption func(*Reconciler)

// OperationLogger records domain-level events emitted by Service and Reconciler operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a booking or payment operation. SecurityEvent marks
// signature failures, amount mismatches and terminal conflicts.
type OperationLog struct {
	Operation     string
	BookingID     BookingID
	Reference     Reference
	Source        string
	FromStatus    Status
	ToStatus      Status
	Amount        Money
	Outcome       string
	SecurityEvent bool
	Detail        string
	Status        string
	Error         error
}

// EventPublisher receives follow-up events after applied transitions.
// Implementations must not block the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithPriceTolerance overrides DefaultPriceTolerance.
func WithPriceTolerance(tolerance decimal.Decimal) ServiceOption {
	return func(service *Service) {
		service.tolerance = tolerance
	}
}

// WithCallbackURL sets the URL the gateway redirects the customer to.
func WithCallbackURL(callbackURL string) ServiceOption {
	return func(service *Service) {
		service.callbackURL = callbackURL
	}
}

// WithIDGenerator overrides the booking id generator.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		service.newID = generate
	}
}

// WithReconcilerLogger wires a logger for reconciler operations.
func WithReconcilerLogger(logger OperationLogger) ReconcilerOption {
	return func(reconciler *Reconciler) {
		reconciler.logger = logger
	}
}

// WithEventPublisher wires follow-up event delivery.
func WithEventPublisher(publisher EventPublisher) ReconcilerOption {
	return func(reconciler *Reconciler) {
		reconciler.publisher = publisher
	}
}

// WithWebhookReverify makes HandleWebhook confirm the outcome with VerifyTransaction
// instead of trusting the webhook payload.
func WithWebhookReverify(enabled bool) ReconcilerOption {
	return func(reconciler *Reconciler) {
		reconciler.reverifyWebhooks = enabled
	}
}
