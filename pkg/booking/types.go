package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// UserID identifies the owning user. User lifecycle is managed elsewhere.
type UserID struct {
	value string
}

// Reference correlates a gateway transaction with exactly one booking.
type Reference struct {
	value string
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty booking id", ErrInvalidParameter)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty user id", ErrInvalidParameter)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewReference validates and normalizes a payment reference.
func NewReference(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("%w: empty payment reference", ErrInvalidParameter)
	}
	if len(trimmed) > maxReferenceLength {
		return Reference{}, fmt.Errorf("%w: payment reference longer than %d characters", ErrInvalidParameter, maxReferenceLength)
	}
	return Reference{value: trimmed}, nil
}

// String returns the normalized reference.
func (reference Reference) String() string {
	return reference.value
}

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusFailed, StatusCancelled, StatusCompleted:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown booking status %q", ErrInvalidParameter, raw)
	}
}

// String returns the wire value.
func (status Status) String() string {
	return string(status)
}

// Settled reports whether the payment outcome of the booking is final.
func (status Status) Settled() bool {
	return status != StatusPending
}

// GatewayStatus is the payment state recorded on the booking.
type GatewayStatus string

const (
	GatewayStatusPending GatewayStatus = "pending"
	GatewayStatusPaid    GatewayStatus = "paid"
	GatewayStatusFailed  GatewayStatus = "failed"
)

// ParseGatewayStatus validates a stored gateway status value.
func ParseGatewayStatus(raw string) (GatewayStatus, error) {
	switch GatewayStatus(raw) {
	case GatewayStatusPending, GatewayStatusPaid, GatewayStatusFailed:
		return GatewayStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown gateway status %q", ErrInvalidParameter, raw)
	}
}

// String returns the wire value.
func (status GatewayStatus) String() string {
	return string(status)
}

// Payment is the gateway side of a booking.
type Payment struct {
	Reference            Reference
	GatewayStatus        GatewayStatus
	ChargedAmount        Money
	PaidAmount           *Money
	VerifiedAt           *time.Time
	GatewayTransactionID string
	AuthorizationURL     string
	AccessCode           string
	Channel              string
}

// Booking is one requested service instance.
type Booking struct {
	ID                 BookingID
	UserID             UserID
	CustomerEmail      string
	ServiceType        ServiceType
	ServiceCategory    string
	ServiceDetails     ServiceParams
	BookingDate        time.Time
	BookingTime        string
	Location           string
	Price              Money
	Status             Status
	Payment            Payment
	FailureReason      string
	CancellationReason string
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transition is the set of fields written when a booking changes status.
type Transition struct {
	Status               Status
	GatewayStatus        GatewayStatus
	PaidAmount           *Money
	VerifiedAt           *time.Time
	GatewayTransactionID string
	Channel              string
	FailureReason        string
	CancellationReason   string
	CompletedAt          *time.Time
	UpdatedAt            time.Time
}

// PendingCursor is the position after the last booking of a ListPendingBefore
// page. Pages are ordered by CreatedAt, then Reference. The zero cursor starts
// at the oldest booking.
type PendingCursor struct {
	CreatedAt time.Time
	Reference Reference
}

// IsZero reports whether cursor starts from the beginning.
func (cursor PendingCursor) IsZero() bool {
	return cursor.CreatedAt.IsZero() && cursor.Reference.String() == ""
}

// CursorAfter returns the cursor positioned after value.
func CursorAfter(value Booking) PendingCursor {
	return PendingCursor{CreatedAt: value.CreatedAt.UTC(), Reference: value.Payment.Reference}
}

// Store is the persistence contract used by Service and Reconciler.
type Store interface {
	CreateBooking(ctx context.Context, booking Booking) error
	// DeleteBooking removes a booking that never became visible to the user.
	DeleteBooking(ctx context.Context, id BookingID) error
	FindByID(ctx context.Context, id BookingID) (Booking, error)
	FindByReference(ctx context.Context, reference Reference) (Booking, error)
	// TransitionBooking writes transition only if the stored status equals
	// expected, and reports whether a row was changed. Status, GatewayStatus and
	// UpdatedAt are always written; the other fields only when set.
	TransitionBooking(ctx context.Context, reference Reference, expected Status, transition Transition) (bool, error)
	// ListPendingBefore pages through pending bookings created before before,
	// starting strictly after cursor.
	ListPendingBefore(ctx context.Context, before time.Time, cursor PendingCursor, limit int) ([]Booking, error)
}

// PaymentResult is the outcome reported by the gateway for a transaction.
type PaymentResult string

const (
	PaymentSuccessful PaymentResult = "successful"
	PaymentFailed     PaymentResult = "failed"
	PaymentPending    PaymentResult = "pending"
)

// InitializeRequest starts a gateway transaction.
type InitializeRequest struct {
	CustomerEmail string
	Amount        Money
	Reference     Reference
	CallbackURL   string
	Metadata      map[string]string
}

// Initialization is the gateway's answer to InitializeRequest.
type Initialization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        Reference
}

// Verification is the authoritative transaction state from the gateway.
type Verification struct {
	Reference       Reference
	Status          PaymentResult
	Amount          Money
	TransactionID   string
	PaidAt          *time.Time
	Channel         string
	GatewayResponse string
}

// WebhookEvent is a parsed, signature-checked gateway notification.
// Ignorable is set for event types that carry no charge outcome.
type WebhookEvent struct {
	Type         string
	Verification Verification
	Ignorable    bool
}

// Gateway is the payment provider adapter.
type Gateway interface {
	InitializeTransaction(ctx context.Context, request InitializeRequest) (Initialization, error)
	VerifyTransaction(ctx context.Context, reference Reference) (Verification, error)
	ValidateSignature(payload []byte, signature string) bool
	ParseWebhookEvent(payload []byte) (WebhookEvent, error)
}

// ReferenceSource issues unique payment references.
type ReferenceSource interface {
	NextReference() (Reference, error)
}
