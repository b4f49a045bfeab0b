package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service and reconciler.
var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrPriceMismatch        = errors.New("price mismatch")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayRejected      = errors.New("payment gateway rejected request")
	ErrTransactionNotFound  = errors.New("gateway transaction not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrAmountMismatch       = errors.New("amount mismatch")
	ErrBookingNotPending    = errors.New("booking is not pending")
	ErrBookingNotConfirmed  = errors.New("booking is not confirmed")
	ErrDuplicateReference   = errors.New("duplicate payment reference")
	ErrInvalidMoney         = errors.New("invalid money")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Kind classifies an error into the transport-independent taxonomy.
type Kind string

const (
	KindInternal            Kind = "internal"
	KindInvalidParameter    Kind = "invalid_parameter"
	KindPriceMismatch       Kind = "price_mismatch"
	KindGatewayUnavailable  Kind = "gateway_unavailable"
	KindGatewayRejected     Kind = "gateway_rejected"
	KindTransactionNotFound Kind = "transaction_not_found"
	KindBookingNotFound     Kind = "booking_not_found"
	KindInvalidSignature    Kind = "invalid_signature"
	KindAmountMismatch      Kind = "amount_mismatch"
	KindBookingNotPending   Kind = "booking_not_pending"
	KindBookingNotConfirmed Kind = "booking_not_confirmed"
)

var kindTable = []struct {
	target error
	kind   Kind
}{
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrPriceMismatch, KindPriceMismatch},
	{ErrInvalidParameter, KindInvalidParameter},
	{ErrInvalidMoney, KindInvalidParameter},
	{ErrGatewayUnavailable, KindGatewayUnavailable},
	{ErrGatewayRejected, KindGatewayRejected},
	{ErrTransactionNotFound, KindTransactionNotFound},
	{ErrBookingNotFound, KindBookingNotFound},
	{ErrAmountMismatch, KindAmountMismatch},
	{ErrBookingNotPending, KindBookingNotPending},
	{ErrBookingNotConfirmed, KindBookingNotConfirmed},
}

// KindOf reports the taxonomy kind of err. Unknown errors are KindInternal.
// A GatewayError is classified by its Kind, never by its cause.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var gatewayError *GatewayError
	if errors.As(err, &gatewayError) && gatewayError.Kind != nil {
		if kind := tableKind(gatewayError.Kind); kind != KindInternal {
			return kind
		}
	}
	return tableKind(err)
}

func tableKind(err error) Kind {
	for _, candidate := range kindTable {
		if errors.Is(err, candidate.target) {
			return candidate.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	return KindOf(err) == KindGatewayUnavailable
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// GatewayError describes a failed call to the payment gateway.
// It unwraps to one of ErrGatewayUnavailable, ErrGatewayRejected or ErrTransactionNotFound.
type GatewayError struct {
	Kind       error
	StatusCode int
	Message    string
	Cause      error
}

// Error returns the formatted error message.
func (gatewayError *GatewayError) Error() string {
	message := gatewayError.Kind.Error()
	if gatewayError.StatusCode != 0 {
		message = fmt.Sprintf("%s (status %d)", message, gatewayError.StatusCode)
	}
	if gatewayError.Message != "" {
		message = message + ": " + gatewayError.Message
	}
	if gatewayError.Cause != nil {
		message = message + ": " + gatewayError.Cause.Error()
	}
	return message
}

// Unwrap exposes both the taxonomy sentinel and the transport cause.
func (gatewayError *GatewayError) Unwrap() []error {
	if gatewayError.Cause == nil {
		return []error{gatewayError.Kind}
	}
	return []error{gatewayError.Kind, gatewayError.Cause}
}

// PublicMessage returns the gateway message that is safe to show to clients.
func PublicMessage(err error) string {
	var gatewayError *GatewayError
	if errors.As(err, &gatewayError) && gatewayError.Message != "" {
		return gatewayError.Message
	}
	return ""
}
