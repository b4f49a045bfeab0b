package booking

import "time"

const (
	operationCreateBooking = "create_booking"
	operationVerify        = "verify_payment"
	operationWebhook       = "handle_webhook"
	operationApply         = "apply_outcome"
	operationCancel        = "cancel_booking"
	operationComplete      = "complete_booking"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// maxReferenceLength matches the gateway's reference column.
	maxReferenceLength  = 100
	maxLocationLength   = 500
	maxConvergeAttempts = 2

	reasonAmountMismatch = "amount mismatch"
	reasonPaymentFailed  = "payment failed"
	reasonUserCancelled  = "cancelled by user"

	bookingTimeLayout = "15:04"
)

// Sources that feed outcomes into the reconciler.
const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
	SourceSweeper = "sweeper"
)

// Outcomes reported in OperationLog.Outcome.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
)

// DefaultGatewayTimeout bounds a single gateway call.
const DefaultGatewayTimeout = 15 * time.Second
