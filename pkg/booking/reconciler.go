package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is an authoritative gateway result for one reference.
type Outcome struct {
	Reference     Reference
	Result        PaymentResult
	Amount        Money
	TransactionID string
	PaidAt        *time.Time
	Channel       string
	Reason        string
	Source        string
}

// OutcomeFromVerification builds an Outcome from a gateway verification.
func OutcomeFromVerification(verification Verification, source string) Outcome {
	return Outcome{
		Reference:     verification.Reference,
		Result:        verification.Status,
		Amount:        verification.Amount,
		TransactionID: verification.TransactionID,
		PaidAt:        verification.PaidAt,
		Channel:       verification.Channel,
		Reason:        verification.GatewayResponse,
		Source:        source,
	}
}

// Reconciler moves pending bookings to a settled state exactly once. The only
// serialization point is Store.TransitionBooking; no in-process locks are held.
type Reconciler struct {
	store            Store
	gateway          Gateway
	nowFn            func() time.Time
	logger           OperationLogger
	publisher        EventPublisher
	reverifyWebhooks bool
}

// NewReconciler wires a Reconciler.
func NewReconciler(store Store, gateway Gateway, now func() time.Time, options ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	reconciler := &Reconciler{store: store, gateway: gateway, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(reconciler)
		}
	}
	return reconciler, nil
}

// Verify fetches the transaction state from the gateway and reconciles the
// booking with it. Safe to call repeatedly.
func (reconciler *Reconciler) Verify(ctx context.Context, reference Reference) (Booking, error) {
	return reconciler.verify(ctx, reference, SourceVerify)
}

// Recheck is Verify for bookings picked up by the stale-booking sweeper.
func (reconciler *Reconciler) Recheck(ctx context.Context, reference Reference) (Booking, error) {
	return reconciler.verify(ctx, reference, SourceSweeper)
}

func (reconciler *Reconciler) verify(ctx context.Context, reference Reference, source string) (Booking, error) {
	current, err := reconciler.store.FindByReference(ctx, reference)
	if err != nil {
		reconciler.logOperation(ctx, OperationLog{Operation: operationVerify, Reference: reference, Source: source, Outcome: OutcomeRejected, Error: err})
		return Booking{}, err
	}
	verification, err := reconciler.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		entry := OperationLog{
			Operation:  operationVerify,
			BookingID:  current.ID,
			Reference:  reference,
			Source:     source,
			FromStatus: current.Status,
			ToStatus:   current.Status,
			Outcome:    OutcomeRejected,
			Error:      err,
		}
		if errors.Is(err, ErrTransactionNotFound) {
			entry.Detail = "booking exists but the gateway has no transaction for its reference"
		}
		reconciler.logOperation(ctx, entry)
		return Booking{}, err
	}
	if verification.Reference.String() == "" {
		verification.Reference = reference
	}
	if verification.Reference != reference {
		err := &GatewayError{Kind: ErrGatewayRejected, Message: fmt.Sprintf("verification returned reference %s for %s", verification.Reference, reference)}
		reconciler.logOperation(ctx, OperationLog{Operation: operationVerify, BookingID: current.ID, Reference: reference, Source: source, Outcome: OutcomeRejected, Error: err})
		return Booking{}, err
	}
	return reconciler.reconcile(ctx, operationVerify, current, OutcomeFromVerification(verification, source))
}

// HandleWebhook authenticates a raw gateway notification and reconciles the
// booking it refers to. The signature is checked over the unparsed payload
// before any field is read. Ignorable events return a zero Booking and no error.
func (reconciler *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (Booking, error) {
	if !reconciler.gateway.ValidateSignature(payload, signature) {
		reconciler.logOperation(ctx, OperationLog{
			Operation:     operationWebhook,
			Source:        SourceWebhook,
			Outcome:       OutcomeRejected,
			SecurityEvent: true,
			Error:         ErrInvalidSignature,
		})
		return Booking{}, ErrInvalidSignature
	}
	event, err := reconciler.gateway.ParseWebhookEvent(payload)
	if err != nil {
		reconciler.logOperation(ctx, OperationLog{Operation: operationWebhook, Source: SourceWebhook, Outcome: OutcomeRejected, Error: err})
		return Booking{}, err
	}
	if event.Ignorable {
		reconciler.logOperation(ctx, OperationLog{Operation: operationWebhook, Source: SourceWebhook, Outcome: OutcomeNoop, Detail: "ignored event " + event.Type})
		return Booking{}, nil
	}
	reference := event.Verification.Reference
	current, err := reconciler.store.FindByReference(ctx, reference)
	if err != nil {
		reconciler.logOperation(ctx, OperationLog{Operation: operationWebhook, Reference: reference, Source: SourceWebhook, Outcome: OutcomeRejected, Error: err})
		return Booking{}, err
	}
	verification := event.Verification
	if reconciler.reverifyWebhooks {
		verification, err = reconciler.gateway.VerifyTransaction(ctx, reference)
		if err != nil {
			reconciler.logOperation(ctx, OperationLog{Operation: operationWebhook, BookingID: current.ID, Reference: reference, Source: SourceWebhook, FromStatus: current.Status, Outcome: OutcomeRejected, Error: err})
			return Booking{}, err
		}
		verification.Reference = reference
	}
	return reconciler.reconcile(ctx, operationWebhook, current, OutcomeFromVerification(verification, SourceWebhook))
}

// Apply reconciles the booking for outcome.Reference with an outcome that the
// caller has already authenticated.
func (reconciler *Reconciler) Apply(ctx context.Context, outcome Outcome) (Booking, error) {
	current, err := reconciler.store.FindByReference(ctx, outcome.Reference)
	if err != nil {
		reconciler.logOperation(ctx, OperationLog{Operation: operationApply, Reference: outcome.Reference, Source: outcome.Source, Outcome: OutcomeRejected, Error: err})
		return Booking{}, err
	}
	return reconciler.reconcile(ctx, operationApply, current, outcome)
}

// Cancel moves a pending booking to cancelled. Cancelling a cancelled booking
// is a no-op; any other status fails with ErrBookingNotPending.
func (reconciler *Reconciler) Cancel(ctx context.Context, id BookingID, reason string) (Booking, error) {
	if reason == "" {
		reason = reasonUserCancelled
	}
	current, err := reconciler.store.FindByID(ctx, id)
	if err != nil {
		reconciler.logOperation(ctx, OperationLog{Operation: operationCancel, BookingID: id, Outcome: OutcomeRejected, Error: err})
		return Booking{}, err
	}
	from := current.Status
	for attempt := 0; attempt < maxConvergeAttempts; attempt++ {
		switch current.Status {
		case StatusCancelled:
			reconciler.logTransition(ctx, operationCancel, "", from, current, OutcomeNoop, nil)
			return current, nil
		case StatusPending:
		default:
			err := fmt.Errorf("%w: booking %s is %s", ErrBookingNotPending, id, current.Status)
			reconciler.logTransition(ctx, operationCancel, "", from, current, OutcomeRejected, err)
			return current, err
		}
		now := reconciler.nowFn().UTC()
		transition := Transition{
			Status:             StatusCancelled,
			GatewayStatus:      current.Payment.GatewayStatus,
			CancellationReason: reason,
			UpdatedAt:          now,
		}
		applied, err := reconciler.store.TransitionBooking(ctx, current.Payment.Reference, StatusPending, transition)
		if err != nil {
			reconciler.logTransition(ctx, operationCancel, "", from, current, OutcomeRejected, err)
			return Booking{}, err
		}
		if applied {
			cancelled := applyTransition(current, transition)
			reconciler.publish(ctx, newEvent(EventBookingCancelled, cancelled, cancelled.Price, reason, now))
			reconciler.logTransition(ctx, operationCancel, "", from, cancelled, OutcomeApplied, nil)
			return cancelled, nil
		}
		current, err = reconciler.store.FindByID(ctx, id)
		if err != nil {
			reconciler.logTransition(ctx, operationCancel, "", from, current, OutcomeRejected, err)
			return Booking{}, err
		}
	}
	err = errNotConverged(current.Payment.Reference)
	reconciler.logTransition(ctx, operationCancel, "", from, current, OutcomeRejected, err)
	return Booking{}, err
}

// reconcile runs the settlement state machine for one booking and outcome.
func (reconciler *Reconciler) reconcile(ctx context.Context, operation string, current Booking, outcome Outcome) (Booking, error) {
	from := current.Status
	if outcome.Result == PaymentPending {
		reconciler.logTransition(ctx, operation, outcome.Source, from, current, OutcomeNoop, nil)
		return current, nil
	}
	for attempt := 0; attempt < maxConvergeAttempts; attempt++ {
		transition, mismatch := reconciler.decide(current, outcome)
		if current.Status != StatusPending {
			return reconciler.settled(ctx, operation, from, current, outcome, transition.Status)
		}
		applied, err := reconciler.store.TransitionBooking(ctx, current.Payment.Reference, StatusPending, transition)
		if err != nil {
			reconciler.logTransition(ctx, operation, outcome.Source, from, current, OutcomeRejected, err)
			return Booking{}, err
		}
		if applied {
			settled := applyTransition(current, transition)
			if eventType, ok := eventForStatus(settled.Status); ok {
				reconciler.publish(ctx, newEvent(eventType, settled, outcome.Amount, settled.FailureReason, transition.UpdatedAt))
			}
			entry := reconciler.transitionLog(operation, outcome.Source, from, settled, OutcomeApplied, nil)
			entry.Amount = outcome.Amount
			if mismatch {
				entry.SecurityEvent = true
				entry.Detail = fmt.Sprintf("gateway reported %s against charged %s", outcome.Amount, current.Payment.ChargedAmount)
				entry.Error = ErrAmountMismatch
				entry.Status = operationStatusOK
			}
			reconciler.logOperation(ctx, entry)
			return settled, nil
		}
		current, err = reconciler.store.FindByReference(ctx, current.Payment.Reference)
		if err != nil {
			reconciler.logTransition(ctx, operation, outcome.Source, from, current, OutcomeRejected, err)
			return Booking{}, err
		}
	}
	err := errNotConverged(current.Payment.Reference)
	reconciler.logTransition(ctx, operation, outcome.Source, from, current, OutcomeRejected, err)
	return Booking{}, err
}

// decide computes the transition a pending booking would take for outcome and
// reports whether it is driven by an amount mismatch.
func (reconciler *Reconciler) decide(current Booking, outcome Outcome) (Transition, bool) {
	now := reconciler.nowFn().UTC()
	transition := Transition{
		GatewayTransactionID: outcome.TransactionID,
		Channel:              outcome.Channel,
		UpdatedAt:            now,
	}
	if outcome.Result != PaymentSuccessful {
		transition.Status = StatusFailed
		transition.GatewayStatus = GatewayStatusFailed
		transition.FailureReason = outcome.Reason
		if transition.FailureReason == "" {
			transition.FailureReason = reasonPaymentFailed
		}
		return transition, false
	}
	paid := outcome.Amount
	transition.PaidAmount = &paid
	transition.GatewayStatus = GatewayStatusPaid
	if !paid.Equal(current.Payment.ChargedAmount) {
		transition.Status = StatusFailed
		transition.FailureReason = reasonAmountMismatch
		return transition, true
	}
	verifiedAt := now
	transition.Status = StatusConfirmed
	transition.VerifiedAt = &verifiedAt
	return transition, false
}

// settled handles an outcome for a booking that is no longer pending. Settled
// bookings are never rewritten; disagreement is reported as a conflict.
func (reconciler *Reconciler) settled(ctx context.Context, operation string, from Status, current Booking, outcome Outcome, target Status) (Booking, error) {
	if agrees(current.Status, target) {
		reconciler.logTransition(ctx, operation, outcome.Source, from, current, OutcomeNoop, nil)
		return current, nil
	}
	detail := fmt.Sprintf("gateway outcome %s (%s) disagrees with settled status %s", outcome.Result, outcome.Amount, current.Status)
	reconciler.publish(ctx, newEvent(EventPaymentConflict, current, outcome.Amount, detail, reconciler.nowFn().UTC()))
	entry := reconciler.transitionLog(operation, outcome.Source, from, current, OutcomeConflict, nil)
	entry.Amount = outcome.Amount
	entry.SecurityEvent = true
	entry.Detail = detail
	reconciler.logOperation(ctx, entry)
	return current, nil
}

// agrees reports whether a settled status already reflects target.
func agrees(status Status, target Status) bool {
	switch status {
	case StatusConfirmed, StatusCompleted:
		return target == StatusConfirmed
	case StatusFailed:
		return target == StatusFailed
	case StatusCancelled:
		return target == StatusFailed
	default:
		return false
	}
}

func (reconciler *Reconciler) publish(ctx context.Context, event Event) {
	if reconciler.publisher == nil {
		return
	}
	if err := reconciler.publisher.Publish(ctx, event); err != nil {
		reconciler.logOperation(ctx, OperationLog{
			Operation: "publish_" + string(event.Type),
			Reference: referenceOrZero(event.Reference),
			ToStatus:  event.Status,
			Outcome:   OutcomeRejected,
			Detail:    "follow-up event not queued",
			Error:     err,
		})
	}
}

func (reconciler *Reconciler) transitionLog(operation string, source string, from Status, current Booking, outcome string, err error) OperationLog {
	return OperationLog{
		Operation:  operation,
		BookingID:  current.ID,
		Reference:  current.Payment.Reference,
		Source:     source,
		FromStatus: from,
		ToStatus:   current.Status,
		Amount:     current.Price,
		Outcome:    outcome,
		Error:      err,
	}
}

func (reconciler *Reconciler) logTransition(ctx context.Context, operation string, source string, from Status, current Booking, outcome string, err error) {
	reconciler.logOperation(ctx, reconciler.transitionLog(operation, source, from, current, outcome, err))
}

func (reconciler *Reconciler) logOperation(ctx context.Context, entry OperationLog) {
	logOperation(ctx, reconciler.logger, entry)
}

func errNotConverged(reference Reference) error {
	return WrapError("reconciler", "transition", "not_converged", fmt.Errorf("conditional update for %s did not converge", reference))
}

func referenceOrZero(raw string) Reference {
	reference, err := NewReference(raw)
	if err != nil {
		return Reference{}
	}
	return reference
}
