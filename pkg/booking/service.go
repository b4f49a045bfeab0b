package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service creates bookings and drives their non-payment transitions.
type Service struct {
	store       Store
	gateway     Gateway
	references  ReferenceSource
	nowFn       func() time.Time
	logger      OperationLogger
	tolerance   decimal.Decimal
	callbackURL string
	newID       func() string
}

// CreateRequest is a validated booking request from a client.
type CreateRequest struct {
	UserID               UserID
	CustomerEmail        string
	ServiceType          ServiceType
	Params               ServiceParams
	BookingDate          time.Time
	BookingTime          string
	Location             string
	ClientEstimatedPrice Money
}

// NewService wires a Service.
func NewService(store Store, gateway Gateway, references ReferenceSource, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if references == nil {
		return nil, fmt.Errorf("%w: reference source is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:      store,
		gateway:    gateway,
		references: references,
		nowFn:      now,
		tolerance:  DefaultPriceTolerance,
		newID:      uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.tolerance.IsNegative() {
		return nil, fmt.Errorf("%w: price tolerance must not be negative", ErrInvalidServiceConfig)
	}
	if service.newID == nil {
		return nil, fmt.Errorf("%w: id generator is nil", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Quote returns the authoritative price without creating anything.
func (service *Service) Quote(serviceType ServiceType, params ServiceParams) (Money, error) {
	return ComputePrice(serviceType, params)
}

// CreateBooking prices the request, initializes the gateway transaction and
// persists the booking in pending. Nothing is persisted when pricing or
// initialization fails.
func (service *Service) CreateBooking(ctx context.Context, request CreateRequest) (Booking, error) {
	var (
		created Booking
		detail  string
	)
	operationError := func() error {
		if err := service.validateRequest(request); err != nil {
			return err
		}
		serverPrice, err := ComputePrice(request.ServiceType, request.Params)
		if err != nil {
			return err
		}
		price, err := ReconcileClientPrice(serverPrice, request.ClientEstimatedPrice, service.tolerance)
		if err != nil {
			return err
		}
		created.Price = price
		reference, err := service.references.NextReference()
		if err != nil {
			return WrapError("service", "reference", "generate", err)
		}
		created.Payment.Reference = reference
		bookingID, err := NewBookingID(service.newID())
		if err != nil {
			return err
		}
		created.ID = bookingID

		initialization, err := service.gateway.InitializeTransaction(ctx, InitializeRequest{
			CustomerEmail: strings.TrimSpace(request.CustomerEmail),
			Amount:        price,
			Reference:     reference,
			CallbackURL:   service.callbackURL,
			Metadata: map[string]string{
				"booking_id":   bookingID.String(),
				"user_id":      request.UserID.String(),
				"service_type": request.ServiceType.String(),
			},
		})
		if err != nil {
			return err
		}
		if initialization.AuthorizationURL == "" {
			return &GatewayError{Kind: ErrGatewayRejected, Message: "gateway returned no authorization url"}
		}
		if initialization.Reference.String() != "" && initialization.Reference != reference {
			return &GatewayError{Kind: ErrGatewayRejected, Message: fmt.Sprintf("gateway returned reference %s for %s", initialization.Reference, reference)}
		}

		now := service.nowFn().UTC()
		created = Booking{
			ID:              bookingID,
			UserID:          request.UserID,
			CustomerEmail:   strings.TrimSpace(request.CustomerEmail),
			ServiceType:     request.ServiceType,
			ServiceCategory: request.Params.Category(),
			ServiceDetails:  request.Params,
			BookingDate:     request.BookingDate.UTC(),
			BookingTime:     strings.TrimSpace(request.BookingTime),
			Location:        strings.TrimSpace(request.Location),
			Price:           price,
			Status:          StatusPending,
			Payment: Payment{
				Reference:        reference,
				GatewayStatus:    GatewayStatusPending,
				ChargedAmount:    price,
				AuthorizationURL: initialization.AuthorizationURL,
				AccessCode:       initialization.AccessCode,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := service.store.CreateBooking(ctx, created); err != nil {
			detail = "gateway transaction initialized without a stored booking"
			return err
		}
		return nil
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateBooking,
		BookingID: created.ID,
		Reference: created.Payment.Reference,
		ToStatus:  created.Status,
		Amount:    created.Price,
		Detail:    detail,
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	return created, nil
}

// Booking returns a booking by id.
func (service *Service) Booking(ctx context.Context, id BookingID) (Booking, error) {
	return service.store.FindByID(ctx, id)
}

// Complete moves a confirmed booking to completed once the service was delivered.
// Completing an already completed booking is a no-op.
func (service *Service) Complete(ctx context.Context, id BookingID) (Booking, error) {
	var (
		result  Booking
		from    Status
		outcome string
	)
	operationError := func() error {
		current, err := service.store.FindByID(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		for attempt := 0; attempt < maxConvergeAttempts; attempt++ {
			switch current.Status {
			case StatusCompleted:
				result, outcome = current, OutcomeNoop
				return nil
			case StatusConfirmed:
			default:
				result, outcome = current, OutcomeRejected
				return fmt.Errorf("%w: booking %s is %s", ErrBookingNotConfirmed, id, current.Status)
			}
			now := service.nowFn().UTC()
			transition := Transition{
				Status:        StatusCompleted,
				GatewayStatus: current.Payment.GatewayStatus,
				CompletedAt:   &now,
				UpdatedAt:     now,
			}
			applied, err := service.store.TransitionBooking(ctx, current.Payment.Reference, StatusConfirmed, transition)
			if err != nil {
				return err
			}
			if applied {
				result, outcome = applyTransition(current, transition), OutcomeApplied
				return nil
			}
			current, err = service.store.FindByID(ctx, id)
			if err != nil {
				return err
			}
		}
		return WrapError("service", "complete", "not_converged", errors.New("conditional update did not converge"))
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operationComplete,
		BookingID:  id,
		Reference:  result.Payment.Reference,
		FromStatus: from,
		ToStatus:   result.Status,
		Outcome:    outcome,
		Error:      operationError,
	})
	return result, operationError
}

func (service *Service) validateRequest(request CreateRequest) error {
	if request.UserID.String() == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(request.CustomerEmail)); err != nil {
		return fmt.Errorf("%w: customerEmail %q is not a valid address", ErrInvalidParameter, request.CustomerEmail)
	}
	if _, err := ParseServiceType(request.ServiceType.String()); err != nil {
		return err
	}
	if request.Params == nil {
		return fmt.Errorf("%w: serviceParams are required", ErrInvalidParameter)
	}
	if request.BookingDate.IsZero() {
		return fmt.Errorf("%w: bookingDate is required", ErrInvalidParameter)
	}
	today := service.nowFn().UTC().Truncate(24 * time.Hour)
	if request.BookingDate.UTC().Truncate(24 * time.Hour).Before(today) {
		return fmt.Errorf("%w: bookingDate must not be in the past", ErrInvalidParameter)
	}
	if _, err := time.Parse(bookingTimeLayout, strings.TrimSpace(request.BookingTime)); err != nil {
		return fmt.Errorf("%w: bookingTime must be HH:MM", ErrInvalidParameter)
	}
	location := strings.TrimSpace(request.Location)
	if location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidParameter)
	}
	if len(location) > maxLocationLength {
		return fmt.Errorf("%w: location longer than %d characters", ErrInvalidParameter, maxLocationLength)
	}
	if request.ClientEstimatedPrice.Currency() == "" {
		return fmt.Errorf("%w: clientEstimatedPrice is required", ErrInvalidParameter)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	logOperation(ctx, service.logger, entry)
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}

// applyTransition returns booking with the non-empty transition fields applied,
// mirroring what Store.TransitionBooking writes.
func applyTransition(booking Booking, transition Transition) Booking {
	booking.Status = transition.Status
	booking.Payment.GatewayStatus = transition.GatewayStatus
	booking.UpdatedAt = transition.UpdatedAt
	if transition.PaidAmount != nil {
		paid := *transition.PaidAmount
		booking.Payment.PaidAmount = &paid
	}
	if transition.VerifiedAt != nil {
		verifiedAt := *transition.VerifiedAt
		booking.Payment.VerifiedAt = &verifiedAt
	}
	if transition.GatewayTransactionID != "" {
		booking.Payment.GatewayTransactionID = transition.GatewayTransactionID
	}
	if transition.Channel != "" {
		booking.Payment.Channel = transition.Channel
	}
	if transition.FailureReason != "" {
		booking.FailureReason = transition.FailureReason
	}
	if transition.CancellationReason != "" {
		booking.CancellationReason = transition.CancellationReason
	}
	if transition.CompletedAt != nil {
		completedAt := *transition.CompletedAt
		booking.CompletedAt = &completedAt
	}
	return booking
}
