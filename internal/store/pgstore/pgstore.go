// Package pgstore implements booking.Store directly on pgx.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintPaymentReference = "bookings_payment_reference_key"
	pgUniqueViolationCode      = "23505"
	errorOperationStore        = "store"
	errorSubjectBooking        = "booking"
	errorCodeCreate            = "create"
	errorCodeDelete            = "delete"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeTransition        = "transition"

	bookingColumns = `
		booking_id::text, user_id, customer_email, service_type, service_category, service_params,
		booking_date, booking_time, location, price_minor, currency, status,
		payment_reference, gateway_status, charged_amount_minor, paid_amount_minor, paid_currency,
		verified_at, gateway_transaction_id, authorization_url, access_code, channel,
		failure_reason, cancellation_reason, completed_at, created_at, updated_at
	`

	sqlInsertBooking = `
		insert into bookings(
			booking_id, user_id, customer_email, service_type, service_category, service_params,
			booking_date, booking_time, location, price_minor, currency, status,
			payment_reference, gateway_status, charged_amount_minor, paid_amount_minor, paid_currency,
			verified_at, gateway_transaction_id, authorization_url, access_code, channel,
			failure_reason, cancellation_reason, completed_at, created_at, updated_at
		)
		values(
			$1, $2, $3, $4, $5, $6::jsonb,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, nullif($19, ''), $20, $21, $22,
			$23, $24, $25, $26, $27
		)
	`

	sqlSelectByID = `select ` + bookingColumns + ` from bookings where booking_id = $1::uuid`

	sqlSelectByReference = `select ` + bookingColumns + ` from bookings where payment_reference = $1`

	sqlSelectPendingBefore = `select ` + bookingColumns + `
		from bookings
		where status = 'pending' and created_at < $1
			and (created_at, payment_reference) > ($2, $3)
		order by created_at asc, payment_reference asc
		limit $4
	`

	sqlDeletePending = `delete from bookings where booking_id = $1::uuid and status = 'pending'`

	sqlTransition = `
		update bookings
		set status = $3,
			gateway_status = $4,
			updated_at = $5,
			paid_amount_minor = coalesce($6::bigint, paid_amount_minor),
			paid_currency = coalesce($7::char(3), paid_currency),
			verified_at = coalesce($8::timestamptz, verified_at),
			gateway_transaction_id = coalesce(nullif($9, ''), gateway_transaction_id),
			channel = coalesce(nullif($10, ''), channel),
			failure_reason = coalesce(nullif($11, ''), failure_reason),
			cancellation_reason = coalesce(nullif($12, ''), cancellation_reason),
			completed_at = coalesce($13::timestamptz, completed_at)
		where payment_reference = $1 and status = $2
	`

	noListLimit = int64(1) << 62
)

// Store implements booking.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ booking.Store = (*Store)(nil)

// New returns a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) CreateBooking(ctx context.Context, value booking.Booking) error {
	params, err := booking.EncodeServiceParams(value.ServiceDetails)
	if err != nil {
		return wrapStoreError(errorCodeInvalid, err)
	}
	var (
		paidMinor    *int64
		paidCurrency *string
	)
	if value.Payment.PaidAmount != nil {
		minor := value.Payment.PaidAmount.MinorUnits()
		currency := value.Payment.PaidAmount.Currency().String()
		paidMinor, paidCurrency = &minor, &currency
	}
	_, err = store.pool.Exec(ctx, sqlInsertBooking,
		value.ID.String(), value.UserID.String(), value.CustomerEmail,
		value.ServiceType.String(), value.ServiceCategory, string(params),
		value.BookingDate.UTC(), value.BookingTime, value.Location,
		value.Price.MinorUnits(), value.Price.Currency().String(), value.Status.String(),
		value.Payment.Reference.String(), value.Payment.GatewayStatus.String(), value.Payment.ChargedAmount.MinorUnits(),
		paidMinor, paidCurrency,
		value.Payment.VerifiedAt, value.Payment.GatewayTransactionID,
		value.Payment.AuthorizationURL, value.Payment.AccessCode, value.Payment.Channel,
		value.FailureReason, value.CancellationReason, value.CompletedAt,
		value.CreatedAt.UTC(), value.UpdatedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintPaymentReference {
		return wrapStoreError(errorCodeDuplicate, booking.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorCodeCreate, err)
	}
	return nil
}

// DeleteBooking removes a pending booking.
func (store *Store) DeleteBooking(ctx context.Context, id booking.BookingID) error {
	tag, err := store.pool.Exec(ctx, sqlDeletePending, id.String())
	if err != nil {
		return wrapStoreError(errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorCodeDelete, booking.ErrBookingNotFound)
	}
	return nil
}

func (store *Store) FindByID(ctx context.Context, id booking.BookingID) (booking.Booking, error) {
	return store.findOne(ctx, sqlSelectByID, id.String())
}

func (store *Store) FindByReference(ctx context.Context, reference booking.Reference) (booking.Booking, error) {
	return store.findOne(ctx, sqlSelectByReference, reference.String())
}

func (store *Store) findOne(ctx context.Context, query string, argument string) (booking.Booking, error) {
	row, err := scanBooking(store.pool.QueryRow(ctx, query, argument))
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Booking{}, wrapStoreError(errorCodeGet, booking.ErrBookingNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorCodeGet, err)
	}
	value, err := row.toBooking()
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorCodeInvalid, err)
	}
	return value, nil
}

func (store *Store) TransitionBooking(ctx context.Context, reference booking.Reference, expected booking.Status, transition booking.Transition) (bool, error) {
	var (
		paidMinor    *int64
		paidCurrency *string
	)
	if transition.PaidAmount != nil {
		minor := transition.PaidAmount.MinorUnits()
		currency := transition.PaidAmount.Currency().String()
		paidMinor, paidCurrency = &minor, &currency
	}
	tag, err := store.pool.Exec(ctx, sqlTransition,
		reference.String(), expected.String(),
		transition.Status.String(), transition.GatewayStatus.String(), transition.UpdatedAt.UTC(),
		paidMinor, paidCurrency, transition.VerifiedAt,
		transition.GatewayTransactionID, transition.Channel,
		transition.FailureReason, transition.CancellationReason, transition.CompletedAt,
	)
	if err != nil {
		return false, wrapStoreError(errorCodeTransition, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (store *Store) ListPendingBefore(ctx context.Context, before time.Time, cursor booking.PendingCursor, limit int) ([]booking.Booking, error) {
	rowLimit := noListLimit
	if limit > 0 {
		rowLimit = int64(limit)
	}
	rows, err := store.pool.Query(ctx, sqlSelectPendingBefore, before.UTC(), cursor.CreatedAt.UTC(), cursor.Reference.String(), rowLimit)
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	defer rows.Close()
	var bookings []booking.Booking
	for rows.Next() {
		row, err := scanBooking(rows)
		if err != nil {
			return nil, wrapStoreError(errorCodeList, err)
		}
		value, err := row.toBooking()
		if err != nil {
			return nil, wrapStoreError(errorCodeInvalid, err)
		}
		bookings = append(bookings, value)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	return bookings, nil
}

type bookingRow struct {
	bookingID            string
	userID               string
	customerEmail        string
	serviceType          string
	serviceCategory      string
	serviceParams        json.RawMessage
	bookingDate          time.Time
	bookingTime          string
	location             string
	priceMinor           int64
	currency             string
	status               string
	paymentReference     string
	gatewayStatus        string
	chargedAmountMinor   int64
	paidAmountMinor      *int64
	paidCurrency         *string
	verifiedAt           *time.Time
	gatewayTransactionID *string
	authorizationURL     string
	accessCode           string
	channel              string
	failureReason        string
	cancellationReason   string
	completedAt          *time.Time
	createdAt            time.Time
	updatedAt            time.Time
}

func scanBooking(row pgx.Row) (bookingRow, error) {
	var scanned bookingRow
	err := row.Scan(
		&scanned.bookingID, &scanned.userID, &scanned.customerEmail, &scanned.serviceType, &scanned.serviceCategory, &scanned.serviceParams,
		&scanned.bookingDate, &scanned.bookingTime, &scanned.location, &scanned.priceMinor, &scanned.currency, &scanned.status,
		&scanned.paymentReference, &scanned.gatewayStatus, &scanned.chargedAmountMinor, &scanned.paidAmountMinor, &scanned.paidCurrency,
		&scanned.verifiedAt, &scanned.gatewayTransactionID, &scanned.authorizationURL, &scanned.accessCode, &scanned.channel,
		&scanned.failureReason, &scanned.cancellationReason, &scanned.completedAt, &scanned.createdAt, &scanned.updatedAt,
	)
	return scanned, err
}

func (row bookingRow) toBooking() (booking.Booking, error) {
	id, err := booking.NewBookingID(row.bookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	userID, err := booking.NewUserID(row.userID)
	if err != nil {
		return booking.Booking{}, err
	}
	serviceType, err := booking.ParseServiceType(row.serviceType)
	if err != nil {
		return booking.Booking{}, err
	}
	params, err := booking.DecodeServiceParams(serviceType, row.serviceParams)
	if err != nil {
		return booking.Booking{}, err
	}
	currency, err := booking.ParseCurrency(row.currency)
	if err != nil {
		return booking.Booking{}, err
	}
	price, err := booking.NewMoney(row.priceMinor, currency)
	if err != nil {
		return booking.Booking{}, err
	}
	charged, err := booking.NewMoney(row.chargedAmountMinor, currency)
	if err != nil {
		return booking.Booking{}, err
	}
	status, err := booking.ParseStatus(row.status)
	if err != nil {
		return booking.Booking{}, err
	}
	gatewayStatus, err := booking.ParseGatewayStatus(row.gatewayStatus)
	if err != nil {
		return booking.Booking{}, err
	}
	reference, err := booking.NewReference(row.paymentReference)
	if err != nil {
		return booking.Booking{}, err
	}
	value := booking.Booking{
		ID:                 id,
		UserID:             userID,
		CustomerEmail:      row.customerEmail,
		ServiceType:        serviceType,
		ServiceCategory:    row.serviceCategory,
		ServiceDetails:     params,
		BookingDate:        row.bookingDate.UTC(),
		BookingTime:        row.bookingTime,
		Location:           row.location,
		Price:              price,
		Status:             status,
		FailureReason:      row.failureReason,
		CancellationReason: row.cancellationReason,
		CompletedAt:        utcOrNil(row.completedAt),
		CreatedAt:          row.createdAt.UTC(),
		UpdatedAt:          row.updatedAt.UTC(),
		Payment: booking.Payment{
			Reference:        reference,
			GatewayStatus:    gatewayStatus,
			ChargedAmount:    charged,
			VerifiedAt:       utcOrNil(row.verifiedAt),
			AuthorizationURL: row.authorizationURL,
			AccessCode:       row.accessCode,
			Channel:          row.channel,
		},
	}
	if row.paidAmountMinor != nil {
		paidCurrency := currency
		if row.paidCurrency != nil {
			paidCurrency, err = booking.ParseCurrency(*row.paidCurrency)
			if err != nil {
				return booking.Booking{}, err
			}
		}
		paid, err := booking.NewMoney(*row.paidAmountMinor, paidCurrency)
		if err != nil {
			return booking.Booking{}, err
		}
		value.Payment.PaidAmount = &paid
	}
	if row.gatewayTransactionID != nil {
		value.Payment.GatewayTransactionID = *row.gatewayTransactionID
	}
	return value, nil
}

func utcOrNil(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func wrapStoreError(code string, err error) error {
	return booking.WrapError(errorOperationStore, errorSubjectBooking, code, err)
}
