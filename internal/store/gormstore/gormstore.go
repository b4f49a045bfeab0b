// Package gormstore implements booking.Store on gorm for sqlite and postgres.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintPaymentReference = "bookings_payment_reference_key"
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	errorOperationStore        = "store"
	errorSubjectBooking        = "booking"
	errorCodeCreate            = "create"
	errorCodeDelete            = "delete"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeTransition        = "transition"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

var _ booking.Store = (*Store)(nil)

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the schema. Postgres deployments use the
// goose migrations instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (store *Store) CreateBooking(ctx context.Context, value booking.Booking) error {
	record, err := toRecord(value)
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	err = store.db.WithContext(ctx).Create(&record).Error
	if isReferenceConflict(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

// DeleteBooking removes a pending booking.
func (store *Store) DeleteBooking(ctx context.Context, id booking.BookingID) error {
	result := store.db.WithContext(ctx).
		Where("booking_id = ? AND status = ?", id.String(), booking.StatusPending.String()).
		Delete(&BookingRecord{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeDelete, booking.ErrBookingNotFound)
	}
	return nil
}

func (store *Store) FindByID(ctx context.Context, id booking.BookingID) (booking.Booking, error) {
	return store.find(ctx, "booking_id = ?", id.String())
}

func (store *Store) FindByReference(ctx context.Context, reference booking.Reference) (booking.Booking, error) {
	return store.find(ctx, "payment_reference = ?", reference.String())
}

func (store *Store) find(ctx context.Context, condition string, value string) (booking.Booking, error) {
	var record BookingRecord
	err := store.db.WithContext(ctx).Where(condition, value).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrBookingNotFound)
		}
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	found, err := fromRecord(record)
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return found, nil
}

// TransitionBooking is a single conditional UPDATE keyed by reference and the
// expected status.
func (store *Store) TransitionBooking(ctx context.Context, reference booking.Reference, expected booking.Status, transition booking.Transition) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("payment_reference = ? AND status = ?", reference.String(), expected.String()).
		Updates(transitionColumns(transition))
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectBooking, errorCodeTransition, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ListPendingBefore(ctx context.Context, before time.Time, cursor booking.PendingCursor, limit int) ([]booking.Booking, error) {
	var records []BookingRecord
	query := store.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", booking.StatusPending.String(), before.UTC())
	if !cursor.IsZero() {
		after := cursor.CreatedAt.UTC()
		query = query.Where("(created_at > ? OR (created_at = ? AND payment_reference > ?))", after, after, cursor.Reference.String())
	}
	query = query.Order("created_at ASC").Order("payment_reference ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	bookings := make([]booking.Booking, 0, len(records))
	for _, record := range records {
		value, err := fromRecord(record)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, value)
	}
	return bookings, nil
}

func transitionColumns(transition booking.Transition) map[string]any {
	columns := map[string]any{
		"status":         transition.Status.String(),
		"gateway_status": transition.GatewayStatus.String(),
		"updated_at":     transition.UpdatedAt.UTC(),
	}
	if transition.PaidAmount != nil {
		columns["paid_amount_minor"] = transition.PaidAmount.MinorUnits()
		columns["paid_currency"] = transition.PaidAmount.Currency().String()
	}
	if transition.VerifiedAt != nil {
		columns["verified_at"] = transition.VerifiedAt.UTC()
	}
	if transition.GatewayTransactionID != "" {
		columns["gateway_transaction_id"] = transition.GatewayTransactionID
	}
	if transition.Channel != "" {
		columns["channel"] = transition.Channel
	}
	if transition.FailureReason != "" {
		columns["failure_reason"] = transition.FailureReason
	}
	if transition.CancellationReason != "" {
		columns["cancellation_reason"] = transition.CancellationReason
	}
	if transition.CompletedAt != nil {
		columns["completed_at"] = transition.CompletedAt.UTC()
	}
	return columns
}

func toRecord(value booking.Booking) (BookingRecord, error) {
	params, err := booking.EncodeServiceParams(value.ServiceDetails)
	if err != nil {
		return BookingRecord{}, err
	}
	record := BookingRecord{
		BookingID:          value.ID.String(),
		UserID:             value.UserID.String(),
		CustomerEmail:      value.CustomerEmail,
		ServiceType:        value.ServiceType.String(),
		ServiceCategory:    value.ServiceCategory,
		ServiceParams:      datatypes.JSON(params),
		BookingDate:        value.BookingDate.UTC(),
		BookingTime:        value.BookingTime,
		Location:           value.Location,
		PriceMinor:         value.Price.MinorUnits(),
		Currency:           value.Price.Currency().String(),
		Status:             value.Status.String(),
		PaymentReference:   value.Payment.Reference.String(),
		GatewayStatus:      value.Payment.GatewayStatus.String(),
		ChargedAmountMinor: value.Payment.ChargedAmount.MinorUnits(),
		VerifiedAt:         value.Payment.VerifiedAt,
		AuthorizationURL:   value.Payment.AuthorizationURL,
		AccessCode:         value.Payment.AccessCode,
		Channel:            value.Payment.Channel,
		FailureReason:      value.FailureReason,
		CancellationReason: value.CancellationReason,
		CompletedAt:        value.CompletedAt,
		CreatedAt:          value.CreatedAt.UTC(),
		UpdatedAt:          value.UpdatedAt.UTC(),
	}
	if value.Payment.PaidAmount != nil {
		minor := value.Payment.PaidAmount.MinorUnits()
		currency := value.Payment.PaidAmount.Currency().String()
		record.PaidAmountMinor = &minor
		record.PaidCurrency = &currency
	}
	if value.Payment.GatewayTransactionID != "" {
		transactionID := value.Payment.GatewayTransactionID
		record.GatewayTransactionID = &transactionID
	}
	return record, nil
}

func fromRecord(record BookingRecord) (booking.Booking, error) {
	id, err := booking.NewBookingID(record.BookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	userID, err := booking.NewUserID(record.UserID)
	if err != nil {
		return booking.Booking{}, err
	}
	serviceType, err := booking.ParseServiceType(record.ServiceType)
	if err != nil {
		return booking.Booking{}, err
	}
	params, err := booking.DecodeServiceParams(serviceType, record.ServiceParams)
	if err != nil {
		return booking.Booking{}, err
	}
	currency := booking.Currency(record.Currency)
	price, err := booking.NewMoney(record.PriceMinor, currency)
	if err != nil {
		return booking.Booking{}, err
	}
	charged, err := booking.NewMoney(record.ChargedAmountMinor, currency)
	if err != nil {
		return booking.Booking{}, err
	}
	status, err := booking.ParseStatus(record.Status)
	if err != nil {
		return booking.Booking{}, err
	}
	gatewayStatus, err := booking.ParseGatewayStatus(record.GatewayStatus)
	if err != nil {
		return booking.Booking{}, err
	}
	reference, err := booking.NewReference(record.PaymentReference)
	if err != nil {
		return booking.Booking{}, err
	}
	value := booking.Booking{
		ID:                 id,
		UserID:             userID,
		CustomerEmail:      record.CustomerEmail,
		ServiceType:        serviceType,
		ServiceCategory:    record.ServiceCategory,
		ServiceDetails:     params,
		BookingDate:        record.BookingDate.UTC(),
		BookingTime:        record.BookingTime,
		Location:           record.Location,
		Price:              price,
		Status:             status,
		FailureReason:      record.FailureReason,
		CancellationReason: record.CancellationReason,
		CompletedAt:        utcOrNil(record.CompletedAt),
		CreatedAt:          record.CreatedAt.UTC(),
		UpdatedAt:          record.UpdatedAt.UTC(),
		Payment: booking.Payment{
			Reference:        reference,
			GatewayStatus:    gatewayStatus,
			ChargedAmount:    charged,
			VerifiedAt:       utcOrNil(record.VerifiedAt),
			AuthorizationURL: record.AuthorizationURL,
			AccessCode:       record.AccessCode,
			Channel:          record.Channel,
		},
	}
	if record.PaidAmountMinor != nil {
		paidCurrency := currency
		if record.PaidCurrency != nil {
			paidCurrency = booking.Currency(*record.PaidCurrency)
		}
		paid, err := booking.NewMoney(*record.PaidAmountMinor, paidCurrency)
		if err != nil {
			return booking.Booking{}, err
		}
		value.Payment.PaidAmount = &paid
	}
	if record.GatewayTransactionID != nil {
		value.Payment.GatewayTransactionID = *record.GatewayTransactionID
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

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isReferenceConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintPaymentReference
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
