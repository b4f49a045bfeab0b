package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BookingRecord mirrors the bookings table. Amounts are minor units.
type BookingRecord struct {
	BookingID            string         `gorm:"type:uuid;primaryKey"`
	UserID               string         `gorm:"not null;index:idx_bookings_user_created,priority:1"`
	CustomerEmail        string         `gorm:"not null"`
	ServiceType          string         `gorm:"not null"`
	ServiceCategory      string         `gorm:"not null"`
	ServiceParams        datatypes.JSON `gorm:"not null"`
	BookingDate          time.Time      `gorm:"not null"`
	BookingTime          string         `gorm:"not null"`
	Location             string         `gorm:"not null"`
	PriceMinor           int64          `gorm:"not null"`
	Currency             string         `gorm:"size:3;not null"`
	Status               string         `gorm:"not null;index:idx_bookings_status_created,priority:1"`
	PaymentReference     string         `gorm:"not null;uniqueIndex:bookings_payment_reference_key"`
	GatewayStatus        string         `gorm:"not null"`
	ChargedAmountMinor   int64          `gorm:"not null"`
	PaidAmountMinor      *int64
	PaidCurrency         *string `gorm:"size:3"`
	VerifiedAt           *time.Time
	GatewayTransactionID *string
	AuthorizationURL     string `gorm:"not null"`
	AccessCode           string `gorm:"not null"`
	Channel              string `gorm:"not null;default:''"`
	FailureReason        string `gorm:"not null;default:''"`
	CancellationReason   string `gorm:"not null;default:''"`
	CompletedAt          *time.Time
	CreatedAt            time.Time `gorm:"not null;index:idx_bookings_status_created,priority:2;index:idx_bookings_user_created,priority:2"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (BookingRecord) TableName() string { return "bookings" }

func (record *BookingRecord) BeforeCreate(tx *gorm.DB) error {
	if record.BookingID == "" {
		record.BookingID = uuid.NewString()
	}
	return nil
}

// Models lists every table AutoMigrate manages for sqlite databases.
func Models() []any {
	return []any{&BookingRecord{}}
}
