package booking

import "time"

// EventType names a follow-up event.
type EventType string

// EventPaymentConflict is raised when a gateway outcome disagrees with a
// settled booking, for example a charge against a cancelled booking.
const (
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingFailed    EventType = "booking.failed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventPaymentConflict  EventType = "booking.payment_conflict"
)

// Event is the payload handed to an EventPublisher.
type Event struct {
	Type        EventType `json:"type"`
	BookingID   string    `json:"bookingId"`
	Reference   string    `json:"reference"`
	UserID      string    `json:"userId"`
	Status      Status    `json:"status"`
	AmountMinor int64     `json:"amountMinor"`
	Currency    Currency  `json:"currency"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func newEvent(eventType EventType, booking Booking, amount Money, reason string, occurredAt time.Time) Event {
	return Event{
		Type:        eventType,
		BookingID:   booking.ID.String(),
		Reference:   booking.Payment.Reference.String(),
		UserID:      booking.UserID.String(),
		Status:      booking.Status,
		AmountMinor: amount.MinorUnits(),
		Currency:    amount.Currency(),
		Reason:      reason,
		OccurredAt:  occurredAt,
	}
}

func eventForStatus(status Status) (EventType, bool) {
	switch status {
	case StatusConfirmed:
		return EventBookingConfirmed, true
	case StatusFailed:
		return EventBookingFailed, true
	case StatusCancelled:
		return EventBookingCancelled, true
	default:
		return "", false
	}
}
