package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// LogSink writes events to zap. It never fails.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (sink *LogSink) Deliver(ctx context.Context, event booking.Event) error {
	sink.logger.Info("booking follow-up",
		zap.String("event_type", string(event.Type)),
		zap.String("booking_id", event.BookingID),
		zap.String("payment_reference", event.Reference),
		zap.String("user_id", event.UserID),
		zap.String("status", event.Status.String()),
		zap.Int64("amount_minor", event.AmountMinor),
		zap.String("currency", event.Currency.String()),
		zap.String("reason", event.Reason),
	)
	return nil
}

// RabbitSink publishes events as JSON to a topic exchange, routed by event type.
type RabbitSink struct {
	mutex    sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitSink dials url and declares a durable topic exchange.
func NewRabbitSink(url string, exchange string) (*RabbitSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (sink *RabbitSink) Deliver(ctx context.Context, event booking.Event) error {
	publishing, err := encodeEvent(event)
	if err != nil {
		return backoff.Permanent(err)
	}
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if err := sink.ch.PublishWithContext(ctx, sink.exchange, string(event.Type), false, false, publishing); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (sink *RabbitSink) Close() error {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.ch != nil {
		_ = sink.ch.Close()
	}
	if sink.conn != nil {
		return sink.conn.Close()
	}
	return nil
}

func encodeEvent(event booking.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s: %w", event.Type, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.Reference + ":" + string(event.Type),
		Timestamp:    event.OccurredAt.UTC().Truncate(time.Second),
		Type:         string(event.Type),
		Body:         body,
	}, nil
}
