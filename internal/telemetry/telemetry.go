// Package telemetry implements booking.OperationLogger with zap and prometheus.
package telemetry

import (
	"context"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger writes one structured line per domain operation.
type ZapLogger struct {
	logger *zap.Logger
}

var _ booking.OperationLogger = (*ZapLogger)(nil)

// NewZapLogger wraps logger. A nil logger logs nothing.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation logs failures at error, security events at warn and
// everything else at info.
func (zapLogger *ZapLogger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	fields := Fields(entry)
	level := zapcore.InfoLevel
	switch {
	case entry.SecurityEvent:
		level = zapcore.WarnLevel
	case entry.Error != nil && booking.KindOf(entry.Error) == booking.KindInternal:
		level = zapcore.ErrorLevel
	case entry.Error != nil:
		level = zapcore.WarnLevel
	}
	if checked := zapLogger.logger.Check(level, "booking operation"); checked != nil {
		checked.Write(fields...)
	}
}

// Fields renders entry as zap fields. Empty values are omitted.
func Fields(entry booking.OperationLog) []zap.Field {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if value := entry.BookingID.String(); value != "" {
		fields = append(fields, zap.String("booking_id", value))
	}
	if value := entry.Reference.String(); value != "" {
		fields = append(fields, zap.String("payment_reference", value))
	}
	if entry.Source != "" {
		fields = append(fields, zap.String("source", entry.Source))
	}
	if entry.FromStatus != "" {
		fields = append(fields, zap.String("from_status", entry.FromStatus.String()))
	}
	if entry.ToStatus != "" {
		fields = append(fields, zap.String("to_status", entry.ToStatus.String()))
	}
	if entry.Amount.Currency() != "" {
		fields = append(fields,
			zap.Int64("amount_minor", entry.Amount.MinorUnits()),
			zap.String("currency", entry.Amount.Currency().String()),
		)
	}
	if entry.Outcome != "" {
		fields = append(fields, zap.String("outcome", entry.Outcome))
	}
	if entry.SecurityEvent {
		fields = append(fields, zap.Bool("security_event", true))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		fields = append(fields,
			zap.String("error_kind", string(booking.KindOf(entry.Error))),
			zap.Error(entry.Error),
		)
	}
	return fields
}

// Fanout forwards each entry to every logger.
type Fanout []booking.OperationLogger

func (fanout Fanout) LogOperation(ctx context.Context, entry booking.OperationLog) {
	for _, logger := range fanout {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}
