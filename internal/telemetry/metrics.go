package telemetry

import (
	"context"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "bookingd"

// Metrics counts domain operations and follow-up deliveries.
type Metrics struct {
	operations *prometheus.CounterVec
	security   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

var _ booking.OperationLogger = (*Metrics)(nil)

// NewMetrics registers the collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Booking operations by name, outcome and status.",
		}, []string{"operation", "outcome", "status"}),
		security: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "security_events_total",
			Help:      "Rejected signatures, amount mismatches and settled-state conflicts.",
		}, []string{"operation"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "followup_deliveries_total",
			Help:      "Follow-up event deliveries by event type and result.",
		}, []string{"event_type", "result"}),
	}
	for _, collector := range []prometheus.Collector{metrics.operations, metrics.security, metrics.deliveries} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (metrics *Metrics) LogOperation(ctx context.Context, entry booking.OperationLog) {
	outcome := entry.Outcome
	if outcome == "" {
		outcome = "none"
	}
	metrics.operations.WithLabelValues(entry.Operation, outcome, entry.Status).Inc()
	if entry.SecurityEvent {
		metrics.security.WithLabelValues(entry.Operation).Inc()
	}
}

// ObserveDelivery records one follow-up delivery result such as
// "delivered", "failed" or "dropped".
func (metrics *Metrics) ObserveDelivery(eventType booking.EventType, result string) {
	metrics.deliveries.WithLabelValues(string(eventType), result).Inc()
}
