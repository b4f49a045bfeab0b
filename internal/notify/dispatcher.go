// Package notify delivers booking follow-up events off the request path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 256
	defaultWorkers         = 2
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxElapsed      = 30 * time.Second

	resultDelivered = "delivered"
	resultFailed    = "failed"
	resultDropped   = "dropped"
)

var (
	ErrQueueFull        = errors.New("follow-up queue is full")
	ErrDispatcherClosed = errors.New("follow-up dispatcher is closed")
)

// Sink delivers one event. Returning backoff.Permanent stops retries.
type Sink interface {
	Deliver(ctx context.Context, event booking.Event) error
}

// DeliveryObserver records delivery results.
type DeliveryObserver interface {
	ObserveDelivery(eventType booking.EventType, result string)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the number of undelivered events held in memory.
func WithQueueSize(size int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.queueSize = size
	}
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(workers int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.workers = workers
	}
}

// WithRetry sets the first retry delay and the total retry budget per event.
func WithRetry(initial time.Duration, maxElapsed time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.initialInterval = initial
		dispatcher.maxElapsed = maxElapsed
	}
}

// WithDeliveryObserver reports every delivery result to observer.
func WithDeliveryObserver(observer DeliveryObserver) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.observer = observer
	}
}

// Dispatcher implements booking.EventPublisher with a bounded queue.
type Dispatcher struct {
	sink            Sink
	logger          *zap.Logger
	observer        DeliveryObserver
	queueSize       int
	workers         int
	initialInterval time.Duration
	maxElapsed      time.Duration

	queue     chan booking.Event
	mutex     sync.RWMutex
	closed    bool
	waitGroup sync.WaitGroup
	runCtx    context.Context
	cancelRun context.CancelFunc
}

var _ booking.EventPublisher = (*Dispatcher)(nil)

// NewDispatcher starts the delivery workers.
func NewDispatcher(sink Sink, logger *zap.Logger, options ...DispatcherOption) (*Dispatcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: follow-up sink is nil", booking.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := &Dispatcher{
		sink:            sink,
		logger:          logger,
		queueSize:       defaultQueueSize,
		workers:         defaultWorkers,
		initialInterval: defaultInitialInterval,
		maxElapsed:      defaultMaxElapsed,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	if dispatcher.queueSize <= 0 || dispatcher.workers <= 0 {
		return nil, fmt.Errorf("%w: queue size and workers must be positive", booking.ErrInvalidServiceConfig)
	}
	if dispatcher.initialInterval <= 0 || dispatcher.maxElapsed <= 0 {
		return nil, fmt.Errorf("%w: retry intervals must be positive", booking.ErrInvalidServiceConfig)
	}
	dispatcher.queue = make(chan booking.Event, dispatcher.queueSize)
	dispatcher.runCtx, dispatcher.cancelRun = context.WithCancel(context.Background())
	for index := 0; index < dispatcher.workers; index++ {
		dispatcher.waitGroup.Add(1)
		go dispatcher.run()
	}
	return dispatcher, nil
}

// Publish enqueues event without blocking.
func (dispatcher *Dispatcher) Publish(ctx context.Context, event booking.Event) error {
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	if dispatcher.closed {
		return ErrDispatcherClosed
	}
	select {
	case dispatcher.queue <- event:
		return nil
	default:
		dispatcher.observe(event.Type, resultDropped)
		return fmt.Errorf("%w: dropped %s for %s", ErrQueueFull, event.Type, event.Reference)
	}
}

// Close stops accepting events and waits for the queue to drain. Deliveries
// still running when ctx ends are abandoned.
func (dispatcher *Dispatcher) Close(ctx context.Context) error {
	dispatcher.mutex.Lock()
	if !dispatcher.closed {
		dispatcher.closed = true
		close(dispatcher.queue)
	}
	dispatcher.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		dispatcher.waitGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
		dispatcher.cancelRun()
		return nil
	case <-ctx.Done():
		dispatcher.cancelRun()
		<-done
		return fmt.Errorf("drain follow-up queue: %w", ctx.Err())
	}
}

func (dispatcher *Dispatcher) run() {
	defer dispatcher.waitGroup.Done()
	for event := range dispatcher.queue {
		dispatcher.deliver(event)
	}
}

func (dispatcher *Dispatcher) deliver(event booking.Event) {
	if dispatcher.runCtx.Err() != nil {
		dispatcher.observe(event.Type, resultDropped)
		return
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = dispatcher.initialInterval
	policy.MaxElapsedTime = dispatcher.maxElapsed
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return dispatcher.sink.Deliver(dispatcher.runCtx, event)
	}, backoff.WithContext(policy, dispatcher.runCtx))
	if err != nil {
		dispatcher.observe(event.Type, resultFailed)
		dispatcher.logger.Error("follow-up delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("payment_reference", event.Reference),
			zap.String("booking_id", event.BookingID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	dispatcher.observe(event.Type, resultDelivered)
}

func (dispatcher *Dispatcher) observe(eventType booking.EventType, result string) {
	if dispatcher.observer != nil {
		dispatcher.observer.ObserveDelivery(eventType, result)
	}
}
