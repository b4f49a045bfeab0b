// Package worker runs background reconciliation of stale bookings.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"go.uber.org/zap"
)

const defaultBatchSize = 100

// PendingLister lists bookings still awaiting payment.
type PendingLister interface {
	ListPendingBefore(ctx context.Context, before time.Time, cursor booking.PendingCursor, limit int) ([]booking.Booking, error)
}

// Rechecker re-reads the gateway status for one reference.
type Rechecker interface {
	Recheck(ctx context.Context, reference booking.Reference) (booking.Booking, error)
}

// SweeperConfig tunes a Sweeper.
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Checked  int
	Settled  int
	Missing  int
	Failures int
}

// Sweeper periodically verifies pending bookings that outlived StaleAfter.
// Passes walk the pending list one batch at a time and wrap to the oldest
// booking once it is exhausted.
type Sweeper struct {
	lister    PendingLister
	rechecker Rechecker
	logger    *zap.Logger
	config    SweeperConfig
	nowFn     func() time.Time

	mutex  sync.Mutex
	cursor booking.PendingCursor
}

// NewSweeper validates config and returns a Sweeper.
func NewSweeper(lister PendingLister, rechecker Rechecker, logger *zap.Logger, config SweeperConfig, now func() time.Time) (*Sweeper, error) {
	if lister == nil || rechecker == nil {
		return nil, fmt.Errorf("%w: sweeper dependencies are nil", booking.ErrInvalidServiceConfig)
	}
	if config.Interval <= 0 || config.StaleAfter <= 0 {
		return nil, fmt.Errorf("%w: sweep interval and stale-after must be positive", booking.ErrInvalidServiceConfig)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{lister: lister, rechecker: rechecker, logger: logger, config: config, nowFn: now}, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (sweeper *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweeper.config.Interval)
	defer ticker.Stop()
	sweeper.logger.Info("stale booking sweeper started",
		zap.Duration("interval", sweeper.config.Interval),
		zap.Duration("stale_after", sweeper.config.StaleAfter),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				sweeper.logger.Error("stale booking sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce re-verifies one batch. Per-booking failures are logged and left
// for the next pass.
func (sweeper *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	cutoff := sweeper.nowFn().UTC().Add(-sweeper.config.StaleAfter)
	sweeper.mutex.Lock()
	defer sweeper.mutex.Unlock()
	stale, err := sweeper.lister.ListPendingBefore(ctx, cutoff, sweeper.cursor, sweeper.config.BatchSize)
	if err == nil && len(stale) == 0 && !sweeper.cursor.IsZero() {
		sweeper.cursor = booking.PendingCursor{}
		stale, err = sweeper.lister.ListPendingBefore(ctx, cutoff, sweeper.cursor, sweeper.config.BatchSize)
	}
	if err != nil {
		return result, err
	}
	if len(stale) < sweeper.config.BatchSize {
		sweeper.cursor = booking.PendingCursor{}
	} else {
		sweeper.cursor = booking.CursorAfter(stale[len(stale)-1])
	}
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++
		updated, err := sweeper.rechecker.Recheck(ctx, candidate.Payment.Reference)
		switch {
		case err == nil:
			if updated.Status != booking.StatusPending {
				result.Settled++
			}
		case errors.Is(err, booking.ErrTransactionNotFound):
			result.Missing++
			sweeper.logger.Warn("pending booking has no gateway transaction",
				zap.String("booking_id", candidate.ID.String()),
				zap.String("payment_reference", candidate.Payment.Reference.String()),
				zap.Time("created_at", candidate.CreatedAt),
			)
		default:
			result.Failures++
			sweeper.logger.Warn("stale booking recheck failed",
				zap.String("payment_reference", candidate.Payment.Reference.String()),
				zap.Bool("retryable", booking.Retryable(err)),
				zap.Error(err),
			)
		}
	}
	if result.Checked > 0 {
		sweeper.logger.Info("stale booking sweep finished",
			zap.Int("checked", result.Checked),
			zap.Int("settled", result.Settled),
			zap.Int("missing", result.Missing),
			zap.Int("failures", result.Failures),
		)
	}
	return result, nil
}
