package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"go.uber.org/zap"
)

var sweepNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type stubLister struct {
	bookings []booking.Booking
	err      error
	before   time.Time
	limit    int
}

func (lister *stubLister) ListPendingBefore(ctx context.Context, before time.Time, cursor booking.PendingCursor, limit int) ([]booking.Booking, error) {
	lister.before, lister.limit = before, limit
	return lister.bookings, lister.err
}

// pagedLister serves bookings sorted by creation time, honoring the cursor.
type pagedLister struct {
	bookings []booking.Booking
}

func (lister *pagedLister) ListPendingBefore(ctx context.Context, before time.Time, cursor booking.PendingCursor, limit int) ([]booking.Booking, error) {
	var page []booking.Booking
	for _, candidate := range lister.bookings {
		if !candidate.CreatedAt.Before(before) {
			continue
		}
		if !cursor.IsZero() {
			position := booking.CursorAfter(candidate)
			if position.CreatedAt.Before(cursor.CreatedAt) ||
				(position.CreatedAt.Equal(cursor.CreatedAt) && position.Reference.String() <= cursor.Reference.String()) {
				continue
			}
		}
		page = append(page, candidate)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// pendingRechecker reports every booking as still pending.
type pendingRechecker struct {
	mutex   sync.Mutex
	checked map[string]int
}

func (rechecker *pendingRechecker) Recheck(ctx context.Context, reference booking.Reference) (booking.Booking, error) {
	rechecker.mutex.Lock()
	defer rechecker.mutex.Unlock()
	rechecker.checked[reference.String()]++
	return booking.Booking{Status: booking.StatusPending, Payment: booking.Payment{Reference: reference}}, nil
}

type stubRechecker struct {
	mutex    sync.Mutex
	outcomes map[string]error
	checked  []string
}

func (rechecker *stubRechecker) Recheck(ctx context.Context, reference booking.Reference) (booking.Booking, error) {
	rechecker.mutex.Lock()
	defer rechecker.mutex.Unlock()
	rechecker.checked = append(rechecker.checked, reference.String())
	if err := rechecker.outcomes[reference.String()]; err != nil {
		return booking.Booking{}, err
	}
	return booking.Booking{Status: booking.StatusConfirmed}, nil
}

func (rechecker *stubRechecker) count() int {
	rechecker.mutex.Lock()
	defer rechecker.mutex.Unlock()
	return len(rechecker.checked)
}

func stalePending(test *testing.T, raw string) booking.Booking {
	test.Helper()
	reference, err := booking.NewReference(raw)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	return booking.Booking{Status: booking.StatusPending, Payment: booking.Payment{Reference: reference}, CreatedAt: sweepNow.Add(-time.Hour)}
}

func fixedNow() time.Time { return sweepNow }

func TestSweepOnceClassifiesResults(test *testing.T) {
	test.Parallel()
	lister := &stubLister{bookings: []booking.Booking{
		stalePending(test, "BKG_PAID"),
		stalePending(test, "BKG_GONE"),
		stalePending(test, "BKG_DOWN"),
	}}
	rechecker := &stubRechecker{outcomes: map[string]error{
		"BKG_GONE": booking.ErrTransactionNotFound,
		"BKG_DOWN": &booking.GatewayError{Kind: booking.ErrGatewayUnavailable, StatusCode: 502},
	}}
	sweeper, err := NewSweeper(lister, rechecker, zap.NewNop(), SweeperConfig{Interval: time.Minute, StaleAfter: 15 * time.Minute, BatchSize: 25}, fixedNow)
	if err != nil {
		test.Fatalf("new sweeper: %v", err)
	}

	result, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if result != (SweepResult{Checked: 3, Settled: 1, Missing: 1, Failures: 1}) {
		test.Fatalf("unexpected result %+v", result)
	}
	if !lister.before.Equal(sweepNow.Add(-15*time.Minute)) || lister.limit != 25 {
		test.Fatalf("unexpected list arguments %v/%d", lister.before, lister.limit)
	}
}

func TestSweepOnceReachesBookingsBeyondOneBatch(test *testing.T) {
	test.Parallel()
	lister := &pagedLister{}
	for index := 0; index < 150; index++ {
		candidate := stalePending(test, fmt.Sprintf("BKG_STUCK_%03d", index))
		candidate.CreatedAt = sweepNow.Add(-48 * time.Hour).Add(time.Duration(index) * time.Minute)
		lister.bookings = append(lister.bookings, candidate)
	}
	rechecker := &pendingRechecker{checked: map[string]int{}}
	sweeper, err := NewSweeper(lister, rechecker, nil, SweeperConfig{Interval: time.Minute, StaleAfter: time.Minute, BatchSize: 100}, fixedNow)
	if err != nil {
		test.Fatalf("new sweeper: %v", err)
	}

	expectedChecked := []int{100, 50, 100}
	for pass, expected := range expectedChecked {
		result, err := sweeper.SweepOnce(context.Background())
		if err != nil {
			test.Fatalf("sweep %d: %v", pass, err)
		}
		if result.Checked != expected {
			test.Fatalf("pass %d: expected %d checked, got %d", pass, expected, result.Checked)
		}
	}
	if len(rechecker.checked) != 150 {
		test.Fatalf("expected every stale booking rechecked, got %d distinct", len(rechecker.checked))
	}
	if rechecker.checked["BKG_STUCK_000"] != 2 || rechecker.checked["BKG_STUCK_149"] != 1 {
		test.Fatalf("unexpected recheck counts: first=%d last=%d", rechecker.checked["BKG_STUCK_000"], rechecker.checked["BKG_STUCK_149"])
	}
}

func TestSweepOnceWrapsAfterExactBatch(test *testing.T) {
	test.Parallel()
	lister := &pagedLister{}
	for index := 0; index < 4; index++ {
		candidate := stalePending(test, fmt.Sprintf("BKG_EXACT_%d", index))
		candidate.CreatedAt = sweepNow.Add(-time.Hour).Add(time.Duration(index) * time.Second)
		lister.bookings = append(lister.bookings, candidate)
	}
	rechecker := &pendingRechecker{checked: map[string]int{}}
	sweeper, err := NewSweeper(lister, rechecker, nil, SweeperConfig{Interval: time.Minute, StaleAfter: time.Minute, BatchSize: 2}, fixedNow)
	if err != nil {
		test.Fatalf("new sweeper: %v", err)
	}
	for pass := 0; pass < 3; pass++ {
		result, err := sweeper.SweepOnce(context.Background())
		if err != nil {
			test.Fatalf("sweep %d: %v", pass, err)
		}
		if result.Checked != 2 {
			test.Fatalf("pass %d: expected 2 checked, got %d", pass, result.Checked)
		}
	}
	if rechecker.checked["BKG_EXACT_0"] != 2 || rechecker.checked["BKG_EXACT_3"] != 1 {
		test.Fatalf("unexpected recheck counts: %v", rechecker.checked)
	}
}

func TestSweepOnceReportsListFailure(test *testing.T) {
	test.Parallel()
	listErr := errors.New("database offline")
	sweeper, err := NewSweeper(&stubLister{err: listErr}, &stubRechecker{}, nil, SweeperConfig{Interval: time.Minute, StaleAfter: time.Minute}, fixedNow)
	if err != nil {
		test.Fatalf("new sweeper: %v", err)
	}
	if _, err := sweeper.SweepOnce(context.Background()); !errors.Is(err, listErr) {
		test.Fatalf("expected list error, got %v", err)
	}
}

func TestRunSweepsUntilCancelled(test *testing.T) {
	test.Parallel()
	lister := &stubLister{bookings: []booking.Booking{stalePending(test, "BKG_TICK")}}
	rechecker := &stubRechecker{}
	sweeper, err := NewSweeper(lister, rechecker, nil, SweeperConfig{Interval: 5 * time.Millisecond, StaleAfter: time.Minute}, fixedNow)
	if err != nil {
		test.Fatalf("new sweeper: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for rechecker.count() < 2 {
		select {
		case <-deadline:
			test.Fatalf("expected repeated sweeps, got %d", rechecker.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNewSweeperValidatesConfig(test *testing.T) {
	test.Parallel()
	if _, err := NewSweeper(nil, &stubRechecker{}, nil, SweeperConfig{Interval: time.Minute, StaleAfter: time.Minute}, nil); !errors.Is(err, booking.ErrInvalidServiceConfig) {
		test.Fatalf("expected config error, got %v", err)
	}
	if _, err := NewSweeper(&stubLister{}, &stubRechecker{}, nil, SweeperConfig{StaleAfter: time.Minute}, nil); !errors.Is(err, booking.ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for zero interval, got %v", err)
	}
}
