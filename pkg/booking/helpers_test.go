package booking

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testWebhookSecret = "sk_test_webhook"

var testNow = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

// readBarrier holds the first n FindByReference callers until all of them
// have read, forcing concurrent callers to observe the same snapshot.
type readBarrier struct {
	remaining atomic.Int32
	group     sync.WaitGroup
}

func newReadBarrier(participants int) *readBarrier {
	barrier := &readBarrier{}
	barrier.remaining.Store(int32(participants))
	barrier.group.Add(participants)
	return barrier
}

func (barrier *readBarrier) arrive() {
	if barrier.remaining.Add(-1) >= 0 {
		barrier.group.Done()
		barrier.group.Wait()
	}
}

type memoryStore struct {
	mu              sync.Mutex
	bookings        map[string]Booking
	transitionCalls int
	appliedWrites   int
	createErr       error
	transitionErr   error
	barrier         *readBarrier
}

func newMemoryStore(test *testing.T, bookings ...Booking) *memoryStore {
	test.Helper()
	store := &memoryStore{bookings: make(map[string]Booking)}
	for _, booking := range bookings {
		store.bookings[booking.Payment.Reference.String()] = booking
	}
	return store
}

func (store *memoryStore) CreateBooking(_ context.Context, booking Booking) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.createErr != nil {
		return store.createErr
	}
	if _, exists := store.bookings[booking.Payment.Reference.String()]; exists {
		return ErrDuplicateReference
	}
	store.bookings[booking.Payment.Reference.String()] = booking
	return nil
}

func (store *memoryStore) DeleteBooking(_ context.Context, id BookingID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for reference, booking := range store.bookings {
		if booking.ID == id {
			delete(store.bookings, reference)
			return nil
		}
	}
	return ErrBookingNotFound
}

func (store *memoryStore) FindByID(_ context.Context, id BookingID) (Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, booking := range store.bookings {
		if booking.ID == id {
			return booking, nil
		}
	}
	return Booking{}, ErrBookingNotFound
}

func (store *memoryStore) FindByReference(_ context.Context, reference Reference) (Booking, error) {
	store.mu.Lock()
	booking, ok := store.bookings[reference.String()]
	store.mu.Unlock()
	if store.barrier != nil {
		store.barrier.arrive()
	}
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

func (store *memoryStore) TransitionBooking(_ context.Context, reference Reference, expected Status, transition Transition) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.transitionCalls++
	if store.transitionErr != nil {
		return false, store.transitionErr
	}
	booking, ok := store.bookings[reference.String()]
	if !ok || booking.Status != expected {
		return false, nil
	}
	store.bookings[reference.String()] = applyTransition(booking, transition)
	store.appliedWrites++
	return true, nil
}

func (store *memoryStore) ListPendingBefore(_ context.Context, before time.Time, cursor PendingCursor, limit int) ([]Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var pending []Booking
	for _, booking := range store.bookings {
		if booking.Status == StatusPending && booking.CreatedAt.Before(before) && (cursor.IsZero() || cursorBefore(cursor, CursorAfter(booking))) {
			pending = append(pending, booking)
		}
	}
	sort.Slice(pending, func(left, right int) bool {
		return cursorBefore(CursorAfter(pending[left]), CursorAfter(pending[right]))
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func cursorBefore(left PendingCursor, right PendingCursor) bool {
	if !left.CreatedAt.Equal(right.CreatedAt) {
		return left.CreatedAt.Before(right.CreatedAt)
	}
	return left.Reference.String() < right.Reference.String()
}

func (store *memoryStore) mustBooking(test *testing.T, reference Reference) Booking {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	booking, ok := store.bookings[reference.String()]
	if !ok {
		test.Fatalf("booking %s not stored", reference)
	}
	return booking
}

func (store *memoryStore) count() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.bookings)
}

func (store *memoryStore) writes() (int, int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.transitionCalls, store.appliedWrites
}

type fakeGateway struct {
	mu             sync.Mutex
	secret         string
	initialization Initialization
	initErr        error
	initRequests   []InitializeRequest
	verification   Verification
	verifyErr      error
	verifyCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		secret:         testWebhookSecret,
		initialization: Initialization{AuthorizationURL: "https://checkout.example/pay", AccessCode: "access-1"},
	}
}

func (gateway *fakeGateway) InitializeTransaction(_ context.Context, request InitializeRequest) (Initialization, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.initRequests = append(gateway.initRequests, request)
	if gateway.initErr != nil {
		return Initialization{}, gateway.initErr
	}
	initialization := gateway.initialization
	initialization.Reference = request.Reference
	return initialization, nil
}

func (gateway *fakeGateway) VerifyTransaction(_ context.Context, reference Reference) (Verification, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.verifyCalls++
	if gateway.verifyErr != nil {
		return Verification{}, gateway.verifyErr
	}
	verification := gateway.verification
	verification.Reference = reference
	return verification, nil
}

func (gateway *fakeGateway) ValidateSignature(payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, signPayload(gateway.secret, payload))
}

type fakeWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		ID        int64  `json:"id"`
	} `json:"data"`
}

func (gateway *fakeGateway) ParseWebhookEvent(payload []byte) (WebhookEvent, error) {
	var webhook fakeWebhook
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if webhook.Event != "charge.success" && webhook.Event != "charge.failed" {
		return WebhookEvent{Type: webhook.Event, Ignorable: true}, nil
	}
	reference, err := NewReference(webhook.Data.Reference)
	if err != nil {
		return WebhookEvent{}, err
	}
	amount, err := NewMoney(webhook.Data.Amount, Currency(webhook.Data.Currency))
	if err != nil {
		return WebhookEvent{}, err
	}
	result := PaymentFailed
	if webhook.Event == "charge.success" {
		result = PaymentSuccessful
	}
	return WebhookEvent{
		Type: webhook.Event,
		Verification: Verification{
			Reference:     reference,
			Status:        result,
			Amount:        amount,
			TransactionID: fmt.Sprintf("%d", webhook.Data.ID),
		},
	}, nil
}

func (gateway *fakeGateway) calls() (int, int) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return len(gateway.initRequests), gateway.verifyCalls
}

func signPayload(secret string, payload []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func signedWebhook(test *testing.T, secret string, event string, reference Reference, amountMinor int64) ([]byte, string) {
	test.Helper()
	payload := []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"status":"success","amount":%d,"currency":"NGN","id":9001}}`, event, reference.String(), amountMinor))
	return payload, hex.EncodeToString(signPayload(secret, payload))
}

type sequenceReferences struct {
	mu   sync.Mutex
	next int
}

func (source *sequenceReferences) NextReference() (Reference, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.next++
	return NewReference(fmt.Sprintf("BKG_TEST_%d", source.next))
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) last(test *testing.T) OperationLog {
	test.Helper()
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.entries) == 0 {
		test.Fatalf("expected at least one log entry")
	}
	return logger.entries[len(logger.entries)-1]
}

type recorderPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (publisher *recorderPublisher) Publish(_ context.Context, event Event) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if publisher.err != nil {
		return publisher.err
	}
	publisher.events = append(publisher.events, event)
	return nil
}

func (publisher *recorderPublisher) types() []EventType {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	types := make([]EventType, 0, len(publisher.events))
	for _, event := range publisher.events {
		types = append(types, event.Type)
	}
	return types
}

func mustMoney(test *testing.T, minorUnits int64) Money {
	test.Helper()
	money, err := NewMoney(minorUnits, CurrencyNGN)
	if err != nil {
		test.Fatalf("money %d: %v", minorUnits, err)
	}
	return money
}

func mustReference(test *testing.T, raw string) Reference {
	test.Helper()
	reference, err := NewReference(raw)
	if err != nil {
		test.Fatalf("reference %q: %v", raw, err)
	}
	return reference
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustBookingID(test *testing.T, raw string) BookingID {
	test.Helper()
	bookingID, err := NewBookingID(raw)
	if err != nil {
		test.Fatalf("booking id %q: %v", raw, err)
	}
	return bookingID
}

func pendingBooking(test *testing.T, reference string, chargedMinor int64) Booking {
	test.Helper()
	price := mustMoney(test, chargedMinor)
	return Booking{
		ID:              mustBookingID(test, "booking-"+reference),
		UserID:          mustUserID(test, "user-1"),
		CustomerEmail:   "customer@example.com",
		ServiceType:     ServiceCleaning,
		ServiceCategory: "standard",
		ServiceDetails:  threeRoomCleaning(),
		BookingDate:     testNow.Add(96 * time.Hour),
		BookingTime:     "09:30",
		Location:        "12 Admiralty Way, Lekki",
		Price:           price,
		Status:          StatusPending,
		Payment: Payment{
			Reference:        mustReference(test, reference),
			GatewayStatus:    GatewayStatusPending,
			ChargedAmount:    price,
			AuthorizationURL: "https://checkout.example/pay",
		},
		CreatedAt: testNow.Add(-time.Hour),
		UpdatedAt: testNow.Add(-time.Hour),
	}
}

func threeRoomCleaning() *CleaningParams {
	return &CleaningParams{
		CategoryName: "standard",
		Rooms:        map[string]int{"bedroom": 2, "kitchen": 1},
	}
}

func successfulVerification(test *testing.T, amountMinor int64) Verification {
	test.Helper()
	return Verification{
		Status:        PaymentSuccessful,
		Amount:        mustMoney(test, amountMinor),
		TransactionID: "4099260516",
		Channel:       "card",
	}
}

func mustNewReconciler(test *testing.T, store Store, gateway Gateway, options ...ReconcilerOption) *Reconciler {
	test.Helper()
	reconciler, err := NewReconciler(store, gateway, fixedClock, options...)
	if err != nil {
		test.Fatalf("reconciler init failed: %v", err)
	}
	return reconciler
}

func mustNewService(test *testing.T, store Store, gateway Gateway, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, gateway, &sequenceReferences{}, fixedClock, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}
