package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func cleaningRequest(test *testing.T, clientMajor string) CreateRequest {
	test.Helper()
	estimate, err := MoneyFromMajor(decimal.RequireFromString(clientMajor), CurrencyNGN)
	if err != nil {
		test.Fatalf("client estimate: %v", err)
	}
	return CreateRequest{
		UserID:               mustUserID(test, "user-42"),
		CustomerEmail:        "ada@example.com",
		ServiceType:          ServiceCleaning,
		Params:               threeRoomCleaning(),
		BookingDate:          testNow.Add(72 * time.Hour),
		BookingTime:          "09:30",
		Location:             "4 Bourdillon Road, Ikoyi",
		ClientEstimatedPrice: estimate,
	}
}

func TestCreateAndVerifyCleaningBooking(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	gateway := newFakeGateway()
	logger := &recorderLogger{}
	service := mustNewService(test, store, gateway, WithOperationLogger(logger), WithIDGenerator(func() string { return "booking-e2e" }))

	created, err := service.CreateBooking(context.Background(), cleaningRequest(test, "11600"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if created.Price.MinorUnits() != 1_160_000 || created.Price.Currency() != CurrencyNGN {
		test.Fatalf("expected price NGN 11600.00, got %s", created.Price)
	}
	if created.Status != StatusPending || created.Payment.GatewayStatus != GatewayStatusPending {
		test.Fatalf("expected pending booking, got %s/%s", created.Status, created.Payment.GatewayStatus)
	}
	if !created.Payment.ChargedAmount.Equal(created.Price) {
		test.Fatalf("charged amount %s differs from price %s", created.Payment.ChargedAmount, created.Price)
	}
	if created.Payment.AuthorizationURL == "" || created.ServiceCategory != "standard" {
		test.Fatalf("unexpected booking: %+v", created)
	}
	if len(gateway.initRequests) != 1 || gateway.initRequests[0].Amount.MinorUnits() != 1_160_000 {
		test.Fatalf("expected one initialization for 1160000 kobo, got %+v", gateway.initRequests)
	}
	if entry := logger.last(test); entry.Operation != operationCreateBooking || entry.Status != operationStatusOK {
		test.Fatalf("unexpected log entry: %+v", entry)
	}

	gateway.verification = successfulVerification(test, 1_160_000)
	reconciler := mustNewReconciler(test, store, gateway)
	verified, err := reconciler.Verify(context.Background(), created.Payment.Reference)
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	if verified.Status != StatusConfirmed {
		test.Fatalf("expected confirmed, got %s", verified.Status)
	}
	if verified.Payment.PaidAmount == nil || !verified.Payment.PaidAmount.Major().Equal(decimal.NewFromInt(11_600)) {
		test.Fatalf("expected paid amount 11600, got %v", verified.Payment.PaidAmount)
	}
}

func TestCreateBookingPriceMismatchSkipsGateway(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	gateway := newFakeGateway()
	service := mustNewService(test, store, gateway)

	_, err := service.CreateBooking(context.Background(), cleaningRequest(test, "12000"))
	if !errors.Is(err, ErrPriceMismatch) {
		test.Fatalf("expected ErrPriceMismatch, got %v", err)
	}
	if initCalls, _ := gateway.calls(); initCalls != 0 {
		test.Fatalf("expected no gateway call, got %d", initCalls)
	}
	if store.count() != 0 {
		test.Fatalf("expected nothing persisted, got %d bookings", store.count())
	}
}

func TestCreateBookingWithinToleranceUsesServerPrice(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, newFakeGateway())

	created, err := service.CreateBooking(context.Background(), cleaningRequest(test, "11650"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if created.Price.MinorUnits() != 1_160_000 {
		test.Fatalf("expected server price, got %s", created.Price)
	}
}

func TestCreateBookingGatewayFailurePersistsNothing(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "timeout", err: &GatewayError{Kind: ErrGatewayUnavailable, Cause: context.DeadlineExceeded}, retryable: true},
		{name: "rejected", err: &GatewayError{Kind: ErrGatewayRejected, StatusCode: 400, Message: "Currency not supported by merchant"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newMemoryStore(test)
			gateway := newFakeGateway()
			gateway.initErr = testCase.err
			service := mustNewService(test, store, gateway)

			_, err := service.CreateBooking(context.Background(), cleaningRequest(test, "11600"))
			if err == nil {
				test.Fatalf("expected error")
			}
			if Retryable(err) != testCase.retryable {
				test.Fatalf("expected retryable=%v for %v", testCase.retryable, err)
			}
			if store.count() != 0 {
				test.Fatalf("expected nothing persisted, got %d bookings", store.count())
			}
		})
	}
}

func TestCreateBookingStoreFailureIsLogged(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	store.createErr = errors.New("disk full")
	logger := &recorderLogger{}
	service := mustNewService(test, store, newFakeGateway(), WithOperationLogger(logger))

	_, err := service.CreateBooking(context.Background(), cleaningRequest(test, "11600"))
	if err == nil {
		test.Fatalf("expected error")
	}
	entry := logger.last(test)
	if entry.Status != operationStatusError || entry.Reference.String() == "" || entry.Detail == "" {
		test.Fatalf("expected orphaned transaction log, got %+v", entry)
	}
}

func TestCreateBookingRejectsInvalidRequests(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{name: "missing user", mutate: func(request *CreateRequest) { request.UserID = UserID{} }},
		{name: "bad email", mutate: func(request *CreateRequest) { request.CustomerEmail = "not-an-email" }},
		{name: "past date", mutate: func(request *CreateRequest) { request.BookingDate = testNow.Add(-48 * time.Hour) }},
		{name: "bad time", mutate: func(request *CreateRequest) { request.BookingTime = "9am" }},
		{name: "missing location", mutate: func(request *CreateRequest) { request.Location = "  " }},
		{name: "missing estimate", mutate: func(request *CreateRequest) { request.ClientEstimatedPrice = Money{} }},
		{name: "wrong params", mutate: func(request *CreateRequest) { request.Params = &LaundryParams{CategoryName: "wash_fold", ItemCount: 3} }},
		{name: "unknown category", mutate: func(request *CreateRequest) { request.Params = &CleaningParams{CategoryName: "spotless", Rooms: map[string]int{"bedroom": 1}} }},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newMemoryStore(test)
			gateway := newFakeGateway()
			service := mustNewService(test, store, gateway)
			request := cleaningRequest(test, "11600")
			testCase.mutate(&request)

			_, err := service.CreateBooking(context.Background(), request)
			if !errors.Is(err, ErrInvalidParameter) {
				test.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			if initCalls, _ := gateway.calls(); initCalls != 0 {
				test.Fatalf("expected no gateway call, got %d", initCalls)
			}
		})
	}
}

func TestCompleteConfirmedBooking(test *testing.T) {
	test.Parallel()
	booking := pendingBooking(test, "BKG_COMPLETE", 5_000)
	booking.Status = StatusConfirmed
	booking.Payment.GatewayStatus = GatewayStatusPaid
	store := newMemoryStore(test, booking)
	service := mustNewService(test, store, newFakeGateway())

	result, err := service.Complete(context.Background(), booking.ID)
	if err != nil {
		test.Fatalf("complete: %v", err)
	}
	if result.Status != StatusCompleted || result.CompletedAt == nil || result.Payment.GatewayStatus != GatewayStatusPaid {
		test.Fatalf("unexpected result: %+v", result)
	}
	if _, err := service.Complete(context.Background(), booking.ID); err != nil {
		test.Fatalf("second complete: %v", err)
	}
	if _, applied := store.writes(); applied != 1 {
		test.Fatalf("expected one applied write, got %d", applied)
	}
}

func TestCompletePendingBookingFails(test *testing.T) {
	test.Parallel()
	booking := pendingBooking(test, "BKG_COMPLETE_EARLY", 5_000)
	store := newMemoryStore(test, booking)
	service := mustNewService(test, store, newFakeGateway())

	_, err := service.Complete(context.Background(), booking.ID)
	if !errors.Is(err, ErrBookingNotConfirmed) {
		test.Fatalf("expected ErrBookingNotConfirmed, got %v", err)
	}
}

func TestNewServiceRejectsInvalidConfig(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	gateway := newFakeGateway()
	if _, err := NewService(nil, gateway, &sequenceReferences{}, fixedClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for nil store, got %v", err)
	}
	if _, err := NewService(store, gateway, nil, fixedClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for nil references, got %v", err)
	}
	if _, err := NewService(store, gateway, &sequenceReferences{}, fixedClock, WithPriceTolerance(decimal.NewFromInt(-1))); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for negative tolerance, got %v", err)
	}
}
