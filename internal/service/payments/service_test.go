package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetBookingByPaymentKey(ctx context.Context, key string) (*domain.BookingWithItems, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingWithItems), args.Error(1)
}

func (m *MockStore) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockStore) GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketType), args.Error(1)
}

func (m *MockStore) SeatsByLabels(ctx context.Context, eventID int64, labels []string) ([]domain.Seat, error) {
	args := m.Called(ctx, eventID, labels)
	seats, _ := args.Get(0).([]domain.Seat)
	return seats, args.Error(1)
}

func (m *MockStore) MaterializeBooking(ctx context.Context, b *domain.Booking, items []domain.BookingLineItem, seatIDs []int64) ([]int64, error) {
	args := m.Called(ctx, b, items, seatIDs)
	skipped, _ := args.Get(0).([]int64)
	return skipped, args.Error(1)
}

func (m *MockStore) SetTicketCode(ctx context.Context, itemID uuid.UUID, code string) error {
	args := m.Called(ctx, itemID, code)
	return args.Error(0)
}

func (m *MockStore) Finish(ctx context.Context, id uuid.UUID, status domain.BookingStatus, fulfillmentJSON []byte) error {
	args := m.Called(ctx, id, status, fulfillmentJSON)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetTransaction(ctx context.Context, paymentKey string) (*Transaction, error) {
	args := m.Called(ctx, paymentKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RenderResult), args.Error(1)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Deliver(ctx context.Context, recipient string, artifact string, meta map[string]string) error {
	args := m.Called(ctx, recipient, artifact, meta)
	return args.Error(0)
}

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) IsAvailable(ctx context.Context, ticketTypeID int64, quantity int) (bool, error) {
	args := m.Called(ctx, ticketTypeID, quantity)
	return args.Bool(0), args.Error(1)
}

func newTestService(store *MockStore, gw *MockGateway, r *MockRenderer, ml *MockMailer) *Service {
	return New(store, gw, r, ml, nil, nil, nil, nil)
}

func succeededTx(key string, meta map[string]string) *Transaction {
	return &Transaction{
		ID:            key,
		Succeeded:     true,
		AmountTotal:   5000,
		Currency:      "usd",
		CustomerEmail: "buyer@example.com",
		Metadata:      meta,
	}
}

func TestProcess_ReplayReturnsRecordedResult(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	svc := newTestService(store, gw, &MockRenderer{}, &MockMailer{})

	bookingID := uuid.New()
	fulfillment, _ := json.Marshal(fulfillmentSummary{
		Units:       []fulfillmentUnit{{Label: "F8", SeatLabel: "F8", Rendered: true, Delivered: true}},
		RenderedOK:  1,
		DeliveredOK: 1,
	})

	store.On("GetBookingByPaymentKey", mock.Anything, "pi_abc").
		Return(&domain.BookingWithItems{
			Booking: domain.Booking{ID: bookingID, PaymentKey: "pi_abc", Status: domain.BookingActive, Fulfillment: fulfillment},
		}, nil).Once()

	result, err := svc.Process(context.Background(), "pi_abc")

	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, bookingID, result.BookingID)
	assert.Equal(t, 1, result.RenderedOK)
	require.Len(t, result.Units, 1)
	assert.Equal(t, "F8", result.Units[0].Label)

	// No gateway call and no new writes on a replay.
	gw.AssertNotCalled(t, "GetTransaction")
	store.AssertNotCalled(t, "MaterializeBooking")
	store.AssertExpectations(t)
}

func TestProcess_SecondCallEqualsFirst(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	svc := newTestService(store, gw, renderer, mailer)

	ctx := context.Background()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":1,"unit_price_cents":5000}]`,
	}

	store.On("GetBookingByPaymentKey", ctx, "pi_abc").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_abc").Return(succeededTx("pi_abc", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()

	var firstBooking *domain.Booking
	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			firstBooking = args.Get(1).(*domain.Booking)
		}).
		Return(nil, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, "TKT-1").Return(nil).Once()
	renderer.On("Render", mock.Anything, mock.Anything).
		Return(&RenderResult{Code: "TKT-1", ArtifactLocation: "loc"}, nil).Once()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).Return(nil).Once()

	var storedFulfillment []byte
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).
		Run(func(args mock.Arguments) {
			storedFulfillment = args.Get(3).([]byte)
		}).
		Return(nil).Once()

	first, err := svc.Process(ctx, "pi_abc")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	// Second delivery finds the recorded booking.
	store.On("GetBookingByPaymentKey", ctx, "pi_abc").
		Return(&domain.BookingWithItems{
			Booking: domain.Booking{
				ID:          firstBooking.ID,
				PaymentKey:  "pi_abc",
				Status:      domain.BookingActive,
				Fulfillment: storedFulfillment,
			},
		}, nil).Once()

	second, err := svc.Process(ctx, "pi_abc")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Equal(t, first.RenderedOK, second.RenderedOK)
	assert.Equal(t, first.DeliveredOK, second.DeliveredOK)
	store.AssertExpectations(t)
}

func TestProcess_PaymentNotConfirmed(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	svc := newTestService(store, gw, &MockRenderer{}, &MockMailer{})

	ctx := context.Background()
	store.On("GetBookingByPaymentKey", ctx, "pi_fail").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_fail").
		Return(&Transaction{ID: "pi_fail", Succeeded: false}, nil).Once()

	_, err := svc.Process(ctx, "pi_fail")

	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
	store.AssertNotCalled(t, "MaterializeBooking")
}

func TestProcess_ZeroUnitsIsValidationFailure(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	svc := newTestService(store, gw, &MockRenderer{}, &MockMailer{})

	ctx := context.Background()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":0}]`,
	}

	store.On("GetBookingByPaymentKey", ctx, "pi_empty").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_empty").Return(succeededTx("pi_empty", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()

	_, err := svc.Process(ctx, "pi_empty")

	assert.ErrorIs(t, err, ErrValidation)
	store.AssertNotCalled(t, "MaterializeBooking")
}

func TestProcess_GeneralAdmission_GroupsQuantityIntoOneItem(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	svc := newTestService(store, gw, renderer, mailer)

	ctx := context.Background()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":2,"unit_price_cents":2500}]`,
	}

	store.On("GetBookingByPaymentKey", ctx, "pi_ga").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_ga").Return(succeededTx("pi_ga", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()

	var items []domain.BookingLineItem
	var seatIDs []int64
	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			items = args.Get(2).([]domain.BookingLineItem)
			seatIDs, _ = args.Get(3).([]int64)
		}).
		Return(nil, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	var renderedUnits []string
	renderer.On("Render", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			renderedUnits = append(renderedUnits, args.Get(1).(RenderRequest).Unit)
		}).
		Return(&RenderResult{Code: "TKT-X", ArtifactLocation: "loc"}, nil).Twice()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).Return(nil).Twice()
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).Return(nil).Once()

	result, err := svc.Process(ctx, "pi_ga")

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(5000), items[0].TotalCents)
	assert.Empty(t, seatIDs)
	assert.Equal(t, []string{"Adult-1", "Adult-2"}, renderedUnits)
	assert.Equal(t, 2, result.DeliveredOK)
	store.AssertExpectations(t)
}

func TestProcess_Allocated_GroupsSeatsByTicketType(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	svc := newTestService(store, gw, renderer, mailer)

	ctx := context.Background()
	typeID := int64(3)
	meta := map[string]string{
		"event_id": "1",
		"seats":    "F8;F9",
		"food":     `[{"item_id":7,"name":"Burger","quantity":1,"unit_price_cents":900,"seat_label":"F8"}]`,
	}

	store.On("GetBookingByPaymentKey", ctx, "pi_seats").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_seats").Return(succeededTx("pi_seats", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingAllocated}, nil).Once()
	store.On("SeatsByLabels", ctx, int64(1), []string{"F8", "F9"}).
		Return([]domain.Seat{
			{ID: 80, EventID: 1, Row: "F", Number: 8, TicketTypeID: &typeID},
			{ID: 81, EventID: 1, Row: "F", Number: 9, TicketTypeID: &typeID},
		}, nil).Once()
	store.On("GetTicketType", ctx, typeID).
		Return(&domain.TicketType{ID: typeID, Name: "Adult", PriceCents: 2500}, nil).Once()

	var items []domain.BookingLineItem
	var seatIDs []int64
	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			items = args.Get(2).([]domain.BookingLineItem)
			seatIDs = args.Get(3).([]int64)
		}).
		Return(nil, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	renderer.On("Render", mock.Anything, mock.Anything).
		Return(&RenderResult{Code: "TKT-X", ArtifactLocation: "loc"}, nil).Twice()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).Return(nil).Twice()
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).Return(nil).Once()

	result, err := svc.Process(ctx, "pi_seats")

	require.NoError(t, err)
	assert.Equal(t, []int64{80, 81}, seatIDs)

	// One ticket item covering both seats plus the food item.
	require.Len(t, items, 2)
	assert.Equal(t, domain.ItemTicket, items[0].ItemType)
	assert.Equal(t, 2, items[0].Quantity)

	var labels []string
	require.NoError(t, json.Unmarshal(items[0].SeatDetails, &labels))
	assert.Equal(t, []string{"F8", "F9"}, labels)

	assert.Equal(t, domain.ItemFood, items[1].ItemType)
	assert.Equal(t, 2, result.RenderedOK)
	store.AssertExpectations(t)
}

func TestProcess_PerUnitFailureIsNonFatal(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	svc := newTestService(store, gw, renderer, mailer)

	ctx := context.Background()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":2,"unit_price_cents":2500}]`,
	}

	store.On("GetBookingByPaymentKey", ctx, "pi_partial").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_partial").Return(succeededTx("pi_partial", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()
	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	renderer.On("Render", mock.Anything, mock.MatchedBy(func(r RenderRequest) bool { return r.Unit == "Adult-1" })).
		Return(&RenderResult{Code: "TKT-1", ArtifactLocation: "loc"}, nil).Once()
	renderer.On("Render", mock.Anything, mock.MatchedBy(func(r RenderRequest) bool { return r.Unit == "Adult-2" })).
		Return(nil, errors.New("render backend down")).Once()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).Return(nil).Once()

	// The booking still finishes active.
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).Return(nil).Once()

	result, err := svc.Process(ctx, "pi_partial")

	require.NoError(t, err)
	assert.Equal(t, 1, result.RenderedOK)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Units, 2)
	assert.Contains(t, result.Units[1].Err, "render backend down")
	store.AssertExpectations(t)
}

func TestProcess_CallerDisconnectAfterCreationStillFinishes(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	svc := newTestService(store, gw, renderer, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":1,"unit_price_cents":2500}]`,
	}

	store.On("GetBookingByPaymentKey", mock.Anything, "pi_gone").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", mock.Anything, "pi_gone").Return(succeededTx("pi_gone", meta), nil).Once()
	store.On("GetEvent", mock.Anything, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()

	// The webhook client goes away the moment the booking row exists.
	store.On("MaterializeBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, nil).Once()

	// Everything after the durable write must see a live context.
	liveCtx := func(args mock.Arguments) {
		assert.NoError(t, args.Get(0).(context.Context).Err())
	}
	renderer.On("Render", mock.Anything, mock.Anything).
		Run(liveCtx).
		Return(&RenderResult{Code: "TKT-1", ArtifactLocation: "loc"}, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, "TKT-1").Run(liveCtx).Return(nil).Once()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).
		Run(liveCtx).Return(nil).Once()
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).
		Run(liveCtx).Return(nil).Once()

	result, err := svc.Process(ctx, "pi_gone")

	require.NoError(t, err)
	assert.Equal(t, 1, result.DeliveredOK)
	store.AssertExpectations(t)
	renderer.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestProcess_GeneralAdmission_OverCapSaleIsStillRecorded(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	checker := &MockChecker{}
	svc := New(store, gw, renderer, mailer, checker, nil, nil, nil)

	ctx := context.Background()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":2,"unit_price_cents":2500}]`,
	}

	store.On("GetBookingByPaymentKey", ctx, "pi_over").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_over").Return(succeededTx("pi_over", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()

	// The type is over its cap: the paid sale is still materialized.
	checker.On("IsAvailable", ctx, int64(1), 2).Return(false, nil).Once()

	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	renderer.On("Render", mock.Anything, mock.Anything).
		Return(&RenderResult{Code: "TKT-X", ArtifactLocation: "loc"}, nil).Twice()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).Return(nil).Twice()
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).Return(nil).Once()

	result, err := svc.Process(ctx, "pi_over")

	require.NoError(t, err)
	assert.Equal(t, 2, result.DeliveredOK)
	checker.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestProcess_DuplicateKeyRaceReplaysWinner(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	svc := newTestService(store, gw, &MockRenderer{}, &MockMailer{})

	ctx := context.Background()
	meta := map[string]string{
		"event_id": "1",
		"tickets":  `[{"ticket_type_id":1,"name":"Adult","quantity":1,"unit_price_cents":2500}]`,
	}
	winnerID := uuid.New()

	store.On("GetBookingByPaymentKey", ctx, "pi_race").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_race").Return(succeededTx("pi_race", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingGeneral}, nil).Once()
	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, repository.ErrDuplicateKey).Once()
	store.On("GetBookingByPaymentKey", ctx, "pi_race").
		Return(&domain.BookingWithItems{
			Booking: domain.Booking{ID: winnerID, PaymentKey: "pi_race", Status: domain.BookingActive},
		}, nil).Once()

	result, err := svc.Process(ctx, "pi_race")

	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, winnerID, result.BookingID)
	store.AssertExpectations(t)
}

func TestProcess_SkippedSeatsDoNotAbort(t *testing.T) {
	store := &MockStore{}
	gw := &MockGateway{}
	renderer := &MockRenderer{}
	mailer := &MockMailer{}
	svc := newTestService(store, gw, renderer, mailer)

	ctx := context.Background()
	typeID := int64(3)
	meta := map[string]string{"event_id": "1", "seats": "F8"}

	store.On("GetBookingByPaymentKey", ctx, "pi_skip").Return(nil, repository.ErrNotFound).Once()
	gw.On("GetTransaction", ctx, "pi_skip").Return(succeededTx("pi_skip", meta), nil).Once()
	store.On("GetEvent", ctx, int64(1)).
		Return(&domain.Event{ID: 1, SeatingMode: domain.SeatingAllocated}, nil).Once()
	store.On("SeatsByLabels", ctx, int64(1), []string{"F8"}).
		Return([]domain.Seat{{ID: 80, EventID: 1, Row: "F", Number: 8, TicketTypeID: &typeID}}, nil).Once()
	store.On("GetTicketType", ctx, typeID).
		Return(&domain.TicketType{ID: typeID, Name: "Adult", PriceCents: 2500}, nil).Once()

	// Seat already booked by another transaction: reported as skipped.
	store.On("MaterializeBooking", ctx, mock.Anything, mock.Anything, []int64{80}).
		Return([]int64{80}, nil).Once()
	store.On("SetTicketCode", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	renderer.On("Render", mock.Anything, mock.Anything).
		Return(&RenderResult{Code: "TKT-X", ArtifactLocation: "loc"}, nil).Once()
	mailer.On("Deliver", mock.Anything, "buyer@example.com", "loc", mock.Anything).Return(nil).Once()
	store.On("Finish", mock.Anything, mock.Anything, domain.BookingActive, mock.Anything).Return(nil).Once()

	result, err := svc.Process(ctx, "pi_skip")

	require.NoError(t, err)
	assert.False(t, result.Replayed)
	store.AssertExpectations(t)
}
