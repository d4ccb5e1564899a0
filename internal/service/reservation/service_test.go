package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

type MockSeatStore struct {
	mock.Mock
}

func (m *MockSeatStore) ReserveSeats(ctx context.Context, eventID int64, seatIDs []int64, owner string, ttl time.Duration) (*domain.Hold, error) {
	args := m.Called(ctx, eventID, seatIDs, owner, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Hold), args.Error(1)
}

func (m *MockSeatStore) ReleaseSeat(ctx context.Context, seatID int64, owner string) error {
	args := m.Called(ctx, seatID, owner)
	return args.Error(0)
}

func (m *MockSeatStore) ConfirmSeats(ctx context.Context, seatIDs []int64, bookingID uuid.UUID) ([]int64, []int64, error) {
	args := m.Called(ctx, seatIDs, bookingID)
	confirmed, _ := args.Get(0).([]int64)
	skipped, _ := args.Get(1).([]int64)
	return confirmed, skipped, args.Error(2)
}

func (m *MockSeatStore) ClassifySeats(ctx context.Context, eventID int64, seatIDs []int64) (*domain.SeatClassification, error) {
	args := m.Called(ctx, eventID, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SeatClassification), args.Error(1)
}

func (m *MockSeatStore) SweepExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, int64, time.Duration, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Get(1).(int64), args.Get(2).(time.Duration), args.Error(3)
}

func newHold(eventID int64, seatIDs []int64, owner string, ttl time.Duration) *domain.Hold {
	kind := domain.HoldSingleSeat
	if len(seatIDs) > 1 {
		kind = domain.HoldTableGroup
	}
	now := time.Now()
	return &domain.Hold{
		ID:         uuid.New(),
		EventID:    eventID,
		Kind:       kind,
		SeatIDs:    seatIDs,
		Owner:      owner,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestReserve_Success_DefaultTTL(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	store.On("ReserveSeats", ctx, int64(1), []int64{8}, "s1", 10*time.Minute).
		Return(newHold(1, []int64{8}, "s1", 10*time.Minute), nil).Once()

	hold, err := svc.Reserve(ctx, 1, 8, "s1", "")

	assert.NoError(t, err)
	assert.Equal(t, domain.HoldSingleSeat, hold.Kind)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), hold.ExpiresAt, 2*time.Second)
	store.AssertExpectations(t)
}

func TestReserve_SecondCallerConflicts(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	store.On("ReserveSeats", ctx, int64(1), []int64{8}, "s1", mock.Anything).
		Return(newHold(1, []int64{8}, "s1", 10*time.Minute), nil).Once()
	store.On("ReserveSeats", ctx, int64(1), []int64{8}, "s2", mock.Anything).
		Return(nil, repository.ErrSeatsUnavailable).Once()

	_, err := svc.Reserve(ctx, 1, 8, "s1", "")
	assert.NoError(t, err)

	_, err = svc.Reserve(ctx, 1, 8, "s2", "")
	assert.ErrorIs(t, err, ErrSeatsUnavailable)
	store.AssertExpectations(t)
}

func TestReserveMany_AllOrNothing(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	store.On("ReserveSeats", ctx, int64(1), []int64{1, 2, 3}, "s1", mock.Anything).
		Return(nil, repository.ErrSeatsUnavailable).Once()

	hold, err := svc.ReserveMany(ctx, 1, []int64{1, 2, 3}, "s1", "")

	assert.Nil(t, hold)
	assert.ErrorIs(t, err, ErrSeatsUnavailable)
	store.AssertExpectations(t)
}

func TestReserveMany_EmptySelection(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	_, err := svc.ReserveMany(context.Background(), 1, nil, "s1", "")

	assert.ErrorIs(t, err, ErrNoSeatsSelected)
	store.AssertNotCalled(t, "ReserveSeats")
}

func TestReserveMany_RateLimited(t *testing.T) {
	store := &MockSeatStore{}
	limiter := &MockLimiter{}
	svc := New(store, nil, nil, limiter, nil, Config{})

	ctx := context.Background()
	limiter.On("Allow", ctx, "ip:1.2.3.4").
		Return(false, int64(11), 30*time.Second, nil).Once()

	_, err := svc.ReserveMany(ctx, 1, []int64{8}, "s1", "ip:1.2.3.4")

	assert.ErrorIs(t, err, ErrRateLimited)
	store.AssertNotCalled(t, "ReserveSeats")
	limiter.AssertExpectations(t)
}

func TestRelease_WrongOwner(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	store.On("ReleaseSeat", ctx, int64(8), "s2").
		Return(repository.ErrNotFound).Once()

	err := svc.Release(ctx, 1, 8, "s2")

	assert.ErrorIs(t, err, ErrHoldNotFound)
	store.AssertExpectations(t)
}

func TestRelease_Success(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	store.On("ReleaseSeat", ctx, int64(8), "s1").Return(nil).Once()

	assert.NoError(t, svc.Release(ctx, 1, 8, "s1"))
	store.AssertExpectations(t)
}

func TestCheckAvailability_Classification(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	expires := time.Now().Add(5 * time.Minute)
	store.On("ClassifySeats", ctx, int64(1), []int64{1, 2, 3}).
		Return(&domain.SeatClassification{
			Available: []int64{1},
			Unavailable: []domain.UnavailableSeat{
				{SeatID: 2, Reason: domain.ReasonReserved, ExpiresAt: &expires},
				{SeatID: 3, Reason: domain.ReasonBooked},
			},
		}, nil).Once()

	cls, err := svc.CheckAvailability(ctx, 1, []int64{1, 2, 3})

	assert.NoError(t, err)
	assert.Equal(t, []int64{1}, cls.Available)
	assert.Len(t, cls.Unavailable, 2)
	assert.Equal(t, domain.ReasonReserved, cls.Unavailable[0].Reason)
	assert.NotNil(t, cls.Unavailable[0].ExpiresAt)
	store.AssertExpectations(t)
}

func TestConfirm_SkipsAlreadyBooked(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	bookingID := uuid.New()
	store.On("ConfirmSeats", ctx, []int64{1, 2}, bookingID).
		Return([]int64{1}, []int64{2}, nil).Once()

	confirmed, err := svc.Confirm(ctx, 1, []int64{1, 2}, bookingID)

	assert.NoError(t, err)
	assert.Equal(t, []int64{1}, confirmed)
	store.AssertExpectations(t)
}

func TestSweep_ReportsReleasedCount(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	ctx := context.Background()
	store.On("SweepExpired", ctx).Return(int64(3), nil).Once()
	store.On("SweepExpired", ctx).Return(int64(0), nil).Once()

	released, err := svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), released)

	// Second pass with nothing new expired releases nothing.
	released, err = svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), released)
	store.AssertExpectations(t)
}

func TestSweep_PropagatesError(t *testing.T) {
	store := &MockSeatStore{}
	svc := New(store, nil, nil, nil, nil, Config{})

	storeErr := errors.New("connection reset")
	store.On("SweepExpired", mock.Anything).Return(int64(0), storeErr).Once()

	_, err := svc.Sweep(context.Background())
	assert.ErrorIs(t, err, storeErr)
}
