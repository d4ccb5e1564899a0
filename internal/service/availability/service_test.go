package availability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketType), args.Error(1)
}

func (m *MockCounter) SoldCount(ctx context.Context, ticketTypeID int64) (int, error) {
	args := m.Called(ctx, ticketTypeID)
	return args.Int(0), args.Error(1)
}

func capped(n int32) *int32 { return &n }

func TestForType_CappedType(t *testing.T) {
	store := &MockCounter{}
	svc := New(store)

	ctx := context.Background()
	store.On("GetTicketType", ctx, int64(1)).
		Return(&domain.TicketType{ID: 1, Name: "Adult", MaxTickets: capped(100)}, nil)
	store.On("SoldCount", ctx, int64(1)).Return(80, nil)

	av, err := svc.ForType(ctx, 1)

	assert.NoError(t, err)
	assert.Equal(t, 80, av.Sold)
	assert.False(t, av.Unlimited)
	assert.Equal(t, 20, av.Available)
}

func TestIsAvailable_AtTheBoundary(t *testing.T) {
	store := &MockCounter{}
	svc := New(store)

	ctx := context.Background()
	store.On("GetTicketType", ctx, int64(1)).
		Return(&domain.TicketType{ID: 1, Name: "Adult", MaxTickets: capped(100)}, nil)
	store.On("SoldCount", ctx, int64(1)).Return(80, nil)

	ok, err := svc.IsAvailable(ctx, 1, 20)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAvailable(ctx, 1, 21)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsAvailable(ctx, 1, 25)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestForType_Unlimited(t *testing.T) {
	store := &MockCounter{}
	svc := New(store)

	ctx := context.Background()
	store.On("GetTicketType", ctx, int64(2)).
		Return(&domain.TicketType{ID: 2, Name: "Standing"}, nil)
	store.On("SoldCount", ctx, int64(2)).Return(100000, nil)

	av, err := svc.ForType(ctx, 2)
	assert.NoError(t, err)
	assert.True(t, av.Unlimited)
	assert.Equal(t, 100000, av.Sold)

	ok, err := svc.IsAvailable(ctx, 2, 1000000)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestForType_OversellClampsToZero(t *testing.T) {
	store := &MockCounter{}
	svc := New(store)

	ctx := context.Background()
	store.On("GetTicketType", ctx, int64(3)).
		Return(&domain.TicketType{ID: 3, Name: "VIP", MaxTickets: capped(10)}, nil)
	store.On("SoldCount", ctx, int64(3)).Return(12, nil)

	av, err := svc.ForType(ctx, 3)

	assert.NoError(t, err)
	assert.Equal(t, 0, av.Available)
}

func TestForType_NotFound(t *testing.T) {
	store := &MockCounter{}
	svc := New(store)

	store.On("GetTicketType", mock.Anything, int64(9)).
		Return(nil, repository.ErrNotFound)

	_, err := svc.ForType(context.Background(), 9)
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}
