package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

// Counter supplies the two facts availability derives from: the ticket
// type's cap and how many active tickets of it are already sold.
type Counter interface {
	GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error)
	SoldCount(ctx context.Context, ticketTypeID int64) (int, error)
}

type Service struct {
	store Counter
}

func New(store Counter) *Service {
	return &Service{store: store}
}

// SoldCount returns the number of active tickets sold for the type.
// Voided line items do not count.
func (s *Service) SoldCount(ctx context.Context, ticketTypeID int64) (int, error) {
	const op = "service.availability.SoldCount"

	n, err := s.store.SoldCount(ctx, ticketTypeID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return n, nil
}

// ForType reports sold and remaining counts for a ticket type. A type
// with no cap reports Unlimited; remaining is clamped at zero so
// oversell never shows as a negative count.
//
// Returns:
//   - error: availability.ErrTicketTypeNotFound if the type does not exist.
func (s *Service) ForType(ctx context.Context, ticketTypeID int64) (*domain.TypeAvailability, error) {
	const op = "service.availability.ForType"

	tt, err := s.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTicketTypeNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	sold, err := s.store.SoldCount(ctx, ticketTypeID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	av := &domain.TypeAvailability{
		TicketTypeID: ticketTypeID,
		Sold:         sold,
	}

	if tt.MaxTickets == nil {
		av.Unlimited = true
		return av, nil
	}

	remaining := int(*tt.MaxTickets) - av.Sold
	if remaining < 0 {
		remaining = 0
	}
	av.Available = remaining

	return av, nil
}

// IsAvailable reports whether quantity tickets of the type can still be
// sold. Always true for uncapped types.
func (s *Service) IsAvailable(ctx context.Context, ticketTypeID int64, quantity int) (bool, error) {
	const op = "service.availability.IsAvailable"

	av, err := s.ForType(ctx, ticketTypeID)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	if av.Unlimited {
		return true, nil
	}

	return quantity <= av.Available, nil
}
