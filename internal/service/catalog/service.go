package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
	postgres "github.com/viktorkud/seatwise/internal/repository/postgres"
	"github.com/viktorkud/seatwise/internal/uow"
)

type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
	InvalidateTicketType(ctx context.Context, ticketTypeID int64) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

// Service owns the admin side of the catalog: events, seat layouts and
// ticket types. Multi-step writes run through the unit of work so cache
// invalidation and change notifications fire only after commit.
type Service struct {
	store  *postgres.Store
	uow    *uow.UoW
	cache  Invalidator
	pubsub Publisher
	logger *slog.Logger
}

func New(
	store *postgres.Store,
	u *uow.UoW,
	cache Invalidator,
	pubsub Publisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  store,
		uow:    u,
		cache:  cache,
		pubsub: pubsub,
		logger: logger,
	}
}

type CreateEventInput struct {
	Title       string
	Starts      time.Time
	Ends        time.Time
	SeatingMode domain.SeatingMode
	Seats       []domain.Seat
}

// CreateEvent creates the event and, when a layout is supplied, its
// seats, in one transaction.
//
// Returns:
//   - int64: the new event id.
//   - error: catalog.ErrInvalidInput on an empty title or inverted times.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (int64, error) {
	const op = "service.catalog.CreateEvent"

	if in.Title == "" || !in.Ends.After(in.Starts) {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	if in.SeatingMode == "" {
		in.SeatingMode = domain.SeatingAllocated
	}

	var eventID int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		id, err := s.store.Catalog().With(tx).CreateEvent(ctx, in.Title, in.Starts, in.Ends, in.SeatingMode)
		if err != nil {
			return err
		}
		eventID = id

		if len(in.Seats) > 0 {
			if err := s.store.Catalog().With(tx).BatchCreateSeats(ctx, id, in.Seats); err != nil {
				return err
			}
		}

		after(func(ctx context.Context) {
			s.notifyChanged(ctx, id)
		})

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return eventID, nil
}

// AddSeats appends seats to an existing layout. Duplicate positions are
// ignored.
func (s *Service) AddSeats(ctx context.Context, eventID int64, seats []domain.Seat) error {
	const op = "service.catalog.AddSeats"

	if len(seats) == 0 {
		return fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	if _, err := s.store.Query().GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	if err := s.store.Catalog().BatchCreateSeats(ctx, eventID, seats); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.notifyChanged(ctx, eventID)

	return nil
}

type CreateTicketTypeInput struct {
	EventID    int64
	Name       string
	PriceCents int64
	// MaxTickets nil means unlimited.
	MaxTickets *int32
	RowFrom    *string
	RowTo      *string
}

// CreateTicketType creates the type and binds its row range to seats in
// one transaction.
//
// Returns:
//   - int64: the new ticket type id.
func (s *Service) CreateTicketType(ctx context.Context, in CreateTicketTypeInput) (int64, error) {
	const op = "service.catalog.CreateTicketType"

	if in.Name == "" || in.PriceCents < 0 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}
	if in.MaxTickets != nil && *in.MaxTickets < 0 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	tt := &domain.TicketType{
		EventID:    in.EventID,
		Name:       in.Name,
		PriceCents: in.PriceCents,
		MaxTickets: in.MaxTickets,
		RowFrom:    in.RowFrom,
		RowTo:      in.RowTo,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		id, err := s.store.Catalog().With(tx).CreateTicketType(ctx, tt)
		if err != nil {
			return err
		}
		tt.ID = id

		assigned, err := s.store.Catalog().With(tx).AssignTicketTypeRows(ctx, tt)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			if assigned > 0 {
				s.logger.Info("ticket type assigned to seats",
					"ticket_type_id", id, "seats", assigned)
			}
			s.notifyChanged(ctx, in.EventID)
		})

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return tt.ID, nil
}

// SetSeatBlocked takes a seat out of sale or returns it. Blocking a
// reserved seat drops the hold; a booked seat is never touched.
//
// Returns:
//   - error: catalog.ErrSeatIsBooked if the seat is booked.
//   - error: catalog.ErrSeatNotFound if the seat does not exist.
func (s *Service) SetSeatBlocked(ctx context.Context, eventID, seatID int64, blocked bool) error {
	const op = "service.catalog.SetSeatBlocked"

	if err := s.store.Seats().SetBlocked(ctx, seatID, blocked); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return fmt.Errorf("%s:%w", op, ErrSeatIsBooked)
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s:%w", op, ErrSeatNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	s.notifyChanged(ctx, eventID)

	return nil
}

func (s *Service) notifyChanged(ctx context.Context, eventID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}
