package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
	redisrepo "github.com/viktorkud/seatwise/internal/repository/redis"
	redisx "github.com/viktorkud/seatwise/internal/redis"
)

// Reader is the projection surface of the durable store.
type Reader interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	ListEventSeats(ctx context.Context, eventID int64, onlyAvailable bool, limit, offset int) ([]domain.Seat, error)
	CountsByStatus(ctx context.Context, eventID int64) (*domain.EventCounts, error)
	ListTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketType, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.BookingWithItems, error)
}

type AvailabilityCounter interface {
	ForType(ctx context.Context, ticketTypeID int64) (*domain.TypeAvailability, error)
}

const (
	summaryTTL      = 30 * time.Second
	seatMapTTL      = 5 * time.Second
	availabilityTTL = 5 * time.Second

	seatMapLimit = 10000
)

type EventSummary struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Starts      time.Time        `json:"starts"`
	Ends        time.Time        `json:"ends"`
	SeatingMode string           `json:"seating_mode"`
	Counts      CountsView       `json:"counts"`
	TicketTypes []TicketTypeView `json:"ticket_types"`
}

type CountsView struct {
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Booked    int64 `json:"booked"`
	Blocked   int64 `json:"blocked"`
	Total     int64 `json:"total"`
}

type TicketTypeView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	MaxTickets *int32 `json:"max_tickets,omitempty"`
}

type SeatView struct {
	ID            int64      `json:"id"`
	Label         string     `json:"label"`
	Row           string     `json:"row"`
	Number        int        `json:"number"`
	PosX          int        `json:"pos_x"`
	PosY          int        `json:"pos_y"`
	Status        string     `json:"status"`
	TicketTypeID  *int64     `json:"ticket_type_id,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

type TypeAvailabilityView struct {
	TicketTypeID int64 `json:"ticket_type_id"`
	Sold         int   `json:"sold"`
	Unlimited    bool  `json:"unlimited"`
	Available    int   `json:"available"`
}

type Service struct {
	reader Reader
	avail  AvailabilityCounter
	cache  *redisrepo.Cache
}

func New(reader Reader, avail AvailabilityCounter, cache *redisrepo.Cache) *Service {
	return &Service{reader: reader, avail: avail, cache: cache}
}

// EventSummary returns the event header with status counts and ticket
// types, cached briefly.
//
// Returns:
//   - error: query.ErrEventNotFound if the event does not exist.
func (s *Service) EventSummary(ctx context.Context, eventID int64) (*EventSummary, error) {
	const op = "service.query.EventSummary"

	load := func(ctx context.Context) (*EventSummary, error) {
		return s.loadSummary(ctx, eventID)
	}

	var (
		out *EventSummary
		err error
	)
	if s.cache != nil {
		out, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyEventSummary(eventID), summaryTTL, load)
	} else {
		out, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) loadSummary(ctx context.Context, eventID int64) (*EventSummary, error) {
	ev, err := s.reader.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	counts, err := s.reader.CountsByStatus(ctx, eventID)
	if err != nil {
		return nil, err
	}

	types, err := s.reader.ListTicketTypes(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out := &EventSummary{
		ID:          ev.ID,
		Title:       ev.Title,
		Starts:      ev.Starts,
		Ends:        ev.Ends,
		SeatingMode: string(ev.SeatingMode),
		Counts: CountsView{
			Available: counts.Available,
			Reserved:  counts.Reserved,
			Booked:    counts.Booked,
			Blocked:   counts.Blocked,
			Total:     counts.Total,
		},
	}

	for _, tt := range types {
		out.TicketTypes = append(out.TicketTypes, TicketTypeView{
			ID:         tt.ID,
			Name:       tt.Name,
			PriceCents: tt.PriceCents,
			MaxTickets: tt.MaxTickets,
		})
	}

	return out, nil
}

// SeatMap returns every seat of the event with its current status. The
// full map is cached; hold owners are never exposed.
func (s *Service) SeatMap(ctx context.Context, eventID int64) ([]SeatView, error) {
	const op = "service.query.SeatMap"

	load := func(ctx context.Context) ([]SeatView, error) {
		seats, err := s.reader.ListEventSeats(ctx, eventID, false, seatMapLimit, 0)
		if err != nil {
			return nil, err
		}

		out := make([]SeatView, 0, len(seats))
		for _, seat := range seats {
			out = append(out, SeatView{
				ID:            seat.ID,
				Label:         seat.Label(),
				Row:           seat.Row,
				Number:        seat.Number,
				PosX:          seat.PosX,
				PosY:          seat.PosY,
				Status:        string(seat.Status),
				TicketTypeID:  seat.TicketTypeID,
				HoldExpiresAt: seat.HoldExpiresAt,
			})
		}

		return out, nil
	}

	var (
		out []SeatView
		err error
	)
	if s.cache != nil {
		out, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyEventSeatMap(eventID), seatMapTTL, load)
	} else {
		out, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// TypeAvailability returns sold/remaining counts for a ticket type,
// cached briefly.
func (s *Service) TypeAvailability(ctx context.Context, ticketTypeID int64) (*TypeAvailabilityView, error) {
	const op = "service.query.TypeAvailability"

	load := func(ctx context.Context) (*TypeAvailabilityView, error) {
		av, err := s.avail.ForType(ctx, ticketTypeID)
		if err != nil {
			return nil, err
		}

		return &TypeAvailabilityView{
			TicketTypeID: av.TicketTypeID,
			Sold:         av.Sold,
			Unlimited:    av.Unlimited,
			Available:    av.Available,
		}, nil
	}

	var (
		out *TypeAvailabilityView
		err error
	)
	if s.cache != nil {
		out, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyTypeAvailability(ticketTypeID), availabilityTTL, load)
	} else {
		out, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// GetBooking returns a booking with its line items. Never cached.
//
// Returns:
//   - error: query.ErrBookingNotFound if the booking does not exist.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.BookingWithItems, error) {
	const op = "service.query.GetBooking"

	bw, err := s.reader.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return bw, nil
}
