package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viktorkud/seatwise/internal/domain"
	redisx "github.com/viktorkud/seatwise/internal/redis"
	postgres "github.com/viktorkud/seatwise/internal/repository/postgres"
	redisrepo "github.com/viktorkud/seatwise/internal/repository/redis"
	"github.com/viktorkud/seatwise/internal/service/availability"
	"github.com/viktorkud/seatwise/internal/service/catalog"
	"github.com/viktorkud/seatwise/internal/service/payments"
	"github.com/viktorkud/seatwise/internal/service/query"
	"github.com/viktorkud/seatwise/internal/service/reservation"
	"github.com/viktorkud/seatwise/internal/uow"
)

type Services struct {
	Reservation  *reservation.Service
	Availability *availability.Service
	Payments     *payments.Service
	Query        *query.Service
	Catalog      *catalog.Service
}

type Deps struct {
	Store    *postgres.Store
	Cache    *redisrepo.Cache
	PubSub   *redisx.EventsPubSub
	Limiter  *redisrepo.SlidingWindowLimiter
	Gateway  payments.Gateway
	Renderer payments.Renderer
	Mailer   payments.Mailer
	Logger   *slog.Logger

	Reservation reservation.Config
}

func NewServices(d Deps) *Services {
	var (
		inv reservation.Invalidator
		pub reservation.Publisher
		lim reservation.Limiter
	)
	if d.Cache != nil {
		inv = d.Cache
	}
	if d.PubSub != nil {
		pub = d.PubSub
	}
	if d.Limiter != nil {
		lim = d.Limiter
	}

	var (
		pinv payments.Invalidator
		ppub payments.Publisher
	)
	if d.Cache != nil {
		pinv = d.Cache
	}
	if d.PubSub != nil {
		ppub = d.PubSub
	}

	var (
		cinv catalog.Invalidator
		cpub catalog.Publisher
	)
	if d.Cache != nil {
		cinv = d.Cache
	}
	if d.PubSub != nil {
		cpub = d.PubSub
	}

	avail := availability.New(counterStore{d.Store})

	return &Services{
		Reservation: reservation.New(
			d.Store.Seats(), inv, pub, lim, d.Logger, d.Reservation,
		),
		Availability: avail,
		Payments: payments.New(
			paymentsStore{d.Store}, d.Gateway, d.Renderer, d.Mailer, avail, pinv, ppub, d.Logger,
		),
		Query:   query.New(readerStore{d.Store}, avail, d.Cache),
		Catalog: catalog.New(d.Store, uow.NewUoW(d.Store), cinv, cpub, d.Logger),
	}
}

// counterStore stitches the two repos availability counts from.
type counterStore struct {
	store *postgres.Store
}

func (c counterStore) GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	return c.store.Catalog().GetTicketType(ctx, id)
}

func (c counterStore) SoldCount(ctx context.Context, ticketTypeID int64) (int, error) {
	return c.store.Bookings().SoldCount(ctx, ticketTypeID)
}

// paymentsStore exposes the slice of the store the pipeline needs.
type paymentsStore struct {
	store *postgres.Store
}

func (p paymentsStore) GetBookingByPaymentKey(ctx context.Context, key string) (*domain.BookingWithItems, error) {
	return p.store.Bookings().GetByPaymentKey(ctx, key)
}

func (p paymentsStore) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return p.store.Query().GetEvent(ctx, id)
}

func (p paymentsStore) GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	return p.store.Catalog().GetTicketType(ctx, id)
}

func (p paymentsStore) SeatsByLabels(ctx context.Context, eventID int64, labels []string) ([]domain.Seat, error) {
	return p.store.Seats().SeatsByLabels(ctx, eventID, labels)
}

func (p paymentsStore) MaterializeBooking(
	ctx context.Context,
	b *domain.Booking,
	items []domain.BookingLineItem,
	seatIDs []int64,
) ([]int64, error) {
	return p.store.MaterializeBooking(ctx, b, items, seatIDs)
}

func (p paymentsStore) SetTicketCode(ctx context.Context, itemID uuid.UUID, code string) error {
	return p.store.Bookings().SetTicketCode(ctx, itemID, code)
}

func (p paymentsStore) Finish(
	ctx context.Context,
	id uuid.UUID,
	status domain.BookingStatus,
	fulfillmentJSON []byte,
) error {
	return p.store.Bookings().Finish(ctx, id, status, fulfillmentJSON)
}

// readerStore is the projection surface for the query service.
type readerStore struct {
	store *postgres.Store
}

func (r readerStore) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return r.store.Query().GetEvent(ctx, id)
}

func (r readerStore) ListEventSeats(
	ctx context.Context,
	eventID int64,
	onlyAvailable bool,
	limit, offset int,
) ([]domain.Seat, error) {
	return r.store.Query().ListEventSeats(ctx, eventID, onlyAvailable, limit, offset)
}

func (r readerStore) CountsByStatus(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	return r.store.Query().CountsByStatus(ctx, eventID)
}

func (r readerStore) ListTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketType, error) {
	return r.store.Catalog().ListTicketTypes(ctx, eventID)
}

func (r readerStore) GetBooking(ctx context.Context, id uuid.UUID) (*domain.BookingWithItems, error) {
	return r.store.Bookings().GetWithItems(ctx, id)
}
