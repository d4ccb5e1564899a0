package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

// SeatStore is the durable seat state the engine drives. Implemented by
// the postgres seat repository; every mutation is an atomic conditional
// update, so two callers racing for the same seat cannot both win.
type SeatStore interface {
	ReserveSeats(ctx context.Context, eventID int64, seatIDs []int64, owner string, ttl time.Duration) (*domain.Hold, error)
	ReleaseSeat(ctx context.Context, seatID int64, owner string) error
	ConfirmSeats(ctx context.Context, seatIDs []int64, bookingID uuid.UUID) (confirmed, skipped []int64, err error)
	ClassifySeats(ctx context.Context, eventID int64, seatIDs []int64) (*domain.SeatClassification, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type Config struct {
	HoldTTL time.Duration
}

type Service struct {
	seats   SeatStore
	cache   Invalidator
	pubsub  Publisher
	limiter Limiter
	logger  *slog.Logger
	cfg     Config
}

func New(
	seats SeatStore,
	cache Invalidator,
	pubsub Publisher,
	limiter Limiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 10 * time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		seats:   seats,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
	}
}

// Reserve places a hold on a single seat for owner.
//
// Returns:
//   - *domain.Hold: the created hold, expiring at now + the hold TTL.
//   - error: reservation.ErrSeatsUnavailable if the seat is not available.
func (s *Service) Reserve(
	ctx context.Context,
	eventID int64,
	seatID int64,
	owner string,
	rlKey string,
) (*domain.Hold, error) {
	return s.ReserveMany(ctx, eventID, []int64{seatID}, owner, rlKey)
}

// ReserveMany places a hold on every requested seat, all-or-nothing:
// if any seat is not available the call fails and no seat changes state.
//
// Returns:
//   - *domain.Hold: the created hold covering all seats, one shared expiry.
//   - error: reservation.ErrSeatsUnavailable if any seat is not available.
//   - error: reservation.ErrRateLimited if the caller exceeded the window.
func (s *Service) ReserveMany(
	ctx context.Context,
	eventID int64,
	seatIDs []int64,
	owner string,
	rlKey string,
) (*domain.Hold, error) {
	const op = "service.reservation.ReserveMany"

	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrNoSeatsSelected)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s:%w: retry in %s", op, ErrRateLimited, retry)
		}
	}

	hold, err := s.seats.ReserveSeats(ctx, eventID, seatIDs, owner, s.cfg.HoldTTL)
	if err != nil {
		if errors.Is(err, repository.ErrSeatsUnavailable) {
			return nil, fmt.Errorf("%s:%w", op, ErrSeatsUnavailable)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.notifyChanged(ctx, eventID)

	return hold, nil
}

// Release returns a reserved seat to the pool. It fails unless the seat
// is currently reserved by this owner; a failed release never mutates
// state, so releasing a foreign or already-released hold is safe.
//
// Returns:
//   - error: reservation.ErrHoldNotFound if the seat is not held by owner.
func (s *Service) Release(ctx context.Context, eventID, seatID int64, owner string) error {
	const op = "service.reservation.Release"

	if err := s.seats.ReleaseSeat(ctx, seatID, owner); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrHoldNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	s.notifyChanged(ctx, eventID)

	return nil
}

// CheckAvailability classifies every requested seat as available or
// unavailable with a reason. Read-only; never mutates state.
func (s *Service) CheckAvailability(
	ctx context.Context,
	eventID int64,
	seatIDs []int64,
) (*domain.SeatClassification, error) {
	const op = "service.reservation.CheckAvailability"

	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrNoSeatsSelected)
	}

	cls, err := s.seats.ClassifySeats(ctx, eventID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return cls, nil
}

// Confirm transitions seats to booked on behalf of a completed sale.
// Ownership is not re-validated; the confirmed payment is the authority.
// Seats already booked elsewhere are skipped and logged, never fatal.
func (s *Service) Confirm(
	ctx context.Context,
	eventID int64,
	seatIDs []int64,
	bookingID uuid.UUID,
) (confirmed []int64, err error) {
	const op = "service.reservation.Confirm"

	confirmed, skipped, err := s.seats.ConfirmSeats(ctx, seatIDs, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(skipped) > 0 {
		s.logger.Warn("seats already booked, skipped during confirm",
			"booking_id", bookingID, "seat_ids", skipped)
	}

	s.notifyChanged(ctx, eventID)

	return confirmed, nil
}

// Sweep reclaims expired holds. Idempotent: a second pass with no new
// expiries releases nothing.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	const op = "service.reservation.Sweep"

	released, err := s.seats.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return released, nil
}

func (s *Service) notifyChanged(ctx context.Context, eventID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}
