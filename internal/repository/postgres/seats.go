package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

type SeatRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SeatRepo) With(db DB) *SeatRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeatRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// ReserveSeats places a hold on every requested seat, all-or-nothing.
//
// The status transition is a single conditional UPDATE guarded by
// status = 'available'; a row count short of len(seatIDs) means another
// caller won the race on at least one seat and nothing is committed.
//
// Returns:
//   - *domain.Hold: the created hold when successful.
//   - error: repository.ErrSeatsUnavailable if any seat is not available.
func (r *SeatRepo) ReserveSeats(
	ctx context.Context,
	eventID int64,
	seatIDs []int64,
	owner string,
	ttl time.Duration,
) (*domain.Hold, error) {
	const op = "postgres.SeatRepo.ReserveSeats"

	if r.db != nil {
		h, err := r.reserveSeatsCore(ctx, r.db, eventID, seatIDs, owner, ttl)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return h, nil
	}

	var hold *domain.Hold

	err := r.runTx(ctx, func(ctx context.Context, tx DB) error {
		h, err := r.reserveSeatsCore(ctx, tx, eventID, seatIDs, owner, ttl)
		if err != nil {
			return err
		}
		hold = h
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return hold, nil
}

// ReleaseSeat returns a reserved seat to the pool if it is held by owner.
//
// Returns:
//   - error: repository.ErrNotFound unless the seat is reserved by this owner.
func (r *SeatRepo) ReleaseSeat(ctx context.Context, seatID int64, owner string) error {
	const op = "postgres.SeatRepo.ReleaseSeat"

	if r.db != nil {
		if err := r.releaseSeatCore(ctx, r.db, seatID, owner); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	err := r.runTx(ctx, func(ctx context.Context, tx DB) error {
		return r.releaseSeatCore(ctx, tx, seatID, owner)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// ConfirmSeats transitions seats to booked on behalf of a completed sale.
// Reserved and available seats qualify; ownership is not re-validated, the
// payment is the authority. Seats already booked are reported back as
// skipped, not treated as an error.
func (r *SeatRepo) ConfirmSeats(
	ctx context.Context,
	seatIDs []int64,
	bookingID uuid.UUID,
) (confirmed, skipped []int64, err error) {
	const op = "postgres.SeatRepo.ConfirmSeats"

	if r.db != nil {
		confirmed, skipped, err = r.confirmSeatsCore(ctx, r.db, seatIDs, bookingID)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return confirmed, skipped, nil
	}

	err = r.runTx(ctx, func(ctx context.Context, tx DB) error {
		var coreErr error
		confirmed, skipped, coreErr = r.confirmSeatsCore(ctx, tx, seatIDs, bookingID)
		return coreErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return confirmed, skipped, nil
}

// ClassifySeats is a read-only availability check. Every requested id is
// classified as available or unavailable with a reason; no state changes.
func (r *SeatRepo) ClassifySeats(
	ctx context.Context,
	eventID int64,
	seatIDs []int64,
) (*domain.SeatClassification, error) {
	const op = "postgres.SeatRepo.ClassifySeats"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, status, hold_expires_at
		 FROM seats
		 WHERE event_id = $1 AND id = ANY($2)`,
		eventID, seatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	seen := make(map[int64]bool, len(seatIDs))
	out := &domain.SeatClassification{}

	for rows.Next() {
		var (
			id      int64
			status  string
			expires *time.Time
		)
		if err := rows.Scan(&id, &status, &expires); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		seen[id] = true

		switch domain.SeatStatus(status) {
		case domain.SeatAvailable:
			out.Available = append(out.Available, id)
		case domain.SeatReserved:
			out.Unavailable = append(out.Unavailable, domain.UnavailableSeat{
				SeatID:    id,
				Reason:    domain.ReasonReserved,
				ExpiresAt: expires,
			})
		case domain.SeatBooked:
			out.Unavailable = append(out.Unavailable, domain.UnavailableSeat{
				SeatID: id,
				Reason: domain.ReasonBooked,
			})
		default:
			out.Unavailable = append(out.Unavailable, domain.UnavailableSeat{
				SeatID: id,
				Reason: domain.ReasonBlocked,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	for _, id := range seatIDs {
		if !seen[id] {
			out.Unavailable = append(out.Unavailable, domain.UnavailableSeat{
				SeatID: id,
				Reason: domain.ReasonNotFound,
			})
		}
	}

	return out, nil
}

// SweepExpired reclaims lapsed holds: reserved seats whose expiry has
// passed, or whose expiry was never set (orphans left by partial
// failures), go back to available; unconfirmed expired hold rows are
// deleted. Both statements are atomic conditional updates, so a seat in
// the middle of a confirming transaction is never reverted.
func (r *SeatRepo) SweepExpired(ctx context.Context) (int64, error) {
	const op = "postgres.SeatRepo.SweepExpired"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE seats
		 SET status = 'available', hold_id = NULL, hold_owner = NULL, hold_expires_at = NULL
		 WHERE status = 'reserved'
		   AND (hold_expires_at IS NULL OR hold_expires_at <= now())`,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	released := tag.RowsAffected()

	_, err = db.Exec(ctx,
		`DELETE FROM holds WHERE expires_at <= now() AND NOT confirmed`,
	)
	if err != nil {
		return released, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return released, nil
}

// SeatsByLabels resolves human seat labels (e.g. "F8") for an event.
// Unknown labels are simply absent from the result.
func (r *SeatRepo) SeatsByLabels(
	ctx context.Context,
	eventID int64,
	labels []string,
) ([]domain.Seat, error) {
	const op = "postgres.SeatRepo.SeatsByLabels"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, row_label, seat_number, pos_x, pos_y,
		        status, ticket_type_id, hold_owner, hold_expires_at
		 FROM seats
		 WHERE event_id = $1
		   AND row_label || seat_number::text = ANY($2)
		 ORDER BY row_label, seat_number`,
		eventID, labels,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// SetBlocked toggles the administrative side channel. Blocking succeeds
// only from available or reserved; unblocking only returns a blocked seat
// to available. Booked seats are untouchable either way.
func (r *SeatRepo) SetBlocked(ctx context.Context, seatID int64, blocked bool) error {
	const op = "postgres.SeatRepo.SetBlocked"

	db := r.handle()

	query := `UPDATE seats
	          SET status = 'unavailable', hold_id = NULL, hold_owner = NULL, hold_expires_at = NULL
	          WHERE id = $1 AND status IN ('available', 'reserved')`
	if !blocked {
		query = `UPDATE seats
		         SET status = 'available'
		         WHERE id = $1 AND status = 'unavailable'`
	}

	tag, err := db.Exec(ctx, query, seatID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		var status string
		err := db.QueryRow(ctx, `SELECT status FROM seats WHERE id = $1`, seatID).Scan(&status)
		if err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		if status == string(domain.SeatBooked) {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}

		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *SeatRepo) runTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *SeatRepo) reserveSeatsCore(
	ctx context.Context,
	db DB,
	eventID int64,
	seatIDs []int64,
	owner string,
	ttl time.Duration,
) (*domain.Hold, error) {
	holdID := uuid.New()
	now := time.Now()
	expires := now.Add(ttl)

	kind := domain.HoldSingleSeat
	if len(seatIDs) > 1 {
		kind = domain.HoldTableGroup
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO holds(id, event_id, kind, owner, reserved_at, expires_at, confirmed)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		holdID, eventID, string(kind), owner, now, expires,
	); err != nil {
		return nil, err
	}

	tag, err := db.Exec(ctx,
		`UPDATE seats
		 SET status = 'reserved', hold_id = $3, hold_owner = $4, hold_expires_at = $5
		 WHERE event_id = $1
		   AND id = ANY($2)
		   AND status = 'available'`,
		eventID, seatIDs, holdID, owner, expires,
	)
	if err != nil {
		return nil, err
	}

	if int(tag.RowsAffected()) != len(seatIDs) {
		return nil, repository.ErrSeatsUnavailable
	}

	return &domain.Hold{
		ID:         holdID,
		EventID:    eventID,
		Kind:       kind,
		SeatIDs:    seatIDs,
		Owner:      owner,
		ReservedAt: now,
		ExpiresAt:  expires,
	}, nil
}

func (r *SeatRepo) releaseSeatCore(ctx context.Context, db DB, seatID int64, owner string) error {
	var holdID *uuid.UUID

	err := db.QueryRow(ctx,
		`SELECT hold_id FROM seats
		 WHERE id = $1 AND status = 'reserved' AND hold_owner = $2`,
		seatID, owner,
	).Scan(&holdID)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx,
		`UPDATE seats
		 SET status = 'available', hold_id = NULL, hold_owner = NULL, hold_expires_at = NULL
		 WHERE id = $1 AND status = 'reserved' AND hold_owner = $2`,
		seatID, owner,
	); err != nil {
		return err
	}

	if holdID == nil {
		return nil
	}

	// Drop the hold row once no seat references it anymore.
	_, err = db.Exec(ctx,
		`DELETE FROM holds h
		 WHERE h.id = $1
		   AND NOT EXISTS (SELECT 1 FROM seats WHERE hold_id = h.id)`,
		*holdID,
	)

	return err
}

func (r *SeatRepo) confirmSeatsCore(
	ctx context.Context,
	db DB,
	seatIDs []int64,
	bookingID uuid.UUID,
) (confirmed, skipped []int64, err error) {
	rows, err := db.Query(ctx,
		`SELECT DISTINCT hold_id
		 FROM seats
		 WHERE id = ANY($1) AND hold_id IS NOT NULL`,
		seatIDs,
	)
	if err != nil {
		return nil, nil, err
	}

	var holdIDs []uuid.UUID
	for rows.Next() {
		var hid uuid.UUID
		if err := rows.Scan(&hid); err != nil {
			rows.Close()
			return nil, nil, err
		}
		holdIDs = append(holdIDs, hid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.Query(ctx,
		`UPDATE seats
		 SET status = 'booked', hold_id = NULL, hold_owner = NULL, hold_expires_at = NULL
		 WHERE id = ANY($1) AND status IN ('reserved', 'available')
		 RETURNING id`,
		seatIDs,
	)
	if err != nil {
		return nil, nil, err
	}

	defer rows.Close()

	got := make(map[int64]bool, len(seatIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		got[id] = true
		confirmed = append(confirmed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, id := range seatIDs {
		if !got[id] {
			skipped = append(skipped, id)
		}
	}

	if len(holdIDs) > 0 {
		if _, err := db.Exec(ctx,
			`UPDATE holds SET confirmed = true WHERE id = ANY($1)`,
			holdIDs,
		); err != nil {
			return nil, nil, err
		}
	}

	_ = bookingID // recorded on the booking side; seats carry no back-reference

	return confirmed, skipped, nil
}

func scanSeat(rows pgx.Rows) (domain.Seat, error) {
	var s domain.Seat
	var status string

	if err := rows.Scan(
		&s.ID,
		&s.EventID,
		&s.Row,
		&s.Number,
		&s.PosX,
		&s.PosY,
		&status,
		&s.TicketTypeID,
		&s.HoldOwner,
		&s.HoldExpiresAt,
	); err != nil {
		return domain.Seat{}, err
	}

	s.Status = domain.SeatStatus(status)
	return s, nil
}
