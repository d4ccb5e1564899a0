package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viktorkud/seatwise/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves an event by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.QueryRepo.GetEvent"

	db := r.handle()

	var e domain.Event
	var mode string

	err := db.QueryRow(ctx,
		`SELECT id, title, starts_at, ends_at, seating_mode
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.Starts, &e.Ends, &mode)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	e.SeatingMode = domain.SeatingMode(mode)

	return &e, nil
}

// ListEventSeats lists seats for an event in layout order, optionally
// filtered to available seats only.
func (r *QueryRepo) ListEventSeats(
	ctx context.Context,
	eventID int64,
	onlyAvailable bool,
	limit, offset int,
) ([]domain.Seat, error) {
	const op = "postgres.QueryRepo.ListEventSeats"

	db := r.handle()

	query := `SELECT id, event_id, row_label, seat_number, pos_x, pos_y,
	                 status, ticket_type_id, hold_owner, hold_expires_at
	          FROM seats
	          WHERE event_id = $1
	          ORDER BY row_label, seat_number
	          LIMIT $2 OFFSET $3`
	if onlyAvailable {
		query = `SELECT id, event_id, row_label, seat_number, pos_x, pos_y,
		                status, ticket_type_id, hold_owner, hold_expires_at
		         FROM seats
		         WHERE event_id = $1 AND status = 'available'
		         ORDER BY row_label, seat_number
		         LIMIT $2 OFFSET $3`
	}

	rows, err := db.Query(ctx, query, eventID, limit, offset)
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

// CountsByStatus counts seats by status for an event.
func (r *QueryRepo) CountsByStatus(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "postgres.QueryRepo.CountsByStatus"

	db := r.handle()

	var ec domain.EventCounts
	err := db.QueryRow(ctx,
		`SELECT
		    COALESCE(SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN status = 'reserved' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN status = 'booked' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN status = 'unavailable' THEN 1 ELSE 0 END), 0)
		 FROM seats
		 WHERE event_id = $1`,
		eventID,
	).Scan(&ec.Available, &ec.Reserved, &ec.Booked, &ec.Blocked)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	ec.Total = ec.Available + ec.Reserved + ec.Booked + ec.Blocked

	return &ec, nil
}
