package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viktorkud/seatwise/internal/domain"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *CatalogRepo) CreateEvent(
	ctx context.Context,
	title string,
	starts, ends time.Time,
	mode domain.SeatingMode,
) (int64, error) {
	const op = "postgres.CatalogRepo.CreateEvent"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO events(title, starts_at, ends_at, seating_mode)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		title, starts, ends, string(mode),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *CatalogRepo) BatchCreateSeats(
	ctx context.Context,
	eventID int64,
	seats []domain.Seat,
) error {
	const op = "postgres.CatalogRepo.BatchCreateSeats"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(
			`INSERT INTO seats(event_id, row_label, seat_number, pos_x, pos_y, status)
			 VALUES ($1, $2, $3, $4, $5, 'available')
			 ON CONFLICT (event_id, row_label, seat_number) DO NOTHING`,
			eventID, s.Row, s.Number, s.PosX, s.PosY,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *CatalogRepo) CreateTicketType(ctx context.Context, tt *domain.TicketType) (int64, error) {
	const op = "postgres.CatalogRepo.CreateTicketType"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO ticket_types(event_id, name, price_cents, max_tickets, row_from, row_to)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		tt.EventID, tt.Name, tt.PriceCents, tt.MaxTickets, tt.RowFrom, tt.RowTo,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// AssignTicketTypeRows binds every seat in the type's row range to it.
// Row ranges compare lexically, matching how venue rows are labelled.
func (r *CatalogRepo) AssignTicketTypeRows(ctx context.Context, tt *domain.TicketType) (int64, error) {
	const op = "postgres.CatalogRepo.AssignTicketTypeRows"

	if tt.RowFrom == nil || tt.RowTo == nil {
		return 0, nil
	}

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE seats
		 SET ticket_type_id = $1
		 WHERE event_id = $2 AND row_label BETWEEN $3 AND $4`,
		tt.ID, tt.EventID, *tt.RowFrom, *tt.RowTo,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

func (r *CatalogRepo) GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	const op = "postgres.CatalogRepo.GetTicketType"

	db := r.handle()

	var tt domain.TicketType
	err := db.QueryRow(ctx,
		`SELECT id, event_id, name, price_cents, max_tickets, row_from, row_to
		 FROM ticket_types WHERE id = $1`,
		id,
	).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.MaxTickets, &tt.RowFrom, &tt.RowTo)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &tt, nil
}

func (r *CatalogRepo) ListTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketType, error) {
	const op = "postgres.CatalogRepo.ListTicketTypes"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, name, price_cents, max_tickets, row_from, row_to
		 FROM ticket_types
		 WHERE event_id = $1
		 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.TicketType
	for rows.Next() {
		var tt domain.TicketType
		if err := rows.Scan(
			&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents,
			&tt.MaxTickets, &tt.RowFrom, &tt.RowTo,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
