package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viktorkud/seatwise/internal/domain"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetByPaymentKey retrieves the booking recorded for a gateway transaction
// id, with its line items.
//
// Returns:
//   - *domain.BookingWithItems: the booking when found.
//   - error: repository.ErrNotFound if no booking carries this key.
func (r *BookingRepo) GetByPaymentKey(ctx context.Context, key string) (*domain.BookingWithItems, error) {
	const op = "postgres.BookingRepo.GetByPaymentKey"

	db := r.handle()

	var id uuid.UUID
	err := db.QueryRow(ctx,
		`SELECT id FROM bookings WHERE payment_key = $1`,
		key,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return r.GetWithItems(ctx, id)
}

// GetWithItems retrieves a booking and its line items.
//
// Returns:
//   - error: repository.ErrNotFound if the booking is not found.
func (r *BookingRepo) GetWithItems(ctx context.Context, id uuid.UUID) (*domain.BookingWithItems, error) {
	const op = "postgres.BookingRepo.GetWithItems"

	db := r.handle()

	var out domain.BookingWithItems
	var status string

	err := db.QueryRow(ctx,
		`SELECT id, event_id, customer_name, customer_email, payment_key,
		        status, total_cents, currency, metadata, fulfillment, created_at
		 FROM bookings WHERE id = $1`,
		id,
	).Scan(
		&out.Booking.ID,
		&out.Booking.EventID,
		&out.Booking.CustomerName,
		&out.Booking.CustomerEmail,
		&out.Booking.PaymentKey,
		&status,
		&out.Booking.TotalCents,
		&out.Booking.Currency,
		&out.Booking.Metadata,
		&out.Booking.Fulfillment,
		&out.Booking.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	out.Booking.Status = domain.BookingStatus(status)

	rows, err := db.Query(ctx,
		`SELECT id, booking_id, item_type, ref_id, name, quantity,
		        unit_price_cents, total_cents, seat_details, item_details,
		        ticket_code, status
		 FROM booking_line_items
		 WHERE booking_id = $1
		 ORDER BY item_type, name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	for rows.Next() {
		var li domain.BookingLineItem
		var itemType, itemStatus string

		if err := rows.Scan(
			&li.ID,
			&li.BookingID,
			&itemType,
			&li.RefID,
			&li.Name,
			&li.Quantity,
			&li.UnitPriceCents,
			&li.TotalCents,
			&li.SeatDetails,
			&li.ItemDetails,
			&li.TicketCode,
			&itemStatus,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		li.ItemType = domain.LineItemType(itemType)
		li.Status = domain.LineItemStatus(itemStatus)
		out.Items = append(out.Items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

// CreateWithItems persists the booking and all its line items. The unique
// constraint on payment_key is the race-free replay guard: a concurrent
// duplicate insert surfaces as repository.ErrDuplicateKey.
func (r *BookingRepo) CreateWithItems(
	ctx context.Context,
	b *domain.Booking,
	items []domain.BookingLineItem,
) error {
	const op = "postgres.BookingRepo.CreateWithItems"

	if r.db != nil {
		if err := r.createWithItemsCore(ctx, r.db, b, items); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.createWithItemsCore(ctx, tx, b, items); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// SetTicketCode records the externally issued ticket identifier on a line
// item once rendering succeeded.
func (r *BookingRepo) SetTicketCode(ctx context.Context, itemID uuid.UUID, code string) error {
	const op = "postgres.BookingRepo.SetTicketCode"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`UPDATE booking_line_items SET ticket_code = $2 WHERE id = $1`,
		itemID, code,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Finish moves the booking out of processing and stores the fulfillment
// summary. A failed booking also voids its line items so they stop
// counting against ticket-type capacity.
func (r *BookingRepo) Finish(
	ctx context.Context,
	id uuid.UUID,
	status domain.BookingStatus,
	fulfillmentJSON []byte,
) error {
	const op = "postgres.BookingRepo.Finish"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`UPDATE bookings SET status = $2, fulfillment = $3 WHERE id = $1`,
		id, string(status), fulfillmentJSON,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if status == domain.BookingFailed {
		if _, err := db.Exec(ctx,
			`UPDATE booking_line_items SET status = 'void' WHERE booking_id = $1`,
			id,
		); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
	}

	return nil
}

// SoldCount sums quantities over active ticket line items for a ticket
// type. Processing bookings count: their items already claim capacity.
func (r *BookingRepo) SoldCount(ctx context.Context, ticketTypeID int64) (int, error) {
	const op = "postgres.BookingRepo.SoldCount"

	db := r.handle()

	var sold int
	err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(li.quantity), 0)
		 FROM booking_line_items li
		 JOIN bookings b ON b.id = li.booking_id
		 WHERE li.item_type = 'ticket'
		   AND li.ref_id = $1
		   AND li.status = 'active'
		   AND b.status IN ('processing', 'active')`,
		ticketTypeID,
	).Scan(&sold)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return sold, nil
}

func (r *BookingRepo) createWithItemsCore(
	ctx context.Context,
	db DB,
	b *domain.Booking,
	items []domain.BookingLineItem,
) error {
	if err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, event_id, customer_name, customer_email,
		                      payment_key, status, total_cents, currency, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		b.ID, b.EventID, b.CustomerName, b.CustomerEmail,
		b.PaymentKey, string(b.Status), b.TotalCents, b.Currency, b.Metadata,
	).Scan(&b.CreatedAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, li := range items {
		batch.Queue(
			`INSERT INTO booking_line_items(id, booking_id, item_type, ref_id, name,
			                                quantity, unit_price_cents, total_cents,
			                                seat_details, item_details, ticket_code, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			li.ID, b.ID, string(li.ItemType), li.RefID, li.Name,
			li.Quantity, li.UnitPriceCents, li.TotalCents,
			li.SeatDetails, li.ItemDetails, li.TicketCode, string(li.Status),
		)
	}

	return db.SendBatch(ctx, batch).Close()
}
