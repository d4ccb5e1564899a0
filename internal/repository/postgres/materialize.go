package postgres

import (
	"context"
	"fmt"

	"github.com/viktorkud/seatwise/internal/domain"
)

// MaterializeBooking records a completed sale in a single transaction:
// the booking row, its line items, and the booked transition of every
// resolved seat. Other callers observe either none of it or all of it.
//
// Returns:
//   - skipped: seat ids that were already booked and left untouched.
//   - error: repository.ErrDuplicateKey if the payment key is already recorded.
func (s *Store) MaterializeBooking(
	ctx context.Context,
	b *domain.Booking,
	items []domain.BookingLineItem,
	seatIDs []int64,
) (skipped []int64, err error) {
	const op = "postgres.Store.MaterializeBooking"

	err = s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if err := s.Bookings().With(tx).CreateWithItems(ctx, b, items); err != nil {
			return err
		}

		if len(seatIDs) == 0 {
			return nil
		}

		_, skip, err := s.Seats().With(tx).ConfirmSeats(ctx, seatIDs, b.ID)
		if err != nil {
			return err
		}

		skipped = skip
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return skipped, nil
}
