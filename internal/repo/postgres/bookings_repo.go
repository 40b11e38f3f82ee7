package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/tourbook/internal/domain"
)

type BookingRepo interface {
	// InsertFromCheckout records a paid checkout once. A redelivered session
	// returns created=false and no booking.
	InsertFromCheckout(ctx context.Context, c domain.CheckoutCompleted, userID int64) (b *domain.Booking, created bool, err error)
	HasBooked(ctx context.Context, userID, tourID int64) (bool, error)
}

type BookingRepoImpl struct {
	db    DB
	table *Table[domain.Booking]
}

func NewBookingRepo(db DB) *BookingRepoImpl {
	return &BookingRepoImpl{db: db, table: NewBookingsTable(db)}
}

func (r *BookingRepoImpl) InsertFromCheckout(ctx context.Context, c domain.CheckoutCompleted, userID int64) (*domain.Booking, bool, error) {
	q := `INSERT INTO bookings (tour_id, user_id, price, paid, checkout_session_id)
VALUES ($1,$2,$3,true,$4)
ON CONFLICT (checkout_session_id) DO NOTHING
RETURNING ` + r.table.returning()

	b, err := r.table.one(ctx, q, c.TourID, userID, c.Price(), c.SessionID)
	if err != nil {
		return nil, false, err
	}
	if b == nil {
		return nil, false, nil
	}
	return b, true, nil
}

// HasBooked reports whether the user holds a paid booking for the tour.
func (r *BookingRepoImpl) HasBooked(ctx context.Context, userID, tourID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM bookings WHERE user_id=$1 AND tour_id=$2 AND paid)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ok bool
	err := r.db.QueryRow(ctx, q, userID, tourID).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return ok, err
}

var _ BookingRepo = (*BookingRepoImpl)(nil)
