package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/playspot/internal/calendar"
	"github.com/iliyamo/playspot/internal/model"
)

// BookingRepo persists confirmed bookings.  Rows are immutable apart
// from the cancellation columns.
type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, code, ground_id, business_date, hour_offset, hold_token, customer_name, customer_phone,
	rental, service_fee, total, cancelled, cancelled_at, created_at`

func scanBooking(s rowScanner) (*model.Booking, error) {
	var b model.Booking
	var cancelledAt sql.NullTime
	if err := s.Scan(&b.ID, &b.Code, &b.GroundID, &b.BusinessDate, &b.HourOffset, &b.HoldToken,
		&b.CustomerName, &b.CustomerPhone, &b.Rental, &b.ServiceFee, &b.Total,
		&b.Cancelled, &cancelledAt, &b.CreatedAt); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		b.CancelledAt = &t
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.SlotID = calendar.SlotID(b.GroundID, b.BusinessDate, b.HourOffset)
	return &b, nil
}

// Create stores a confirmed booking.  The slot_status parent row is
// inserted when missing, which is the case whenever slot availability is
// kept in process rather than in MySQL.  A clashing id or code yields
// ErrConflict.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO slot_status (ground_id, business_date, hour_offset, status, hold_token, hold_expires_at, updated_at)
		 VALUES (?, ?, ?, 'BOOKED', ?, NULL, ?)`,
		b.GroundID, b.BusinessDate, b.HourOffset, b.HoldToken, b.CreatedAt.UTC(),
	)
	if err != nil && !isDuplicateKey(err) {
		return fmt.Errorf("slot row: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (id, code, ground_id, business_date, hour_offset, hold_token, customer_name, customer_phone,
		                       rental, service_fee, total, cancelled, cancelled_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Code, b.GroundID, b.BusinessDate, b.HourOffset, b.HoldToken, b.CustomerName, b.CustomerPhone,
		b.Rental, b.ServiceFee, b.Total, b.Cancelled, nullTime(b.CancelledAt), b.CreatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: booking %s", ErrConflict, b.Code)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// GetByID returns ErrBookingNotFound when no booking has the id.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListByGroundAndDate returns the bookings of one business day of a
// ground in slot order, cancelled ones included.
func (r *BookingRepo) ListByGroundAndDate(ctx context.Context, groundID uint64, businessDate string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		  WHERE ground_id = ? AND business_date = ?
		  ORDER BY hour_offset, created_at`,
		groundID, businessDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// MarkCancelled flags an active booking as cancelled.  It returns
// ErrConflict when the booking was already cancelled.
func (r *BookingRepo) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET cancelled = 1, cancelled_at = ? WHERE id = ? AND cancelled = 0`,
		at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: booking already cancelled", ErrConflict)
	}
	return nil
}
