package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/playspot/internal/availability"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/utils"
)

// SlotStatusRepo implements availability.Store on the slot_status table.
// A slot has no row until it is first held.  Every transition is a
// single conditional statement, so the row itself is the lock and no
// transaction spans more than one slot.
type SlotStatusRepo struct {
	db    *sql.DB
	clock utils.Clock
}

var _ availability.Store = (*SlotStatusRepo)(nil)

// NewSlotStatusRepo returns a store bound to db.  A nil clock uses the
// system clock.
func NewSlotStatusRepo(db *sql.DB, clock utils.Clock) *SlotStatusRepo {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &SlotStatusRepo{db: db, clock: clock}
}

// slotRow is the raw slot_status row.
type slotRow struct {
	status    model.SlotStatus
	token     sql.NullString
	expiresAt sql.NullTime
}

func (r slotRow) effective(now time.Time) model.SlotStatus {
	if r.status == model.SlotHeld && r.expiresAt.Valid && !now.Before(r.expiresAt.Time) {
		return model.SlotOpen
	}
	return r.status
}

func (r *SlotStatusRepo) now() time.Time { return r.clock.Now().UTC() }

func (r *SlotStatusRepo) load(ctx context.Context, key model.SlotKey) (slotRow, bool, error) {
	var row slotRow
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status, hold_token, hold_expires_at FROM slot_status
		  WHERE ground_id = ? AND business_date = ? AND hour_offset = ?`,
		key.GroundID, key.BusinessDate, key.HourOffset,
	).Scan(&status, &row.token, &row.expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return slotRow{status: model.SlotOpen}, false, nil
	}
	if err != nil {
		return slotRow{}, false, err
	}
	row.status = model.SlotStatus(status)
	return row, true, nil
}

func (r *SlotStatusRepo) StatusOf(ctx context.Context, key model.SlotKey) (model.SlotStatus, error) {
	row, _, err := r.load(ctx, key)
	if err != nil {
		return "", fmt.Errorf("slot status: %w", err)
	}
	return row.effective(r.now()), nil
}

func (r *SlotStatusRepo) DayStatuses(ctx context.Context, groundID uint64, businessDate string) (map[int]model.SlotStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hour_offset, status, hold_token, hold_expires_at FROM slot_status
		  WHERE ground_id = ? AND business_date = ?`,
		groundID, businessDate,
	)
	if err != nil {
		return nil, fmt.Errorf("day statuses: %w", err)
	}
	defer rows.Close()
	now := r.now()
	out := make(map[int]model.SlotStatus)
	for rows.Next() {
		var (
			h      int
			status string
			row    slotRow
		)
		if err := rows.Scan(&h, &status, &row.token, &row.expiresAt); err != nil {
			return nil, err
		}
		row.status = model.SlotStatus(status)
		out[h] = row.effective(now)
	}
	return out, rows.Err()
}

// TrySetHeld claims the slot with a conditional UPDATE.  When no row
// exists yet it INSERTs one; losing that insert to a concurrent caller
// surfaces as a duplicate key and the loop re-reads the winner's row.
func (r *SlotStatusRepo) TrySetHeld(ctx context.Context, key model.SlotKey, token string, expiresAt time.Time) error {
	for attempt := 0; attempt < 3; attempt++ {
		now := r.now()
		res, err := r.db.ExecContext(ctx,
			`UPDATE slot_status
			    SET status = 'HELD', hold_token = ?, hold_expires_at = ?, updated_at = ?
			  WHERE ground_id = ? AND business_date = ? AND hour_offset = ?
			    AND (status = 'OPEN' OR (status = 'HELD' AND hold_expires_at <= ?))`,
			token, expiresAt.UTC(), now, key.GroundID, key.BusinessDate, key.HourOffset, now,
		)
		if err != nil {
			return fmt.Errorf("hold slot: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}

		row, exists, err := r.load(ctx, key)
		if err != nil {
			return fmt.Errorf("hold slot: %w", err)
		}
		if exists {
			switch row.effective(r.now()) {
			case model.SlotBooked:
				return availability.ErrAlreadyBooked
			case model.SlotHeld:
				return availability.ErrAlreadyHeld
			}
			// reopened between the update and the read
			continue
		}

		_, err = r.db.ExecContext(ctx,
			`INSERT INTO slot_status (ground_id, business_date, hour_offset, status, hold_token, hold_expires_at, updated_at)
			 VALUES (?, ?, ?, 'HELD', ?, ?, ?)`,
			key.GroundID, key.BusinessDate, key.HourOffset, token, expiresAt.UTC(), now,
		)
		if err == nil {
			return nil
		}
		if !isDuplicateKey(err) {
			return fmt.Errorf("hold slot: %w", err)
		}
	}
	return availability.ErrAlreadyHeld
}

func (r *SlotStatusRepo) SetBooked(ctx context.Context, key model.SlotKey, token string) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE slot_status SET status = 'BOOKED', updated_at = ?
		  WHERE ground_id = ? AND business_date = ? AND hour_offset = ?
		    AND status = 'HELD' AND hold_token = ? AND hold_expires_at > ?`,
		now, key.GroundID, key.BusinessDate, key.HourOffset, token, now,
	)
	if err != nil {
		return fmt.Errorf("book slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	row, exists, err := r.load(ctx, key)
	if err != nil {
		return fmt.Errorf("book slot: %w", err)
	}
	if !exists || !row.token.Valid || row.token.String != token || row.status == model.SlotBooked {
		return availability.ErrTokenMismatch
	}
	return availability.ErrExpired
}

func (r *SlotStatusRepo) Release(ctx context.Context, key model.SlotKey, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE slot_status SET status = 'OPEN', hold_token = NULL, hold_expires_at = NULL, updated_at = ?
		  WHERE ground_id = ? AND business_date = ? AND hour_offset = ?
		    AND status = 'HELD' AND hold_token = ?`,
		r.now(), key.GroundID, key.BusinessDate, key.HourOffset, token,
	)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	row, exists, err := r.load(ctx, key)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if !exists || row.effective(r.now()) == model.SlotOpen {
		return nil
	}
	return availability.ErrTokenMismatch
}

func (r *SlotStatusRepo) Reopen(ctx context.Context, key model.SlotKey, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE slot_status SET status = 'OPEN', hold_token = NULL, hold_expires_at = NULL, updated_at = ?
		  WHERE ground_id = ? AND business_date = ? AND hour_offset = ?
		    AND status = 'BOOKED' AND hold_token = ?`,
		r.now(), key.GroundID, key.BusinessDate, key.HourOffset, token,
	)
	if err != nil {
		return fmt.Errorf("reopen slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return availability.ErrNotBooked
	}
	return nil
}

// Sweep reopens expired holds but keeps their token and expiry so a
// late confirm is reported as expired rather than mismatched.
func (r *SlotStatusRepo) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE slot_status SET status = 'OPEN', updated_at = ?
		  WHERE status = 'HELD' AND hold_expires_at <= ?`,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep holds: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
