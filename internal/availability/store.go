// Package availability is the single source of truth for slot status.
// Every status change goes through a Store, whose hold transition is an
// atomic compare-and-set keyed by slot.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/playspot/internal/model"
)

var (
	ErrAlreadyHeld   = errors.New("slot already held")
	ErrAlreadyBooked = errors.New("slot already booked")
	ErrTokenMismatch = errors.New("hold token does not match")
	ErrExpired       = errors.New("hold expired")
	ErrNotBooked     = errors.New("slot is not booked")
)

// Store tracks the live status of slots.  Slots that were never touched
// are OPEN.  A HELD slot whose hold has expired reads as OPEN and may be
// held again.
type Store interface {
	// StatusOf returns the effective status of one slot.
	StatusOf(ctx context.Context, key model.SlotKey) (model.SlotStatus, error)
	// DayStatuses returns the effective status of every touched slot of
	// a ground on a business date, keyed by hour offset.
	DayStatuses(ctx context.Context, groundID uint64, businessDate string) (map[int]model.SlotStatus, error)
	// TrySetHeld moves an OPEN slot to HELD under token until expiresAt.
	TrySetHeld(ctx context.Context, key model.SlotKey, token string, expiresAt time.Time) error
	// SetBooked moves a slot HELD under token to BOOKED.
	SetBooked(ctx context.Context, key model.SlotKey, token string) error
	// Release moves a slot HELD under token back to OPEN.  Releasing a
	// slot that is already OPEN is not an error.
	Release(ctx context.Context, key model.SlotKey, token string) error
	// Reopen moves a slot BOOKED under token back to OPEN.
	Reopen(ctx context.Context, key model.SlotKey, token string) error
	// Sweep turns every expired hold to OPEN and reports how many changed.
	Sweep(ctx context.Context) (int, error)
}
