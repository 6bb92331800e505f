package model

import (
	"errors"
	"fmt"
	"time"
)

// Ground represents a bookable sports ground listed by an owner.  A
// ground operates on a business day that starts at OpenHour and ends at
// CloseHour.  CloseHour may exceed 24 to express that the day runs past
// midnight, e.g. 11 -> 30 means 11:00 until 06:00 the next morning.
//
// Fields:
//
//	ID           – primary key identifier.
//	OwnerID      – user ID of the ground owner.
//	Name         – display name.
//	Location     – free-form address.
//	Sports       – sports supported on the ground.
//	PricePerHour – rental price per hour in whole currency units.
//	OpenHour     – first bookable hour of the business day.
//	CloseHour    – hour at which the business day ends (exclusive).
//	IsActive     – whether the ground accepts bookings.
//	CreatedAt    – creation timestamp.
//	UpdatedAt    – last update timestamp.
type Ground struct {
	ID           uint64    // grounds.id
	OwnerID      uint64    // grounds.owner_id
	Name         string    // grounds.name
	Location     string    // grounds.location
	Sports       []string  // grounds.sports (comma separated)
	PricePerHour int64     // grounds.price_per_hour
	OpenHour     int       // grounds.open_hour
	CloseHour    int       // grounds.close_hour
	IsActive     bool      // grounds.is_active
	CreatedAt    time.Time // grounds.created_at
	UpdatedAt    time.Time // grounds.updated_at
}

// ErrInvalidWindow is returned by Validate when the operating window
// cannot produce a sane business day.
var ErrInvalidWindow = errors.New("invalid operating window")

// Validate checks the operating window and price.  The window must be
// non-empty, start inside the calendar day and span at most 24 hours.
func (g *Ground) Validate() error {
	if g.OpenHour < 0 || g.OpenHour > 23 {
		return fmt.Errorf("%w: open hour %d", ErrInvalidWindow, g.OpenHour)
	}
	if g.CloseHour <= g.OpenHour || g.CloseHour > 48 {
		return fmt.Errorf("%w: close hour %d", ErrInvalidWindow, g.CloseHour)
	}
	if g.CloseHour-g.OpenHour > 24 {
		return fmt.Errorf("%w: window longer than a day", ErrInvalidWindow)
	}
	if g.PricePerHour < 0 {
		return errors.New("price per hour must not be negative")
	}
	return nil
}

// SlotCount is the number of one-hour slots in a business day.
func (g *Ground) SlotCount() int { return g.CloseHour - g.OpenHour }

// OpeningHours renders the window the way ground pages show it, e.g.
// "11:00 - 06:00 (next day)".
func (g *Ground) OpeningHours() string {
	s := fmt.Sprintf("%02d:00 - %02d:00", g.OpenHour%24, g.CloseHour%24)
	if g.CloseHour > 24 {
		s += " (next day)"
	}
	return s
}
