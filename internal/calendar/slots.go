// Package calendar generates the bookable hours of a ground for a
// business day.  A business day may run past midnight, so hour offsets
// are counted from midnight of the business date and may reach 47.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/playspot/internal/model"
)

// DateLayout is the wire and storage format of a business date.
const DateLayout = "2006-01-02"

// ErrInvalidSlotID is returned when a slot identifier cannot be parsed.
var ErrInvalidSlotID = errors.New("invalid slot id")

// GenerateSlots returns the ordered one-hour slots of ground on the
// business day that starts on businessDate.  Every slot is OPEN; callers
// annotate live status from the availability store.  The result is
// recomputed on every call and contains exactly CloseHour-OpenHour slots.
func GenerateSlots(g *model.Ground, businessDate time.Time) ([]model.TimeSlot, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	date := businessDate.Format(DateLayout)
	y, m, d := businessDate.Date()
	loc := businessDate.Location()
	slots := make([]model.TimeSlot, 0, g.SlotCount())
	for h := g.OpenHour; h < g.CloseHour; h++ {
		// time.Date normalises h >= 24 onto the following calendar day.
		start := time.Date(y, m, d, h, 0, 0, 0, loc)
		end := time.Date(y, m, d, h+1, 0, 0, 0, loc)
		slots = append(slots, model.TimeSlot{
			ID:           SlotID(g.ID, date, h),
			Label:        Label(h),
			GroundID:     g.ID,
			BusinessDate: date,
			HourOffset:   h,
			Start:        start,
			End:          end,
			Status:       model.SlotOpen,
		})
	}
	return slots, nil
}

// Label returns the short slot label used by the booking pages.
func Label(h int) string { return "slot-" + strconv.Itoa(h) }

// SlotID builds the deterministic identifier of a slot.  Repeated calls
// with the same inputs always produce the same id.
func SlotID(groundID uint64, businessDate string, h int) string {
	return fmt.Sprintf("%d_%s_%s", groundID, businessDate, Label(h))
}

// KeyID is SlotID for a storage key.
func KeyID(k model.SlotKey) string { return SlotID(k.GroundID, k.BusinessDate, k.HourOffset) }

// ParseSlotID is the inverse of SlotID.
func ParseSlotID(id string) (model.SlotKey, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "slot-") {
		return model.SlotKey{}, fmt.Errorf("%w: %q", ErrInvalidSlotID, id)
	}
	gid, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || gid == 0 {
		return model.SlotKey{}, fmt.Errorf("%w: ground id in %q", ErrInvalidSlotID, id)
	}
	if _, err := time.Parse(DateLayout, parts[1]); err != nil {
		return model.SlotKey{}, fmt.Errorf("%w: date in %q", ErrInvalidSlotID, id)
	}
	h, err := strconv.Atoi(strings.TrimPrefix(parts[2], "slot-"))
	if err != nil || h < 0 || h > 47 {
		return model.SlotKey{}, fmt.Errorf("%w: hour in %q", ErrInvalidSlotID, id)
	}
	return model.SlotKey{GroundID: gid, BusinessDate: parts[1], HourOffset: h}, nil
}

// ParseBusinessDate parses a YYYY-MM-DD date at midnight in loc.
func ParseBusinessDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}

// Contains reports whether hour offset h lies inside the ground's
// operating window.
func Contains(g *model.Ground, h int) bool {
	return h >= g.OpenHour && h < g.CloseHour
}

// SlotFor builds the single slot identified by key for ground.  It fails
// when the key does not belong to the ground or falls outside its
// current operating window.
func SlotFor(g *model.Ground, key model.SlotKey, loc *time.Location) (model.TimeSlot, error) {
	if key.GroundID != g.ID || !Contains(g, key.HourOffset) {
		return model.TimeSlot{}, fmt.Errorf("%w: %s not offered by ground %d", ErrInvalidSlotID, KeyID(key), g.ID)
	}
	date, err := ParseBusinessDate(key.BusinessDate, loc)
	if err != nil {
		return model.TimeSlot{}, err
	}
	y, m, d := date.Date()
	return model.TimeSlot{
		ID:           KeyID(key),
		Label:        Label(key.HourOffset),
		GroundID:     g.ID,
		BusinessDate: key.BusinessDate,
		HourOffset:   key.HourOffset,
		Start:        time.Date(y, m, d, key.HourOffset, 0, 0, 0, date.Location()),
		End:          time.Date(y, m, d, key.HourOffset+1, 0, 0, 0, date.Location()),
		Status:       model.SlotOpen,
	}, nil
}
