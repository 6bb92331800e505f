package model

import "time"

// SlotStatus is the availability state of a time slot.
type SlotStatus string

const (
	SlotOpen   SlotStatus = "OPEN"
	SlotHeld   SlotStatus = "HELD"
	SlotBooked SlotStatus = "BOOKED"
)

// TimeSlot is one bookable hour of a ground on a business day.  Slots
// are generated on demand and only persisted once they are touched by a
// hold.  HourOffset counts from midnight of BusinessDate and may be 24
// or more for hours that fall on the following calendar date.
type TimeSlot struct {
	ID           string     `json:"slot_id"`
	Label        string     `json:"label"`
	GroundID     uint64     `json:"ground_id"`
	BusinessDate string     `json:"business_date"`
	HourOffset   int        `json:"hour_offset"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	Status       SlotStatus `json:"status"`
}

// SlotKey identifies a slot in storage.  It mirrors the primary key of
// the slot_status table.
type SlotKey struct {
	GroundID     uint64 `json:"ground_id"`
	BusinessDate string `json:"business_date"` // YYYY-MM-DD
	HourOffset   int    `json:"hour_offset"`
}
