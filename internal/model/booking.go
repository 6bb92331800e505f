package model

import "time"

// Booking is the durable record created when a held slot is paid for.
// It is immutable apart from the cancellation fields.
//
// Fields:
//
//	ID            – primary key (UUID).
//	Code          – short booking code shown to the customer (SP#######).
//	SlotID        – deterministic slot identifier.
//	GroundID, BusinessDate, HourOffset – the slot_status key.
//	HoldToken     – token of the reservation that produced the booking.
//	CustomerName  – customer's full name.
//	CustomerPhone – customer's phone number.
//	Rental        – ground rental price.
//	ServiceFee    – platform service fee.
//	Total         – Rental + ServiceFee.
//	Cancelled     – set when an owner or admin cancels the booking.
//	CancelledAt   – cancellation timestamp (nil while active).
//	CreatedAt     – creation timestamp.
type Booking struct {
	ID            string     `json:"booking_id"`
	Code          string     `json:"booking_code"`
	SlotID        string     `json:"slot_id"`
	GroundID      uint64     `json:"ground_id"`
	BusinessDate  string     `json:"business_date"`
	HourOffset    int        `json:"hour_offset"`
	HoldToken     string     `json:"-"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	Rental        int64      `json:"rental"`
	ServiceFee    int64      `json:"service_fee"`
	Total         int64      `json:"total"`
	Cancelled     bool       `json:"cancelled"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Key returns the slot_status key the booking belongs to.
func (b *Booking) Key() SlotKey {
	return SlotKey{GroundID: b.GroundID, BusinessDate: b.BusinessDate, HourOffset: b.HourOffset}
}
