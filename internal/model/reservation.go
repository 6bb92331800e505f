package model

import "time"

// Customer carries the contact details a customer submits before a slot
// is held.  Both fields are required.
type Customer struct {
	Name  string `json:"customer_name" validate:"required,max=100"`
	Phone string `json:"customer_phone" validate:"required,phone"`
}

// Quote is the price breakdown for a slot selection in whole currency
// units.
type Quote struct {
	Rental     int64 `json:"rental"`
	ServiceFee int64 `json:"service_fee"`
	Total      int64 `json:"total"`
}

// Reservation is a temporary hold on one slot for one customer attempt.
// Only the holder of Token can confirm or release it, and it lapses at
// ExpiresAt.
//
// Fields:
//
//	Token      – opaque hold token returned to the client.
//	SlotID     – deterministic slot identifier.
//	Key        – storage key of the slot.
//	Customer   – contact details submitted with the hold.
//	Quote      – price computed when the hold was taken.
//	CreatedAt  – when the hold was created.
//	ExpiresAt  – when the hold expires.
type Reservation struct {
	Token     string    `json:"reservation_token"`
	SlotID    string    `json:"slot_id"`
	Key       SlotKey   `json:"slot_key"`
	Customer  Customer  `json:"customer"`
	Quote     Quote     `json:"quote"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the hold has lapsed at now.
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
