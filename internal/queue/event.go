// Package queue defines the booking events exchanged over RabbitMQ and
// the consumer that records them.
package queue

// Queue names.  Both are durable and receive persistent messages.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published once a confirmed booking has been
// stored.  It carries enough for consumers to notify or report without
// reading the primary database.
type BookingConfirmedEvent struct {
	BookingID    string `json:"booking_id"`
	BookingCode  string `json:"booking_code"`
	GroundID     uint64 `json:"ground_id"`
	GroundName   string `json:"ground_name"`
	SlotID       string `json:"slot_id"`
	BusinessDate string `json:"business_date"`
	StartsAt     string `json:"starts_at"`
	EndsAt       string `json:"ends_at"`
	CustomerName string `json:"customer_name"`
	Rental       int64  `json:"rental"`
	ServiceFee   int64  `json:"service_fee"`
	Total        int64  `json:"total"`
	WalkIn       bool   `json:"walk_in"`
	ConfirmedAt  string `json:"confirmed_at"`
}

// BookingCancelledEvent is published when an owner or admin cancels a
// booking and its slot is reopened.
type BookingCancelledEvent struct {
	BookingID   string `json:"booking_id"`
	BookingCode string `json:"booking_code"`
	GroundID    uint64 `json:"ground_id"`
	SlotID      string `json:"slot_id"`
	CancelledBy uint64 `json:"cancelled_by"`
	CancelledAt string `json:"cancelled_at"`
}
