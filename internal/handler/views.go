package handler

import (
	"time"

	"github.com/iliyamo/playspot/internal/booking"
	"github.com/iliyamo/playspot/internal/model"
)

// slotView is a slot as listed to customers.
type slotView struct {
	SlotID string           `json:"slot_id"`
	Label  string           `json:"label"`
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
	Status model.SlotStatus `json:"status"`
}

func slotViews(slots []model.TimeSlot) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotView{SlotID: s.ID, Label: s.Label, Start: s.Start, End: s.End, Status: s.Status})
	}
	return out
}

// groundView is the public face of a ground; owner ids and timestamps
// are left out.
type groundView struct {
	ID           uint64   `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	Sports       []string `json:"sports"`
	PricePerHour int64    `json:"price_per_hour"`
	OpenHour     int      `json:"open_hour"`
	CloseHour    int      `json:"close_hour"`
	OpeningHours string   `json:"opening_hours"`
}

func newGroundView(g *model.Ground) groundView {
	sports := g.Sports
	if sports == nil {
		sports = []string{}
	}
	return groundView{
		ID: g.ID, Name: g.Name, Location: g.Location, Sports: sports,
		PricePerHour: g.PricePerHour, OpenHour: g.OpenHour, CloseHour: g.CloseHour,
		OpeningHours: g.OpeningHours(),
	}
}

// holdView is returned when a hold is placed.
type holdView struct {
	Token     string        `json:"reservation_token"`
	State     booking.State `json:"state"`
	SlotID    string        `json:"slot_id"`
	Label     string        `json:"label"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	ExpiresAt time.Time     `json:"expires_at"`
	Quote     model.Quote   `json:"quote"`
}

// confirmationView is what the confirmation page shows.
type confirmationView struct {
	BookingID   string    `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	SlotID      string    `json:"slot_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Rental      int64     `json:"rental"`
	ServiceFee  int64     `json:"service_fee"`
	Total       int64     `json:"total"`
}

// sessionView exposes a booking attempt without internal history.
type sessionView struct {
	Token     string         `json:"reservation_token"`
	State     booking.State  `json:"state"`
	Reason    string         `json:"reason,omitempty"`
	SlotID    string         `json:"slot_id"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Quote     *model.Quote   `json:"quote,omitempty"`
	Booking   *model.Booking `json:"booking,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func newSessionView(s *booking.Session) sessionView {
	v := sessionView{Token: s.ID, State: s.State, Reason: s.Reason, SlotID: s.SlotID, Booking: s.Booking, UpdatedAt: s.UpdatedAt}
	if r := s.Reservation; r != nil {
		exp, q := r.ExpiresAt, r.Quote
		v.ExpiresAt, v.Quote = &exp, &q
	}
	return v
}
