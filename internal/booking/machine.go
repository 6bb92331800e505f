// Package booking tracks one customer's attempt to book a slot, from
// selection through payment to confirmation or abandonment, and drives
// the reservation manager at each step.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/reservation"
	"github.com/iliyamo/playspot/internal/utils"
)

type State string

const (
	StateBrowsing        State = "BROWSING"
	StateSlotSelected    State = "SLOT_SELECTED"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StateConfirmed       State = "CONFIRMED"
	StateAbandoned       State = "ABANDONED"
	StateSlotUnavailable State = "SLOT_UNAVAILABLE"
	StateCancelled       State = "CANCELLED"
)

// Terminal reports whether no customer action can move the session on.
// A confirmed session may still be cancelled by an owner.
func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StateAbandoned, StateSlotUnavailable, StateCancelled:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when an event is not accepted in the
// session's current state.
var ErrInvalidTransition = errors.New("invalid booking transition")

// Reserver is the part of the reservation manager a session drives.
type Reserver interface {
	Hold(ctx context.Context, g *model.Ground, slotID string, c model.Customer) (*model.Reservation, error)
	Confirm(ctx context.Context, g *model.Ground, r *model.Reservation) (*model.Booking, error)
	Release(ctx context.Context, r *model.Reservation)
}

// Transition records one state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Session is the explicit state of one booking attempt.  It is a plain
// value so it can be stored between requests.  Version is bumped by each
// successful store save; a save carrying an older version is rejected.
type Session struct {
	ID          string             `json:"id"`
	State       State              `json:"state"`
	GroundID    uint64             `json:"ground_id"`
	SlotID      string             `json:"slot_id,omitempty"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	Booking     *model.Booking     `json:"booking,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	History     []Transition       `json:"history,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Version     int64              `json:"version"`

	clock utils.Clock
}

// NewSession starts a session in BROWSING for a ground.  Transition
// times are read from clock; nil means the system clock.
func NewSession(groundID uint64, clock utils.Clock) *Session {
	s := &Session{State: StateBrowsing, GroundID: groundID, clock: clock}
	s.UpdatedAt = s.now()
	return s
}

func (s *Session) now() time.Time {
	if s.clock == nil {
		return utils.RealClock{}.Now()
	}
	return s.clock.Now()
}

func (s *Session) move(to State, reason string) {
	t := s.now()
	s.History = append(s.History, Transition{From: s.State, To: to, At: t, Reason: reason})
	s.State = to
	s.Reason = reason
	s.UpdatedAt = t
}

func (s *Session) invalid(event string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, s.State)
}

// SelectSlot records the customer's slot choice.  Choosing again before
// submitting details replaces the previous choice.
func (s *Session) SelectSlot(slotID string) error {
	if s.State != StateBrowsing && s.State != StateSlotSelected {
		return s.invalid("select slot")
	}
	s.SlotID = slotID
	s.move(StateSlotSelected, "")
	return nil
}

// SubmitDetails places the hold.  Invalid details leave the session in
// SLOT_SELECTED so the customer can correct them; a slot taken in the
// meantime ends the session in SLOT_UNAVAILABLE.
func (s *Session) SubmitDetails(ctx context.Context, res Reserver, g *model.Ground, c model.Customer) error {
	if s.State != StateSlotSelected {
		return s.invalid("submit details")
	}
	r, err := res.Hold(ctx, g, s.SlotID, c)
	switch {
	case err == nil:
	case errors.Is(err, reservation.ErrSlotUnavailable):
		s.move(StateSlotUnavailable, err.Error())
		return err
	default:
		return err
	}
	s.ID = r.Token
	s.Reservation = r
	s.move(StateAwaitingPayment, "")
	return nil
}

// PaymentSucceeded confirms the hold once the payment collaborator
// reports success.  A token that no longer owns the hold leaves the
// session untouched so a concurrent winner is not overwritten.
func (s *Session) PaymentSucceeded(ctx context.Context, res Reserver, g *model.Ground) error {
	if s.State != StateAwaitingPayment {
		return s.invalid("payment succeeded")
	}
	b, err := res.Confirm(ctx, g, s.Reservation)
	switch {
	case err == nil:
		s.Booking = b
		s.move(StateConfirmed, "")
		return nil
	case errors.Is(err, reservation.ErrHoldExpired):
		s.move(StateAbandoned, err.Error())
	case errors.Is(err, reservation.ErrSlotUnavailable):
		s.move(StateSlotUnavailable, err.Error())
	}
	return err
}

// PaymentFailed abandons the attempt and releases the hold.
func (s *Session) PaymentFailed(ctx context.Context, res Reserver, reason string) error {
	if s.State != StateAwaitingPayment {
		return s.invalid("payment failed")
	}
	res.Release(ctx, s.Reservation)
	msg := reservation.ErrPaymentFailed.Error()
	if reason != "" {
		msg += ": " + reason
	}
	s.move(StateAbandoned, msg)
	return nil
}

// Abandon ends the attempt at the customer's request, releasing any
// hold.  It never blocks on payment state.
func (s *Session) Abandon(ctx context.Context, res Reserver, reason string) error {
	switch s.State {
	case StateBrowsing, StateSlotSelected:
	case StateAwaitingPayment:
		res.Release(ctx, s.Reservation)
	default:
		return s.invalid("abandon")
	}
	s.move(StateAbandoned, reason)
	return nil
}

// ExpireIfDue abandons a session whose hold has lapsed at t and reports
// whether it did.
func (s *Session) ExpireIfDue(ctx context.Context, res Reserver, t time.Time) bool {
	if s.State != StateAwaitingPayment || s.Reservation == nil || !s.Reservation.Expired(t) {
		return false
	}
	res.Release(ctx, s.Reservation)
	s.move(StateAbandoned, reservation.ErrHoldExpired.Error())
	return true
}

// Cancel records an owner or admin cancellation of the confirmed
// booking.  The slot itself is reopened by the reservation manager.
func (s *Session) Cancel(cancelled *model.Booking) error {
	if s.State != StateConfirmed {
		return s.invalid("cancel")
	}
	if cancelled != nil {
		s.Booking = cancelled
	}
	s.move(StateCancelled, "cancelled by owner")
	return nil
}
