package handler

// Customer booking flow.  Customers are anonymous: the reservation token
// returned by Hold is their only credential and also keys the booking
// session between requests.

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/playspot/internal/booking"
	"github.com/iliyamo/playspot/internal/calendar"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/queue"
	"github.com/iliyamo/playspot/internal/repository"
	"github.com/iliyamo/playspot/internal/reservation"
)

// EventPublisher sends booking events to the broker.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PublishBookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error
}

// BookingDeps are the collaborators shared by the customer and owner
// booking handlers.
type BookingDeps struct {
	Grounds  *repository.GroundRepo
	Bookings *repository.BookingRepo
	Manager  *reservation.Manager
	Sessions booking.SessionStore
	Events   EventPublisher // optional
}

func (d BookingDeps) check(name string) {
	if d.Grounds == nil || d.Bookings == nil || d.Manager == nil || d.Sessions == nil {
		panic("nil dependency passed to " + name)
	}
}

// ReservationHandler drives booking sessions for customers.
type ReservationHandler struct {
	BookingDeps
}

func NewReservationHandler(d BookingDeps) *ReservationHandler {
	d.check("NewReservationHandler")
	return &ReservationHandler{BookingDeps: d}
}

type holdReq struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}

// Hold handles POST /v1/slots/:slotId/hold.  It returns 201 with the
// reservation token, 409 with refreshed availability when the slot is
// taken and 400 for malformed details.
func (h *ReservationHandler) Hold(c echo.Context) error {
	slotID := c.Param("slotId")
	key, err := calendar.ParseSlotID(slotID)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid slot id")
	}
	var req holdReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	ctx := c.Request().Context()
	g, err := h.Grounds.GetByID(ctx, key.GroundID)
	if errors.Is(err, repository.ErrGroundNotFound) {
		return errorJSON(c, http.StatusNotFound, codeNotFound, "ground not found")
	}
	if err != nil {
		return internalError(c, "failed to load ground", err)
	}

	s := booking.NewSession(g.ID, h.Manager.Clock())
	if err := s.SelectSlot(slotID); err != nil {
		return internalError(c, "failed to start booking", err)
	}
	err = s.SubmitDetails(ctx, h.Manager, g, model.Customer{Name: req.CustomerName, Phone: req.CustomerPhone})
	switch {
	case err == nil:
	case errors.Is(err, reservation.ErrSlotUnavailable):
		return h.withSlots(c, http.StatusConflict, codeSlotUnavailable, "slot is no longer available", g, key.BusinessDate)
	case reservation.IsValidation(err):
		return validationJSON(c, err)
	default:
		return internalError(c, "failed to hold slot", err)
	}

	if err := h.Sessions.Save(ctx, s); err != nil {
		h.Manager.Release(ctx, s.Reservation)
		return internalError(c, "failed to save booking session", err)
	}
	r := s.Reservation
	slot, _ := calendar.SlotFor(g, r.Key, h.Manager.Location())
	return c.JSON(http.StatusCreated, holdView{
		Token:     r.Token,
		State:     s.State,
		SlotID:    r.SlotID,
		Label:     slot.Label,
		Start:     slot.Start,
		End:       slot.End,
		ExpiresAt: r.ExpiresAt,
		Quote:     r.Quote,
	})
}

// Get handles GET /v1/reservations/:token.  A lapsed hold is moved to
// ABANDONED before the session is shown.
func (h *ReservationHandler) Get(c echo.Context) error {
	s, unlock, err := h.session(c)
	if err != nil || s == nil {
		return err
	}
	defer unlock()
	ctx := c.Request().Context()
	if s.ExpireIfDue(ctx, h.Manager, h.Manager.Now()) {
		h.save(ctx, c, s)
	}
	return c.JSON(http.StatusOK, newSessionView(s))
}

// Confirm handles POST /v1/reservations/:token/confirm, the payment
// success signal.  The booking is stored before the session is marked
// confirmed; if storing fails the slot is reopened.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	s, unlock, err := h.session(c)
	if err != nil || s == nil {
		return err
	}
	defer unlock()
	ctx := c.Request().Context()
	g, err := h.Grounds.GetByID(ctx, s.GroundID)
	if err != nil && !errors.Is(err, repository.ErrGroundNotFound) {
		return internalError(c, "failed to load ground", err)
	}
	if g == nil {
		// the ground is gone; treat like an unavailable slot
		g = &model.Ground{ID: s.GroundID}
	}
	if s.State == booking.StateConfirmed && s.Booking != nil {
		return c.JSON(http.StatusOK, h.confirmation(g, s.Booking))
	}

	before := s.State
	err = s.PaymentSucceeded(ctx, h.Manager, g)
	switch {
	case err == nil:
	case errors.Is(err, reservation.ErrHoldExpired):
		h.save(ctx, c, s)
		return h.withSlots(c, http.StatusGone, codeHoldExpired, "hold expired, please choose a slot again", g, s.Reservation.Key.BusinessDate)
	case errors.Is(err, reservation.ErrSlotUnavailable):
		h.save(ctx, c, s)
		return h.withSlots(c, http.StatusConflict, codeSlotUnavailable, "slot is no longer available", g, s.Reservation.Key.BusinessDate)
	case errors.Is(err, reservation.ErrTokenMismatch):
		return errorJSON(c, http.StatusNotFound, codeTokenMismatch, "reservation not found")
	case errors.Is(err, booking.ErrInvalidTransition):
		if s.State == booking.StateAbandoned && s.Reservation != nil && s.Reservation.Expired(h.Manager.Now()) {
			return h.withSlots(c, http.StatusGone, codeHoldExpired, "hold expired, please choose a slot again", g, s.Reservation.Key.BusinessDate)
		}
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation cannot be confirmed", "code": codeInvalidState, "state": before})
	default:
		return internalError(c, "failed to confirm booking", err)
	}

	b := s.Booking
	if err := h.persist(ctx, b); err != nil {
		h.Manager.Revert(ctx, b)
		return internalError(c, "failed to save booking", err)
	}
	h.save(ctx, c, s)
	h.publishConfirmed(g, b, false)
	return c.JSON(http.StatusCreated, h.confirmation(g, b))
}

type paymentFailedReq struct {
	Reason string `json:"reason" validate:"max=255"`
}

// PaymentFailed handles POST /v1/reservations/:token/payment-failed.
func (h *ReservationHandler) PaymentFailed(c echo.Context) error {
	var req paymentFailedReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validationJSON(c, err)
	}
	s, unlock, err := h.session(c)
	if err != nil || s == nil {
		return err
	}
	defer unlock()
	ctx := c.Request().Context()
	if err := s.PaymentFailed(ctx, h.Manager, req.Reason); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "payment state cannot change", "code": codeInvalidState, "state": s.State})
	}
	h.save(ctx, c, s)
	return c.JSON(http.StatusOK, echo.Map{"state": s.State, "reason": s.Reason})
}

// Release handles POST /v1/reservations/:token/release.  It always
// answers 204, whatever the state of the session.
func (h *ReservationHandler) Release(c echo.Context) error {
	ctx := c.Request().Context()
	token := c.Param("token")
	unlock, err := h.Sessions.Lock(ctx, token)
	if err != nil {
		c.Logger().Warnf("release: lock session: %v", err)
		return c.NoContent(http.StatusNoContent)
	}
	defer unlock()
	s, err := h.Sessions.Get(ctx, token)
	if err == nil {
		if s.Abandon(ctx, h.Manager, "released by customer") == nil {
			h.save(ctx, c, s)
		}
	} else if !errors.Is(err, booking.ErrSessionNotFound) {
		c.Logger().Warnf("release: load session: %v", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// session locks and loads the :token session.  A nil session means the
// response has been written; otherwise the caller must call unlock once
// the session is saved.
func (h *ReservationHandler) session(c echo.Context) (*booking.Session, func(), error) {
	ctx := c.Request().Context()
	token := c.Param("token")
	unlock, err := h.Sessions.Lock(ctx, token)
	if err != nil {
		return nil, nil, internalError(c, "failed to lock booking session", err)
	}
	s, err := h.Sessions.Get(ctx, token)
	if err != nil {
		unlock()
		if errors.Is(err, booking.ErrSessionNotFound) {
			return nil, nil, errorJSON(c, http.StatusNotFound, codeTokenMismatch, "reservation not found")
		}
		return nil, nil, internalError(c, "failed to load booking session", err)
	}
	return s, unlock, nil
}

// codeAttempts bounds how many booking codes are tried before a save
// is given up.
const codeAttempts = 3

// persist stores a confirmed booking, drawing a new code while the
// current one is already taken.
func (h BookingDeps) persist(ctx context.Context, b *model.Booking) error {
	for attempt := 1; ; attempt++ {
		err := h.Bookings.Create(ctx, b)
		if err == nil || !errors.Is(err, repository.ErrConflict) || attempt == codeAttempts {
			return err
		}
		if err := h.Manager.Recode(b); err != nil {
			return err
		}
	}
}

func (h BookingDeps) save(ctx context.Context, c echo.Context, s *booking.Session) {
	if err := h.Sessions.Save(ctx, s); err != nil {
		c.Logger().Warnf("save session %s: %v", s.State, err)
	}
}

// withSlots answers an expected contention outcome together with the
// current availability of the day so the customer can pick again.
func (h BookingDeps) withSlots(c echo.Context, status int, code, msg string, g *model.Ground, date string) error {
	body := echo.Map{"error": msg, "code": code}
	if g.Validate() == nil && g.IsActive {
		if slots, err := h.Manager.Slots(c.Request().Context(), g, date); err == nil {
			body["business_date"] = date
			body["slots"] = slotViews(slots)
		} else {
			c.Logger().Warnf("refresh availability: %v", err)
		}
	}
	return c.JSON(status, body)
}

func (h BookingDeps) confirmation(g *model.Ground, b *model.Booking) confirmationView {
	v := confirmationView{
		BookingID: b.ID, BookingCode: b.Code, SlotID: b.SlotID,
		Rental: b.Rental, ServiceFee: b.ServiceFee, Total: b.Total,
	}
	if slot, err := calendar.SlotFor(g, b.Key(), h.Manager.Location()); err == nil {
		v.Start, v.End = slot.Start, slot.End
	}
	return v
}

// publishConfirmed sends the event off the request path.
func (h BookingDeps) publishConfirmed(g *model.Ground, b *model.Booking, walkIn bool) {
	if h.Events == nil {
		return
	}
	conf := h.confirmation(g, b)
	ev := queue.BookingConfirmedEvent{
		BookingID: b.ID, BookingCode: b.Code, GroundID: g.ID, GroundName: g.Name,
		SlotID: b.SlotID, BusinessDate: b.BusinessDate,
		StartsAt: conf.Start.Format(time.RFC3339), EndsAt: conf.End.Format(time.RFC3339),
		CustomerName: b.CustomerName, Rental: b.Rental, ServiceFee: b.ServiceFee, Total: b.Total,
		WalkIn: walkIn, ConfirmedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Events.PublishBookingConfirmed(ctx, ev)
	}()
}

func (h BookingDeps) publishCancelled(b *model.Booking, by uint64) {
	if h.Events == nil {
		return
	}
	ev := queue.BookingCancelledEvent{
		BookingID: b.ID, BookingCode: b.Code, GroundID: b.GroundID, SlotID: b.SlotID,
		CancelledBy: by, CancelledAt: h.Manager.Now().UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		ev.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Events.PublishBookingCancelled(ctx, ev)
	}()
}
