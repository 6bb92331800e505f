package handler

// Owner and admin endpoints: the bookings of a ground, cancellation and
// walk-in bookings taken at the counter.

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/playspot/internal/booking"
	"github.com/iliyamo/playspot/internal/calendar"
	"github.com/iliyamo/playspot/internal/middleware"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/repository"
	"github.com/iliyamo/playspot/internal/reservation"
)

// OwnerHandler serves signed-in owners and admins.
type OwnerHandler struct {
	BookingDeps
}

func NewOwnerHandler(d BookingDeps) *OwnerHandler {
	d.check("NewOwnerHandler")
	return &OwnerHandler{BookingDeps: d}
}

// authorize reports whether the caller may manage bookings of g.
func authorize(c echo.Context, g *model.Ground) (uint64, error) {
	uid, role, ok := middleware.CurrentUser(c)
	if !ok {
		return 0, repository.ErrForbidden
	}
	if role == model.RoleAdmin || (role == model.RoleOwner && g.OwnerID == uid) {
		return uid, nil
	}
	return 0, repository.ErrForbidden
}

// ownedGround loads the :id ground and checks the caller may manage it.
// A nil ground means the response has been written.
func (h *OwnerHandler) ownedGround(c echo.Context) (*model.Ground, uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, 0, errorJSON(c, http.StatusBadRequest, codeValidation, "invalid ground id")
	}
	g, err := h.Grounds.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrGroundNotFound) {
		return nil, 0, errorJSON(c, http.StatusNotFound, codeNotFound, "ground not found")
	}
	if err != nil {
		return nil, 0, internalError(c, "failed to load ground", err)
	}
	uid, err := authorize(c, g)
	if err != nil {
		return nil, 0, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return g, uid, nil
}

// ListGroundBookings handles GET /v1/owner/grounds/:id/bookings?date=.
func (h *OwnerHandler) ListGroundBookings(c echo.Context) error {
	g, _, err := h.ownedGround(c)
	if err != nil || g == nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		date = h.Manager.Now().In(h.Manager.Location()).Format(calendar.DateLayout)
	}
	if _, err := calendar.ParseBusinessDate(date, h.Manager.Location()); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid request", "code": codeValidation,
			"fields": map[string]string{"date": "must be YYYY-MM-DD"},
		})
	}
	items, err := h.Bookings.ListByGroundAndDate(c.Request().Context(), g.ID, date)
	if err != nil {
		return internalError(c, "failed to load bookings", err)
	}
	if items == nil {
		items = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ground_id": g.ID, "business_date": date, "items": items, "count": len(items)})
}

// Cancel handles POST /v1/bookings/:id/cancel.  The booking row is
// flagged first so two concurrent cancellations cannot both reopen the
// slot; the loser gets 409.
func (h *OwnerHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	b, err := h.Bookings.GetByID(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrBookingNotFound) {
		return errorJSON(c, http.StatusNotFound, codeNotFound, "booking not found")
	}
	if err != nil {
		return internalError(c, "failed to load booking", err)
	}
	g, err := h.Grounds.GetByID(ctx, b.GroundID)
	if err != nil {
		return internalError(c, "failed to load ground", err)
	}
	uid, err := authorize(c, g)
	if err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if b.Cancelled {
		return errorJSON(c, http.StatusConflict, codeConflict, "booking already cancelled")
	}

	switch err := h.Bookings.MarkCancelled(ctx, b.ID, h.Manager.Now()); {
	case errors.Is(err, repository.ErrConflict):
		return errorJSON(c, http.StatusConflict, codeConflict, "booking already cancelled")
	case err != nil:
		return internalError(c, "failed to cancel booking", err)
	}
	out, err := h.Manager.Cancel(ctx, b)
	if err != nil {
		return internalError(c, "failed to reopen slot", err)
	}

	h.cancelSession(c, out)
	h.publishCancelled(out, uid)
	return c.JSON(http.StatusOK, out)
}

// cancelSession moves the customer's session, if it is still stored, to
// CANCELLED.
func (h *OwnerHandler) cancelSession(c echo.Context, b *model.Booking) {
	ctx := c.Request().Context()
	unlock, err := h.Sessions.Lock(ctx, b.HoldToken)
	if err != nil {
		c.Logger().Warnf("cancel %s: lock session: %v", b.Code, err)
		return
	}
	defer unlock()
	s, err := h.Sessions.Get(ctx, b.HoldToken)
	if err != nil {
		if !errors.Is(err, booking.ErrSessionNotFound) {
			c.Logger().Warnf("cancel %s: load session: %v", b.Code, err)
		}
		return
	}
	if s.Cancel(b) == nil {
		h.save(ctx, c, s)
	}
}

type walkInReq struct {
	SlotID        string `json:"slot_id" validate:"required"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}

// WalkIn handles POST /v1/admin/grounds/:id/bookings: a booking taken in
// person, held and confirmed in one step.
func (h *OwnerHandler) WalkIn(c echo.Context) error {
	g, _, err := h.ownedGround(c)
	if err != nil || g == nil {
		return err
	}
	var req walkInReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validationJSON(c, err)
	}
	key, err := calendar.ParseSlotID(req.SlotID)
	if err != nil || key.GroundID != g.ID {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid request", "code": codeValidation,
			"fields": map[string]string{"slot_id": "is not a slot of this ground"},
		})
	}

	ctx := c.Request().Context()
	s := booking.NewSession(g.ID, h.Manager.Clock())
	if err := s.SelectSlot(req.SlotID); err != nil {
		return internalError(c, "failed to start booking", err)
	}
	err = s.SubmitDetails(ctx, h.Manager, g, model.Customer{Name: req.CustomerName, Phone: req.CustomerPhone})
	if err == nil {
		err = s.PaymentSucceeded(ctx, h.Manager, g)
	}
	switch {
	case err == nil:
	case errors.Is(err, reservation.ErrSlotUnavailable), errors.Is(err, reservation.ErrHoldExpired):
		return h.withSlots(c, http.StatusConflict, codeSlotUnavailable, "slot is no longer available", g, key.BusinessDate)
	case reservation.IsValidation(err):
		return validationJSON(c, err)
	default:
		if s.State == booking.StateAwaitingPayment {
			h.Manager.Release(ctx, s.Reservation)
		}
		return internalError(c, "failed to book slot", err)
	}

	b := s.Booking
	if err := h.persist(ctx, b); err != nil {
		h.Manager.Revert(ctx, b)
		return internalError(c, "failed to save booking", err)
	}
	h.save(ctx, c, s)
	h.publishConfirmed(g, b, true)
	return c.JSON(http.StatusCreated, h.confirmation(g, b))
}
