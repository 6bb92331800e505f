// Package handler exposes the HTTP API.  Public handlers serve ground
// information and live slot availability to anonymous customers.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/playspot/internal/calendar"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/repository"
	"github.com/iliyamo/playspot/internal/reservation"
)

// PublicHandler serves unauthenticated browsing.
type PublicHandler struct {
	Grounds *repository.GroundRepo
	Manager *reservation.Manager
}

func NewPublicHandler(grounds *repository.GroundRepo, mgr *reservation.Manager) *PublicHandler {
	if grounds == nil || mgr == nil {
		panic("nil dependency passed to NewPublicHandler")
	}
	return &PublicHandler{Grounds: grounds, Manager: mgr}
}

// ListGrounds handles GET /v1/grounds.
func (h *PublicHandler) ListGrounds(c echo.Context) error {
	grounds, err := h.Grounds.ListActive(c.Request().Context())
	if err != nil {
		return internalError(c, "failed to load grounds", err)
	}
	items := make([]groundView, 0, len(grounds))
	for i := range grounds {
		items = append(items, newGroundView(&grounds[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// GetGround handles GET /v1/grounds/:id.  Inactive grounds are hidden.
func (h *PublicHandler) GetGround(c echo.Context) error {
	g, err := h.activeGround(c)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	return c.JSON(http.StatusOK, newGroundView(g))
}

// ListSlots handles GET /v1/grounds/:id/slots?date=YYYY-MM-DD.  The date
// defaults to today in the business time zone.
func (h *PublicHandler) ListSlots(c echo.Context) error {
	g, err := h.activeGround(c)
	if err != nil || g == nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		date = h.Manager.Now().In(h.Manager.Location()).Format(calendar.DateLayout)
	}
	slots, err := h.Manager.Slots(c.Request().Context(), g, date)
	if err != nil {
		if reservation.IsValidation(err) {
			return validationJSON(c, err)
		}
		return internalError(c, "failed to load slots", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ground_id":     g.ID,
		"business_date": date,
		"opening_hours": g.OpeningHours(),
		"items":         slotViews(slots),
	})
}

// activeGround loads the :id ground.  When it returns a nil ground the
// response has already been written.
func (h *PublicHandler) activeGround(c echo.Context) (*model.Ground, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, errorJSON(c, http.StatusBadRequest, codeValidation, "invalid ground id")
	}
	g, err := h.Grounds.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrGroundNotFound) || (err == nil && !g.IsActive) {
		return nil, errorJSON(c, http.StatusNotFound, codeNotFound, "ground not found")
	}
	if err != nil {
		return nil, internalError(c, "failed to load ground", err)
	}
	return g, nil
}
