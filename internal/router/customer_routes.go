package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/playspot/internal/handler"
)

// RegisterReservations registers the anonymous customer booking flow.
// Customers have no account: the reservation token in the path is the
// credential.  Only the hold endpoint is rate limited since it is the
// one that takes a lock.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, limit echo.MiddlewareFunc) {
	e.POST("/v1/slots/:slotId/hold", h.Hold, limit)

	g := e.Group("/v1/reservations")
	g.GET("/:token", h.Get)
	g.POST("/:token/confirm", h.Confirm)
	g.POST("/:token/payment-failed", h.PaymentFailed)
	g.POST("/:token/release", h.Release)
}
