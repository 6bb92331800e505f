package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/playspot/internal/handler"
	"github.com/iliyamo/playspot/internal/middleware"
	"github.com/iliyamo/playspot/internal/model"
)

// RegisterOwner registers the owner and admin booking endpoints.  All
// routes require a valid JWT with the OWNER or ADMIN role; the handler
// further checks that an owner only touches their own grounds.
func RegisterOwner(e *echo.Echo, o *handler.OwnerHandler, jwtSecret string) {
	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner, model.RoleAdmin),
	}

	// ---- Bookings ----
	e.POST("/v1/bookings/:id/cancel", o.Cancel, auth...)

	// ---- Grounds ----
	owner := e.Group("/v1/owner", auth...)
	owner.GET("/grounds/:id/bookings", o.ListGroundBookings)

	// ---- Walk-ins ----
	admin := e.Group("/v1/admin", auth...)
	admin.POST("/grounds/:id/bookings", o.WalkIn)
}
