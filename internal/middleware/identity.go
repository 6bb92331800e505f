package middleware

// Identity helpers shared by middleware and handlers.  JWTAuth stores the
// caller as "user_id" (uint64) and "role"; anonymous customers have
// neither.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// CurrentUser returns the authenticated owner or admin, if any.
func CurrentUser(c echo.Context) (id uint64, role string, ok bool) {
	id, ok = c.Get("user_id").(uint64)
	if !ok || id == 0 {
		return 0, "", false
	}
	role, _ = c.Get("role").(string)
	return id, role, true
}

// callerKey identifies the caller for rate limiting: the user id when
// signed in, otherwise "anon".
func callerKey(c echo.Context) string {
	if id, _, ok := CurrentUser(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
