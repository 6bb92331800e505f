package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/playspot/internal/reservation"
)

// Error codes returned alongside the human readable message so clients
// can branch without parsing text.
const (
	codeValidation      = "validation_error"
	codeSlotUnavailable = "slot_unavailable"
	codeHoldExpired     = "hold_expired"
	codeTokenMismatch   = "token_mismatch"
	codeInvalidState    = "invalid_state"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeInternal        = "internal_error"
)

func errorJSON(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

// validationJSON renders a ValidationError as 400.  Other errors are
// reported as a generic invalid request.
func validationJSON(c echo.Context, err error) error {
	var ve *reservation.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":  "invalid request",
			"code":   codeValidation,
			"fields": ve.Fields,
		})
	}
	return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid request")
}

func internalError(c echo.Context, msg string, err error) error {
	c.Logger().Errorf("%s: %v", msg, err)
	return errorJSON(c, http.StatusInternalServerError, codeInternal, msg)
}
