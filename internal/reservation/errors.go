package reservation

import (
	"errors"
	"sort"
	"strings"
)

// Expected outcomes of normal contention.  They are returned as values
// and mapped to client responses; anything else is a store fault.
var (
	ErrSlotUnavailable  = errors.New("slot unavailable")
	ErrHoldExpired      = errors.New("hold expired")
	ErrTokenMismatch    = errors.New("reservation token mismatch")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrAlreadyCancelled = errors.New("booking already cancelled")
)

// ValidationError reports malformed customer details, one message per
// offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
