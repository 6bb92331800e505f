package handler

import (
	"github.com/iliyamo/playspot/internal/reservation"
)

// Validator plugs the shared validator into echo so handlers can call
// c.Validate on request bodies.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (Validator) Validate(i interface{}) error {
	return reservation.ValidateStruct(i)
}
