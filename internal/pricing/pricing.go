// Package pricing computes the price breakdown of a slot selection.
// All amounts are whole currency units.
package pricing

import (
	"errors"

	"github.com/iliyamo/playspot/internal/model"
)

// DefaultFeePercent is the platform service fee applied to the rental.
const DefaultFeePercent = 10

var (
	ErrNegativePrice = errors.New("price per hour must not be negative")
	ErrInvalidHours  = errors.New("hours must be positive")
)

// Calculator prices rentals with a fixed service fee percentage.
type Calculator struct {
	FeePercent int64
}

// Default returns the calculator used when no fee is configured.
func Default() Calculator { return Calculator{FeePercent: DefaultFeePercent} }

// Price returns rental = base*hours, the service fee rounded half up and
// their sum.
func (c Calculator) Price(basePerHour int64, hours int) (model.Quote, error) {
	if basePerHour < 0 {
		return model.Quote{}, ErrNegativePrice
	}
	if hours <= 0 {
		return model.Quote{}, ErrInvalidHours
	}
	rental := basePerHour * int64(hours)
	fee := (rental*c.FeePercent + 50) / 100
	return model.Quote{Rental: rental, ServiceFee: fee, Total: rental + fee}, nil
}

// Price prices a rental with the default 10% fee.
func Price(basePerHour int64, hours int) (model.Quote, error) {
	return Default().Price(basePerHour, hours)
}
