// Package reservation orchestrates the hold, confirm and release
// lifecycle of a single slot on top of an availability.Store.  The
// manager never persists bookings itself; callers store the returned
// Booking and call Revert if that fails.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/playspot/internal/availability"
	"github.com/iliyamo/playspot/internal/calendar"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/pricing"
	"github.com/iliyamo/playspot/internal/utils"
)

// DefaultHoldTTL is how long a hold lasts when no TTL is configured.
const DefaultHoldTTL = 10 * time.Minute

// Options configures a Manager.  Zero values fall back to defaults.
type Options struct {
	HoldTTL  time.Duration
	Pricer   *pricing.Calculator // nil means pricing.Default()
	Clock    utils.Clock
	Location *time.Location
	// NewCode draws booking codes; nil means random SP-prefixed codes.
	NewCode func() (string, error)
}

// Manager enforces at most one successful reservation per slot.
type Manager struct {
	store  availability.Store
	pricer pricing.Calculator
	ttl    time.Duration
	clock  utils.Clock
	loc    *time.Location
	code   func() (string, error)
	logger *log.Logger
	tracer trace.Tracer
}

func NewManager(store availability.Store, opts Options) *Manager {
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultHoldTTL
	}
	pricer := pricing.Default()
	if opts.Pricer != nil {
		pricer = *opts.Pricer
	}
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NewCode == nil {
		opts.NewCode = newBookingCode
	}
	return &Manager{
		store:  store,
		pricer: pricer,
		ttl:    opts.HoldTTL,
		clock:  opts.Clock,
		loc:    opts.Location,
		code:   opts.NewCode,
		logger: log.New("reservation"),
		tracer: otel.Tracer("github.com/iliyamo/playspot/internal/reservation"),
	}
}

// HoldTTL returns the configured hold lifetime.
func (m *Manager) HoldTTL() time.Duration { return m.ttl }

// Location returns the time zone business dates are interpreted in.
func (m *Manager) Location() *time.Location { return m.loc }

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.clock.Now() }

// Clock returns the clock the manager reads time from.
func (m *Manager) Clock() utils.Clock { return m.clock }

// Slots returns the slots of ground g on businessDate annotated with
// their live status.
func (m *Manager) Slots(ctx context.Context, g *model.Ground, businessDate string) ([]model.TimeSlot, error) {
	date, err := calendar.ParseBusinessDate(businessDate, m.loc)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"date": "must be YYYY-MM-DD"}}
	}
	slots, err := calendar.GenerateSlots(g, date)
	if err != nil {
		return nil, err
	}
	statuses, err := m.store.DayStatuses(ctx, g.ID, date.Format(calendar.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load slot status: %w", err)
	}
	for i := range slots {
		if st, ok := statuses[slots[i].HourOffset]; ok {
			slots[i].Status = st
		}
	}
	return slots, nil
}

// Hold places a hold on slotID for customer c.  A slot that is held,
// booked, outside the ground's window or already over yields
// ErrSlotUnavailable.
func (m *Manager) Hold(ctx context.Context, g *model.Ground, slotID string, c model.Customer) (*model.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.hold", trace.WithAttributes(attribute.String("slot.id", slotID)))
	defer span.End()

	c = NormalizeCustomer(c)
	if err := ValidateCustomer(c); err != nil {
		return nil, err
	}
	key, err := calendar.ParseSlotID(slotID)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"slot_id": "is invalid"}}
	}
	if !g.IsActive {
		return nil, ErrSlotUnavailable
	}
	slot, err := calendar.SlotFor(g, key, m.loc)
	if err != nil {
		return nil, ErrSlotUnavailable
	}
	now := m.clock.Now()
	if !now.Before(slot.End) {
		return nil, ErrSlotUnavailable
	}
	quote, err := m.pricer.Price(g.PricePerHour, 1)
	if err != nil {
		return nil, err
	}
	token, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	expires := now.Add(m.ttl)

	switch err := m.store.TrySetHeld(ctx, key, token, expires); {
	case errors.Is(err, availability.ErrAlreadyHeld), errors.Is(err, availability.ErrAlreadyBooked):
		span.SetAttributes(attribute.String("outcome", "unavailable"))
		return nil, ErrSlotUnavailable
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		return nil, fmt.Errorf("hold slot %s: %w", slotID, err)
	}
	m.logger.Debugf("held %s until %s", slotID, expires.Format(time.RFC3339))
	return &model.Reservation{
		Token:     token,
		SlotID:    slot.ID,
		Key:       key,
		Customer:  c,
		Quote:     quote,
		CreatedAt: now,
		ExpiresAt: expires,
	}, nil
}

// Confirm turns a live hold into a Booking.  The ground is re-read by the
// caller so a window or price change made while the customer was paying
// releases the hold with ErrSlotUnavailable instead of booking a slot on
// stale terms.
func (m *Manager) Confirm(ctx context.Context, g *model.Ground, r *model.Reservation) (*model.Booking, error) {
	if r == nil || r.Token == "" {
		return nil, ErrTokenMismatch
	}
	ctx, span := m.tracer.Start(ctx, "reservation.confirm", trace.WithAttributes(attribute.String("slot.id", r.SlotID)))
	defer span.End()

	if g == nil || r.Key.GroundID != g.ID {
		return nil, ErrTokenMismatch
	}
	now := m.clock.Now()
	if r.Expired(now) {
		m.release(ctx, r)
		return nil, ErrHoldExpired
	}
	quote, err := m.pricer.Price(g.PricePerHour, 1)
	if err != nil || !g.IsActive || !calendar.Contains(g, r.Key.HourOffset) || quote != r.Quote {
		m.release(ctx, r)
		span.SetAttributes(attribute.String("outcome", "ground changed"))
		return nil, ErrSlotUnavailable
	}

	switch err := m.store.SetBooked(ctx, r.Key, r.Token); {
	case errors.Is(err, availability.ErrExpired):
		return nil, ErrHoldExpired
	case errors.Is(err, availability.ErrTokenMismatch):
		return nil, ErrTokenMismatch
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		return nil, fmt.Errorf("book slot %s: %w", r.SlotID, err)
	}

	code, err := m.code()
	if err != nil {
		m.revert(ctx, r.Key, r.Token)
		return nil, fmt.Errorf("generate booking code: %w", err)
	}
	b := &model.Booking{
		ID:            newBookingID(),
		Code:          code,
		SlotID:        r.SlotID,
		GroundID:      r.Key.GroundID,
		BusinessDate:  r.Key.BusinessDate,
		HourOffset:    r.Key.HourOffset,
		HoldToken:     r.Token,
		CustomerName:  r.Customer.Name,
		CustomerPhone: r.Customer.Phone,
		Rental:        quote.Rental,
		ServiceFee:    quote.ServiceFee,
		Total:         quote.Total,
		CreatedAt:     now,
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))
	m.logger.Infof("booked %s as %s", r.SlotID, b.Code)
	return b, nil
}

// Release gives up a hold.  It is idempotent and never fails the
// caller; store faults are logged.
func (m *Manager) Release(ctx context.Context, r *model.Reservation) {
	if r == nil {
		return
	}
	ctx, span := m.tracer.Start(ctx, "reservation.release", trace.WithAttributes(attribute.String("slot.id", r.SlotID)))
	defer span.End()
	m.release(ctx, r)
}

func (m *Manager) release(ctx context.Context, r *model.Reservation) {
	err := m.store.Release(ctx, r.Key, r.Token)
	switch {
	case err == nil:
	case errors.Is(err, availability.ErrTokenMismatch):
		m.logger.Debugf("release %s: hold no longer owned", r.SlotID)
	default:
		m.logger.Warnf("release %s: %v", r.SlotID, err)
	}
}

// Cancel voids a booking on behalf of an owner or admin and reopens its
// slot.  The returned copy carries the cancellation; persisting it is up
// to the caller.
func (m *Manager) Cancel(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.cancel", trace.WithAttributes(attribute.String("booking.id", b.ID)))
	defer span.End()

	if b.Cancelled {
		return nil, ErrAlreadyCancelled
	}
	err := m.store.Reopen(ctx, b.Key(), b.HoldToken)
	switch {
	case err == nil:
	case errors.Is(err, availability.ErrNotBooked):
		m.logger.Warnf("cancel %s: slot %s was not booked in the store", b.Code, b.SlotID)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		return nil, fmt.Errorf("reopen slot %s: %w", b.SlotID, err)
	}
	now := m.clock.Now()
	out := *b
	out.Cancelled = true
	out.CancelledAt = &now
	m.logger.Infof("cancelled %s", b.Code)
	return &out, nil
}

// Recode gives b a fresh booking code, for when the stored code
// collides with an existing booking.
func (m *Manager) Recode(b *model.Booking) error {
	code, err := m.code()
	if err != nil {
		return err
	}
	m.logger.Warnf("booking code %s taken, using %s", b.Code, code)
	b.Code = code
	return nil
}

// Revert reopens the slot of a booking the caller failed to persist.
func (m *Manager) Revert(ctx context.Context, b *model.Booking) {
	m.revert(ctx, b.Key(), b.HoldToken)
}

func (m *Manager) revert(ctx context.Context, key model.SlotKey, token string) {
	if err := m.store.Reopen(ctx, key, token); err != nil {
		m.logger.Errorf("revert %s: %v", calendar.KeyID(key), err)
	}
}
