package availability

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/utils"
)

// cell is the state of one slot.  Each cell has its own mutex so holds
// on different slots never contend.
type cell struct {
	mu        sync.Mutex
	status    model.SlotStatus
	token     string
	expiresAt time.Time
}

// effective must be called with c.mu held.
func (c *cell) effective(now time.Time) model.SlotStatus {
	if c.status == model.SlotHeld && !now.Before(c.expiresAt) {
		return model.SlotOpen
	}
	return c.status
}

// MemoryStore is an in-process Store.  It is used for single-instance
// deployments and tests.
type MemoryStore struct {
	cells sync.Map // model.SlotKey -> *cell
	clock utils.Clock
}

// NewMemoryStore returns an empty store.  A nil clock uses the system
// clock.
func NewMemoryStore(clock utils.Clock) *MemoryStore {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &MemoryStore{clock: clock}
}

func (s *MemoryStore) cell(key model.SlotKey) *cell {
	if c, ok := s.cells.Load(key); ok {
		return c.(*cell)
	}
	c, _ := s.cells.LoadOrStore(key, &cell{status: model.SlotOpen})
	return c.(*cell)
}

func (s *MemoryStore) StatusOf(ctx context.Context, key model.SlotKey) (model.SlotStatus, error) {
	v, ok := s.cells.Load(key)
	if !ok {
		return model.SlotOpen, nil
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effective(s.clock.Now()), nil
}

func (s *MemoryStore) DayStatuses(ctx context.Context, groundID uint64, businessDate string) (map[int]model.SlotStatus, error) {
	now := s.clock.Now()
	out := make(map[int]model.SlotStatus)
	s.cells.Range(func(k, v any) bool {
		key := k.(model.SlotKey)
		if key.GroundID != groundID || key.BusinessDate != businessDate {
			return true
		}
		c := v.(*cell)
		c.mu.Lock()
		out[key.HourOffset] = c.effective(now)
		c.mu.Unlock()
		return true
	})
	return out, nil
}

func (s *MemoryStore) TrySetHeld(ctx context.Context, key model.SlotKey, token string, expiresAt time.Time) error {
	c := s.cell(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.effective(s.clock.Now()) {
	case model.SlotBooked:
		return ErrAlreadyBooked
	case model.SlotHeld:
		return ErrAlreadyHeld
	}
	c.status = model.SlotHeld
	c.token = token
	c.expiresAt = expiresAt
	return nil
}

func (s *MemoryStore) SetBooked(ctx context.Context, key model.SlotKey, token string) error {
	v, ok := s.cells.Load(key)
	if !ok {
		return ErrTokenMismatch
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token || c.status == model.SlotBooked {
		return ErrTokenMismatch
	}
	// An expired or swept hold keeps its token so the holder learns it
	// lapsed instead of being told the token is wrong.
	if c.effective(s.clock.Now()) != model.SlotHeld {
		return ErrExpired
	}
	c.status = model.SlotBooked
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key model.SlotKey, token string) error {
	v, ok := s.cells.Load(key)
	if !ok {
		return nil
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status {
	case model.SlotOpen:
		return nil
	case model.SlotHeld:
		if c.token != token {
			if c.effective(s.clock.Now()) == model.SlotOpen {
				return nil
			}
			return ErrTokenMismatch
		}
		c.status = model.SlotOpen
		c.token = ""
		c.expiresAt = time.Time{}
		return nil
	default:
		return ErrTokenMismatch
	}
}

func (s *MemoryStore) Reopen(ctx context.Context, key model.SlotKey, token string) error {
	v, ok := s.cells.Load(key)
	if !ok {
		return ErrNotBooked
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != model.SlotBooked || c.token != token {
		return ErrNotBooked
	}
	c.status = model.SlotOpen
	c.token = ""
	c.expiresAt = time.Time{}
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	n := 0
	s.cells.Range(func(_, v any) bool {
		c := v.(*cell)
		c.mu.Lock()
		if c.status == model.SlotHeld && !now.Before(c.expiresAt) {
			c.status = model.SlotOpen
			n++
		}
		c.mu.Unlock()
		return ctx.Err() == nil
	})
	return n, ctx.Err()
}
