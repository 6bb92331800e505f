package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/utils"
)

var testKey = model.SlotKey{GroundID: 1, BusinessDate: "2025-04-10", HourOffset: 14}

func newTestStore() (*MemoryStore, *utils.ManualClock) {
	clock := utils.NewManualClock(time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC))
	return NewMemoryStore(clock), clock
}

func TestMemoryStore_UntouchedSlotIsOpen(t *testing.T) {
	s, _ := newTestStore()
	st, err := s.StatusOf(context.Background(), testKey)
	if err != nil || st != model.SlotOpen {
		t.Fatalf("expected OPEN, got %s (%v)", st, err)
	}
}

func TestMemoryStore_HoldBookLifecycle(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	exp := clock.Now().Add(10 * time.Minute)
	if err := s.TrySetHeld(ctx, testKey, "a", exp); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := s.TrySetHeld(ctx, testKey, "b", exp); !errors.Is(err, ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
	if err := s.SetBooked(ctx, testKey, "b"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	if err := s.SetBooked(ctx, testKey, "a"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if st, _ := s.StatusOf(ctx, testKey); st != model.SlotBooked {
		t.Fatalf("expected BOOKED, got %s", st)
	}
	if err := s.TrySetHeld(ctx, testKey, "c", exp); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
	if err := s.SetBooked(ctx, testKey, "a"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("second book must not succeed, got %v", err)
	}
	// booked slots stay booked after any amount of time
	clock.Advance(48 * time.Hour)
	if n, _ := s.Sweep(ctx); n != 0 {
		t.Fatalf("sweep must not touch booked slots, reopened %d", n)
	}
	if st, _ := s.StatusOf(ctx, testKey); st != model.SlotBooked {
		t.Fatalf("expected BOOKED, got %s", st)
	}
}

func TestMemoryStore_ExpiredHoldReadsOpen(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	if err := s.TrySetHeld(ctx, testKey, "a", clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("hold: %v", err)
	}
	clock.Advance(time.Minute)
	if st, _ := s.StatusOf(ctx, testKey); st != model.SlotOpen {
		t.Fatalf("expected OPEN after expiry, got %s", st)
	}
	day, _ := s.DayStatuses(ctx, 1, "2025-04-10")
	if day[14] != model.SlotOpen {
		t.Fatalf("expected OPEN in day view, got %s", day[14])
	}
	if err := s.SetBooked(ctx, testKey, "a"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := s.TrySetHeld(ctx, testKey, "b", clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("re-hold after expiry: %v", err)
	}
}

func TestMemoryStore_SweepKeepsExpiredSignal(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	_ = s.TrySetHeld(ctx, testKey, "a", clock.Now().Add(time.Minute))
	clock.Advance(2 * time.Minute)
	n, err := s.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 swept hold, got %d (%v)", n, err)
	}
	if err := s.SetBooked(ctx, testKey, "a"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired after sweep, got %v", err)
	}
}

func TestMemoryStore_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	_ = s.TrySetHeld(ctx, testKey, "a", clock.Now().Add(time.Minute))
	if err := s.Release(ctx, testKey, "b"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Release(ctx, testKey, "a"); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	if st, _ := s.StatusOf(ctx, testKey); st != model.SlotOpen {
		t.Fatalf("expected OPEN, got %s", st)
	}
	if err := s.SetBooked(ctx, testKey, "a"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("released token must not book, got %v", err)
	}
}

func TestMemoryStore_Reopen(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	if err := s.Reopen(ctx, testKey, "a"); !errors.Is(err, ErrNotBooked) {
		t.Fatalf("expected ErrNotBooked, got %v", err)
	}
	_ = s.TrySetHeld(ctx, testKey, "a", clock.Now().Add(time.Minute))
	_ = s.SetBooked(ctx, testKey, "a")
	if err := s.Reopen(ctx, testKey, "x"); !errors.Is(err, ErrNotBooked) {
		t.Fatalf("expected ErrNotBooked for foreign token, got %v", err)
	}
	if err := s.Reopen(ctx, testKey, "a"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if st, _ := s.StatusOf(ctx, testKey); st != model.SlotOpen {
		t.Fatalf("expected OPEN, got %s", st)
	}
}

func TestMemoryStore_ConcurrentHoldsOneWinner(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	const n = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		held    int
		start   = make(chan struct{})
		expires = clock.Now().Add(time.Minute)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.TrySetHeld(ctx, testKey, string(rune('A'+i)), expires)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyHeld):
				held++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	if wins != 1 || held != n-1 {
		t.Fatalf("expected 1 winner and %d AlreadyHeld, got %d and %d", n-1, wins, held)
	}
}

func TestMemoryStore_DistinctSlotsIndependent(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	other := testKey
	other.HourOffset = 15
	exp := clock.Now().Add(time.Minute)
	if err := s.TrySetHeld(ctx, testKey, "a", exp); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := s.TrySetHeld(ctx, other, "b", exp); err != nil {
		t.Fatalf("hold other: %v", err)
	}
	day, _ := s.DayStatuses(ctx, 1, "2025-04-10")
	if len(day) != 2 || day[14] != model.SlotHeld || day[15] != model.SlotHeld {
		t.Fatalf("unexpected day statuses %v", day)
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()
	_ = s.TrySetHeld(ctx, testKey, "a", clock.Now().Add(time.Minute))
	sw := NewSweeper(s, time.Second)
	if n := sw.RunOnce(ctx); n != 0 {
		t.Fatalf("expected nothing to sweep, got %d", n)
	}
	clock.Advance(time.Minute)
	if n := sw.RunOnce(ctx); n != 1 {
		t.Fatalf("expected one swept hold, got %d", n)
	}
}
