package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/playspot/internal/database/testdb"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/utils"
)

func seedGround(t *testing.T, db *sql.DB) *model.Ground {
	t.Helper()
	ctx := context.Background()
	ownerID, err := NewUserRepo(db).Create(ctx, "owner@example.com", "secret123", model.RoleOwner, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	g := &model.Ground{
		OwnerID: ownerID, Name: "Riverside Turf", Location: "Colombo",
		Sports: []string{"futsal", "cricket"}, PricePerHour: 40, OpenHour: 11, CloseHour: 30, IsActive: true,
	}
	if err := NewGroundRepo(db).Create(ctx, g); err != nil {
		t.Fatalf("create ground: %v", err)
	}
	return g
}

func TestGroundRepo(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	g := seedGround(t, db)
	repo := NewGroundRepo(db)

	got, err := repo.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != g.Name || got.CloseHour != 30 || len(got.Sports) != 2 || got.Sports[1] != "cricket" {
		t.Fatalf("unexpected ground %+v", got)
	}
	if _, err := repo.GetByID(ctx, 999); !errors.Is(err, ErrGroundNotFound) {
		t.Fatalf("expected ErrGroundNotFound, got %v", err)
	}
	if err := repo.Create(ctx, &model.Ground{OwnerID: g.OwnerID, Name: "Bad", OpenHour: 5, CloseHour: 5}); !errors.Is(err, model.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	inactive := &model.Ground{OwnerID: g.OwnerID, Name: "Closed Court", PricePerHour: 10, OpenHour: 8, CloseHour: 20}
	if err := repo.Create(ctx, inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}
	list, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != g.ID {
		t.Fatalf("expected only the active ground, got %+v", list)
	}
}

func TestBookingRepo_CreateListCancel(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	g := seedGround(t, db)
	repo := NewBookingRepo(db)
	created := time.Date(2025, 4, 10, 9, 5, 0, 0, time.UTC)
	b := &model.Booking{
		ID: "9f0c4a52-2c7e-4a55-9d7c-0d3f5e0f6a11", Code: "SP1234567",
		GroundID: g.ID, BusinessDate: "2025-04-10", HourOffset: 14, HoldToken: "tok-a",
		CustomerName: "Asha Perera", CustomerPhone: "0771234567",
		Rental: 40, ServiceFee: 4, Total: 44, CreatedAt: created,
	}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, b); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate, got %v", err)
	}
	// the slot row is created alongside the booking when no hold was
	// recorded in MySQL
	if st, err := NewSlotStatusRepo(db, nil).StatusOf(ctx, b.Key()); err != nil || st != model.SlotBooked {
		t.Fatalf("expected BOOKED slot row, got %s (%v)", st, err)
	}

	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Total != 44 || got.Code != "SP1234567" || got.Cancelled || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected booking %+v", got)
	}
	if got.SlotID != "1_2025-04-10_slot-14" {
		t.Fatalf("unexpected slot id %s", got.SlotID)
	}

	list, err := repo.ListByGroundAndDate(ctx, g.ID, "2025-04-10")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one booking, got %d (%v)", len(list), err)
	}
	if empty, _ := repo.ListByGroundAndDate(ctx, g.ID, "2025-04-11"); len(empty) != 0 {
		t.Fatalf("expected no bookings on another day, got %d", len(empty))
	}

	at := created.Add(time.Hour)
	if err := repo.MarkCancelled(ctx, b.ID, at); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.MarkCancelled(ctx, b.ID, at); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second cancel, got %v", err)
	}
	if err := repo.MarkCancelled(ctx, "missing", at); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	got, _ = repo.GetByID(ctx, b.ID)
	if !got.Cancelled || got.CancelledAt == nil || !got.CancelledAt.Equal(at) {
		t.Fatalf("expected cancelled booking, got %+v", got)
	}
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	repo := NewUserRepo(db)
	id, err := repo.Create(ctx, " Admin@Example.com ", "secret123", model.RoleAdmin, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, "admin@example.com", "other", model.RoleAdmin, bcrypt.MinCost); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	u, err := repo.GetByEmail(ctx, "ADMIN@example.com")
	if err != nil || u.ID != id || u.Role != model.RoleAdmin || !u.IsActive {
		t.Fatalf("unexpected user %+v (%v)", u, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret123")) != nil {
		t.Fatalf("password hash does not verify")
	}
	if _, err := repo.GetByID(ctx, 42); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestBookingRepo_CreateAfterSQLHold(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	g := seedGround(t, db)
	clock := utils.NewManualClock(time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC))
	slots := NewSlotStatusRepo(db, clock)
	key := model.SlotKey{GroundID: g.ID, BusinessDate: "2025-04-10", HourOffset: 20}
	if err := slots.TrySetHeld(ctx, key, "tok-b", clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := slots.SetBooked(ctx, key, "tok-b"); err != nil {
		t.Fatalf("book: %v", err)
	}
	b := &model.Booking{
		ID: "3b1f7c1e-7b44-4d0e-8f7f-7f2d3c2e1a90", Code: "SP7654321",
		GroundID: g.ID, BusinessDate: key.BusinessDate, HourOffset: key.HourOffset, HoldToken: "tok-b",
		CustomerName: "Asha Perera", CustomerPhone: "0771234567",
		Rental: 40, ServiceFee: 4, Total: 44, CreatedAt: clock.Now(),
	}
	if err := NewBookingRepo(db).Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	// the existing row keeps its token so a cancellation can reopen it
	if err := slots.Reopen(ctx, key, "tok-b"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestBookingRepo_ForeignKeysEnforced(t *testing.T) {
	db := testdb.Open(t)
	b := &model.Booking{
		ID: "c7d0e7a4-1f4b-4f57-a7a4-3c1a0b2d9e55", Code: "SP0000001",
		GroundID: 99, BusinessDate: "2025-04-10", HourOffset: 14, HoldToken: "tok",
		CustomerName: "Nobody", CustomerPhone: "0771234567", CreatedAt: time.Now().UTC(),
	}
	if err := NewBookingRepo(db).Create(context.Background(), b); err == nil {
		t.Fatalf("expected a booking for a missing ground to be rejected")
	}
}
