package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/playspot/internal/availability"
	"github.com/iliyamo/playspot/internal/booking"
	"github.com/iliyamo/playspot/internal/calendar"
	"github.com/iliyamo/playspot/internal/config"
	"github.com/iliyamo/playspot/internal/database/testdb"
	"github.com/iliyamo/playspot/internal/middleware"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/queue"
	"github.com/iliyamo/playspot/internal/repository"
	"github.com/iliyamo/playspot/internal/reservation"
	"github.com/iliyamo/playspot/internal/utils"
)

const (
	testSecret = "test-secret"
	testDate   = "2025-04-10"
)

type fakeEvents struct {
	confirmed chan queue.BookingConfirmedEvent
	cancelled chan queue.BookingCancelledEvent
}

func (f *fakeEvents) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	f.confirmed <- ev
	return nil
}

func (f *fakeEvents) PublishBookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error {
	f.cancelled <- ev
	return nil
}

type testEnv struct {
	e          *echo.Echo
	clock      *utils.ManualClock
	sessions   *booking.MemorySessions
	events     *fakeEvents
	ground     *model.Ground
	ownerToken string
	otherToken string
	adminToken string
}

// envConfig varies the wiring of a test environment.
type envConfig struct {
	memoryStore bool // process-local availability instead of slot_status rows
	newCode     func() (string, error)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, envConfig{})
}

func newTestEnvWith(t *testing.T, cfg envConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := testdb.Open(t)
	users := repository.NewUserRepo(db)

	token := func(email, role string) (uint64, string) {
		id, err := users.Create(ctx, email, "secret123", role, bcrypt.MinCost)
		if err != nil {
			t.Fatalf("create %s: %v", email, err)
		}
		at, err := utils.NewAccessToken(testSecret, id, role, 60)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		return id, at.Token
	}
	ownerID, ownerTok := token("owner@example.com", model.RoleOwner)
	_, otherTok := token("other@example.com", model.RoleOwner)
	_, adminTok := token("admin@example.com", model.RoleAdmin)

	grounds := repository.NewGroundRepo(db)
	g := &model.Ground{
		OwnerID: ownerID, Name: "Riverside Turf", Location: "Colombo",
		Sports: []string{"futsal"}, PricePerHour: 40, OpenHour: 11, CloseHour: 30, IsActive: true,
	}
	if err := grounds.Create(ctx, g); err != nil {
		t.Fatalf("create ground: %v", err)
	}

	clock := utils.NewManualClock(time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC))
	var store availability.Store = repository.NewSlotStatusRepo(db, clock)
	if cfg.memoryStore {
		store = availability.NewMemoryStore(clock)
	}
	mgr := reservation.NewManager(store, reservation.Options{
		HoldTTL: 10 * time.Minute,
		Clock:   clock,
		NewCode: cfg.newCode,
	})
	sessions := booking.NewMemorySessions(time.Hour, clock)
	events := &fakeEvents{
		confirmed: make(chan queue.BookingConfirmedEvent, 8),
		cancelled: make(chan queue.BookingCancelledEvent, 8),
	}
	deps := BookingDeps{
		Grounds:  grounds,
		Bookings: repository.NewBookingRepo(db),
		Manager:  mgr,
		Sessions: sessions,
		Events:   events,
	}

	e := echo.New()
	e.Validator = NewValidator()
	pub := NewPublicHandler(grounds, mgr)
	e.GET("/v1/grounds", pub.ListGrounds)
	e.GET("/v1/grounds/:id", pub.GetGround)
	e.GET("/v1/grounds/:id/slots", pub.ListSlots)

	res := NewReservationHandler(deps)
	e.POST("/v1/slots/:slotId/hold", res.Hold)
	e.GET("/v1/reservations/:token", res.Get)
	e.POST("/v1/reservations/:token/confirm", res.Confirm)
	e.POST("/v1/reservations/:token/payment-failed", res.PaymentFailed)
	e.POST("/v1/reservations/:token/release", res.Release)

	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(testSecret),
		middleware.RequireRole(model.RoleOwner, model.RoleAdmin),
	}
	own := NewOwnerHandler(deps)
	e.POST("/v1/bookings/:id/cancel", own.Cancel, auth...)
	e.GET("/v1/owner/grounds/:id/bookings", own.ListGroundBookings, auth...)
	e.POST("/v1/admin/grounds/:id/bookings", own.WalkIn, auth...)

	a := NewAuthHandler(config.Config{JWTSecret: testSecret, AccessTTLMin: 60, BcryptCost: bcrypt.MinCost}, users)
	e.POST("/v1/auth/login", a.Login)
	e.GET("/v1/me", a.Me, auth...)

	return &testEnv{
		e: e, clock: clock, sessions: sessions, events: events, ground: g,
		ownerToken: ownerTok, otherToken: otherTok, adminToken: adminTok,
	}
}

func (env *testEnv) slotID(h int) string { return calendar.SlotID(env.ground.ID, testDate, h) }

func (env *testEnv) do(t *testing.T, method, path string, body any, bearer string) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

var details = map[string]string{"customer_name": "Asha Perera", "customer_phone": "+94 77 123 4567"}

func (env *testEnv) hold(t *testing.T, h int) string {
	t.Helper()
	code, body := env.do(t, http.MethodPost, "/v1/slots/"+env.slotID(h)+"/hold", details, "")
	if code != http.StatusCreated {
		t.Fatalf("hold: expected 201, got %d %v", code, body)
	}
	token, _ := body["reservation_token"].(string)
	if token == "" {
		t.Fatalf("hold: missing token in %v", body)
	}
	return token
}

func (env *testEnv) confirm(t *testing.T, token string) map[string]any {
	t.Helper()
	code, body := env.do(t, http.MethodPost, "/v1/reservations/"+token+"/confirm", nil, "")
	if code != http.StatusCreated {
		t.Fatalf("confirm: expected 201, got %d %v", code, body)
	}
	<-env.events.confirmed
	return body
}

// slotStatus finds the status of slot h in a list of slot views.
func slotStatus(t *testing.T, items any, id string) string {
	t.Helper()
	list, ok := items.([]any)
	if !ok {
		t.Fatalf("expected slot list, got %T", items)
	}
	for _, it := range list {
		m := it.(map[string]any)
		if m["slot_id"] == id {
			return m["status"].(string)
		}
	}
	t.Fatalf("slot %s not listed", id)
	return ""
}

func TestListGroundsAndSlots(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/v1/grounds", nil, "")
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("grounds: %d %v", code, body)
	}
	code, body = env.do(t, http.MethodGet, "/v1/grounds/999", nil, "")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown ground, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/v1/grounds/1/slots?date="+testDate, nil, "")
	if code != http.StatusOK {
		t.Fatalf("slots: %d %v", code, body)
	}
	if n := len(body["items"].([]any)); n != 19 {
		t.Fatalf("expected 19 slots, got %d", n)
	}
	if body["opening_hours"] != "11:00 - 06:00 (next day)" {
		t.Fatalf("unexpected opening hours %v", body["opening_hours"])
	}
	if st := slotStatus(t, body["items"], env.slotID(29)); st != "OPEN" {
		t.Fatalf("expected OPEN, got %s", st)
	}

	code, body = env.do(t, http.MethodGet, "/v1/grounds/1/slots?date=10-04-2025", nil, "")
	if code != http.StatusBadRequest || body["code"] != codeValidation {
		t.Fatalf("expected 400 for bad date, got %d %v", code, body)
	}
}

func TestHoldConfirmFlow(t *testing.T) {
	env := newTestEnv(t)
	slot := env.slotID(14)

	token := env.hold(t, 14)

	code, body := env.do(t, http.MethodPost, "/v1/slots/"+slot+"/hold", details, "")
	if code != http.StatusConflict || body["code"] != codeSlotUnavailable {
		t.Fatalf("second hold: expected 409, got %d %v", code, body)
	}
	if st := slotStatus(t, body["slots"], slot); st != "HELD" {
		t.Fatalf("expected HELD in refreshed slots, got %s", st)
	}

	code, body = env.do(t, http.MethodGet, "/v1/reservations/"+token, nil, "")
	if code != http.StatusOK || body["state"] != string(booking.StateAwaitingPayment) {
		t.Fatalf("get: %d %v", code, body)
	}

	env.clock.Advance(5 * time.Minute)
	conf := env.confirm(t, token)
	if conf["rental"].(float64) != 40 || conf["service_fee"].(float64) != 4 || conf["total"].(float64) != 44 {
		t.Fatalf("expected 40/4/44, got %v", conf)
	}
	if conf["booking_code"] == "" || conf["slot_id"] != slot {
		t.Fatalf("unexpected confirmation %v", conf)
	}

	// a repeated success signal returns the same booking
	code, again := env.do(t, http.MethodPost, "/v1/reservations/"+token+"/confirm", nil, "")
	if code != http.StatusOK || again["booking_code"] != conf["booking_code"] {
		t.Fatalf("repeat confirm: %d %v", code, again)
	}

	_, body = env.do(t, http.MethodGet, "/v1/grounds/1/slots?date="+testDate, nil, "")
	if st := slotStatus(t, body["items"], slot); st != "BOOKED" {
		t.Fatalf("expected BOOKED, got %s", st)
	}
	code, body = env.do(t, http.MethodPost, "/v1/slots/"+slot+"/hold", details, "")
	if code != http.StatusConflict {
		t.Fatalf("hold on booked slot: expected 409, got %d", code)
	}
}

func TestConfirmAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	slot := env.slotID(14)
	token := env.hold(t, 14)

	env.clock.Advance(11 * time.Minute)
	code, body := env.do(t, http.MethodPost, "/v1/reservations/"+token+"/confirm", nil, "")
	if code != http.StatusGone || body["code"] != codeHoldExpired {
		t.Fatalf("expected 410 hold_expired, got %d %v", code, body)
	}
	if st := slotStatus(t, body["slots"], slot); st != "OPEN" {
		t.Fatalf("expected OPEN in refreshed slots, got %s", st)
	}

	code, body = env.do(t, http.MethodPost, "/v1/reservations/"+token+"/confirm", nil, "")
	if code != http.StatusGone {
		t.Fatalf("confirm of abandoned hold: expected 410, got %d %v", code, body)
	}
	code, body = env.do(t, http.MethodGet, "/v1/reservations/"+token, nil, "")
	if code != http.StatusOK || body["state"] != string(booking.StateAbandoned) {
		t.Fatalf("expected ABANDONED, got %d %v", code, body)
	}

	env.hold(t, 14)
}

func TestGetExpiresLapsedHold(t *testing.T) {
	env := newTestEnv(t)
	token := env.hold(t, 15)

	env.clock.Advance(10 * time.Minute)
	code, body := env.do(t, http.MethodGet, "/v1/reservations/"+token, nil, "")
	if code != http.StatusOK || body["state"] != string(booking.StateAbandoned) {
		t.Fatalf("expected ABANDONED, got %d %v", code, body)
	}
	s, err := env.sessions.Get(context.Background(), token)
	if err != nil || s.State != booking.StateAbandoned {
		t.Fatalf("expected stored ABANDONED session, got %v %v", s, err)
	}
}

func TestHoldValidation(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/v1/slots/"+env.slotID(14)+"/hold",
		map[string]string{"customer_name": "", "customer_phone": "call me"}, "")
	if code != http.StatusBadRequest || body["code"] != codeValidation {
		t.Fatalf("expected 400, got %d %v", code, body)
	}
	fields, _ := body["fields"].(map[string]any)
	if fields["customer_name"] == nil || fields["customer_phone"] == nil {
		t.Fatalf("expected both fields reported, got %v", body["fields"])
	}

	if code, _ := env.do(t, http.MethodPost, "/v1/slots/not-a-slot/hold", details, ""); code != http.StatusBadRequest {
		t.Fatalf("bad slot id: expected 400, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/slots/"+calendar.SlotID(42, testDate, 14)+"/hold", details, ""); code != http.StatusNotFound {
		t.Fatalf("unknown ground: expected 404, got %d", code)
	}
	// 08:00 is outside the 11:00 - 06:00 window
	if code, _ := env.do(t, http.MethodPost, "/v1/slots/"+env.slotID(8)+"/hold", details, ""); code != http.StatusConflict {
		t.Fatalf("unoffered slot: expected 409, got %d", code)
	}
}

func TestPaymentFailedAndRelease(t *testing.T) {
	env := newTestEnv(t)

	token := env.hold(t, 14)
	code, body := env.do(t, http.MethodPost, "/v1/reservations/"+token+"/payment-failed",
		map[string]string{"reason": "card declined"}, "")
	if code != http.StatusOK || body["state"] != string(booking.StateAbandoned) {
		t.Fatalf("payment failed: %d %v", code, body)
	}
	if body["reason"] != "payment failed: card declined" {
		t.Fatalf("unexpected reason %v", body["reason"])
	}
	code, _ = env.do(t, http.MethodPost, "/v1/reservations/"+token+"/payment-failed", nil, "")
	if code != http.StatusConflict {
		t.Fatalf("second payment failure: expected 409, got %d", code)
	}

	token = env.hold(t, 14)
	if code, _ := env.do(t, http.MethodPost, "/v1/reservations/"+token+"/release", nil, ""); code != http.StatusNoContent {
		t.Fatalf("release: expected 204, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/reservations/"+token+"/release", nil, ""); code != http.StatusNoContent {
		t.Fatalf("repeat release: expected 204, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/reservations/unknown/release", nil, ""); code != http.StatusNoContent {
		t.Fatalf("unknown release: expected 204, got %d", code)
	}
	env.hold(t, 14)

	if code, body := env.do(t, http.MethodGet, "/v1/reservations/unknown", nil, ""); code != http.StatusNotFound || body["code"] != codeTokenMismatch {
		t.Fatalf("unknown token: expected 404, got %d %v", code, body)
	}
}

func TestOwnerCancel(t *testing.T) {
	env := newTestEnv(t)
	slot := env.slotID(20)
	token := env.hold(t, 20)
	conf := env.confirm(t, token)
	path := "/v1/bookings/" + conf["booking_id"].(string) + "/cancel"

	if code, _ := env.do(t, http.MethodPost, path, nil, ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous cancel: expected 401, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, path, nil, env.otherToken); code != http.StatusForbidden {
		t.Fatalf("foreign owner cancel: expected 403, got %d", code)
	}
	code, body := env.do(t, http.MethodPost, path, nil, env.ownerToken)
	if code != http.StatusOK || body["cancelled"] != true {
		t.Fatalf("owner cancel: %d %v", code, body)
	}
	ev := <-env.events.cancelled
	if ev.SlotID != slot || ev.BookingCode != conf["booking_code"] {
		t.Fatalf("unexpected cancel event %+v", ev)
	}
	if code, body := env.do(t, http.MethodPost, path, nil, env.adminToken); code != http.StatusConflict {
		t.Fatalf("second cancel: expected 409, got %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/bookings/nope/cancel", nil, env.adminToken); code != http.StatusNotFound {
		t.Fatalf("unknown booking: expected 404, got %d", code)
	}

	_, body = env.do(t, http.MethodGet, "/v1/reservations/"+token, nil, "")
	if body["state"] != string(booking.StateCancelled) {
		t.Fatalf("expected CANCELLED session, got %v", body["state"])
	}
	_, body = env.do(t, http.MethodGet, "/v1/grounds/1/slots?date="+testDate, nil, "")
	if st := slotStatus(t, body["items"], slot); st != "OPEN" {
		t.Fatalf("expected reopened slot, got %s", st)
	}
	env.hold(t, 20)
}

func TestWalkInAndGroundBookings(t *testing.T) {
	env := newTestEnv(t)
	path := "/v1/admin/grounds/1/bookings"
	req := map[string]string{"slot_id": env.slotID(22), "customer_name": "Walk In", "customer_phone": "0771234567"}

	code, body := env.do(t, http.MethodPost, path, req, env.adminToken)
	if code != http.StatusCreated || body["total"].(float64) != 44 {
		t.Fatalf("walk-in: %d %v", code, body)
	}
	ev := <-env.events.confirmed
	if !ev.WalkIn || ev.CustomerName != "Walk In" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if code, _ := env.do(t, http.MethodPost, path, req, env.ownerToken); code != http.StatusConflict {
		t.Fatalf("walk-in on booked slot: expected 409, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, path, req, env.otherToken); code != http.StatusForbidden {
		t.Fatalf("foreign owner walk-in: expected 403, got %d", code)
	}
	req["slot_id"] = calendar.SlotID(7, testDate, 22)
	if code, _ := env.do(t, http.MethodPost, path, req, env.adminToken); code != http.StatusBadRequest {
		t.Fatalf("slot of another ground: expected 400, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/v1/owner/grounds/1/bookings?date="+testDate, nil, env.ownerToken)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("ground bookings: %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodGet, "/v1/owner/grounds/1/bookings?date="+testDate, nil, env.otherToken); code != http.StatusForbidden {
		t.Fatalf("foreign owner list: expected 403, got %d", code)
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "Owner@Example.com", "password": "secret123"}, "")
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, body)
	}
	access := body["access"].(map[string]any)["token"].(string)

	code, body = env.do(t, http.MethodGet, "/v1/me", nil, access)
	if code != http.StatusOK || body["email"] != "owner@example.com" || body["role"] != model.RoleOwner {
		t.Fatalf("me: %d %v", code, body)
	}

	if code, _ := env.do(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "owner@example.com", "password": "wrong"}, ""); code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "not-an-email"}, ""); code != http.StatusBadRequest {
		t.Fatalf("invalid body: expected 400, got %d", code)
	}
}
