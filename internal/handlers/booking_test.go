package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/reservely/reservely/internal/model"
	"github.com/reservely/reservely/internal/outbox"
	"github.com/reservely/reservely/internal/storage"
)

// fakeTx satisfies pgx.Tx for handlers that only Begin, Commit and Rollback.
type fakeTx struct{}

func (fakeTx) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(context.Context) error          { return nil }
func (fakeTx) Rollback(context.Context) error        { return nil }
func (fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (fakeTx) Conn() *pgx.Conn                                         { return nil }

// fakeBookingStore mimics the appointment table's overlap behavior: an insert
// that overlaps an existing pending, scheduled or held row fails with the
// same constraint error Postgres raises.
type fakeBookingStore struct {
	existing []model.Appointment
	created  []*model.Appointment
	expired  int
}

func (s *fakeBookingStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (s *fakeBookingStore) ExpireOverlappingHolds(_ context.Context, _ pgx.Tx, staffID string, start, end, now time.Time) (int64, error) {
	var n int64
	for i := range s.existing {
		a := &s.existing[i]
		if a.StaffID != staffID || a.Status != model.StatusHeld {
			continue
		}
		if a.HoldExpiresAt == nil || a.HoldExpiresAt.After(now) {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime) {
			a.Status = model.StatusCancelled
			n++
		}
	}
	s.expired += int(n)
	return n, nil
}

func (s *fakeBookingStore) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment) (string, error) {
	for _, a := range s.existing {
		if a.StaffID != appt.StaffID {
			continue
		}
		switch a.Status {
		case model.StatusPending, model.StatusScheduled, model.StatusHeld:
		default:
			continue
		}
		if a.StartTime.Before(appt.EndTime) && appt.StartTime.Before(a.EndTime) {
			return "", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"}
		}
	}
	s.created = append(s.created, appt)
	return fmt.Sprintf("appt-%d", len(s.created)), nil
}

func (s *fakeBookingStore) GetForUpdate(context.Context, pgx.Tx, string, string) (model.Appointment, error) {
	return model.Appointment{}, pgx.ErrNoRows
}

func (s *fakeBookingStore) Cancel(context.Context, pgx.Tx, string, string, string) (time.Time, error) {
	return time.Time{}, nil
}

func (s *fakeBookingStore) ReleaseHold(context.Context, pgx.Tx, string, string) error { return nil }

func (s *fakeBookingStore) ConfirmHold(context.Context, pgx.Tx, string, string, time.Time) error {
	return nil
}

func (s *fakeBookingStore) ListByBusiness(context.Context, string, int) ([]model.Appointment, error) {
	return nil, nil
}

func (s *fakeBookingStore) LockIdempotencyKey(context.Context, pgx.Tx, string, string) (storage.IdempotencyRecord, bool, error) {
	return storage.IdempotencyRecord{}, false, nil
}

func (s *fakeBookingStore) FinalizeIdempotency(context.Context, pgx.Tx, string, string, string, int, []byte) error {
	return nil
}

type fakeEventWriter struct {
	events []outbox.Event
}

func (f *fakeEventWriter) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func newBookingHandler(store *fakeBookingStore, catalog *fakeScheduleStore) (*BookingHandler, *fakeEventWriter) {
	events := &fakeEventWriter{}
	return NewBookingHandler(store, catalog, events, nil, testLogger(), 0), events
}

func bookingBody(start time.Time) string {
	return fmt.Sprintf(`{"business_id":"biz-1","service_id":"svc-1","staff_id":"staff-1","customer_name":"Ana","start_time":%q}`,
		start.Format(time.RFC3339))
}

func TestBookingCreateClearsLapsedHold(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	lapsed := time.Now().UTC().Add(-time.Minute)
	store := &fakeBookingStore{existing: []model.Appointment{{
		ID:            "appt-held",
		BusinessID:    "biz-1",
		StaffID:       "staff-1",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Status:        model.StatusHeld,
		HoldExpiresAt: &lapsed,
	}}}
	catalog := &fakeScheduleStore{service: model.Service{ID: "svc-1", BusinessID: "biz-1", DurationMins: 30}}
	h, events := newBookingHandler(store, catalog)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookingBody(start)))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("booking over a lapsed hold should succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.expired != 1 {
		t.Fatalf("expected the lapsed hold to be cancelled in the booking transaction, got %d", store.expired)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one appointment created, got %d", len(store.created))
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventBooked {
		t.Fatalf("expected a booked event, got %+v", events.events)
	}
}

func TestBookingCreateConflictsWithLiveHold(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	live := time.Now().UTC().Add(10 * time.Minute)
	store := &fakeBookingStore{existing: []model.Appointment{{
		ID:            "appt-held",
		BusinessID:    "biz-1",
		StaffID:       "staff-1",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Status:        model.StatusHeld,
		HoldExpiresAt: &live,
	}}}
	catalog := &fakeScheduleStore{service: model.Service{ID: "svc-1", BusinessID: "biz-1", DurationMins: 30}}
	h, events := newBookingHandler(store, catalog)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookingBody(start)))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a live hold, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.expired != 0 {
		t.Fatalf("a live hold must not be expired, got %d", store.expired)
	}
	if len(events.events) != 0 {
		t.Fatalf("no event should be written on conflict, got %+v", events.events)
	}
}

func TestBookingHoldSetsExpiry(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	store := &fakeBookingStore{}
	catalog := &fakeScheduleStore{service: model.Service{ID: "svc-1", BusinessID: "biz-1", DurationMins: 30}}
	h, events := newBookingHandler(store, catalog)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/holds", strings.NewReader(bookingBody(start)))
	rec := httptest.NewRecorder()
	h.Hold(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status        string `json:"status"`
		HoldExpiresAt string `json:"hold_expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if resp.Status != model.StatusHeld || resp.HoldExpiresAt == "" {
		t.Fatalf("expected held status with expiry, got %+v", resp)
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventHoldPlaced {
		t.Fatalf("expected a hold placed event, got %+v", events.events)
	}
}
