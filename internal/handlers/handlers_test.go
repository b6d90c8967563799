package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reservely/reservely/internal/availability"
	"github.com/reservely/reservely/internal/model"
)

type fakeScheduleStore struct {
	business model.Business
	service  model.Service
	staff    []model.Staff
	rules    []model.AvailabilityRule
}

func (f *fakeScheduleStore) ServiceByID(_ context.Context, businessID, serviceID string) (model.Service, error) {
	if serviceID != f.service.ID {
		return model.Service{}, availability.ErrServiceNotFound
	}
	return f.service, nil
}

func (f *fakeScheduleStore) BusinessByID(_ context.Context, businessID string) (model.Business, error) {
	if businessID != f.business.ID {
		return model.Business{}, availability.ErrBusinessNotFound
	}
	return f.business, nil
}

func (f *fakeScheduleStore) AssignedStaffIDs(context.Context, string, string) ([]string, error) {
	ids := make([]string, 0, len(f.staff))
	for _, s := range f.staff {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (f *fakeScheduleStore) RuleStaffIDs(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeScheduleStore) ActiveStaff(context.Context, string, []string) ([]model.Staff, error) {
	return f.staff, nil
}

func (f *fakeScheduleStore) RulesFor(_ context.Context, _, _ string, weekday int, _ []string) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range f.rules {
		if r.Weekday == weekday {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) BlackoutsFor(context.Context, string, time.Time, time.Time) ([]model.Blackout, error) {
	return nil, nil
}

func (f *fakeScheduleStore) ActiveBookingsFor(context.Context, string, []string, time.Time, time.Time) ([]model.Appointment, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSlotsHandler(store *fakeScheduleStore) *SlotsHandler {
	gen := availability.NewGenerator(store, store, store, store, testLogger())
	return NewSlotsHandler(gen, testLogger())
}

func TestSlotsEndpoint(t *testing.T) {
	// A week out keeps the test date past the lead-time floor and inside the
	// advance window regardless of when the test runs.
	day := time.Now().UTC().AddDate(0, 0, 7)
	date := day.Format("2006-01-02")

	store := &fakeScheduleStore{
		business: model.Business{ID: "biz-1", Timezone: "UTC", MinLeadMinutes: 1, MaxAdvanceDays: 30},
		service:  model.Service{ID: "svc-1", BusinessID: "biz-1", DurationMins: 30},
		staff:    []model.Staff{{ID: "staff-1", DisplayName: "Dana", IsActive: true}},
		rules: []model.AvailabilityRule{
			{ID: "rule-1", StaffID: "staff-1", Weekday: int(day.Weekday()), StartTime: "09:00", EndTime: "10:00"},
		},
	}
	h := newSlotsHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&service_id=svc-1&date="+date, nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 slots, got %d: %+v", len(items), items)
	}
	if items[0].StartTime != date+"T09:00:00Z" || items[0].StaffID != "staff-1" {
		t.Fatalf("unexpected first slot: %+v", items[0])
	}
	if items[0].StaffName != "Dana" {
		t.Fatalf("expected staff name in slot, got %+v", items[0])
	}
}

func TestSlotsEndpointUnknownService(t *testing.T) {
	store := &fakeScheduleStore{
		business: model.Business{ID: "biz-1", Timezone: "UTC"},
		service:  model.Service{ID: "svc-1"},
	}
	h := newSlotsHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&service_id=nope&date=2100-01-06", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown service, got %d", rec.Code)
	}
}

func TestSlotsEndpointEmptyIsArray(t *testing.T) {
	store := &fakeScheduleStore{
		business: model.Business{ID: "biz-1", Timezone: "UTC"},
		service:  model.Service{ID: "svc-1", DurationMins: 30},
	}
	h := newSlotsHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&service_id=svc-1&date=2100-01-06", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty JSON array, got %q", body)
	}
}

func TestSlotsEndpointMissingParams(t *testing.T) {
	h := newSlotsHandler(&fakeScheduleStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSlotsEndpointBadTimezoneDegrades(t *testing.T) {
	store := &fakeScheduleStore{
		business: model.Business{ID: "biz-1", Timezone: "Mars/Olympus"},
		service:  model.Service{ID: "svc-1", DurationMins: 30},
	}
	h := newSlotsHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&service_id=svc-1&date=2100-01-06", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("misconfigured timezone should degrade to empty, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty JSON array, got %q", body)
	}
}

func TestBookingCreateRejectsBadInput(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, nil, testLogger(), 0)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing fields", `{"business_id":"b"}`},
		{"bad start_time", `{"business_id":"b","service_id":"s","staff_id":"st","customer_name":"c","start_time":"tomorrow"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestScheduleRuleValidation(t *testing.T) {
	h := NewScheduleHandler(nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"weekday out of range", `{"service_id":"s","staff_id":"st","weekday":7,"start_time":"09:00","end_time":"17:00"}`},
		{"inverted window", `{"service_id":"s","staff_id":"st","weekday":1,"start_time":"17:00","end_time":"09:00"}`},
		{"bad clock", `{"service_id":"s","staff_id":"st","weekday":1,"start_time":"9am","end_time":"17:00"}`},
		{"missing staff", `{"service_id":"s","weekday":1,"start_time":"09:00","end_time":"17:00"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/rules", strings.NewReader(tc.body))
		req.Header.Set("X-Business-Id", "biz-1")
		rec := httptest.NewRecorder()
		h.Rules(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/rules", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Rules(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-Business-Id, got %d", rec.Code)
	}
}

func TestScheduleBusinessValidation(t *testing.T) {
	h := NewScheduleHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/businesses", strings.NewReader(`{"name":"Shop","timezone":"Not/AZone"}`))
	rec := httptest.NewRecorder()
	h.CreateBusiness(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timezone, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/businesses", strings.NewReader(`{"name":"Shop","timezone":""}`))
	rec = httptest.NewRecorder()
	h.CreateBusiness(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty timezone, got %d", rec.Code)
	}
}
