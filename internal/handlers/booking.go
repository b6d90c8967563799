package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reservely/reservely/internal/availability"
	"github.com/reservely/reservely/internal/cache"
	"github.com/reservely/reservely/internal/model"
	"github.com/reservely/reservely/internal/outbox"
	"github.com/reservely/reservely/internal/storage"
)

const defaultHoldTTL = 10 * time.Minute

// BookingStore is the slice of the appointment write side the handler
// needs. *storage.BookingRepository satisfies it.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	ExpireOverlappingHolds(ctx context.Context, tx pgx.Tx, staffID string, start, end, now time.Time) (int64, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error)
	Cancel(ctx context.Context, tx pgx.Tx, businessID, appointmentID, reason string) (time.Time, error)
	ReleaseHold(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) error
	ConfirmHold(ctx context.Context, tx pgx.Tx, businessID, appointmentID string, now time.Time) error
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, businessID, key, appointmentID string, statusCode int, response []byte) error
}

// ServiceCatalog resolves a service to its duration.
type ServiceCatalog interface {
	ServiceByID(ctx context.Context, businessID, serviceID string) (model.Service, error)
}

// EventWriter appends a domain event in the caller's transaction.
type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BookingHandler struct {
	repo       BookingStore
	catalog    ServiceCatalog
	outboxRepo EventWriter
	holds      *cache.HoldCache
	logger     *slog.Logger
	holdTTL    time.Duration
}

func NewBookingHandler(repo BookingStore, catalog ServiceCatalog, outboxRepo EventWriter, holds *cache.HoldCache, logger *slog.Logger, holdTTL time.Duration) *BookingHandler {
	if holdTTL <= 0 {
		holdTTL = defaultHoldTTL
	}
	return &BookingHandler{
		repo:       repo,
		catalog:    catalog,
		outboxRepo: outboxRepo,
		holds:      holds,
		logger:     logger,
		holdTTL:    holdTTL,
	}
}

type createBookingRequest struct {
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	StartTime     string `json:"start_time"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	HoldExpiresAt string `json:"hold_expires_at,omitempty"`
}

type appointmentRefRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type listAppointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	HoldExpiresAt string `json:"hold_expires_at,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Create books an appointment directly into scheduled status. The appointment
// interval is derived from the service duration, so a stale slot list cannot
// produce a mis-sized booking; the exclusion constraint catches overlaps that
// slipped past the advisory slot read.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, model.StatusScheduled)
}

// Hold reserves an appointment interval for a short window while a customer
// completes checkout. Held rows block the exclusion constraint exactly like
// scheduled ones until the hold is confirmed, released, or expired.
func (h *BookingHandler) Hold(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, model.StatusHeld)
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request, status string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.BusinessID == "" || req.ServiceID == "" || req.StaffID == "" || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	startTime = startTime.UTC()

	ctx := r.Context()
	svc, err := h.catalog.ServiceByID(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		if errors.Is(err, availability.ErrServiceNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}
	endTime := startTime.Add(availability.EffectiveDuration(time.Duration(svc.DurationMins) * time.Minute))

	appt := &model.Appointment{
		BusinessID:    req.BusinessID,
		ServiceID:     req.ServiceID,
		StaffID:       req.StaffID,
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		StartTime:     startTime,
		EndTime:       endTime,
		Status:        status,
	}
	if status == model.StatusHeld {
		expires := time.Now().UTC().Add(h.holdTTL)
		appt.HoldExpiresAt = &expires
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, appt.BusinessID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	// Lapsed holds for this interval were already invisible to the slot
	// read; clear them here so they cannot trip the overlap constraint
	// before the reaper's next sweep.
	expired, err := h.repo.ExpireOverlappingHolds(ctx, tx, appt.StaffID, appt.StartTime, appt.EndTime, time.Now().UTC())
	if err != nil {
		http.Error(w, "failed to clear expired holds", http.StatusInternalServerError)
		return
	}
	if expired > 0 {
		h.logger.Info("cleared lapsed holds for interval", "staff_id", appt.StaffID, "count", expired)
	}

	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	eventType := outbox.EventBooked
	if status == model.StatusHeld {
		eventType = outbox.EventHoldPlaced
	}
	if err := h.insertBookingEvent(ctx, tx, eventType, id, appt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	resp := createBookingResponse{
		AppointmentID: id,
		Status:        status,
		StartTime:     startTime.Format(time.RFC3339),
		EndTime:       endTime.Format(time.RFC3339),
	}
	if appt.HoldExpiresAt != nil {
		resp.HoldExpiresAt = appt.HoldExpiresAt.Format(time.RFC3339)
	}
	respBody, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}

	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, appt.BusinessID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if appt.HoldExpiresAt != nil {
		if err := h.holds.Put(ctx, id, appt.StaffID, time.Until(*appt.HoldExpiresAt)); err != nil {
			h.logger.Warn("hold cache write failed", "appointment_id", id, "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

// ConfirmHold promotes a held appointment to scheduled. Expired holds cannot
// be confirmed; the caller must place a new hold.
func (h *BookingHandler) ConfirmHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeAppointmentRef(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, req.BusinessID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusScheduled {
		writeStatusResponse(w, appt.ID, model.StatusScheduled)
		return
	}
	if appt.Status != model.StatusHeld {
		http.Error(w, "appointment is not held", http.StatusConflict)
		return
	}

	if err := h.repo.ConfirmHold(ctx, tx, req.BusinessID, req.AppointmentID, time.Now().UTC()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "hold expired", http.StatusConflict)
			return
		}
		http.Error(w, "failed to confirm hold", http.StatusInternalServerError)
		return
	}

	if err := h.insertBookingEvent(ctx, tx, outbox.EventBooked, appt.ID, &appt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if err := h.holds.Drop(ctx, appt.ID); err != nil {
		h.logger.Warn("hold cache delete failed", "appointment_id", appt.ID, "err", err)
	}
	writeStatusResponse(w, appt.ID, model.StatusScheduled)
}

// ReleaseHold frees a held interval before its TTL lapses.
func (h *BookingHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeAppointmentRef(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, req.BusinessID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusCancelled {
		writeStatusResponse(w, appt.ID, model.StatusCancelled)
		return
	}
	if appt.Status != model.StatusHeld {
		http.Error(w, "appointment is not held", http.StatusConflict)
		return
	}

	if err := h.repo.ReleaseHold(ctx, tx, req.BusinessID, req.AppointmentID); err != nil {
		http.Error(w, "failed to release hold", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if err := h.holds.Drop(ctx, appt.ID); err != nil {
		h.logger.Warn("hold cache delete failed", "appointment_id", appt.ID, "err", err)
	}
	writeStatusResponse(w, appt.ID, model.StatusCancelled)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeAppointmentRef(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, req.BusinessID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
		writeCancelResponse(w, appt.ID, appt.CancelledAt.UTC())
		return
	}
	switch appt.Status {
	case model.StatusPending, model.StatusScheduled, model.StatusHeld:
	default:
		http.Error(w, "appointment cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, req.BusinessID, appt.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"staff_id":       appt.StaffID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventCancelled,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusHeld {
		if err := h.holds.Drop(ctx, appt.ID); err != nil {
			h.logger.Warn("hold cache delete failed", "appointment_id", appt.ID, "err", err)
		}
	}
	writeCancelResponse(w, appt.ID, cancelledAt.UTC())
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
	}
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.repo.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID: appt.ID,
			StaffID:       appt.StaffID,
			ServiceID:     appt.ServiceID,
			StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
			EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
			Status:        appt.Status,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.HoldExpiresAt != nil {
			item.HoldExpiresAt = appt.HoldExpiresAt.UTC().Format(time.RFC3339)
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *BookingHandler) insertBookingEvent(ctx context.Context, tx pgx.Tx, eventType, appointmentID string, appt *model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"business_id":    appt.BusinessID,
		"staff_id":       appt.StaffID,
		"service_id":     appt.ServiceID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func decodeAppointmentRef(w http.ResponseWriter, r *http.Request) (appointmentRefRequest, bool) {
	var req appointmentRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return req, false
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "business_id and appointment_id required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func writeStatusResponse(w http.ResponseWriter, appointmentID, status string) {
	body, err := json.Marshal(map[string]string{
		"appointment_id": appointmentID,
		"status":         status,
	})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeCancelResponse(w http.ResponseWriter, appointmentID string, cancelledAt time.Time) {
	resp := cancelBookingResponse{
		AppointmentID: appointmentID,
		Status:        model.StatusCancelled,
		CancelledAt:   cancelledAt.Format(time.RFC3339),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
