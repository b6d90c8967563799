package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reservely/reservely/internal/model"
	"github.com/reservely/reservely/internal/outbox"
)

// WaitlistStore is the waitlist persistence surface.
// *storage.WaitlistRepository satisfies it.
type WaitlistStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, entry *model.WaitlistEntry) (string, error)
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.WaitlistEntry, error)
}

// WaitlistHandler takes signups from customers who found no slot. POST joins
// the waitlist; GET returns the active entries for a business so an admin
// can work through them when time frees up.
type WaitlistHandler struct {
	repo       WaitlistStore
	outboxRepo EventWriter
	logger     *slog.Logger
}

func NewWaitlistHandler(repo WaitlistStore, outboxRepo EventWriter, logger *slog.Logger) *WaitlistHandler {
	return &WaitlistHandler{repo: repo, outboxRepo: outboxRepo, logger: logger}
}

func (h *WaitlistHandler) Waitlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.join(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WaitlistHandler) join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID       string `json:"business_id"`
		ServiceID        string `json:"service_id"`
		StaffID          string `json:"staff_id"`
		CustomerName     string `json:"customer_name"`
		CustomerEmail    string `json:"customer_email"`
		CustomerPhone    string `json:"customer_phone"`
		PreferredStartAt string `json:"preferred_start_at"`
		PreferredEndAt   string `json:"preferred_end_at"`
		Priority         int    `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.BusinessID == "" || req.ServiceID == "" || req.CustomerName == "" {
		http.Error(w, "business_id, service_id and customer_name required", http.StatusBadRequest)
		return
	}
	if req.Priority < 0 {
		http.Error(w, "priority must be non-negative", http.StatusBadRequest)
		return
	}

	var preferredStart, preferredEnd *time.Time
	if raw := strings.TrimSpace(req.PreferredStartAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid preferred_start_at", http.StatusBadRequest)
			return
		}
		t = t.UTC()
		preferredStart = &t
	}
	if raw := strings.TrimSpace(req.PreferredEndAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid preferred_end_at", http.StatusBadRequest)
			return
		}
		t = t.UTC()
		preferredEnd = &t
	}
	if preferredStart != nil && preferredEnd != nil && !preferredEnd.After(*preferredStart) {
		http.Error(w, "preferred_end_at must be after preferred_start_at", http.StatusBadRequest)
		return
	}

	entry := &model.WaitlistEntry{
		BusinessID:       req.BusinessID,
		ServiceID:        req.ServiceID,
		StaffID:          strings.TrimSpace(req.StaffID),
		CustomerName:     req.CustomerName,
		CustomerEmail:    strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		PreferredStartAt: preferredStart,
		PreferredEndAt:   preferredEnd,
		Priority:         req.Priority,
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, entry)
	if err != nil {
		http.Error(w, "failed to join waitlist", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"waitlist_id": id,
		"business_id": entry.BusinessID,
		"service_id":  entry.ServiceID,
		"staff_id":    entry.StaffID,
		"priority":    entry.Priority,
		"expires_at":  entry.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build waitlist event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "waitlist_entry",
		AggregateID:   id,
		EventType:     outbox.EventWaitlistJoined,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":         id,
		"expires_at": entry.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *WaitlistHandler) list(w http.ResponseWriter, r *http.Request) {
	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
	}
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	entries, err := h.repo.ListByBusiness(r.Context(), businessID, 100)
	if err != nil {
		http.Error(w, "failed to list waitlist", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"id":             e.ID,
			"service_id":     e.ServiceID,
			"staff_id":       e.StaffID,
			"customer_name":  e.CustomerName,
			"customer_email": e.CustomerEmail,
			"customer_phone": e.CustomerPhone,
			"priority":       e.Priority,
			"expires_at":     e.ExpiresAt.UTC().Format(time.RFC3339),
			"created_at":     e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.PreferredStartAt != nil {
			item["preferred_start_at"] = e.PreferredStartAt.UTC().Format(time.RFC3339)
		}
		if e.PreferredEndAt != nil {
			item["preferred_end_at"] = e.PreferredEndAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
