package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reservely/reservely/internal/availability"
)

// SlotsHandler serves the public availability endpoint. The response is
// always a JSON array; a business with no bookable time returns [] rather
// than an error.
type SlotsHandler struct {
	generator *availability.Generator
	logger    *slog.Logger
}

func NewSlotsHandler(generator *availability.Generator, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{generator: generator, logger: logger}
}

type slotItem struct {
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *SlotsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if businessID == "" || serviceID == "" || date == "" {
		http.Error(w, "business_id, service_id, and date are required", http.StatusBadRequest)
		return
	}

	slots, diags, err := h.generator.Slots(r.Context(), businessID, serviceID, date)
	if err != nil {
		if errors.Is(err, availability.ErrBusinessNotFound) {
			http.Error(w, "business not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, availability.ErrServiceNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("slot generation failed", "business_id", businessID, "service_id", serviceID, "err", err)
		http.Error(w, "failed to generate slots", http.StatusInternalServerError)
		return
	}
	for _, d := range diags {
		h.logger.Warn("availability rule skipped",
			"business_id", businessID, "rule_id", d.RuleID, "staff_id", d.StaffID, "reason", d.Reason)
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StaffID:   s.StaffID,
			StaffName: s.StaffName,
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
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
