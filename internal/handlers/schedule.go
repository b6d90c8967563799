package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/reservely/reservely/internal/availability"
	"github.com/reservely/reservely/internal/model"
	"github.com/reservely/reservely/internal/storage"
)

// BusinessStore is the catalog surface the admin handler writes and reads.
// *storage.BusinessRepository satisfies it.
type BusinessStore interface {
	CreateBusiness(ctx context.Context, name, timezone string, minLeadMinutes, maxAdvanceDays int) (string, error)
	BusinessByID(ctx context.Context, businessID string) (model.Business, error)
	UpdateScheduleConfig(ctx context.Context, businessID, timezone string, minLeadMinutes, maxAdvanceDays int) error
	CreateService(ctx context.Context, businessID, name string, durationMinutes int) (string, error)
	ListServices(ctx context.Context, businessID string, limit int) ([]model.Service, error)
	CreateStaff(ctx context.Context, businessID, displayName string, isActive bool) (string, error)
	SetStaffActive(ctx context.Context, businessID, staffID string, active bool) error
	ListStaff(ctx context.Context, businessID string, limit int) ([]model.Staff, error)
	AssignStaffToService(ctx context.Context, businessID, staffID, serviceID string) error
	ListAssignments(ctx context.Context, businessID string) ([]model.StaffAssignment, error)
}

// ScheduleStore covers rule and blackout CRUD. *storage.ScheduleRepository
// satisfies it.
type ScheduleStore interface {
	CreateRule(ctx context.Context, rule model.AvailabilityRule) (string, error)
	DeleteRule(ctx context.Context, businessID, ruleID string) error
	ListRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error)
	CreateBlackout(ctx context.Context, b model.Blackout) (string, error)
	DeleteBlackout(ctx context.Context, businessID, blackoutID string) error
	ListBlackouts(ctx context.Context, businessID string) ([]model.Blackout, error)
}

// ScheduleHandler is the admin surface: businesses, services, staff,
// availability rules, and blackouts. Every route below identifies the tenant
// through the X-Business-Id header.
type ScheduleHandler struct {
	businesses BusinessStore
	schedules  ScheduleStore
}

func NewScheduleHandler(businesses BusinessStore, schedules ScheduleStore) *ScheduleHandler {
	return &ScheduleHandler{businesses: businesses, schedules: schedules}
}

func businessIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Business-Id"))
}

func validTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func (h *ScheduleHandler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name           string `json:"name"`
		Timezone       string `json:"timezone"`
		MinLeadMinutes int    `json:"min_lead_minutes"`
		MaxAdvanceDays int    `json:"max_advance_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if !validTimezone(req.Timezone) {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}
	if req.MinLeadMinutes < 0 || req.MaxAdvanceDays < 0 {
		http.Error(w, "lead and advance settings must be non-negative", http.StatusBadRequest)
		return
	}

	id, err := h.businesses.CreateBusiness(r.Context(), req.Name, req.Timezone, req.MinLeadMinutes, req.MaxAdvanceDays)
	if err != nil {
		http.Error(w, "failed to create business", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *ScheduleHandler) Config(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := h.businesses.BusinessByID(r.Context(), businessID)
		if err != nil {
			if errors.Is(err, availability.ErrBusinessNotFound) {
				http.Error(w, "business not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load business", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":             b.Name,
			"timezone":         b.Timezone,
			"min_lead_minutes": b.MinLeadMinutes,
			"max_advance_days": b.MaxAdvanceDays,
		})
	case http.MethodPut:
		h.updateConfig(w, r, businessID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) updateConfig(w http.ResponseWriter, r *http.Request, businessID string) {
	var req struct {
		Timezone       string `json:"timezone"`
		MinLeadMinutes int    `json:"min_lead_minutes"`
		MaxAdvanceDays int    `json:"max_advance_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Timezone = strings.TrimSpace(req.Timezone)
	if !validTimezone(req.Timezone) {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}
	if req.MinLeadMinutes < 0 || req.MaxAdvanceDays < 0 {
		http.Error(w, "lead and advance settings must be non-negative", http.StatusBadRequest)
		return
	}

	if err := h.businesses.UpdateScheduleConfig(r.Context(), businessID, req.Timezone, req.MinLeadMinutes, req.MaxAdvanceDays); err != nil {
		http.Error(w, "failed to update schedule config", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Services(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name         string `json:"name"`
			DurationMins int    `json:"duration_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.DurationMins <= 0 {
			http.Error(w, "name and duration_minutes required", http.StatusBadRequest)
			return
		}
		id, err := h.businesses.CreateService(r.Context(), businessID, req.Name, req.DurationMins)
		if err != nil {
			http.Error(w, "failed to create service", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	case http.MethodGet:
		services, err := h.businesses.ListServices(r.Context(), businessID, 100)
		if err != nil {
			http.Error(w, "failed to list services", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(services))
		for _, s := range services {
			items = append(items, map[string]any{
				"id":               s.ID,
				"name":             s.Name,
				"duration_minutes": s.DurationMins,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(items)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) Staff(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.DisplayName = strings.TrimSpace(req.DisplayName)
		if req.DisplayName == "" {
			http.Error(w, "display_name required", http.StatusBadRequest)
			return
		}
		id, err := h.businesses.CreateStaff(r.Context(), businessID, req.DisplayName, true)
		if err != nil {
			http.Error(w, "failed to create staff", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	case http.MethodGet:
		staff, err := h.businesses.ListStaff(r.Context(), businessID, 100)
		if err != nil {
			http.Error(w, "failed to list staff", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(staff))
		for _, s := range staff {
			items = append(items, map[string]any{
				"id":           s.ID,
				"display_name": s.DisplayName,
				"is_active":    s.IsActive,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(items)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) SetStaffActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		StaffID  string `json:"staff_id"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}

	if err := h.businesses.SetStaffActive(r.Context(), businessID, req.StaffID, req.IsActive); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "staff not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update staff", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			StaffID   string `json:"staff_id"`
			ServiceID string `json:"service_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.StaffID = strings.TrimSpace(req.StaffID)
		req.ServiceID = strings.TrimSpace(req.ServiceID)
		if req.StaffID == "" || req.ServiceID == "" {
			http.Error(w, "staff_id and service_id required", http.StatusBadRequest)
			return
		}
		if err := h.businesses.AssignStaffToService(r.Context(), businessID, req.StaffID, req.ServiceID); err != nil {
			http.Error(w, "failed to assign staff", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		assignments, err := h.businesses.ListAssignments(r.Context(), businessID)
		if err != nil {
			http.Error(w, "failed to list assignments", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(assignments))
		for _, a := range assignments {
			items = append(items, map[string]any{
				"staff_id":   a.StaffID,
				"service_id": a.ServiceID,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(items)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) Rules(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			ServiceID string `json:"service_id"`
			StaffID   string `json:"staff_id"`
			Weekday   int    `json:"weekday"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.ServiceID = strings.TrimSpace(req.ServiceID)
		req.StaffID = strings.TrimSpace(req.StaffID)
		req.StartTime = strings.TrimSpace(req.StartTime)
		req.EndTime = strings.TrimSpace(req.EndTime)
		if req.ServiceID == "" || req.StaffID == "" {
			http.Error(w, "service_id and staff_id required", http.StatusBadRequest)
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
			return
		}
		if !validClock(req.StartTime) || !validClock(req.EndTime) || req.StartTime >= req.EndTime {
			http.Error(w, "start_time and end_time must be HH:MM with start before end", http.StatusBadRequest)
			return
		}

		id, err := h.schedules.CreateRule(r.Context(), model.AvailabilityRule{
			BusinessID: businessID,
			ServiceID:  req.ServiceID,
			StaffID:    req.StaffID,
			RuleType:   "weekly",
			Weekday:    req.Weekday,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
		})
		if err != nil {
			http.Error(w, "failed to create rule", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	case http.MethodGet:
		rules, err := h.schedules.ListRules(r.Context(), businessID)
		if err != nil {
			http.Error(w, "failed to list rules", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(rules))
		for _, rule := range rules {
			items = append(items, map[string]any{
				"id":         rule.ID,
				"service_id": rule.ServiceID,
				"staff_id":   rule.StaffID,
				"weekday":    rule.Weekday,
				"start_time": rule.StartTime,
				"end_time":   rule.EndTime,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(items)
	case http.MethodDelete:
		ruleID := strings.TrimSpace(r.URL.Query().Get("id"))
		if ruleID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := h.schedules.DeleteRule(r.Context(), businessID, ruleID); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "rule not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to delete rule", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) Blackouts(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			StaffID   string `json:"staff_id"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			Reason    string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
		if !end.After(start) {
			http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
			return
		}

		id, err := h.schedules.CreateBlackout(r.Context(), model.Blackout{
			BusinessID: businessID,
			StaffID:    strings.TrimSpace(req.StaffID),
			StartTime:  start.UTC(),
			EndTime:    end.UTC(),
			Reason:     strings.TrimSpace(req.Reason),
		})
		if err != nil {
			http.Error(w, "failed to create blackout", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	case http.MethodGet:
		blackouts, err := h.schedules.ListBlackouts(r.Context(), businessID)
		if err != nil {
			http.Error(w, "failed to list blackouts", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(blackouts))
		for _, b := range blackouts {
			items = append(items, map[string]any{
				"id":         b.ID,
				"staff_id":   b.StaffID,
				"start_time": b.StartTime.UTC().Format(time.RFC3339),
				"end_time":   b.EndTime.UTC().Format(time.RFC3339),
				"reason":     b.Reason,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(items)
	case http.MethodDelete:
		blackoutID := strings.TrimSpace(r.URL.Query().Get("id"))
		if blackoutID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := h.schedules.DeleteBlackout(r.Context(), businessID, blackoutID); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "blackout not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to delete blackout", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
