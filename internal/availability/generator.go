package availability

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/reservely/reservely/internal/model"
)

// Fatal lookup failures. Everything else the generator degrades to an empty
// result: empty availability is a safe user-visible state, a 500 is not.
var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrBusinessNotFound = errors.New("business not found")
)

// Policy defaults applied when a business has no explicit schedule config.
const (
	DefaultMinLeadMinutes = 120
	DefaultMaxAdvanceDays = 60
)

type CatalogSource interface {
	ServiceByID(ctx context.Context, businessID, serviceID string) (model.Service, error)
	BusinessByID(ctx context.Context, businessID string) (model.Business, error)
}

type RuleSource interface {
	// RulesFor returns the non-deleted weekly rules for the service on the
	// weekday, restricted to the given staff set when it is non-empty.
	RulesFor(ctx context.Context, businessID, serviceID string, weekday int, staffIDs []string) ([]model.AvailabilityRule, error)
}

type ConflictSource interface {
	// BlackoutsFor returns non-deleted blackouts overlapping [from, to),
	// both staff-scoped and business-wide.
	BlackoutsFor(ctx context.Context, businessID string, from, to time.Time) ([]model.Blackout, error)
	// ActiveBookingsFor returns bookings in a hold-worthy status overlapping
	// [from, to) for the given staff. Expired holds do not count.
	ActiveBookingsFor(ctx context.Context, businessID string, staffIDs []string, from, to time.Time) ([]model.Appointment, error)
}

// Diagnostic records a per-rule degradation. Failures become data so one
// misconfigured rule cannot starve an otherwise healthy staff member's
// availability, while operators still see what to fix.
type Diagnostic struct {
	RuleID  string
	StaffID string
	Reason  string
}

// Generator computes the bookable slots for (business, service, date). It owns
// no mutable state: every input is a read-only snapshot taken at call time,
// and its output is advisory. Only the booking transaction's exclusion
// constraint actually reserves time.
type Generator struct {
	catalog   CatalogSource
	staff     StaffDirectory
	rules     RuleSource
	conflicts ConflictSource
	logger    *slog.Logger

	now func() time.Time
}

func NewGenerator(catalog CatalogSource, staff StaffDirectory, rules RuleSource, conflicts ConflictSource, logger *slog.Logger) *Generator {
	return &Generator{
		catalog:   catalog,
		staff:     staff,
		rules:     rules,
		conflicts: conflicts,
		logger:    logger,
		now:       time.Now,
	}
}

// Slots generates the sorted slot list for a service on a calendar date.
// Unknown service or business is fatal (ErrServiceNotFound /
// ErrBusinessNotFound), as is an unreachable data store. Malformed tenant
// configuration degrades: the offending rule (or the whole call, for an
// unusable date/timezone) yields no slots plus a diagnostic.
func (g *Generator) Slots(ctx context.Context, businessID, serviceID, date string) ([]model.Slot, []Diagnostic, error) {
	svc, err := g.catalog.ServiceByID(ctx, businessID, serviceID)
	if err != nil {
		return nil, nil, err
	}
	biz, err := g.catalog.BusinessByID(ctx, businessID)
	if err != nil {
		return nil, nil, err
	}

	leadMinutes := biz.MinLeadMinutes
	if leadMinutes <= 0 {
		leadMinutes = DefaultMinLeadMinutes
	}
	advanceDays := biz.MaxAdvanceDays
	if advanceDays <= 0 {
		advanceDays = DefaultMaxAdvanceDays
	}

	weekday, err := LocalWeekday(date, biz.Timezone)
	if err != nil {
		g.logger.Warn("slot generation degraded to empty",
			"business_id", businessID, "service_id", serviceID, "date", date, "err", err)
		return nil, []Diagnostic{{Reason: err.Error()}}, nil
	}

	staff, err := EligibleStaff(ctx, g.staff, businessID, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if len(staff) == 0 {
		return nil, nil, nil
	}
	staffByID := make(map[string]model.Staff, len(staff))
	staffIDs := make([]string, 0, len(staff))
	for _, s := range staff {
		staffByID[s.ID] = s
		staffIDs = append(staffIDs, s.ID)
	}

	rules, err := g.rules.RulesFor(ctx, businessID, serviceID, weekday, staffIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(rules) == 0 {
		return nil, nil, nil
	}

	dayStart, dayEnd, err := DayBoundsUTC(date)
	if err != nil {
		g.logger.Warn("slot generation degraded to empty",
			"business_id", businessID, "service_id", serviceID, "date", date, "err", err)
		return nil, []Diagnostic{{Reason: err.Error()}}, nil
	}

	blackouts, err := g.conflicts.BlackoutsFor(ctx, businessID, dayStart, dayEnd)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := g.conflicts.ActiveBookingsFor(ctx, businessID, staffIDs, dayStart, dayEnd)
	if err != nil {
		return nil, nil, err
	}

	busyByStaff := make(map[string][]Interval)
	for _, b := range bookings {
		busyByStaff[b.StaffID] = append(busyByStaff[b.StaffID], Interval{Start: b.StartTime, End: b.EndTime})
	}

	now := g.now().UTC()
	params := walkParams{
		Now:           now,
		Duration:      EffectiveDuration(time.Duration(svc.DurationMins) * time.Minute),
		LeadTime:      time.Duration(leadMinutes) * time.Minute,
		AdvanceCutoff: now.AddDate(0, 0, advanceDays),
	}

	var all []model.Slot
	var diags []Diagnostic
	for _, rule := range rules {
		st, ok := staffByID[rule.StaffID]
		if !ok {
			continue
		}
		winStart, winEnd, err := RuleWindowUTC(date, rule.StartTime, rule.EndTime, biz.Timezone)
		if err != nil {
			diags = append(diags, Diagnostic{RuleID: rule.ID, StaffID: rule.StaffID, Reason: err.Error()})
			g.logger.Warn("skipping malformed availability rule",
				"business_id", businessID, "rule_id", rule.ID, "err", err)
			continue
		}
		p := params
		p.Blackouts = blackoutsForStaff(blackouts, rule.StaffID)
		p.Busy = busyByStaff[rule.StaffID]
		all = append(all, walkRule(st, winStart, winEnd, p)...)
	}

	sortSlots(all)
	return all, diags, nil
}

// blackoutsForStaff keeps business-wide blackouts (empty staff id) and those
// scoped to the given staff member.
func blackoutsForStaff(blackouts []model.Blackout, staffID string) []Interval {
	var out []Interval
	for _, b := range blackouts {
		if b.StaffID != "" && b.StaffID != staffID {
			continue
		}
		out = append(out, Interval{Start: b.StartTime, End: b.EndTime})
	}
	return out
}

// sortSlots orders ascending by start, ties broken by staff id so output is
// deterministic across identical invocations.
func sortSlots(slots []model.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].StaffID < slots[j].StaffID
	})
}
