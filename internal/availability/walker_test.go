package availability

import (
	"testing"
	"time"

	"github.com/reservely/reservely/internal/model"
)

var walkerStaff = model.Staff{ID: "staff-1", DisplayName: "Avery", IsActive: true}

func utc(h, m int) time.Time {
	return time.Date(2026, 1, 28, h, m, 0, 0, time.UTC)
}

func TestEffectiveDuration(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{45 * time.Minute, 60 * time.Minute},
		{30 * time.Minute, 30 * time.Minute},
		{60 * time.Minute, 60 * time.Minute},
		{10 * time.Minute, 30 * time.Minute},
		{0, 30 * time.Minute},
		{90 * time.Minute, 90 * time.Minute},
	}
	for _, c := range cases {
		if got := EffectiveDuration(c.in); got != c.want {
			t.Fatalf("EffectiveDuration(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestWalkRule_RoundedDurationFitsWindowOnce(t *testing.T) {
	// A 45-minute service rounds to 60; a one-hour window fits exactly one slot.
	p := walkParams{
		Now:           utc(0, 0),
		Duration:      EffectiveDuration(45 * time.Minute),
		AdvanceCutoff: utc(0, 0).AddDate(0, 0, 60),
	}
	slots := walkRule(walkerStaff, utc(9, 0), utc(10, 0), p)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(utc(9, 0)) || !slots[0].End.Equal(utc(10, 0)) {
		t.Fatalf("expected 09:00-10:00, got %s-%s", slots[0].Start, slots[0].End)
	}
	if slots[0].End.Sub(slots[0].Start) != 60*time.Minute {
		t.Fatalf("expected a 60-minute slot, not %s", slots[0].End.Sub(slots[0].Start))
	}
}

func TestWalkRule_AlignsToGridBeforeWindowStart(t *testing.T) {
	// The walk starts on the half-hour boundary at or before the rule start.
	p := walkParams{
		Now:           utc(0, 0),
		Duration:      30 * time.Minute,
		AdvanceCutoff: utc(0, 0).AddDate(0, 0, 60),
	}
	slots := walkRule(walkerStaff, utc(9, 10), utc(10, 40), p)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	want := []time.Time{utc(9, 0), utc(9, 30), utc(10, 0)}
	for i, s := range slots {
		if !s.Start.Equal(want[i]) {
			t.Fatalf("slot %d: expected start %s, got %s", i, want[i], s.Start)
		}
	}
}

func TestWalkRule_LeadTimeFloor(t *testing.T) {
	p := walkParams{
		Now:           utc(8, 0),
		Duration:      30 * time.Minute,
		LeadTime:      2 * time.Hour,
		AdvanceCutoff: utc(8, 0).AddDate(0, 0, 60),
	}
	slots := walkRule(walkerStaff, utc(9, 0), utc(11, 0), p)
	for _, s := range slots {
		if s.Start.Before(utc(10, 0)) {
			t.Fatalf("slot %s violates the 2h lead time floor", s.Start)
		}
	}
	if len(slots) != 2 {
		t.Fatalf("expected slots at 10:00 and 10:30, got %d", len(slots))
	}
}

func TestWalkRule_PastFloorWithZeroLead(t *testing.T) {
	p := walkParams{
		Now:           utc(9, 31),
		Duration:      30 * time.Minute,
		AdvanceCutoff: utc(9, 31).AddDate(0, 0, 60),
	}
	slots := walkRule(walkerStaff, utc(9, 0), utc(11, 0), p)
	if len(slots) != 2 {
		t.Fatalf("expected 2 future slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(utc(10, 0)) {
		t.Fatalf("expected first slot 10:00, got %s", slots[0].Start)
	}
}

func TestWalkRule_BlackoutAndBookingOverlap(t *testing.T) {
	p := walkParams{
		Now:           utc(0, 0),
		Duration:      30 * time.Minute,
		AdvanceCutoff: utc(0, 0).AddDate(0, 0, 60),
		Blackouts:     []Interval{{Start: utc(9, 0), End: utc(9, 30)}},
		Busy:          []Interval{{Start: utc(10, 15), End: utc(10, 45)}},
	}
	slots := walkRule(walkerStaff, utc(9, 0), utc(11, 0), p)
	// 09:00 blacked out; 10:00 and 10:30 both overlap the 10:15-10:45 booking.
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(utc(9, 30)) {
		t.Fatalf("expected 09:30, got %s", slots[0].Start)
	}
}

func TestWalkRule_AdvanceWindow(t *testing.T) {
	now := utc(9, 0)
	p := walkParams{
		Now:           now,
		Duration:      30 * time.Minute,
		AdvanceCutoff: now.AddDate(0, 0, 60),
	}
	farStart := now.AddDate(0, 0, 61)
	if slots := walkRule(walkerStaff, farStart, farStart.Add(8*time.Hour), p); slots != nil {
		t.Fatalf("expected no slots beyond the advance window, got %d", len(slots))
	}

	// A window straddling the cutoff only yields slots before it.
	edge := now.AddDate(0, 0, 60)
	slots := walkRule(walkerStaff, edge.Add(-time.Hour), edge.Add(time.Hour), p)
	for _, s := range slots {
		if !s.Start.Before(p.AdvanceCutoff) {
			t.Fatalf("slot %s starts at or past the advance cutoff", s.Start)
		}
	}
	if len(slots) == 0 {
		t.Fatal("expected slots before the cutoff")
	}
}

func TestWalkRule_NoPartialSlots(t *testing.T) {
	p := walkParams{
		Now:           utc(0, 0),
		Duration:      60 * time.Minute,
		AdvanceCutoff: utc(0, 0).AddDate(0, 0, 60),
	}
	// 90-minute window, 60-minute duration: 09:00 fits, 09:30 does not.
	slots := walkRule(walkerStaff, utc(9, 0), utc(10, 30), p)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
}
