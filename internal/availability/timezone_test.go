package availability

import (
	"testing"
	"time"
)

func TestLocalWeekday(t *testing.T) {
	// 2026-01-28 is a Wednesday everywhere.
	wd, err := LocalWeekday("2026-01-28", "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wd != 3 {
		t.Fatalf("expected Wednesday (3), got %d", wd)
	}
}

func TestLocalWeekday_BadInputs(t *testing.T) {
	if _, err := LocalWeekday("not-a-date", "UTC"); err == nil {
		t.Fatal("expected error for malformed date")
	}
	if _, err := LocalWeekday("2026-01-28", "Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	// An empty timezone must not silently mean UTC.
	if _, err := LocalWeekday("2026-01-28", ""); err == nil {
		t.Fatal("expected error for empty timezone")
	}
}

func TestRuleWindowUTC_StandardOffset(t *testing.T) {
	// New York is UTC-5 in January: local 09:00 is 14:00Z.
	start, end, err := RuleWindowUTC("2026-01-15", "09:00", "17:00", "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !start.Equal(time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 14:00Z start, got %s", start.Format(time.RFC3339))
	}
	if !end.Equal(time.Date(2026, 1, 15, 22, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 22:00Z end, got %s", end.Format(time.RFC3339))
	}
}

func TestRuleWindowUTC_DaylightSaving(t *testing.T) {
	// Same wall clock in July lands one UTC hour earlier (UTC-4).
	start, _, err := RuleWindowUTC("2026-07-15", "09:00", "17:00", "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !start.Equal(time.Date(2026, 7, 15, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 13:00Z start in DST, got %s", start.Format(time.RFC3339))
	}
}

func TestRuleWindowUTC_InvertedWindow(t *testing.T) {
	if _, _, err := RuleWindowUTC("2026-01-15", "17:00", "09:00", "UTC"); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if _, _, err := RuleWindowUTC("2026-01-15", "09:00", "09:00", "UTC"); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestRuleWindowUTC_BadClock(t *testing.T) {
	if _, _, err := RuleWindowUTC("2026-01-15", "9am", "17:00", "UTC"); err == nil {
		t.Fatal("expected error for malformed clock string")
	}
}

func TestDayBoundsUTC(t *testing.T) {
	start, end, err := DayBoundsUTC("2026-01-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !start.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", start.Format(time.RFC3339))
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected a 24h window, got %s", end.Sub(start))
	}
	if _, _, err := DayBoundsUTC("01/15/2026"); err == nil {
		t.Fatal("expected error for wrong date format")
	}
}
