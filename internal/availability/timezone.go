package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// loadLocation wraps time.LoadLocation but rejects the empty string, which the
// stdlib silently treats as UTC. A business with no timezone configured is a
// configuration problem, not a UTC business.
func loadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return nil, errors.New("timezone is empty")
	}
	return time.LoadLocation(tz)
}

// LocalWeekday returns the weekday (0=Sunday..6=Saturday) a calendar date falls
// on as observed in the given IANA timezone. Near midnight the local weekday
// can differ from the UTC one, so the date is interpreted in the business
// location, never in UTC.
func LocalWeekday(date, tz string) (int, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	return int(day.Weekday()), nil
}

// DayBoundsUTC returns the coarse UTC day boundary [start, end) for a
// calendar date, used as the retrieval window for blackouts and bookings.
// The walker's own overlap test decides what actually conflicts.
func DayBoundsUTC(date string) (time.Time, time.Time, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	start := day.UTC()
	return start, start.Add(24 * time.Hour), nil
}

// RuleWindowUTC converts a rule's local wall-clock window ("HH:MM") on the
// given date into absolute UTC instants, honoring DST transitions via the
// IANA database.
func RuleWindowUTC(date, startClock, endClock, tz string) (time.Time, time.Time, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	start, err := atClock(day, startClock, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(day, endClock, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("rule window %s-%s is empty or inverted", startClock, endClock)
	}
	return start, end, nil
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	return local.UTC(), nil
}
