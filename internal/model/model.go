package model

import "time"

// Appointment statuses that still hold a staff member's time. Everything else
// (cancelled, completed, no_show, refunded) never blocks a slot.
var ActiveStatuses = []string{StatusPending, StatusScheduled, StatusHeld}

const (
	StatusPending   = "pending"
	StatusScheduled = "scheduled"
	StatusHeld      = "held"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
	StatusRefunded  = "refunded"
)

// Business carries the per-tenant scheduling policy the slot generator reads.
type Business struct {
	ID             string
	Name           string
	Timezone       string // IANA identifier, e.g. "America/New_York"
	MinLeadMinutes int
	MaxAdvanceDays int
}

type Service struct {
	ID           string
	BusinessID   string
	Name         string
	DurationMins int
}

type Staff struct {
	ID          string
	BusinessID  string
	DisplayName string
	IsActive    bool
}

// AvailabilityRule is a recurring weekly window during which one staff member
// offers one service. Times are business-local wall clock ("HH:MM"); the
// weekday is evaluated in the business timezone (0=Sunday..6=Saturday).
type AvailabilityRule struct {
	ID         string
	BusinessID string
	ServiceID  string
	StaffID    string
	RuleType   string
	Weekday    int
	StartTime  string
	EndTime    string
}

// Blackout is an absolute UTC window during which a staff member is
// unavailable. An empty StaffID means the blackout is business-wide.
type Blackout struct {
	ID         string
	BusinessID string
	StaffID    string
	StartTime  time.Time
	EndTime    time.Time
	Reason     string
}

// StaffAssignment links one staff member to one service they perform.
type StaffAssignment struct {
	StaffID   string
	ServiceID string
}

type Appointment struct {
	ID            string
	BusinessID    string
	ServiceID     string
	StaffID       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	HoldExpiresAt *time.Time
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}

// WaitlistEntry records a customer waiting for an interval that was
// unavailable when they asked. Entries lapse after a fixed window so the
// list an admin works through never grows without bound. An empty StaffID
// means any staff member will do.
type WaitlistEntry struct {
	ID               string
	BusinessID       string
	ServiceID        string
	StaffID          string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	PreferredStartAt *time.Time
	PreferredEndAt   *time.Time
	Priority         int
	Status           string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Slot is one bookable (staff, start, end) window. Slots are advisory: they
// reflect a read-time snapshot and become stale the moment a concurrent
// booking lands. The booking writer re-checks conflicts inside its own
// transaction; a slot is never a reservation.
type Slot struct {
	StaffID   string
	StaffName string
	Start     time.Time
	End       time.Time
}
