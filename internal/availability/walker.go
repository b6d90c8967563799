package availability

import (
	"time"

	"github.com/reservely/reservely/internal/model"
)

// SlotIncrement is the fixed grid all slot boundaries align to and the step
// the walker advances by. Tenant rules are expressed against half-hour
// boundaries.
const SlotIncrement = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// EffectiveDuration rounds a service duration up to the next grid increment,
// with a floor of one increment. A 45-minute service consumes a 60-minute
// block so slot boundaries always land on the public calendar grid.
func EffectiveDuration(d time.Duration) time.Duration {
	if d <= SlotIncrement {
		return SlotIncrement
	}
	if rem := d % SlotIncrement; rem != 0 {
		d += SlotIncrement - rem
	}
	return d
}

type walkParams struct {
	Now           time.Time
	Duration      time.Duration // already grid-rounded
	LeadTime      time.Duration
	AdvanceCutoff time.Time
	Blackouts     []Interval // global and staff-specific, pre-filtered for this staff member
	Busy          []Interval // active bookings for this staff member
}

// walkRule emits every bookable slot inside one rule window [winStart, winEnd).
// The walk starts on the increment boundary at or before winStart so that all
// businesses' slots line up on a shared grid regardless of rule start time,
// and stops as soon as a candidate would spill past the window end (no partial
// slots).
func walkRule(staff model.Staff, winStart, winEnd time.Time, p walkParams) []model.Slot {
	if !winEnd.After(winStart) {
		return nil
	}
	// A window that opens past the advance horizon yields nothing at all.
	if !p.AdvanceCutoff.IsZero() && winStart.After(p.AdvanceCutoff) {
		return nil
	}

	earliest := p.Now.Add(p.LeadTime)
	var slots []model.Slot
	for t := winStart.Truncate(SlotIncrement); ; t = t.Add(SlotIncrement) {
		end := t.Add(p.Duration)
		if end.After(winEnd) {
			break
		}
		if !p.AdvanceCutoff.IsZero() && !t.Before(p.AdvanceCutoff) {
			break
		}
		if t.Before(earliest) {
			continue
		}
		if overlapsAny(t, end, p.Blackouts) {
			continue
		}
		if overlapsAny(t, end, p.Busy) {
			continue
		}
		slots = append(slots, model.Slot{
			StaffID:   staff.ID,
			StaffName: staff.DisplayName,
			Start:     t,
			End:       end,
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
