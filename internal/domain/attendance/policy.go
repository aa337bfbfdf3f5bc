package attendance

import (
	"fmt"
	"time"
)

// ShiftPolicy annotates lateness, early departure and overtime. Offsets are
// measured from the record's local midnight.
type ShiftPolicy struct {
	Start        time.Duration
	End          time.Duration
	GraceMinutes int
}

// DefaultShiftPolicy is 09:00-17:00 with no grace.
func DefaultShiftPolicy() ShiftPolicy {
	return ShiftPolicy{Start: 9 * time.Hour, End: 17 * time.Hour}
}

// ParseClockOffset parses "HH:MM" into an offset from midnight.
func ParseClockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Annotate fills the optional annotations after cmd was applied at the
// given instant. Only the first check-in and a check-out touch anything.
func (p ShiftPolicy) Annotate(r *Record, cmd Command, at time.Time) {
	switch cmd {
	case CommandCheckIn:
		if len(r.WorkSessions) != 1 {
			return
		}
		scheduledIn := r.Date.Add(p.Start)
		graceLimit := scheduledIn.Add(time.Duration(p.GraceMinutes) * time.Minute)
		r.IsLate = false
		r.LateMinutes = 0
		if at.After(graceLimit) {
			r.IsLate = true
			r.LateMinutes = MinutesBetween(scheduledIn, at)
		}
	case CommandCheckOut:
		scheduledOut := r.Date.Add(p.End)
		r.EarlyDeparture = false
		r.EarlyMinutes = 0
		r.OvertimeMinutes = 0
		if at.Before(scheduledOut) {
			r.EarlyDeparture = true
			r.EarlyMinutes = MinutesBetween(at, scheduledOut)
		} else {
			r.OvertimeMinutes = MinutesBetween(scheduledOut, at)
		}
	}
}
