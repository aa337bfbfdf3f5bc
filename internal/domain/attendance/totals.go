package attendance

import "time"

// Recompute rebuilds every duration and both totals from the closed entries.
// Open sessions and breaks contribute nothing.
func (r *Record) Recompute() {
	working := 0
	for i := range r.WorkSessions {
		s := &r.WorkSessions[i]
		s.DurationMinutes = 0
		if s.CheckOut != nil {
			s.DurationMinutes = MinutesBetween(s.CheckIn, *s.CheckOut)
		}
		working += s.DurationMinutes
	}

	breaks := 0
	for i := range r.PersonalBreaks {
		b := &r.PersonalBreaks[i]
		b.DurationMinutes = 0
		if b.In != nil {
			b.DurationMinutes = MinutesBetween(b.Out, *b.In)
		}
		breaks += b.DurationMinutes
	}

	if r.LunchBreak != nil {
		r.LunchBreak.DurationMinutes = 0
		if r.LunchBreak.End != nil {
			r.LunchBreak.DurationMinutes = MinutesBetween(r.LunchBreak.Start, *r.LunchBreak.End)
		}
		breaks += r.LunchBreak.DurationMinutes
	}

	r.TotalWorkingMinutes = working
	r.TotalBreakMinutes = breaks
}

// MinutesBetween returns whole minutes from start to end, truncated toward
// zero, and 0 if end precedes start.
func MinutesBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}
