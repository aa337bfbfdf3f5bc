package attendance

import "time"

// Projection is the display-only view of a snapshot at a given instant.
type Projection struct {
	State          State
	WorkingSeconds int64
	BreakSeconds   int64
}

// Project adds the time elapsed in the currently open session or break to
// the snapshot's persisted totals. It reads r and never changes it, and it
// depends only on now, so re-evaluating it every second cannot drift.
func Project(r *Record, now time.Time) Projection {
	if r == nil {
		return Projection{State: StateNotCheckedIn}
	}

	p := Projection{
		State:          r.CurrentState,
		WorkingSeconds: int64(r.TotalWorkingMinutes) * 60,
		BreakSeconds:   int64(r.TotalBreakMinutes) * 60,
	}

	switch r.CurrentState {
	case StateWorking:
		if s := r.OpenSession(); s != nil {
			p.WorkingSeconds += elapsedSeconds(s.CheckIn, now)
		}
	case StateLunchBreak:
		if r.LunchBreak != nil && r.LunchBreak.IsOpen() {
			p.BreakSeconds += elapsedSeconds(r.LunchBreak.Start, now)
		}
	case StatePersonalBreak:
		if b := r.OpenPersonalBreak(); b != nil {
			p.BreakSeconds += elapsedSeconds(b.Out, now)
		}
	}

	return p
}

func elapsedSeconds(since, now time.Time) int64 {
	if now.Before(since) {
		return 0
	}
	return int64(now.Sub(since) / time.Second)
}
