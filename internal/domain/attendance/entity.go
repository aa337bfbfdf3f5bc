package attendance

import (
	"time"
)

// State is what the employee is doing right now. It alone decides which
// command is legal next.
type State string

const (
	StateNotCheckedIn  State = "not_checked_in"
	StateWorking       State = "working"
	StateLunchBreak    State = "lunch_break"
	StatePersonalBreak State = "personal_break"
	StateCheckedOut    State = "checked_out"
)

func (s State) Valid() bool {
	switch s {
	case StateNotCheckedIn, StateWorking, StateLunchBreak, StatePersonalBreak, StateCheckedOut:
		return true
	}
	return false
}

// Status is the report-facing label, independent of State.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusHalfDay Status = "half_day"
	StatusWFH     Status = "wfh"
)

func AllStatuses() []string {
	return []string{string(StatusPresent), string(StatusAbsent), string(StatusHalfDay), string(StatusWFH)}
}

// Origin tells which path produced the record.
type Origin string

const (
	OriginRealtime Origin = "realtime" // driven by check-in/out commands
	OriginManual   Origin = "manual"   // marked or edited by an admin
)

type WorkSession struct {
	CheckIn         time.Time  `json:"check_in"`
	CheckOut        *time.Time `json:"check_out,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

func (s WorkSession) IsOpen() bool {
	return s.CheckOut == nil
}

// LunchBreak is a singleton per day.
type LunchBreak struct {
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

func (l LunchBreak) IsOpen() bool {
	return l.End == nil
}

type PersonalBreak struct {
	Out             time.Time  `json:"out"`
	In              *time.Time `json:"in,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Reason          string     `json:"reason,omitempty"`
}

func (b PersonalBreak) IsOpen() bool {
	return b.In == nil
}

type Record struct {
	ID           string
	EmployeeID   string
	Date         time.Time
	Origin       Origin
	CurrentState State

	WorkSessions   []WorkSession
	LunchBreak     *LunchBreak
	PersonalBreaks []PersonalBreak

	TotalWorkingMinutes int
	TotalBreakMinutes   int

	Status          Status
	IsLate          bool
	LateMinutes     int
	EarlyDeparture  bool
	EarlyMinutes    int
	OvertimeMinutes int

	Notes    *string
	MarkedBy *string

	CreatedAt time.Time
	UpdatedAt time.Time

	// DTO / Join
	EmployeeName   *string
	EmployeeCode   *string
	DepartmentName *string
}

// NewRecord returns an empty realtime record for employeeID on day. day is
// expected to be local midnight already.
func NewRecord(employeeID string, day time.Time) Record {
	return Record{
		EmployeeID:     employeeID,
		Date:           day,
		Origin:         OriginRealtime,
		CurrentState:   StateNotCheckedIn,
		WorkSessions:   []WorkSession{},
		PersonalBreaks: []PersonalBreak{},
		Status:         StatusPresent,
	}
}

// OpenSession returns the open work session, if any.
func (r *Record) OpenSession() *WorkSession {
	for i := len(r.WorkSessions) - 1; i >= 0; i-- {
		if r.WorkSessions[i].IsOpen() {
			return &r.WorkSessions[i]
		}
	}
	return nil
}

// OpenPersonalBreak returns the most recent open personal break, if any.
func (r *Record) OpenPersonalBreak() *PersonalBreak {
	for i := len(r.PersonalBreaks) - 1; i >= 0; i-- {
		if r.PersonalBreaks[i].IsOpen() {
			return &r.PersonalBreaks[i]
		}
	}
	return nil
}

// HasLiveData reports whether the state machine has written anything.
func (r *Record) HasLiveData() bool {
	return len(r.WorkSessions) > 0 || r.LunchBreak != nil || len(r.PersonalBreaks) > 0
}

// FirstCheckIn returns the earliest check-in of the day.
func (r *Record) FirstCheckIn() *time.Time {
	if len(r.WorkSessions) == 0 {
		return nil
	}
	t := r.WorkSessions[0].CheckIn
	return &t
}

// LastCheckOut returns the check-out of the latest closed session.
func (r *Record) LastCheckOut() *time.Time {
	for i := len(r.WorkSessions) - 1; i >= 0; i-- {
		if co := r.WorkSessions[i].CheckOut; co != nil {
			t := *co
			return &t
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (r Record) Clone() Record {
	out := r
	out.WorkSessions = make([]WorkSession, len(r.WorkSessions))
	for i, s := range r.WorkSessions {
		out.WorkSessions[i] = s
		out.WorkSessions[i].CheckOut = cloneTime(s.CheckOut)
	}
	out.PersonalBreaks = make([]PersonalBreak, len(r.PersonalBreaks))
	for i, b := range r.PersonalBreaks {
		out.PersonalBreaks[i] = b
		out.PersonalBreaks[i].In = cloneTime(b.In)
	}
	if r.LunchBreak != nil {
		lb := *r.LunchBreak
		lb.End = cloneTime(r.LunchBreak.End)
		out.LunchBreak = &lb
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
