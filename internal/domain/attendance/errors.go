package attendance

import "errors"

// Attendance domain errors
var (
	// ErrIllegalTransition is matched by every rejected state-machine command.
	ErrIllegalTransition = errors.New("illegal attendance transition")

	// Transition errors
	ErrAlreadyCheckedIn    = errors.New("you have already checked in today")
	ErrAlreadyCheckedOut   = errors.New("you have already checked out today")
	ErrNotCheckedIn        = errors.New("you have not checked in yet")
	ErrLunchAlreadyTaken   = errors.New("lunch break has already been taken today")
	ErrAlreadyOnLunch      = errors.New("you are already on lunch break")
	ErrNoActiveLunch       = errors.New("no active lunch break to end")
	ErrAlreadyOnBreak      = errors.New("you are already on a personal break")
	ErrNoActiveBreak       = errors.New("no active break to end")
	ErrEndBreakFirst       = errors.New("end your current break first")
	ErrManualRecord        = errors.New("attendance for today was marked manually by an administrator")
	ErrUnknownCommand      = errors.New("unknown attendance command")
	ErrStateMismatch       = errors.New("attendance record state does not match its sessions")
	ErrLiveRecordExists    = errors.New("a live attendance record already exists for this day; use force to overwrite")

	// General errors
	ErrAttendanceNotFound      = errors.New("attendance record not found")
	ErrEmployeeProfileNotFound = errors.New("no employee profile is linked to this account")
	ErrDuplicateRecord         = errors.New("attendance record already exists for this employee and day")
	ErrUnauthorized            = errors.New("unauthorized to access this attendance record")
)

// TransitionError describes a command that the current state does not allow.
// It matches both its Reason and ErrIllegalTransition with errors.Is.
type TransitionError struct {
	Command Command
	From    State
	Reason  error
}

func (e *TransitionError) Error() string {
	return e.Reason.Error()
}

func (e *TransitionError) Unwrap() []error {
	return []error{e.Reason, ErrIllegalTransition}
}
