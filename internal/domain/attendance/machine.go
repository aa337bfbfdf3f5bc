package attendance

import (
	"strings"
	"time"
)

// Command is a state-machine input issued by the employee.
type Command string

const (
	CommandCheckIn    Command = "check_in"
	CommandStartLunch Command = "start_lunch"
	CommandEndLunch   Command = "end_lunch"
	CommandStartBreak Command = "start_break"
	CommandEndBreak   Command = "end_break"
	CommandCheckOut   Command = "check_out"
)

func AllCommands() []Command {
	return []Command{
		CommandCheckIn,
		CommandStartLunch,
		CommandEndLunch,
		CommandStartBreak,
		CommandEndBreak,
		CommandCheckOut,
	}
}

func AllStates() []State {
	return []State{
		StateNotCheckedIn,
		StateWorking,
		StateLunchBreak,
		StatePersonalBreak,
		StateCheckedOut,
	}
}

type edge struct {
	from State
	to   State
}

var transitions = map[Command]edge{
	CommandCheckIn:    {from: StateNotCheckedIn, to: StateWorking},
	CommandStartLunch: {from: StateWorking, to: StateLunchBreak},
	CommandEndLunch:   {from: StateLunchBreak, to: StateWorking},
	CommandStartBreak: {from: StateWorking, to: StatePersonalBreak},
	CommandEndBreak:   {from: StatePersonalBreak, to: StateWorking},
	CommandCheckOut:   {from: StateWorking, to: StateCheckedOut},
}

// Target returns the state cmd leads to and whether cmd is known.
func (c Command) Target() (State, bool) {
	e, ok := transitions[c]
	return e.to, ok
}

// CanApply reports, without mutating, why cmd is not allowed right now.
// It returns nil when Apply would succeed.
func (r *Record) CanApply(cmd Command) error {
	e, ok := transitions[cmd]
	if !ok {
		return ErrUnknownCommand
	}
	if r.Origin == OriginManual {
		return &TransitionError{Command: cmd, From: r.CurrentState, Reason: ErrManualRecord}
	}
	if r.CurrentState != e.from {
		return &TransitionError{Command: cmd, From: r.CurrentState, Reason: rejectReason(cmd, r.CurrentState)}
	}

	// The state allows cmd; the arrays must agree with it.
	var reason error
	switch cmd {
	case CommandCheckIn:
		if r.OpenSession() != nil {
			reason = ErrStateMismatch
		}
	case CommandStartLunch:
		if r.LunchBreak != nil {
			reason = ErrLunchAlreadyTaken
		} else if r.OpenSession() == nil {
			reason = ErrStateMismatch
		}
	case CommandEndLunch:
		if r.LunchBreak == nil || !r.LunchBreak.IsOpen() {
			reason = ErrStateMismatch
		}
	case CommandStartBreak:
		if r.OpenSession() == nil || r.OpenPersonalBreak() != nil {
			reason = ErrStateMismatch
		}
	case CommandEndBreak:
		if r.OpenPersonalBreak() == nil {
			reason = ErrStateMismatch
		}
	case CommandCheckOut:
		if r.OpenSession() == nil {
			reason = ErrStateMismatch
		}
	}
	if reason != nil {
		return &TransitionError{Command: cmd, From: r.CurrentState, Reason: reason}
	}
	return nil
}

// Apply runs cmd at the given instant and recomputes totals. On error the
// record is left untouched.
func (r *Record) Apply(cmd Command, at time.Time, reason string) error {
	if err := r.CanApply(cmd); err != nil {
		return err
	}

	switch cmd {
	case CommandCheckIn:
		r.WorkSessions = append(r.WorkSessions, WorkSession{CheckIn: at})
	case CommandStartLunch:
		r.LunchBreak = &LunchBreak{Start: at}
	case CommandEndLunch:
		end := at
		r.LunchBreak.End = &end
	case CommandStartBreak:
		r.PersonalBreaks = append(r.PersonalBreaks, PersonalBreak{
			Out:    at,
			Reason: strings.TrimSpace(reason),
		})
	case CommandEndBreak:
		in := at
		r.OpenPersonalBreak().In = &in
	case CommandCheckOut:
		out := at
		r.OpenSession().CheckOut = &out
	}

	r.CurrentState = transitions[cmd].to
	r.Recompute()
	return nil
}

func rejectReason(cmd Command, from State) error {
	switch cmd {
	case CommandCheckIn:
		if from == StateCheckedOut {
			return ErrAlreadyCheckedOut
		}
		return ErrAlreadyCheckedIn
	case CommandStartLunch:
		switch from {
		case StateNotCheckedIn:
			return ErrNotCheckedIn
		case StateLunchBreak:
			return ErrAlreadyOnLunch
		case StatePersonalBreak:
			return ErrEndBreakFirst
		case StateCheckedOut:
			return ErrAlreadyCheckedOut
		}
	case CommandEndLunch:
		return ErrNoActiveLunch
	case CommandStartBreak:
		switch from {
		case StateNotCheckedIn:
			return ErrNotCheckedIn
		case StatePersonalBreak:
			return ErrAlreadyOnBreak
		case StateLunchBreak:
			return ErrEndBreakFirst
		case StateCheckedOut:
			return ErrAlreadyCheckedOut
		}
	case CommandEndBreak:
		return ErrNoActiveBreak
	case CommandCheckOut:
		switch from {
		case StateNotCheckedIn:
			return ErrNotCheckedIn
		case StateLunchBreak, StatePersonalBreak:
			return ErrEndBreakFirst
		case StateCheckedOut:
			return ErrAlreadyCheckedOut
		}
	}
	return ErrStateMismatch
}

// AllowedCommands lists the commands CanApply accepts right now.
func (r *Record) AllowedCommands() []Command {
	allowed := []Command{}
	for _, cmd := range AllCommands() {
		if r.CanApply(cmd) == nil {
			allowed = append(allowed, cmd)
		}
	}
	return allowed
}
