package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/validator"
)

// MarkAttendance implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) MarkAttendance(ctx context.Context, req attendance.MarkAttendanceRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	claims, err := jwt.ClaimsFromContext(ctx)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	emp, err := a.EmployeeRepository.GetByID(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return attendance.AttendanceResponse{}, employee.ErrEmployeeNotFound
		}
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to get employee: %w", err)
	}

	day, err := clock.ParseDay(req.Date, a.location)
	if err != nil {
		return attendance.AttendanceResponse{}, validator.ValidationErrors{
			{Field: "date", Message: "date must be in YYYY-MM-DD format"},
		}
	}
	checkIn := parseOptionalTime(req.CheckIn)
	checkOut := parseOptionalTime(req.CheckOut)

	var saved attendance.Record
	err = a.withRetry(ctx, "mark", func(ctx context.Context) error {
		return a.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			existing, err := a.AttendanceRepository.GetByEmployeeAndDate(ctx, emp.ID, day, true)
			if err != nil {
				return fmt.Errorf("failed to get attendance: %w", err)
			}

			if existing != nil && existing.Origin == attendance.OriginRealtime && existing.HasLiveData() && !req.Force {
				return attendance.ErrLiveRecordExists
			}

			rec := attendance.NewRecord(emp.ID, day)
			if existing != nil {
				rec.ID = existing.ID
				rec.CreatedAt = existing.CreatedAt
			}
			rec.Origin = attendance.OriginManual
			rec.Status = attendance.Status(req.Status)
			rec.Notes = req.Notes
			rec.MarkedBy = &claims.UserID

			if checkIn != nil {
				rec.WorkSessions = []attendance.WorkSession{{CheckIn: *checkIn, CheckOut: checkOut}}
			}
			a.settleManualState(&rec)
			rec.Recompute()
			a.annotateManual(&rec)

			if existing != nil {
				saved, err = a.AttendanceRepository.Update(ctx, rec)
			} else {
				saved, err = a.AttendanceRepository.Create(ctx, rec)
			}
			if err != nil {
				if errors.Is(err, attendance.ErrDuplicateRecord) {
					return err
				}
				return fmt.Errorf("failed to save attendance: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	a.logger.Info("attendance marked manually",
		"attendance_id", saved.ID,
		"employee_id", saved.EmployeeID,
		"date", req.Date,
		"status", saved.Status,
		"marked_by", claims.UserID,
		"forced", req.Force,
	)

	resp := a.toResponse(saved)
	a.publish(saved.EmployeeID, attendance.EventUpdated, resp)
	return resp, nil
}

// UpdateAttendance implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) UpdateAttendance(ctx context.Context, req attendance.UpdateAttendanceRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	claims, err := jwt.ClaimsFromContext(ctx)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	checkIn := parseOptionalTime(req.CheckIn)
	checkOut := parseOptionalTime(req.CheckOut)

	var saved attendance.Record
	err = a.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		rec, err := a.AttendanceRepository.GetByID(ctx, req.ID, true)
		if err != nil {
			if errors.Is(err, attendance.ErrAttendanceNotFound) {
				return attendance.ErrAttendanceNotFound
			}
			return fmt.Errorf("failed to get attendance: %w", err)
		}

		if req.Status != nil {
			rec.Status = attendance.Status(*req.Status)
		}
		if req.Notes != nil {
			rec.Notes = req.Notes
		}

		timesChanged := checkIn != nil || checkOut != nil
		if checkIn != nil {
			if len(rec.WorkSessions) == 0 {
				rec.WorkSessions = append(rec.WorkSessions, attendance.WorkSession{CheckIn: *checkIn})
			} else {
				rec.WorkSessions[0].CheckIn = *checkIn
			}
		}
		if checkOut != nil {
			if err := closeLastSession(&rec, *checkOut); err != nil {
				return err
			}
		}
		if err := validateSessions(rec); err != nil {
			return err
		}

		// Only rewritten times take a record off the state machine. Status is
		// a report label and leaves current_state alone.
		if timesChanged {
			rec.Origin = attendance.OriginManual
			a.settleManualState(&rec)
		}
		rec.MarkedBy = &claims.UserID
		rec.Recompute()
		if timesChanged {
			a.annotateManual(&rec)
		}

		if req.LateMinutes != nil {
			rec.LateMinutes = *req.LateMinutes
			rec.IsLate = *req.LateMinutes > 0
		}
		if req.EarlyMinutes != nil {
			rec.EarlyMinutes = *req.EarlyMinutes
			rec.EarlyDeparture = *req.EarlyMinutes > 0
		}
		if req.OvertimeMinutes != nil {
			rec.OvertimeMinutes = *req.OvertimeMinutes
		}

		saved, err = a.AttendanceRepository.Update(ctx, rec)
		if err != nil {
			return fmt.Errorf("failed to update attendance: %w", err)
		}
		return nil
	})
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	a.logger.Info("attendance updated manually",
		"attendance_id", saved.ID,
		"employee_id", saved.EmployeeID,
		"marked_by", claims.UserID,
	)

	resp := a.toResponse(saved)
	a.publish(saved.EmployeeID, attendance.EventUpdated, resp)
	return resp, nil
}

// DeleteAttendance implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) DeleteAttendance(ctx context.Context, id string) error {
	if !validator.IsValidUUID(id) {
		return validator.ValidationErrors{
			{Field: "id", Message: "id must be a valid UUID"},
		}
	}

	var employeeID string
	err := a.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		rec, err := a.AttendanceRepository.GetByID(ctx, id, true)
		if err != nil {
			return err
		}
		employeeID = rec.EmployeeID
		return a.AttendanceRepository.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, attendance.ErrAttendanceNotFound) {
			return attendance.ErrAttendanceNotFound
		}
		return fmt.Errorf("failed to delete attendance: %w", err)
	}

	a.logger.Info("attendance deleted", "attendance_id", id, "employee_id", employeeID)
	a.publish(employeeID, attendance.EventDeleted, map[string]string{"id": id})
	return nil
}

// settleManualState derives current_state from the sessions an admin wrote.
// Breaks still open when the last session closes are closed with it.
func (a *AttendanceServiceImpl) settleManualState(r *attendance.Record) {
	open := r.OpenSession()
	switch {
	case open != nil:
		switch r.CurrentState {
		case attendance.StateWorking, attendance.StateLunchBreak, attendance.StatePersonalBreak:
		default:
			r.CurrentState = attendance.StateWorking
		}
	case len(r.WorkSessions) > 0:
		end := *r.WorkSessions[len(r.WorkSessions)-1].CheckOut
		if r.LunchBreak != nil && r.LunchBreak.IsOpen() {
			r.LunchBreak.End = clampAfter(end, r.LunchBreak.Start)
		}
		if b := r.OpenPersonalBreak(); b != nil {
			b.In = clampAfter(end, b.Out)
		}
		r.CurrentState = attendance.StateCheckedOut
	default:
		r.CurrentState = attendance.StateNotCheckedIn
	}
}

// annotateManual recomputes lateness and overtime from the first check-in
// and last check-out.
func (a *AttendanceServiceImpl) annotateManual(r *attendance.Record) {
	r.IsLate, r.LateMinutes = false, 0
	r.EarlyDeparture, r.EarlyMinutes, r.OvertimeMinutes = false, 0, 0

	if first := r.FirstCheckIn(); first != nil {
		probe := attendance.Record{Date: r.Date, WorkSessions: []attendance.WorkSession{{CheckIn: *first}}}
		a.policy.Annotate(&probe, attendance.CommandCheckIn, *first)
		r.IsLate, r.LateMinutes = probe.IsLate, probe.LateMinutes
	}
	if r.OpenSession() == nil {
		if last := r.LastCheckOut(); last != nil {
			a.policy.Annotate(r, attendance.CommandCheckOut, *last)
		}
	}
}

func closeLastSession(r *attendance.Record, at time.Time) error {
	if len(r.WorkSessions) == 0 {
		return validator.ValidationErrors{
			{Field: "check_out", Message: "record has no check-in to close"},
		}
	}
	target := r.OpenSession()
	if target == nil {
		target = &r.WorkSessions[len(r.WorkSessions)-1]
	}
	out := at
	target.CheckOut = &out
	return nil
}

func validateSessions(r attendance.Record) error {
	for _, s := range r.WorkSessions {
		if s.CheckOut != nil && s.CheckOut.Before(s.CheckIn) {
			return validator.ValidationErrors{
				{Field: "check_out", Message: "check_out must not be before check_in"},
			}
		}
	}
	return nil
}

func clampAfter(t, floor time.Time) *time.Time {
	if t.Before(floor) {
		t = floor
	}
	return &t
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := validator.IsValidDateTime(*s)
	if !ok {
		return nil
	}
	return &t
}
