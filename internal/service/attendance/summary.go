package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"golang.org/x/sync/errgroup"
)

// GetSummary implements attendance.AttendanceService. Every active employee
// lands in exactly one of present, previous_day or absent.
func (a *AttendanceServiceImpl) GetSummary(ctx context.Context, req attendance.SummaryRequest) (attendance.SummaryResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.SummaryResponse{}, err
	}

	now := a.clock.Now()
	day := clock.DayStart(now, a.location)
	if req.Date != nil && *req.Date != "" {
		parsed, err := clock.ParseDay(*req.Date, a.location)
		if err != nil {
			return attendance.SummaryResponse{}, fmt.Errorf("failed to parse summary date: %w", err)
		}
		day = parsed
	}

	var (
		employees []employee.Employee
		records   []attendance.Record
		stale     []attendance.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		employees, err = a.EmployeeRepository.ListActive(gctx, req.DepartmentID)
		if err != nil {
			return fmt.Errorf("failed to list active employees: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = a.AttendanceRepository.ListByDate(gctx, day, req.DepartmentID)
		if err != nil {
			return fmt.Errorf("failed to list attendances for day: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stale, err = a.AttendanceRepository.ListOpenBefore(gctx, day, req.DepartmentID)
		if err != nil {
			return fmt.Errorf("failed to list open attendances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return attendance.SummaryResponse{}, err
	}

	return summarize(day, a.location, now, employees, records, stale), nil
}

func summarize(day time.Time, loc *time.Location, now time.Time, employees []employee.Employee, records, stale []attendance.Record) attendance.SummaryResponse {
	byEmployee := make(map[string]*attendance.Record, len(records))
	for i := range records {
		byEmployee[records[i].EmployeeID] = &records[i]
	}

	// Most recent stale record per employee.
	staleByEmployee := make(map[string]*attendance.Record, len(stale))
	for i := range stale {
		rec := &stale[i]
		if prev, ok := staleByEmployee[rec.EmployeeID]; !ok || rec.Date.After(prev.Date) {
			staleByEmployee[rec.EmployeeID] = rec
		}
	}

	summary := attendance.SummaryResponse{
		Date:               day.Format("2006-01-02"),
		TotalEmployee:      len(employees),
		ForgottenCheckouts: []attendance.AttendanceResponse{},
	}

	for _, emp := range employees {
		rec := byEmployee[emp.ID]

		switch attendance.Classify(rec, day, loc) {
		case attendance.ClassPresent:
			summary.Present++
			switch rec.CurrentState {
			case attendance.StateWorking:
				summary.Working++
			case attendance.StateLunchBreak, attendance.StatePersonalBreak:
				summary.OnBreak++
			case attendance.StateCheckedOut:
				summary.CheckedOut++
			}
			if rec.IsLate {
				summary.Late++
			}
		case attendance.ClassPreviousDay:
			summary.PreviousDay++
		default:
			// A record for the day, such as an admin-marked absence, wins
			// over an open session left on an earlier day. That session is
			// still listed in ForgottenCheckouts.
			if _, forgot := staleByEmployee[emp.ID]; forgot && rec == nil {
				summary.PreviousDay++
			} else {
				summary.Absent++
			}
		}
	}

	for i := range stale {
		summary.ForgottenCheckouts = append(summary.ForgottenCheckouts, attendance.NewAttendanceResponse(stale[i], now, loc))
	}

	return summary
}
