package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/validator"
	"golang.org/x/sync/errgroup"
)

// Options carries the knobs the service reads from configuration.
type Options struct {
	Location          *time.Location
	Clock             clock.Clock
	Policy            attendance.ShiftPolicy
	TransitionRetries int
	Logger            *slog.Logger
}

type AttendanceServiceImpl struct {
	attendance.AttendanceRepository
	employee.EmployeeRepository
	transactor database.Transactor
	jwtService jwt.Service
	publisher  sse.Publisher

	location *time.Location
	clock    clock.Clock
	policy   attendance.ShiftPolicy
	retries  int
	logger   *slog.Logger
}

func NewAttendanceService(
	transactor database.Transactor,
	attendanceRepo attendance.AttendanceRepository,
	employeeRepo employee.EmployeeRepository,
	jwtService jwt.Service,
	publisher sse.Publisher,
	opts Options,
) attendance.AttendanceService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clock.New(opts.Location)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TransitionRetries < 0 {
		opts.TransitionRetries = 0
	}
	return &AttendanceServiceImpl{
		AttendanceRepository: attendanceRepo,
		EmployeeRepository:   employeeRepo,
		transactor:           transactor,
		jwtService:           jwtService,
		publisher:            publisher,
		location:             opts.Location,
		clock:                opts.Clock,
		policy:               opts.Policy,
		retries:              opts.TransitionRetries,
		logger:               opts.Logger,
	}
}

// currentEmployee resolves the employee profile linked to the caller.
func (a *AttendanceServiceImpl) currentEmployee(ctx context.Context) (jwt.Claims, employee.Employee, error) {
	claims, err := jwt.ClaimsFromContext(ctx)
	if err != nil {
		return jwt.Claims{}, employee.Employee{}, err
	}

	var emp employee.Employee
	if claims.EmployeeID != nil {
		emp, err = a.EmployeeRepository.GetByID(ctx, *claims.EmployeeID)
	} else {
		emp, err = a.EmployeeRepository.GetByUserID(ctx, claims.UserID)
	}
	if err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return jwt.Claims{}, employee.Employee{}, attendance.ErrEmployeeProfileNotFound
		}
		return jwt.Claims{}, employee.Employee{}, fmt.Errorf("failed to get employee profile: %w", err)
	}
	if !emp.IsActive() {
		return jwt.Claims{}, employee.Employee{}, employee.ErrEmployeeInactive
	}

	return claims, emp, nil
}

// withRetry reruns fn when a concurrent insert for the same (employee, day)
// won the race. Any other error is returned at once.
func (a *AttendanceServiceImpl) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		err = fn(ctx)
		if !errors.Is(err, attendance.ErrDuplicateRecord) {
			return err
		}
		a.logger.Warn("attendance write lost a race, retrying", "op", op, "attempt", attempt+1)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (a *AttendanceServiceImpl) toResponse(r attendance.Record) attendance.AttendanceResponse {
	return attendance.NewAttendanceResponse(r, a.clock.Now(), a.location)
}

func (a *AttendanceServiceImpl) publish(employeeID string, event string, data interface{}) {
	if a.publisher == nil {
		return
	}
	a.publisher.Publish(employeeID, event, data)
}

// GetMyStatus implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) GetMyStatus(ctx context.Context) (attendance.MyStatusResponse, error) {
	_, emp, err := a.currentEmployee(ctx)
	if err != nil {
		return attendance.MyStatusResponse{}, err
	}

	now := a.clock.Now()
	day := clock.DayStart(now, a.location)

	var today, stale *attendance.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := a.AttendanceRepository.GetByEmployeeAndDate(gctx, emp.ID, day, false)
		if err != nil {
			return fmt.Errorf("failed to get today's attendance: %w", err)
		}
		today = rec
		return nil
	})
	g.Go(func() error {
		rec, err := a.AttendanceRepository.GetOpenBefore(gctx, emp.ID, day)
		if err != nil {
			return fmt.Errorf("failed to get open attendance before today: %w", err)
		}
		stale = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		return attendance.MyStatusResponse{}, err
	}

	if today == nil {
		// Nothing is stored until the first command of the day.
		rec := attendance.NewRecord(emp.ID, day)
		rec.EmployeeName = &emp.FullName
		rec.EmployeeCode = &emp.EmployeeCode
		rec.DepartmentName = emp.DepartmentName
		today = &rec
	}

	resp := attendance.MyStatusResponse{
		Attendance: attendance.NewAttendanceResponse(*today, now, a.location),
		Employee:   employee.ToSummary(emp),
		ServerTime: now,
	}
	if stale != nil {
		forgotten := attendance.NewAttendanceResponse(*stale, now, a.location)
		resp.ForgottenCheckout = &forgotten
	}

	return resp, nil
}

// Transition implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) Transition(ctx context.Context, cmd attendance.Command, reason string) (attendance.AttendanceResponse, error) {
	if _, ok := cmd.Target(); !ok {
		return attendance.AttendanceResponse{}, attendance.ErrUnknownCommand
	}

	_, emp, err := a.currentEmployee(ctx)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	var saved attendance.Record
	var from attendance.State
	err = a.withRetry(ctx, string(cmd), func(ctx context.Context) error {
		return a.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			// Stamp after the row lock is held so commands for one employee
			// are ordered by their timestamps.
			rec, err := a.AttendanceRepository.GetOrCreateForUpdate(ctx, emp.ID, clock.DayStart(a.clock.Now(), a.location))
			if err != nil {
				return fmt.Errorf("failed to load attendance: %w", err)
			}
			now := a.clock.Now()

			from = rec.CurrentState
			if err := rec.Apply(cmd, now, reason); err != nil {
				return err
			}
			a.policy.Annotate(&rec, cmd, now)

			saved, err = a.AttendanceRepository.Update(ctx, rec)
			if err != nil {
				return fmt.Errorf("failed to save attendance: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		var terr *attendance.TransitionError
		if errors.As(err, &terr) {
			a.logger.Warn("attendance transition rejected",
				"employee_id", emp.ID,
				"command", cmd,
				"from", terr.From,
				"reason", terr.Reason,
			)
		}
		return attendance.AttendanceResponse{}, err
	}

	a.logger.Info("attendance transition",
		"employee_id", emp.ID,
		"attendance_id", saved.ID,
		"command", cmd,
		"from", from,
		"to", saved.CurrentState,
	)

	resp := a.toResponse(saved)
	a.publish(emp.ID, attendance.EventUpdated, resp)
	return resp, nil
}

// CheckIn implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) CheckIn(ctx context.Context) (attendance.AttendanceResponse, error) {
	return a.Transition(ctx, attendance.CommandCheckIn, "")
}

// CheckOut implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) CheckOut(ctx context.Context) (attendance.AttendanceResponse, error) {
	return a.Transition(ctx, attendance.CommandCheckOut, "")
}

// StartLunch implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) StartLunch(ctx context.Context) (attendance.AttendanceResponse, error) {
	return a.Transition(ctx, attendance.CommandStartLunch, "")
}

// EndLunch implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) EndLunch(ctx context.Context) (attendance.AttendanceResponse, error) {
	return a.Transition(ctx, attendance.CommandEndLunch, "")
}

// StartBreak implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) StartBreak(ctx context.Context, req attendance.StartBreakRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}
	return a.Transition(ctx, attendance.CommandStartBreak, req.Reason)
}

// EndBreak implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) EndBreak(ctx context.Context) (attendance.AttendanceResponse, error) {
	return a.Transition(ctx, attendance.CommandEndBreak, "")
}

// GetMyHistory implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) GetMyHistory(ctx context.Context, filter attendance.MyHistoryFilter) ([]attendance.AttendanceResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	_, emp, err := a.currentEmployee(ctx)
	if err != nil {
		return nil, err
	}

	records, err := a.AttendanceRepository.ListByEmployee(ctx, emp.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance history: %w", err)
	}

	responses := make([]attendance.AttendanceResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, a.toResponse(rec))
	}
	return responses, nil
}

// ListAttendance implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) ListAttendance(ctx context.Context, filter attendance.AttendanceFilter) (attendance.ListAttendanceResponse, error) {
	if err := filter.Validate(); err != nil {
		return attendance.ListAttendanceResponse{}, err
	}

	records, total, err := a.AttendanceRepository.List(ctx, filter)
	if err != nil {
		return attendance.ListAttendanceResponse{}, fmt.Errorf("failed to list attendances: %w", err)
	}

	responses := make([]attendance.AttendanceResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, a.toResponse(rec))
	}

	totalPages := int(math.Ceil(float64(total) / float64(filter.Limit)))
	showing := fmt.Sprintf("%d-%d of %d", (filter.Page-1)*filter.Limit+1, min(filter.Page*filter.Limit, int(total)), total)
	if len(responses) == 0 {
		showing = fmt.Sprintf("0 of %d", total)
	}

	return attendance.ListAttendanceResponse{
		TotalCount:  total,
		Page:        filter.Page,
		Limit:       filter.Limit,
		TotalPages:  totalPages,
		Showing:     showing,
		Attendances: responses,
	}, nil
}

// GetAttendance implements attendance.AttendanceService. Callers without
// attendance.view_all may only read their own records.
func (a *AttendanceServiceImpl) GetAttendance(ctx context.Context, id string) (attendance.AttendanceResponse, error) {
	if !validator.IsValidUUID(id) {
		return attendance.AttendanceResponse{}, validator.ValidationErrors{
			{Field: "id", Message: "id must be a valid UUID"},
		}
	}

	claims, err := jwt.ClaimsFromContext(ctx)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	rec, err := a.AttendanceRepository.GetByID(ctx, id, false)
	if err != nil {
		if errors.Is(err, attendance.ErrAttendanceNotFound) {
			return attendance.AttendanceResponse{}, attendance.ErrAttendanceNotFound
		}
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to get attendance: %w", err)
	}

	if !user.HasPermission(claims.Role, user.PermissionAttendanceViewAll) {
		_, emp, err := a.currentEmployee(ctx)
		if err != nil {
			return attendance.AttendanceResponse{}, err
		}
		if emp.ID != rec.EmployeeID {
			return attendance.AttendanceResponse{}, attendance.ErrUnauthorized
		}
	}

	return a.toResponse(rec), nil
}

// GenerateStreamToken implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) GenerateStreamToken(ctx context.Context) (attendance.StreamTokenResponse, error) {
	claims, emp, err := a.currentEmployee(ctx)
	if err != nil {
		return attendance.StreamTokenResponse{}, err
	}

	token, expiresAt, err := a.jwtService.GenerateStreamToken(claims.UserID, emp.ID)
	if err != nil {
		return attendance.StreamTokenResponse{}, fmt.Errorf("failed to generate stream token: %w", err)
	}

	return attendance.StreamTokenResponse{Token: token, ExpiresAt: expiresAt}, nil
}
