package attendance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hrms-backend-go/internal/repository/memory"
	attendanceService "github.com/cmlabs-hris/hrms-backend-go/internal/service/attendance"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type publishedEvent struct {
	key  string
	name string
	data interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(key, name string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{key: key, name: name, data: data})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.name)
	}
	return out
}

// flakyRepository loses the get-or-create race a fixed number of times.
type flakyRepository struct {
	attendance.AttendanceRepository
	failures atomic.Int64
}

func (f *flakyRepository) GetOrCreateForUpdate(ctx context.Context, employeeID string, day time.Time) (attendance.Record, error) {
	if f.failures.Add(-1) >= 0 {
		return attendance.Record{}, attendance.ErrDuplicateRecord
	}
	return f.AttendanceRepository.GetOrCreateForUpdate(ctx, employeeID, day)
}

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fixture struct {
	svc        attendance.AttendanceService
	store      *memory.Store
	repo       attendance.AttendanceRepository
	clock      *mutableClock
	publisher  *recordingPublisher
	jwtService jwt.Service
	deptID     string
	aliceID    string
	bobID      string
}

func newFixture(t *testing.T, wrap func(attendance.AttendanceRepository) attendance.AttendanceRepository) *fixture {
	t.Helper()

	store := memory.NewStore(time.UTC)
	f := &fixture{
		store:      store,
		repo:       memory.NewAttendanceRepository(store),
		clock:      &mutableClock{now: at(9, 0)},
		publisher:  &recordingPublisher{},
		jwtService: jwt.NewJWTService("service-test-secret", "1h"),
		deptID:     uuid.NewString(),
		aliceID:    uuid.NewString(),
		bobID:      uuid.NewString(),
	}
	store.AddDepartment(f.deptID, "Engineering")
	store.AddEmployee(employee.Employee{ID: f.aliceID, EmployeeCode: "E1", FullName: "Alice", DepartmentID: &f.deptID, EmploymentStatus: employee.EmploymentStatusActive})
	store.AddEmployee(employee.Employee{ID: f.bobID, EmployeeCode: "E2", FullName: "Bob", DepartmentID: &f.deptID, EmploymentStatus: employee.EmploymentStatusActive})

	repo := f.repo
	if wrap != nil {
		repo = wrap(repo)
	}

	f.svc = attendanceService.NewAttendanceService(
		store.Transactor(),
		repo,
		memory.NewEmployeeRepository(store),
		f.jwtService,
		f.publisher,
		attendanceService.Options{
			Location:          time.UTC,
			Clock:             f.clock,
			Policy:            attendance.DefaultShiftPolicy(),
			TransitionRetries: 3,
			Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	)
	return f
}

func (f *fixture) ctx(t *testing.T, employeeID string, role user.Role) context.Context {
	t.Helper()
	tokenString, _, err := f.jwtService.GenerateAccessToken(uuid.NewString(), "test@example.com", &employeeID, role)
	require.NoError(t, err)
	token, err := f.jwtService.JWTAuth().Decode(tokenString)
	require.NoError(t, err)
	return jwtauth.NewContext(context.Background(), token, nil)
}

func TestTransition_FullDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	_, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)

	f.clock.Set(at(12, 0))
	_, err = f.svc.StartLunch(ctx)
	require.NoError(t, err)

	f.clock.Set(at(12, 30))
	_, err = f.svc.EndLunch(ctx)
	require.NoError(t, err)

	f.clock.Set(at(18, 0))
	resp, err := f.svc.CheckOut(ctx)
	require.NoError(t, err)

	assert.Equal(t, attendance.StateCheckedOut, resp.CurrentState)
	assert.Equal(t, 540, resp.TotalWorkingMinutes)
	assert.Equal(t, 30, resp.TotalBreakMinutes)
	assert.Equal(t, 60, resp.OvertimeMinutes)
	assert.False(t, resp.IsLate)
	require.NotNil(t, resp.EmployeeName)
	assert.Equal(t, "Alice", *resp.EmployeeName)

	assert.Equal(t, []string{
		attendance.EventUpdated, attendance.EventUpdated, attendance.EventUpdated, attendance.EventUpdated,
	}, f.publisher.names())
}

func TestTransition_LateCheckIn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	f.clock.Set(at(9, 25))
	resp, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.True(t, resp.IsLate)
	assert.Equal(t, 25, resp.LateMinutes)
}

func TestTransition_RejectedCommandCreatesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	_, err := f.svc.StartLunch(ctx)
	assert.ErrorIs(t, err, attendance.ErrNotCheckedIn)
	assert.ErrorIs(t, err, attendance.ErrIllegalTransition)

	rec, err := f.repo.GetByEmployeeAndDate(context.Background(), f.aliceID, day, false)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, f.publisher.names())
}

func TestTransition_ConcurrentCheckIns(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CheckIn(ctx)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)
	}
	assert.Equal(t, 1, succeeded)

	rec, err := f.repo.GetByEmployeeAndDate(context.Background(), f.aliceID, day, false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.WorkSessions, 1)
}

func TestTransition_RetriesLostRace(t *testing.T) {
	var flaky *flakyRepository
	f := newFixture(t, func(r attendance.AttendanceRepository) attendance.AttendanceRepository {
		flaky = &flakyRepository{AttendanceRepository: r}
		flaky.failures.Store(2)
		return flaky
	})
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	resp, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateWorking, resp.CurrentState)

	flaky.failures.Store(10)
	f.clock.Set(at(17, 0))
	_, err = f.svc.CheckOut(ctx)
	assert.ErrorIs(t, err, attendance.ErrDuplicateRecord)
}

func TestTransition_ProfileErrors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CheckIn(f.ctx(t, uuid.NewString(), user.RoleEmployee))
	assert.ErrorIs(t, err, attendance.ErrEmployeeProfileNotFound)

	resignedID := uuid.NewString()
	f.store.AddEmployee(employee.Employee{ID: resignedID, FullName: "Carol", EmploymentStatus: employee.EmploymentStatusResigned})
	_, err = f.svc.CheckIn(f.ctx(t, resignedID, user.RoleEmployee))
	assert.ErrorIs(t, err, employee.ErrEmployeeInactive)

	_, err = f.svc.CheckIn(context.Background())
	assert.Error(t, err)
}

func TestGetMyStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	status, err := f.svc.GetMyStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Attendance.ID)
	assert.Equal(t, attendance.StateNotCheckedIn, status.Attendance.CurrentState)
	assert.Equal(t, "Alice", status.Employee.FullName)
	assert.Nil(t, status.ForgottenCheckout)

	// Reading status never stores anything.
	rec, err := f.repo.GetByEmployeeAndDate(context.Background(), f.aliceID, day, false)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetMyStatus_ForgottenCheckout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	yesterday := day.AddDate(0, 0, -1)
	f.clock.Set(yesterday.Add(17 * time.Hour))
	_, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)

	f.clock.Set(at(9, 0))
	status, err := f.svc.GetMyStatus(ctx)
	require.NoError(t, err)

	require.NotNil(t, status.ForgottenCheckout)
	assert.Equal(t, attendance.ClassPreviousDay, status.ForgottenCheckout.Classification)
	assert.Equal(t, attendance.StateNotCheckedIn, status.Attendance.CurrentState)

	// Today starts fresh.
	resp, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateWorking, resp.CurrentState)
}

func TestMarkAttendance(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)
	adminCtx := f.ctx(t, f.bobID, user.RoleAdmin)

	_, err := f.svc.CheckIn(aliceCtx)
	require.NoError(t, err)

	checkIn := "2025-03-10T08:00:00Z"
	checkOut := "2025-03-10T16:00:00Z"
	req := attendance.MarkAttendanceRequest{
		EmployeeID: f.aliceID,
		Date:       "2025-03-10",
		Status:     "present",
		CheckIn:    &checkIn,
		CheckOut:   &checkOut,
	}

	_, err = f.svc.MarkAttendance(adminCtx, req)
	assert.ErrorIs(t, err, attendance.ErrLiveRecordExists)

	req.Force = true
	resp, err := f.svc.MarkAttendance(adminCtx, req)
	require.NoError(t, err)
	assert.Equal(t, attendance.OriginManual, resp.Origin)
	assert.Equal(t, attendance.StateCheckedOut, resp.CurrentState)
	assert.Equal(t, 480, resp.TotalWorkingMinutes)
	assert.Equal(t, 60, resp.EarlyMinutes)
	require.NotNil(t, resp.MarkedBy)

	_, err = f.svc.CheckIn(aliceCtx)
	assert.ErrorIs(t, err, attendance.ErrManualRecord)
}

func TestMarkAttendance_AbsentAndUnknownEmployee(t *testing.T) {
	f := newFixture(t, nil)
	adminCtx := f.ctx(t, f.bobID, user.RoleAdmin)

	resp, err := f.svc.MarkAttendance(adminCtx, attendance.MarkAttendanceRequest{
		EmployeeID: f.aliceID,
		Date:       "2025-03-09",
		Status:     "absent",
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.StateNotCheckedIn, resp.CurrentState)
	assert.Equal(t, attendance.ClassAbsent, resp.Classification)

	_, err = f.svc.MarkAttendance(adminCtx, attendance.MarkAttendanceRequest{
		EmployeeID: uuid.NewString(),
		Date:       "2025-03-09",
		Status:     "absent",
	})
	assert.ErrorIs(t, err, employee.ErrEmployeeNotFound)
}

func TestUpdateAttendance(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)
	adminCtx := f.ctx(t, f.bobID, user.RoleHR)

	_, err := f.svc.CheckIn(aliceCtx)
	require.NoError(t, err)
	f.clock.Set(at(12, 0))
	live, err := f.svc.StartLunch(aliceCtx)
	require.NoError(t, err)

	notes := "badge reader offline"
	resp, err := f.svc.UpdateAttendance(adminCtx, attendance.UpdateAttendanceRequest{ID: live.ID, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, attendance.OriginRealtime, resp.Origin, "notes alone keep the record live")
	assert.Equal(t, attendance.StateLunchBreak, resp.CurrentState)

	checkOut := "2025-03-10T12:20:00Z"
	resp, err = f.svc.UpdateAttendance(adminCtx, attendance.UpdateAttendanceRequest{ID: live.ID, CheckOut: &checkOut})
	require.NoError(t, err)
	assert.Equal(t, attendance.OriginManual, resp.Origin)
	assert.Equal(t, attendance.StateCheckedOut, resp.CurrentState)
	require.NotNil(t, resp.LunchBreak)
	require.NotNil(t, resp.LunchBreak.End)
	assert.Equal(t, 20, resp.LunchBreak.DurationMinutes)
	assert.Equal(t, 200, resp.TotalWorkingMinutes)

	late := "2025-03-10T13:00:00Z"
	_, err = f.svc.UpdateAttendance(adminCtx, attendance.UpdateAttendanceRequest{ID: live.ID, CheckIn: &late})
	assert.Error(t, err, "check-in after the stored check-out is rejected")

	_, err = f.svc.UpdateAttendance(adminCtx, attendance.UpdateAttendanceRequest{ID: uuid.NewString(), Notes: &notes})
	assert.ErrorIs(t, err, attendance.ErrAttendanceNotFound)
}

func TestUpdateAttendance_StatusKeepsRecordLive(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)
	adminCtx := f.ctx(t, f.bobID, user.RoleHR)

	live, err := f.svc.CheckIn(aliceCtx)
	require.NoError(t, err)

	wfh := "wfh"
	resp, err := f.svc.UpdateAttendance(adminCtx, attendance.UpdateAttendanceRequest{ID: live.ID, Status: &wfh})
	require.NoError(t, err)
	assert.Equal(t, attendance.OriginRealtime, resp.Origin)
	assert.Equal(t, attendance.StateWorking, resp.CurrentState)
	assert.Equal(t, attendance.StatusWFH, resp.Status)

	f.clock.Set(at(17, 0))
	out, err := f.svc.CheckOut(aliceCtx)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateCheckedOut, out.CurrentState)
	assert.Equal(t, attendance.StatusWFH, out.Status)
	assert.Equal(t, 480, out.TotalWorkingMinutes)
}

func TestGetAndDeleteAttendance(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)
	bobCtx := f.ctx(t, f.bobID, user.RoleEmployee)
	adminCtx := f.ctx(t, f.bobID, user.RoleAdmin)

	rec, err := f.svc.CheckIn(aliceCtx)
	require.NoError(t, err)

	_, err = f.svc.GetAttendance(aliceCtx, rec.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetAttendance(bobCtx, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrUnauthorized)
	_, err = f.svc.GetAttendance(adminCtx, rec.ID)
	assert.NoError(t, err)

	require.NoError(t, f.svc.DeleteAttendance(adminCtx, rec.ID))
	assert.Contains(t, f.publisher.names(), attendance.EventDeleted)

	_, err = f.svc.GetAttendance(adminCtx, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrAttendanceNotFound)
	assert.ErrorIs(t, f.svc.DeleteAttendance(adminCtx, rec.ID), attendance.ErrAttendanceNotFound)
}

func TestListAndHistory(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)
	bobCtx := f.ctx(t, f.bobID, user.RoleEmployee)

	for i := 0; i < 3; i++ {
		d := day.AddDate(0, 0, i)
		f.clock.Set(d.Add(9 * time.Hour))
		_, err := f.svc.CheckIn(aliceCtx)
		require.NoError(t, err)
		f.clock.Set(d.Add(17 * time.Hour))
		_, err = f.svc.CheckOut(aliceCtx)
		require.NoError(t, err)
	}
	_, err := f.svc.CheckIn(bobCtx)
	require.NoError(t, err)

	list, err := f.svc.ListAttendance(context.Background(), attendance.AttendanceFilter{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, list.TotalCount)
	assert.Equal(t, 2, list.TotalPages)
	assert.Len(t, list.Attendances, 2)
	assert.Equal(t, "1-2 of 4", list.Showing)

	onlyAlice, err := f.svc.ListAttendance(context.Background(), attendance.AttendanceFilter{EmployeeID: &f.aliceID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, onlyAlice.TotalCount)

	history, err := f.svc.GetMyHistory(aliceCtx, attendance.MyHistoryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Date.After(history[1].Date), "newest first")
}

func TestGetSummary(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)

	carolID := uuid.NewString()
	f.store.AddEmployee(employee.Employee{ID: carolID, FullName: "Carol", DepartmentID: &f.deptID, EmploymentStatus: employee.EmploymentStatusActive})
	carolCtx := f.ctx(t, carolID, user.RoleEmployee)

	// Carol forgot to check out yesterday.
	f.clock.Set(day.AddDate(0, 0, -1).Add(17 * time.Hour))
	_, err := f.svc.CheckIn(carolCtx)
	require.NoError(t, err)

	f.clock.Set(at(9, 30))
	_, err = f.svc.CheckIn(aliceCtx)
	require.NoError(t, err)

	summary, err := f.svc.GetSummary(context.Background(), attendance.SummaryRequest{})
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", summary.Date)
	assert.Equal(t, 3, summary.TotalEmployee)
	assert.Equal(t, 1, summary.Present)
	assert.Equal(t, 1, summary.Working)
	assert.Equal(t, 1, summary.Late)
	assert.Equal(t, 1, summary.PreviousDay)
	assert.Equal(t, 1, summary.Absent)
	require.Len(t, summary.ForgottenCheckouts, 1)
	assert.Equal(t, carolID, summary.ForgottenCheckouts[0].EmployeeID)

	_, err = f.svc.GetSummary(context.Background(), attendance.SummaryRequest{Date: ptr("March 10")})
	assert.Error(t, err)
}

func TestGetSummary_MarkedAbsenceOverridesForgottenSession(t *testing.T) {
	f := newFixture(t, nil)
	aliceCtx := f.ctx(t, f.aliceID, user.RoleEmployee)
	adminCtx := f.ctx(t, f.bobID, user.RoleAdmin)

	f.clock.Set(day.AddDate(0, 0, -1).Add(9 * time.Hour))
	_, err := f.svc.CheckIn(aliceCtx)
	require.NoError(t, err)

	f.clock.Set(at(10, 0))
	_, err = f.svc.MarkAttendance(adminCtx, attendance.MarkAttendanceRequest{
		EmployeeID: f.aliceID,
		Date:       "2025-03-10",
		Status:     "absent",
	})
	require.NoError(t, err)

	summary, err := f.svc.GetSummary(context.Background(), attendance.SummaryRequest{})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.PreviousDay)
	assert.Equal(t, 2, summary.Absent)
	require.Len(t, summary.ForgottenCheckouts, 1)
	assert.Equal(t, f.aliceID, summary.ForgottenCheckouts[0].EmployeeID)
}

func TestGenerateStreamToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx(t, f.aliceID, user.RoleEmployee)

	resp, err := f.svc.GenerateStreamToken(ctx)
	require.NoError(t, err)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := f.jwtService.ValidateStreamToken(resp.Token)
	require.NoError(t, err)
	require.NotNil(t, claims.EmployeeID)
	assert.Equal(t, f.aliceID, *claims.EmployeeID)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Transition(f.ctx(t, f.aliceID, user.RoleEmployee), attendance.Command("nap"), "")
	assert.True(t, errors.Is(err, attendance.ErrUnknownCommand))
}

func ptr(s string) *string { return &s }
