package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const attendanceColumns = `
	a.id, a.employee_id, a.date, a.origin, a.current_state,
	a.work_sessions, a.lunch_break, a.personal_breaks,
	a.total_working_minutes, a.total_break_minutes,
	a.status, a.is_late, a.late_minutes, a.early_departure, a.early_minutes, a.overtime_minutes,
	a.notes, a.marked_by, a.created_at, a.updated_at,
	e.full_name, e.employee_code, d.name`

const attendanceFrom = `
	FROM attendance_records a
	LEFT JOIN employees e ON e.id = a.employee_id
	LEFT JOIN departments d ON d.id = e.department_id`

type attendanceRepository struct {
	db       *database.DB
	location *time.Location
}

// NewAttendanceRepository reads YYYY-MM-DD filters as days in location, the
// same zone records are normalized in.
func NewAttendanceRepository(db *database.DB, location *time.Location) attendance.AttendanceRepository {
	if location == nil {
		location = time.Local
	}
	return &attendanceRepository{db: db, location: location}
}

// dayRange turns optional YYYY-MM-DD bounds into [from, until) instants.
// Unparseable bounds are ignored; DTO validation rejects them earlier.
func (a *attendanceRepository) dayRange(startDate, endDate *string) (from, until *time.Time) {
	if startDate != nil && *startDate != "" {
		if t, err := clock.ParseDay(*startDate, a.location); err == nil {
			from = &t
		}
	}
	if endDate != nil && *endDate != "" {
		if t, err := clock.ParseDay(*endDate, a.location); err == nil {
			next := t.AddDate(0, 0, 1)
			until = &next
		}
	}
	return from, until
}

func scanAttendance(row pgx.Row) (attendance.Record, error) {
	var r attendance.Record
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Date, &r.Origin, &r.CurrentState,
		&r.WorkSessions, &r.LunchBreak, &r.PersonalBreaks,
		&r.TotalWorkingMinutes, &r.TotalBreakMinutes,
		&r.Status, &r.IsLate, &r.LateMinutes, &r.EarlyDeparture, &r.EarlyMinutes, &r.OvertimeMinutes,
		&r.Notes, &r.MarkedBy, &r.CreatedAt, &r.UpdatedAt,
		&r.EmployeeName, &r.EmployeeCode, &r.DepartmentName,
	)
	if err != nil {
		return attendance.Record{}, err
	}
	if r.WorkSessions == nil {
		r.WorkSessions = []attendance.WorkSession{}
	}
	if r.PersonalBreaks == nil {
		r.PersonalBreaks = []attendance.PersonalBreak{}
	}
	return r, nil
}

func collectAttendances(rows pgx.Rows) ([]attendance.Record, error) {
	defer rows.Close()

	records := []attendance.Record{}
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendances: %w", err)
	}
	return records, nil
}

// jsonArrays returns the array columns with nil slices replaced so they are
// stored as [] rather than null.
func jsonArrays(r attendance.Record) ([]attendance.WorkSession, []attendance.PersonalBreak) {
	sessions, breaks := r.WorkSessions, r.PersonalBreaks
	if sessions == nil {
		sessions = []attendance.WorkSession{}
	}
	if breaks == nil {
		breaks = []attendance.PersonalBreak{}
	}
	return sessions, breaks
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetOrCreateForUpdate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetOrCreateForUpdate(ctx context.Context, employeeID string, day time.Time) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	// A racing insert makes this a no-op; the SELECT below then waits on
	// the winner's row lock.
	insert := `
		INSERT INTO attendance_records (employee_id, date, origin, current_state, work_sessions, personal_breaks, status)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, '[]'::jsonb, $5)
		ON CONFLICT (employee_id, date) DO NOTHING
	`
	if _, err := q.Exec(ctx, insert, employeeID, day,
		attendance.OriginRealtime, attendance.StateNotCheckedIn, attendance.StatusPresent,
	); err != nil {
		return attendance.Record{}, fmt.Errorf("failed to insert attendance: %w", err)
	}

	query := `SELECT` + attendanceColumns + attendanceFrom + `
		WHERE a.employee_id = $1 AND a.date = $2
		FOR UPDATE OF a
	`
	r, err := scanAttendance(q.QueryRow(ctx, query, employeeID, day))
	if err != nil {
		return attendance.Record{}, fmt.Errorf("failed to lock attendance: %w", err)
	}
	return r, nil
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, day time.Time, forUpdate bool) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT` + attendanceColumns + attendanceFrom + `
		WHERE a.employee_id = $1 AND a.date = $2
	`
	if forUpdate {
		query += ` FOR UPDATE OF a`
	}

	r, err := scanAttendance(q.QueryRow(ctx, query, employeeID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance by employee and date: %w", err)
	}
	return &r, nil
}

// GetByID implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByID(ctx context.Context, id string, forUpdate bool) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT` + attendanceColumns + attendanceFrom + `
		WHERE a.id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE OF a`
	}

	r, err := scanAttendance(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Record{}, attendance.ErrAttendanceNotFound
		}
		return attendance.Record{}, fmt.Errorf("failed to get attendance by id: %w", err)
	}
	return r, nil
}

// Create implements attendance.AttendanceRepository.
func (a *attendanceRepository) Create(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	sessions, breaks := jsonArrays(r)
	query := `
		INSERT INTO attendance_records (
			employee_id, date, origin, current_state,
			work_sessions, lunch_break, personal_breaks,
			total_working_minutes, total_break_minutes,
			status, is_late, late_minutes, early_departure, early_minutes, overtime_minutes,
			notes, marked_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`
	var id string
	err := q.QueryRow(ctx, query,
		r.EmployeeID, r.Date, r.Origin, r.CurrentState,
		sessions, r.LunchBreak, breaks,
		r.TotalWorkingMinutes, r.TotalBreakMinutes,
		r.Status, r.IsLate, r.LateMinutes, r.EarlyDeparture, r.EarlyMinutes, r.OvertimeMinutes,
		r.Notes, r.MarkedBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Record{}, attendance.ErrDuplicateRecord
		}
		return attendance.Record{}, fmt.Errorf("failed to create attendance: %w", err)
	}

	return a.GetByID(ctx, id, false)
}

// Update implements attendance.AttendanceRepository. employee_id and date
// are never rewritten.
func (a *attendanceRepository) Update(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	sessions, breaks := jsonArrays(r)
	query := `
		UPDATE attendance_records SET
			origin = $2, current_state = $3,
			work_sessions = $4, lunch_break = $5, personal_breaks = $6,
			total_working_minutes = $7, total_break_minutes = $8,
			status = $9, is_late = $10, late_minutes = $11,
			early_departure = $12, early_minutes = $13, overtime_minutes = $14,
			notes = $15, marked_by = $16,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		r.ID, r.Origin, r.CurrentState,
		sessions, r.LunchBreak, breaks,
		r.TotalWorkingMinutes, r.TotalBreakMinutes,
		r.Status, r.IsLate, r.LateMinutes,
		r.EarlyDeparture, r.EarlyMinutes, r.OvertimeMinutes,
		r.Notes, r.MarkedBy,
	)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("failed to update attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.Record{}, attendance.ErrAttendanceNotFound
	}

	return a.GetByID(ctx, r.ID, false)
}

// Delete implements attendance.AttendanceRepository.
func (a *attendanceRepository) Delete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, a.db)

	tag, err := q.Exec(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrAttendanceNotFound
	}
	return nil
}

// List implements attendance.AttendanceRepository.
func (a *attendanceRepository) List(ctx context.Context, filter attendance.AttendanceFilter) ([]attendance.Record, int64, error) {
	q := GetQuerier(ctx, a.db)

	baseWhere := "TRUE"
	args := []interface{}{}
	argIdx := 1

	if filter.EmployeeID != nil && *filter.EmployeeID != "" {
		baseWhere += fmt.Sprintf(" AND a.employee_id = $%d", argIdx)
		args = append(args, *filter.EmployeeID)
		argIdx++
	}

	if filter.DepartmentID != nil && *filter.DepartmentID != "" {
		baseWhere += fmt.Sprintf(" AND e.department_id = $%d", argIdx)
		args = append(args, *filter.DepartmentID)
		argIdx++
	}

	from, until := a.dayRange(filter.StartDate, filter.EndDate)
	if from != nil {
		baseWhere += fmt.Sprintf(" AND a.date >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if until != nil {
		baseWhere += fmt.Sprintf(" AND a.date < $%d", argIdx)
		args = append(args, *until)
		argIdx++
	}

	if filter.Status != nil && *filter.Status != "" {
		baseWhere += fmt.Sprintf(" AND a.status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	countQuery := `SELECT COUNT(*)` + attendanceFrom + ` WHERE ` + baseWhere
	var total int64
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count attendances: %w", err)
	}

	orderByField := "a.date"
	switch filter.SortBy {
	case "employee_name":
		orderByField = "e.full_name"
	case "total_working_minutes":
		orderByField = "a.total_working_minutes"
	case "status":
		orderByField = "a.status"
	}
	sortOrder := "DESC"
	if strings.ToLower(filter.SortOrder) == "asc" {
		sortOrder = "ASC"
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	selectQuery := fmt.Sprintf(`SELECT %s %s
		WHERE %s
		ORDER BY %s %s, a.id
		LIMIT $%d OFFSET $%d
	`, attendanceColumns, attendanceFrom, baseWhere, orderByField, sortOrder, argIdx, argIdx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := q.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query attendances: %w", err)
	}
	records, err := collectAttendances(rows)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListByEmployee implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListByEmployee(ctx context.Context, employeeID string, filter attendance.MyHistoryFilter) ([]attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	where := "a.employee_id = $1"
	args := []interface{}{employeeID}
	argIdx := 2

	from, until := a.dayRange(filter.StartDate, filter.EndDate)
	if from != nil {
		where += fmt.Sprintf(" AND a.date >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if until != nil {
		where += fmt.Sprintf(" AND a.date < $%d", argIdx)
		args = append(args, *until)
		argIdx++
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 30
	}

	query := fmt.Sprintf(`SELECT %s %s
		WHERE %s
		ORDER BY a.date DESC
		LIMIT $%d
	`, attendanceColumns, attendanceFrom, where, argIdx)
	args = append(args, limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance history: %w", err)
	}
	return collectAttendances(rows)
}

// ListByDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListByDate(ctx context.Context, day time.Time, departmentID *string) ([]attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT` + attendanceColumns + attendanceFrom + `
		WHERE a.date = $1
		  AND ($2::uuid IS NULL OR e.department_id = $2::uuid)
		ORDER BY e.full_name
	`
	rows, err := q.Query(ctx, query, day, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendances by date: %w", err)
	}
	return collectAttendances(rows)
}

// ListOpenBefore implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListOpenBefore(ctx context.Context, day time.Time, departmentID *string) ([]attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT` + attendanceColumns + attendanceFrom + `
		WHERE a.date < $1
		  AND jsonb_path_exists(a.work_sessions, '$[*] ? (!(exists(@.check_out)))')
		  AND ($2::uuid IS NULL OR e.department_id = $2::uuid)
		ORDER BY a.date
	`
	rows, err := q.Query(ctx, query, day, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open attendances: %w", err)
	}
	return collectAttendances(rows)
}

// GetOpenBefore implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetOpenBefore(ctx context.Context, employeeID string, day time.Time) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT` + attendanceColumns + attendanceFrom + `
		WHERE a.employee_id = $1
		  AND a.date < $2
		  AND jsonb_path_exists(a.work_sessions, '$[*] ? (!(exists(@.check_out)))')
		ORDER BY a.date DESC
		LIMIT 1
	`
	r, err := scanAttendance(q.QueryRow(ctx, query, employeeID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open attendance: %w", err)
	}
	return &r, nil
}
