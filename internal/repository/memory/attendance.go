package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/google/uuid"
)

type attendanceRepository struct {
	store *Store
}

func NewAttendanceRepository(store *Store) attendance.AttendanceRepository {
	return &attendanceRepository{store: store}
}

// GetOrCreateForUpdate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetOrCreateForUpdate(ctx context.Context, employeeID string, day time.Time) (attendance.Record, error) {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byDay[keyOf(employeeID, day)]; ok {
		return s.joined(s.records[id]), nil
	}

	rec := attendance.NewRecord(employeeID, day)
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now()
	rec.UpdatedAt = rec.CreatedAt
	s.records[rec.ID] = rec.Clone()
	s.byDay[keyOf(employeeID, day)] = rec.ID
	return s.joined(rec), nil
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, day time.Time, forUpdate bool) (*attendance.Record, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDay[keyOf(employeeID, day)]
	if !ok {
		return nil, nil
	}
	rec := s.joined(s.records[id])
	return &rec, nil
}

// GetByID implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByID(ctx context.Context, id string, forUpdate bool) (attendance.Record, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return attendance.Record{}, attendance.ErrAttendanceNotFound
	}
	return s.joined(rec), nil
}

// Create implements attendance.AttendanceRepository.
func (a *attendanceRepository) Create(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byDay[keyOf(r.EmployeeID, r.Date)]; exists {
		return attendance.Record{}, attendance.ErrDuplicateRecord
	}

	rec := r.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = s.now()
	rec.UpdatedAt = rec.CreatedAt
	s.records[rec.ID] = rec
	s.byDay[keyOf(rec.EmployeeID, rec.Date)] = rec.ID
	return s.joined(rec), nil
}

// Update implements attendance.AttendanceRepository.
func (a *attendanceRepository) Update(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[r.ID]
	if !ok {
		return attendance.Record{}, attendance.ErrAttendanceNotFound
	}

	rec := r.Clone()
	// employee and date are immutable once created
	rec.EmployeeID = existing.EmployeeID
	rec.Date = existing.Date
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()
	s.records[rec.ID] = rec
	return s.joined(rec), nil
}

// Delete implements attendance.AttendanceRepository.
func (a *attendanceRepository) Delete(ctx context.Context, id string) error {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return attendance.ErrAttendanceNotFound
	}
	delete(s.records, id)
	delete(s.byDay, keyOf(rec.EmployeeID, rec.Date))
	return nil
}

// List implements attendance.AttendanceRepository.
func (a *attendanceRepository) List(ctx context.Context, filter attendance.AttendanceFilter) ([]attendance.Record, int64, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := s.dateBounds(filter.StartDate, filter.EndDate)

	var matched []attendance.Record
	for _, r := range s.records {
		if filter.EmployeeID != nil && r.EmployeeID != *filter.EmployeeID {
			continue
		}
		if !s.inDepartment(r.EmployeeID, filter.DepartmentID) {
			continue
		}
		if filter.Status != nil && string(r.Status) != *filter.Status {
			continue
		}
		if !inRange(r.Date, start, end) {
			continue
		}
		matched = append(matched, s.joined(r))
	}

	sortRecords(matched, filter.SortBy, filter.SortOrder)

	total := int64(len(matched))
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = math.MaxInt32
	}
	from := (page - 1) * limit
	if from >= len(matched) {
		return []attendance.Record{}, total, nil
	}
	to := from + limit
	if to > len(matched) {
		to = len(matched)
	}
	return matched[from:to], total, nil
}

// ListByEmployee implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListByEmployee(ctx context.Context, employeeID string, filter attendance.MyHistoryFilter) ([]attendance.Record, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := s.dateBounds(filter.StartDate, filter.EndDate)

	var out []attendance.Record
	for _, r := range s.records {
		if r.EmployeeID == employeeID && inRange(r.Date, start, end) {
			out = append(out, s.joined(r))
		}
	}
	sortRecords(out, "date", "desc")
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListByDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListByDate(ctx context.Context, day time.Time, departmentID *string) ([]attendance.Record, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attendance.Record
	for _, r := range s.records {
		if r.Date.Equal(day) && s.inDepartment(r.EmployeeID, departmentID) {
			out = append(out, s.joined(r))
		}
	}
	sortRecords(out, "employee_name", "asc")
	return out, nil
}

// ListOpenBefore implements attendance.AttendanceRepository.
func (a *attendanceRepository) ListOpenBefore(ctx context.Context, day time.Time, departmentID *string) ([]attendance.Record, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attendance.Record
	for _, r := range s.records {
		if r.Date.Before(day) && r.OpenSession() != nil && s.inDepartment(r.EmployeeID, departmentID) {
			out = append(out, s.joined(r))
		}
	}
	sortRecords(out, "date", "asc")
	return out, nil
}

// GetOpenBefore implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetOpenBefore(ctx context.Context, employeeID string, day time.Time) (*attendance.Record, error) {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *attendance.Record
	for _, r := range s.records {
		if r.EmployeeID != employeeID || !r.Date.Before(day) || r.OpenSession() == nil {
			continue
		}
		if latest == nil || r.Date.After(latest.Date) {
			rec := s.joined(r)
			latest = &rec
		}
	}
	return latest, nil
}

func (s *Store) dateBounds(startDate, endDate *string) (start, end *time.Time) {
	if startDate != nil && *startDate != "" {
		if t, err := clock.ParseDay(*startDate, s.location); err == nil {
			start = &t
		}
	}
	if endDate != nil && *endDate != "" {
		if t, err := clock.ParseDay(*endDate, s.location); err == nil {
			end = &t
		}
	}
	return start, end
}

func inRange(day time.Time, start, end *time.Time) bool {
	if start != nil && day.Before(*start) {
		return false
	}
	if end != nil && day.After(*end) {
		return false
	}
	return true
}

func sortRecords(records []attendance.Record, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "desc")
	less := func(i, j int) bool {
		a, b := records[i], records[j]
		switch sortBy {
		case "employee_name":
			if an, bn := deref(a.EmployeeName), deref(b.EmployeeName); an != bn {
				return an < bn
			}
		case "total_working_minutes":
			if a.TotalWorkingMinutes != b.TotalWorkingMinutes {
				return a.TotalWorkingMinutes < b.TotalWorkingMinutes
			}
		case "status":
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	}
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
