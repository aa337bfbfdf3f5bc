// Package memory holds in-process repositories used by the memory storage
// driver and by tests. A transaction holds the store's write lock for its
// whole duration and restores the previous contents if fn fails.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/database"
)

type txKey struct{}

// Store is the shared state behind the memory repositories.
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	records     map[string]attendance.Record // id -> record
	byDay       map[dayKey]string            // (employee, day) -> id
	employees   map[string]employee.Employee
	departments map[string]string // id -> name

	location *time.Location
	now      func() time.Time
}

type dayKey struct {
	employeeID string
	day        int64
}

func keyOf(employeeID string, day time.Time) dayKey {
	return dayKey{employeeID: employeeID, day: day.Unix()}
}

// NewStore creates an empty store. Date filters are read in location.
func NewStore(location *time.Location) *Store {
	if location == nil {
		location = time.Local
	}
	return &Store{
		records:     make(map[string]attendance.Record),
		byDay:       make(map[dayKey]string),
		employees:   make(map[string]employee.Employee),
		departments: make(map[string]string),
		location:    location,
		now:         time.Now,
	}
}

// AddDepartment registers a department name for joins.
func (s *Store) AddDepartment(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[id] = name
}

// AddEmployee inserts or replaces an employee.
func (s *Store) AddEmployee(e employee.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

// Transactor returns a database.Transactor over this store.
func (s *Store) Transactor() database.Transactor {
	return transactor{store: s}
}

type transactor struct {
	store *Store
}

// WithinTransaction implements database.Transactor.
func (t transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s := t.store
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	records map[string]attendance.Record
	byDay   map[dayKey]string
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := storeSnapshot{
		records: make(map[string]attendance.Record, len(s.records)),
		byDay:   make(map[dayKey]string, len(s.byDay)),
	}
	for id, r := range s.records {
		snap.records[id] = r.Clone()
	}
	for k, v := range s.byDay {
		snap.byDay[k] = v
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snap.records
	s.byDay = snap.byDay
}

// joined decorates r with employee and department names. Callers hold mu.
func (s *Store) joined(r attendance.Record) attendance.Record {
	out := r.Clone()
	if e, ok := s.employees[r.EmployeeID]; ok {
		name, code := e.FullName, e.EmployeeCode
		out.EmployeeName = &name
		out.EmployeeCode = &code
		if e.DepartmentID != nil {
			if dept, ok := s.departments[*e.DepartmentID]; ok {
				out.DepartmentName = &dept
			}
		}
	}
	return out
}

func (s *Store) inDepartment(employeeID string, departmentID *string) bool {
	if departmentID == nil {
		return true
	}
	e, ok := s.employees[employeeID]
	return ok && e.DepartmentID != nil && *e.DepartmentID == *departmentID
}
