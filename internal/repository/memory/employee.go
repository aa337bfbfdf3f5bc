package memory

import (
	"context"
	"sort"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
)

type employeeRepository struct {
	store *Store
}

func NewEmployeeRepository(store *Store) employee.EmployeeRepository {
	return &employeeRepository{store: store}
}

// GetByID implements employee.EmployeeRepository.
func (e *employeeRepository) GetByID(ctx context.Context, id string) (employee.Employee, error) {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, ok := s.employees[id]
	if !ok || emp.DeletedAt != nil {
		return employee.Employee{}, employee.ErrEmployeeNotFound
	}
	return s.withDepartment(emp), nil
}

// GetByUserID implements employee.EmployeeRepository.
func (e *employeeRepository) GetByUserID(ctx context.Context, userID string) (employee.Employee, error) {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, emp := range s.employees {
		if emp.UserID != nil && *emp.UserID == userID && emp.DeletedAt == nil {
			return s.withDepartment(emp), nil
		}
	}
	return employee.Employee{}, employee.ErrEmployeeNotFound
}

// ListActive implements employee.EmployeeRepository.
func (e *employeeRepository) ListActive(ctx context.Context, departmentID *string) ([]employee.Employee, error) {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []employee.Employee
	for _, emp := range s.employees {
		if emp.IsActive() && s.inDepartment(emp.ID, departmentID) {
			out = append(out, s.withDepartment(emp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *Store) withDepartment(emp employee.Employee) employee.Employee {
	if emp.DepartmentID != nil {
		if name, ok := s.departments[*emp.DepartmentID]; ok {
			emp.DepartmentName = &name
		}
	}
	return emp
}
