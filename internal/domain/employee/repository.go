package employee

import "context"

type EmployeeRepository interface {
	GetByID(ctx context.Context, id string) (Employee, error)
	GetByUserID(ctx context.Context, userID string) (Employee, error)

	// ListActive returns active employees, optionally limited to one department.
	ListActive(ctx context.Context, departmentID *string) ([]Employee, error)
}
