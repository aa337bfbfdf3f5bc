package attendance

import (
	"context"
	"time"
)

// AttendanceRepository defines data access for attendance records. Methods
// run inside the transaction carried by ctx when there is one.
type AttendanceRepository interface {
	// GetOrCreateForUpdate returns the (employee, day) record locked until the
	// surrounding transaction ends, inserting an empty realtime record first
	// if none exists. It must be called inside a transaction.
	GetOrCreateForUpdate(ctx context.Context, employeeID string, day time.Time) (Record, error)

	// GetByEmployeeAndDate returns nil when the employee has no record for day.
	GetByEmployeeAndDate(ctx context.Context, employeeID string, day time.Time, forUpdate bool) (*Record, error)

	GetByID(ctx context.Context, id string, forUpdate bool) (Record, error)

	// Create inserts r and fails with ErrDuplicateRecord when a record for the
	// same (employee, day) already exists.
	Create(ctx context.Context, r Record) (Record, error)

	// Update persists every mutable field of r.
	Update(ctx context.Context, r Record) (Record, error)

	Delete(ctx context.Context, id string) error

	// List retrieves records with filters and pagination, joined with the
	// employee and department names.
	List(ctx context.Context, filter AttendanceFilter) ([]Record, int64, error)

	ListByEmployee(ctx context.Context, employeeID string, filter MyHistoryFilter) ([]Record, error)
	ListByDate(ctx context.Context, day time.Time, departmentID *string) ([]Record, error)

	// ListOpenBefore returns records dated before day that still hold an open
	// work session. GetOpenBefore is the same lookup for one employee and
	// returns the most recent such record or nil.
	ListOpenBefore(ctx context.Context, day time.Time, departmentID *string) ([]Record, error)
	GetOpenBefore(ctx context.Context, employeeID string, day time.Time) (*Record, error)
}
