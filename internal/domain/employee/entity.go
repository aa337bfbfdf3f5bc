package employee

import (
	"time"
)

// Employee is the slice of the employee profile the attendance subsystem reads.
type Employee struct {
	ID               string
	UserID           *string
	EmployeeCode     string
	FullName         string
	DepartmentID     *string
	Position         *string
	EmploymentStatus EmploymentStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time

	// DTO / Join
	DepartmentName *string
}

type EmploymentStatus string

const (
	EmploymentStatusActive     EmploymentStatus = "active"
	EmploymentStatusResigned   EmploymentStatus = "resigned"
	EmploymentStatusTerminated EmploymentStatus = "terminated"
)

func (e Employee) IsActive() bool {
	return e.EmploymentStatus == EmploymentStatusActive && e.DeletedAt == nil
}
