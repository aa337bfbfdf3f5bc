package attendance

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/validator"
)

// ========================================
// ATTENDANCE DTOs
// ========================================

type AttendanceResponse struct {
	ID             string  `json:"id,omitempty"`
	EmployeeID     string  `json:"employee_id"`
	EmployeeName   *string `json:"employee_name,omitempty"`
	EmployeeCode   *string `json:"employee_code,omitempty"`
	DepartmentName *string `json:"department,omitempty"`

	Date         time.Time `json:"date"`
	Origin       Origin    `json:"origin"`
	CurrentState State     `json:"current_state"`

	WorkSessions   []WorkSession   `json:"work_sessions"`
	LunchBreak     *LunchBreak     `json:"lunch_break"`
	PersonalBreaks []PersonalBreak `json:"personal_breaks"`

	TotalWorkingMinutes int `json:"total_working_minutes"`
	TotalBreakMinutes   int `json:"total_break_minutes"`

	Status          Status `json:"status"`
	IsLate          bool   `json:"is_late"`
	LateMinutes     int    `json:"late_minutes"`
	EarlyDeparture  bool   `json:"early_departure"`
	EarlyMinutes    int    `json:"early_minutes"`
	OvertimeMinutes int    `json:"overtime_minutes"`

	Notes    *string `json:"notes,omitempty"`
	MarkedBy *string `json:"marked_by,omitempty"`

	Classification  Classification `json:"classification"`
	AllowedCommands []Command      `json:"allowed_commands"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NewAttendanceResponse renders r as seen at now. An unsaved record (empty
// ID) carries no timestamps.
func NewAttendanceResponse(r Record, now time.Time, loc *time.Location) AttendanceResponse {
	c := r.Clone()
	resp := AttendanceResponse{
		ID:                  c.ID,
		EmployeeID:          c.EmployeeID,
		EmployeeName:        c.EmployeeName,
		EmployeeCode:        c.EmployeeCode,
		DepartmentName:      c.DepartmentName,
		Date:                c.Date,
		Origin:              c.Origin,
		CurrentState:        c.CurrentState,
		WorkSessions:        c.WorkSessions,
		LunchBreak:          c.LunchBreak,
		PersonalBreaks:      c.PersonalBreaks,
		TotalWorkingMinutes: c.TotalWorkingMinutes,
		TotalBreakMinutes:   c.TotalBreakMinutes,
		Status:              c.Status,
		IsLate:              c.IsLate,
		LateMinutes:         c.LateMinutes,
		EarlyDeparture:      c.EarlyDeparture,
		EarlyMinutes:        c.EarlyMinutes,
		OvertimeMinutes:     c.OvertimeMinutes,
		Notes:               c.Notes,
		MarkedBy:            c.MarkedBy,
		Classification:      Classify(&c, now, loc),
		AllowedCommands:     c.AllowedCommands(),
	}
	if c.ID != "" {
		createdAt, updatedAt := c.CreatedAt, c.UpdatedAt
		resp.CreatedAt = &createdAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}

// Record converts a response back into the aggregate. Clients use it to feed
// the projector.
func (a AttendanceResponse) Record() Record {
	r := Record{
		ID:                  a.ID,
		EmployeeID:          a.EmployeeID,
		Date:                a.Date,
		Origin:              a.Origin,
		CurrentState:        a.CurrentState,
		WorkSessions:        a.WorkSessions,
		LunchBreak:          a.LunchBreak,
		PersonalBreaks:      a.PersonalBreaks,
		TotalWorkingMinutes: a.TotalWorkingMinutes,
		TotalBreakMinutes:   a.TotalBreakMinutes,
		Status:              a.Status,
		IsLate:              a.IsLate,
		LateMinutes:         a.LateMinutes,
		EarlyDeparture:      a.EarlyDeparture,
		EarlyMinutes:        a.EarlyMinutes,
		OvertimeMinutes:     a.OvertimeMinutes,
		Notes:               a.Notes,
		MarkedBy:            a.MarkedBy,
		EmployeeName:        a.EmployeeName,
		EmployeeCode:        a.EmployeeCode,
		DepartmentName:      a.DepartmentName,
	}
	if a.CreatedAt != nil {
		r.CreatedAt = *a.CreatedAt
	}
	if a.UpdatedAt != nil {
		r.UpdatedAt = *a.UpdatedAt
	}
	return r.Clone()
}

type MyStatusResponse struct {
	Attendance AttendanceResponse       `json:"attendance"`
	Employee   employee.SummaryResponse `json:"employee"`

	// ForgottenCheckout is an earlier day's record whose session is still open.
	ForgottenCheckout *AttendanceResponse `json:"forgotten_checkout,omitempty"`

	ServerTime time.Time `json:"server_time"`
}

type StartBreakRequest struct {
	Reason string `json:"reason"`
}

func (r *StartBreakRequest) Validate() error {
	var errs validator.ValidationErrors

	r.Reason = strings.TrimSpace(r.Reason)
	if !validator.MaxLength(r.Reason, 255) {
		errs = append(errs, validator.ValidationError{
			Field:   "reason",
			Message: "reason must not exceed 255 characters",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// MarkAttendanceRequest is the admin path that bypasses the state machine.
type MarkAttendanceRequest struct {
	EmployeeID string  `json:"employee"`
	Date       string  `json:"date"` // YYYY-MM-DD
	Status     string  `json:"status"`
	CheckIn    *string `json:"check_in,omitempty"`  // RFC3339
	CheckOut   *string `json:"check_out,omitempty"` // RFC3339
	Notes      *string `json:"notes,omitempty"`

	// Force overwrites a record that already holds live check-in data.
	Force bool `json:"force"`
}

func (r *MarkAttendanceRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee",
			Message: "employee is required",
		})
	} else if !validator.IsValidUUID(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee",
			Message: "employee must be a valid UUID",
		})
	}

	if validator.IsEmpty(r.Date) {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date is required",
		})
	} else if _, valid := validator.IsValidDate(r.Date); !valid {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date must be in YYYY-MM-DD format",
		})
	}

	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	if !validator.IsInSlice(r.Status, AllStatuses()) {
		errs = append(errs, validator.ValidationError{
			Field:   "status",
			Message: "status must be one of: " + strings.Join(AllStatuses(), ", "),
		})
	}

	if r.CheckOut != nil && r.CheckIn == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "check_out",
			Message: "check_out requires check_in",
		})
	}
	errs = append(errs, validateCheckTimes(r.CheckIn, r.CheckOut)...)

	if r.Notes != nil && !validator.MaxLength(*r.Notes, 1000) {
		errs = append(errs, validator.ValidationError{
			Field:   "notes",
			Message: "notes must not exceed 1000 characters",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// UpdateAttendanceRequest lets an admin fix an existing record. Changing
// check-in or check-out turns it into a manual one; other fields do not.
type UpdateAttendanceRequest struct {
	ID              string  `json:"-"`
	Status          *string `json:"status,omitempty"`
	CheckIn         *string `json:"check_in,omitempty"`  // RFC3339
	CheckOut        *string `json:"check_out,omitempty"` // RFC3339
	Notes           *string `json:"notes,omitempty"`
	LateMinutes     *int    `json:"late_minutes,omitempty"`
	EarlyMinutes    *int    `json:"early_minutes,omitempty"`
	OvertimeMinutes *int    `json:"overtime_minutes,omitempty"`
}

func (r *UpdateAttendanceRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsValidUUID(r.ID) {
		errs = append(errs, validator.ValidationError{
			Field:   "id",
			Message: "id must be a valid UUID",
		})
	}

	if r.Status != nil {
		s := strings.ToLower(strings.TrimSpace(*r.Status))
		r.Status = &s
		if !validator.IsInSlice(s, AllStatuses()) {
			errs = append(errs, validator.ValidationError{
				Field:   "status",
				Message: "status must be one of: " + strings.Join(AllStatuses(), ", "),
			})
		}
	}

	errs = append(errs, validateCheckTimes(r.CheckIn, r.CheckOut)...)

	if r.Notes != nil && !validator.MaxLength(*r.Notes, 1000) {
		errs = append(errs, validator.ValidationError{
			Field:   "notes",
			Message: "notes must not exceed 1000 characters",
		})
	}

	minutes := []struct {
		field string
		value *int
	}{
		{"late_minutes", r.LateMinutes},
		{"early_minutes", r.EarlyMinutes},
		{"overtime_minutes", r.OvertimeMinutes},
	}
	for _, m := range minutes {
		if m.value != nil && *m.value < 0 {
			errs = append(errs, validator.ValidationError{
				Field:   m.field,
				Message: m.field + " must not be negative",
			})
		}
	}

	if r.Status == nil && r.CheckIn == nil && r.CheckOut == nil && r.Notes == nil &&
		r.LateMinutes == nil && r.EarlyMinutes == nil && r.OvertimeMinutes == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "body",
			Message: "at least one field must be provided",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func validateCheckTimes(checkIn, checkOut *string) validator.ValidationErrors {
	var errs validator.ValidationErrors

	var in, out time.Time
	var inOK, outOK bool
	if checkIn != nil {
		if in, inOK = validator.IsValidDateTime(*checkIn); !inOK {
			errs = append(errs, validator.ValidationError{
				Field:   "check_in",
				Message: "check_in must be an RFC3339 timestamp",
			})
		}
	}
	if checkOut != nil {
		if out, outOK = validator.IsValidDateTime(*checkOut); !outOK {
			errs = append(errs, validator.ValidationError{
				Field:   "check_out",
				Message: "check_out must be an RFC3339 timestamp",
			})
		}
	}
	if inOK && outOK && out.Before(in) {
		errs = append(errs, validator.ValidationError{
			Field:   "check_out",
			Message: "check_out must not be before check_in",
		})
	}

	return errs
}

type AttendanceFilter struct {
	// Search & Filter
	EmployeeID   *string `json:"employee_id,omitempty"`
	DepartmentID *string `json:"department,omitempty"`
	StartDate    *string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate      *string `json:"end_date,omitempty"`   // YYYY-MM-DD
	Status       *string `json:"status,omitempty"`

	// Pagination
	Page  int `json:"page"`
	Limit int `json:"limit"`

	// Sorting
	SortBy    string `json:"sort_by"`    // date, employee_name, total_working_minutes, status
	SortOrder string `json:"sort_order"` // asc, desc
}

func (f *AttendanceFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Page < 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "page",
			Message: "page must be a positive number",
		})
	}
	if f.Page == 0 {
		f.Page = 1
	}

	if f.Limit < 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must be a positive number",
		})
	}
	if f.Limit == 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must not exceed 100",
		})
	}

	if f.EmployeeID != nil && !validator.IsValidUUID(*f.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id must be a valid UUID",
		})
	}

	if f.DepartmentID != nil && !validator.IsValidUUID(*f.DepartmentID) {
		errs = append(errs, validator.ValidationError{
			Field:   "department",
			Message: "department must be a valid UUID",
		})
	}

	if f.Status != nil && !validator.IsInSlice(*f.Status, AllStatuses()) {
		errs = append(errs, validator.ValidationError{
			Field:   "status",
			Message: "status must be one of: " + strings.Join(AllStatuses(), ", "),
		})
	}

	errs = append(errs, validateDateRange(f.StartDate, f.EndDate)...)

	if f.SortBy != "" {
		validSortFields := []string{"date", "employee_name", "total_working_minutes", "status"}
		if !validator.IsInSlice(f.SortBy, validSortFields) {
			errs = append(errs, validator.ValidationError{
				Field:   "sort_by",
				Message: "sort_by must be one of: date, employee_name, total_working_minutes, status",
			})
		}
	} else {
		f.SortBy = "date"
	}

	if f.SortOrder != "" {
		f.SortOrder = strings.ToLower(f.SortOrder)
		if !validator.IsInSlice(f.SortOrder, []string{"asc", "desc"}) {
			errs = append(errs, validator.ValidationError{
				Field:   "sort_order",
				Message: "sort_order must be one of: asc, desc",
			})
		}
	} else {
		f.SortOrder = "desc" // newest first
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type MyHistoryFilter struct {
	StartDate *string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate   *string `json:"end_date,omitempty"`   // YYYY-MM-DD
	Limit     int     `json:"limit"`
}

func (f *MyHistoryFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Limit < 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must be a positive number",
		})
	}
	if f.Limit == 0 {
		f.Limit = 30
	}
	if f.Limit > 100 {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must not exceed 100",
		})
	}

	errs = append(errs, validateDateRange(f.StartDate, f.EndDate)...)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func validateDateRange(startDate, endDate *string) validator.ValidationErrors {
	var errs validator.ValidationErrors

	var start, end time.Time
	var startOK, endOK bool
	if startDate != nil && *startDate != "" {
		if start, startOK = validator.IsValidDate(*startDate); !startOK {
			errs = append(errs, validator.ValidationError{
				Field:   "start_date",
				Message: "start_date must be in YYYY-MM-DD format",
			})
		}
	}
	if endDate != nil && *endDate != "" {
		if end, endOK = validator.IsValidDate(*endDate); !endOK {
			errs = append(errs, validator.ValidationError{
				Field:   "end_date",
				Message: "end_date must be in YYYY-MM-DD format",
			})
		}
	}
	if startOK && endOK && end.Before(start) {
		errs = append(errs, validator.ValidationError{
			Field:   "end_date",
			Message: "end_date must not be before start_date",
		})
	}

	return errs
}

type ListAttendanceResponse struct {
	TotalCount  int64                `json:"total_count"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	TotalPages  int                  `json:"total_pages"`
	Showing     string               `json:"showing"`
	Attendances []AttendanceResponse `json:"attendances"`
}

type SummaryRequest struct {
	Date         *string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	DepartmentID *string `json:"department,omitempty"`
}

func (r *SummaryRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Date != nil && *r.Date != "" {
		if _, valid := validator.IsValidDate(*r.Date); !valid {
			errs = append(errs, validator.ValidationError{
				Field:   "date",
				Message: "date must be in YYYY-MM-DD format",
			})
		}
	}

	if r.DepartmentID != nil && !validator.IsValidUUID(*r.DepartmentID) {
		errs = append(errs, validator.ValidationError{
			Field:   "department",
			Message: "department must be a valid UUID",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// SummaryResponse counts active employees by read-time classification.
// Working, OnBreak and CheckedOut break down the present ones by state.
type SummaryResponse struct {
	Date          string `json:"date"`
	TotalEmployee int    `json:"total_employees"`
	Present       int    `json:"present"`
	PreviousDay   int    `json:"previous_day"`
	Absent        int    `json:"absent"`
	Working       int    `json:"working"`
	OnBreak       int    `json:"on_break"`
	CheckedOut    int    `json:"checked_out"`
	Late          int    `json:"late"`

	ForgottenCheckouts []AttendanceResponse `json:"forgotten_checkouts"`
}

type StreamTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Event names published on the live stream.
const (
	EventUpdated        = "attendance.updated"
	EventDeleted        = "attendance.deleted"
	EventForgotCheckout = "attendance.forgot_checkout"
)
