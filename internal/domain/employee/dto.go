package employee

// SummaryResponse is the employee block embedded in attendance responses.
type SummaryResponse struct {
	ID           string  `json:"id"`
	EmployeeCode string  `json:"employee_code"`
	FullName     string  `json:"full_name"`
	Department   *string `json:"department,omitempty"`
	Position     *string `json:"position,omitempty"`
}

func ToSummary(e Employee) SummaryResponse {
	return SummaryResponse{
		ID:           e.ID,
		EmployeeCode: e.EmployeeCode,
		FullName:     e.FullName,
		Department:   e.DepartmentName,
		Position:     e.Position,
	}
}
