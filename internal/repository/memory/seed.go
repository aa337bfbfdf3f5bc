package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"gopkg.in/yaml.v3"
)

// Seed is the document the memory driver starts from, in JSON or YAML.
type Seed struct {
	Departments []SeedDepartment `json:"departments" yaml:"departments"`
	Employees   []SeedEmployee   `json:"employees" yaml:"employees"`
}

type SeedDepartment struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type SeedEmployee struct {
	ID               string  `json:"id" yaml:"id"`
	UserID           *string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	EmployeeCode     string  `json:"employee_code" yaml:"employee_code"`
	FullName         string  `json:"full_name" yaml:"full_name"`
	DepartmentID     *string `json:"department_id,omitempty" yaml:"department_id,omitempty"`
	Position         *string `json:"position,omitempty" yaml:"position,omitempty"`
	EmploymentStatus string  `json:"employment_status,omitempty" yaml:"employment_status,omitempty"`
}

// LoadSeed decodes a JSON seed document from r into the store.
func (s *Store) LoadSeed(r io.Reader) (int, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	return s.apply(seed)
}

// LoadSeedYAML is LoadSeed for YAML documents.
func (s *Store) LoadSeedYAML(r io.Reader) (int, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	return s.apply(seed)
}

func (s *Store) apply(seed Seed) (int, error) {
	for _, d := range seed.Departments {
		s.AddDepartment(d.ID, d.Name)
	}
	for _, e := range seed.Employees {
		if e.ID == "" || e.FullName == "" {
			return 0, fmt.Errorf("seed employee %q: id and full_name are required", e.EmployeeCode)
		}
		status := employee.EmploymentStatus(e.EmploymentStatus)
		if status == "" {
			status = employee.EmploymentStatusActive
		}
		now := s.now()
		s.AddEmployee(employee.Employee{
			ID:               e.ID,
			UserID:           e.UserID,
			EmployeeCode:     e.EmployeeCode,
			FullName:         e.FullName,
			DepartmentID:     e.DepartmentID,
			Position:         e.Position,
			EmploymentStatus: status,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return len(seed.Employees), nil
}

// LoadSeedFile loads the file at path. Files ending in .yaml or .yml are
// read as YAML, anything else as JSON.
func (s *Store) LoadSeedFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return s.LoadSeedYAML(f)
	default:
		return s.LoadSeed(f)
	}
}
