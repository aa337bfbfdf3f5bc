package postgresql_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-backend-go/internal/repository/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestDatabaseSetup holds a migrated connection to the test database.
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL and applies migrations. The
// test is skipped when the variable is unset.
func NewTestDatabase(t *testing.T) *TestDatabaseSetup {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.NewPostgreSQLDB(dsn)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(db.Close)

	ctx := context.Background()
	require.NoError(t, postgresql.Migrate(ctx, db))

	setup := &TestDatabaseSetup{DB: db}
	require.NoError(t, setup.TruncateAllTables(ctx))
	return setup
}

// TruncateAllTables removes all rows from the application tables
func (s *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tables := []string{
		"attendance_records",
		"employees",
		"departments",
		"users",
	}

	for _, table := range tables {
		if _, err := s.DB.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// CreateEmployee inserts an active employee and returns its id.
func (s *TestDatabaseSetup) CreateEmployee(t *testing.T, fullName string, departmentID *string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := s.DB.Exec(context.Background(), `
		INSERT INTO employees (id, employee_code, full_name, department_id)
		VALUES ($1, $2, $3, $4)
	`, id, "EMP-"+id[:8], fullName, departmentID)
	require.NoError(t, err)
	return id
}

// CreateDepartment inserts a department and returns its id.
func (s *TestDatabaseSetup) CreateDepartment(t *testing.T, name string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := s.DB.Exec(context.Background(), `INSERT INTO departments (id, name) VALUES ($1, $2)`, id, name)
	require.NoError(t, err)
	return id
}
