package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "1h", cfg.JWT.AccessExpiration)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Attendance.StaleScanInterval)
	assert.Equal(t, 3, cfg.Attendance.TransitionRetries)

	policy, err := cfg.ShiftPolicy()
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour, policy.Start)
	assert.Equal(t, 17*time.Hour, policy.End)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "db")
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_TIMEZONE", "Asia/Jakarta")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ATTENDANCE_SHIFT_START", "08:30")
	t.Setenv("ATTENDANCE_GRACE_MINUTES", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://postgres:pw@db:5432/cmlabs-hrms?sslmode=disable", cfg.DatabaseURL())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())

	policy, err := cfg.ShiftPolicy()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+30*time.Minute, policy.Start)
	assert.Equal(t, 10, policy.GraceMinutes)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"STORAGE_DRIVER": "memory"}},
		{"postgres without password", map[string]string{"JWT_SECRET_KEY": "s"}},
		{"unknown driver", map[string]string{"JWT_SECRET_KEY": "s", "STORAGE_DRIVER": "sqlite"}},
		{"bad port", map[string]string{"JWT_SECRET_KEY": "s", "STORAGE_DRIVER": "memory", "APP_PORT": "http"}},
		{"bad timezone", map[string]string{"JWT_SECRET_KEY": "s", "STORAGE_DRIVER": "memory", "APP_TIMEZONE": "Mars/Base"}},
		{"shift end before start", map[string]string{"JWT_SECRET_KEY": "s", "STORAGE_DRIVER": "memory", "ATTENDANCE_SHIFT_END": "08:00"}},
		{"bad scan interval", map[string]string{"JWT_SECRET_KEY": "s", "STORAGE_DRIVER": "memory", "ATTENDANCE_STALE_SCAN_INTERVAL": "often"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "")
			t.Setenv("STORAGE_DRIVER", "")
			t.Setenv("DB_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
