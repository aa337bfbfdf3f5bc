package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Database   DatabaseConfig
	Storage    StorageConfig
	JWT        JWTConfig
	App        AppConfig
	CORS       CORSConfig
	Attendance AttendanceConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// StorageConfig selects the repository implementation. The memory driver
// keeps everything in process and is seeded from SeedFile.
type StorageConfig struct {
	Driver   string
	SeedFile string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	Version        string
	LogLevel       string
	Timezone       string
	RequestTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// AttendanceConfig holds the shift policy and background job settings.
type AttendanceConfig struct {
	ShiftStart        string
	ShiftEnd          string
	GraceMinutes      int
	StaleScanInterval time.Duration
	TransitionRetries int
	StreamKeepalive   time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
		slog.Warn("no .env file found, reading environment only")
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	dbMaxConns, err := strconv.ParseInt(getEnv("DB_MAX_CONNS", "25"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "cmlabs-hrms"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(dbMaxConns),
	}

	config.Storage = StorageConfig{
		Driver:   strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
		SeedFile: getEnv("MEMORY_SEED_FILE", ""),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	requestTimeout, err := time.ParseDuration(getEnv("APP_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_REQUEST_TIMEOUT: %w", err)
	}

	config.App = AppConfig{
		Port:           appPort,
		Env:            getEnv("APP_ENV", "development"),
		Version:        getEnv("APP_VERSION", "v1.0.0"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Timezone:       getEnv("APP_TIMEZONE", "Local"),
		RequestTimeout: requestTimeout,
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	config.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	// Attendance configuration
	graceMinutes, err := strconv.Atoi(getEnv("ATTENDANCE_GRACE_MINUTES", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_GRACE_MINUTES: %w", err)
	}
	retries, err := strconv.Atoi(getEnv("ATTENDANCE_TRANSITION_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_TRANSITION_RETRIES: %w", err)
	}
	scanInterval, err := time.ParseDuration(getEnv("ATTENDANCE_STALE_SCAN_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_STALE_SCAN_INTERVAL: %w", err)
	}
	keepalive, err := time.ParseDuration(getEnv("ATTENDANCE_STREAM_KEEPALIVE", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_STREAM_KEEPALIVE: %w", err)
	}

	config.Attendance = AttendanceConfig{
		ShiftStart:        getEnv("ATTENDANCE_SHIFT_START", "09:00"),
		ShiftEnd:          getEnv("ATTENDANCE_SHIFT_END", "17:00"),
		GraceMinutes:      graceMinutes,
		StaleScanInterval: scanInterval,
		TransitionRetries: retries,
		StreamKeepalive:   keepalive,
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.ParseDuration(c.JWT.AccessExpiration); err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_EXPIRATION_TIME: %w", err)
	}
	if _, err := clock.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	if _, err := c.ShiftPolicy(); err != nil {
		return err
	}
	if c.Attendance.GraceMinutes < 0 {
		return fmt.Errorf("ATTENDANCE_GRACE_MINUTES must not be negative")
	}
	if c.Attendance.TransitionRetries < 0 {
		return fmt.Errorf("ATTENDANCE_TRANSITION_RETRIES must not be negative")
	}
	if c.Attendance.StaleScanInterval <= 0 {
		return fmt.Errorf("ATTENDANCE_STALE_SCAN_INTERVAL must be positive")
	}
	return nil
}

// ShiftPolicy builds the lateness policy from the configured shift.
func (c *Config) ShiftPolicy() (attendance.ShiftPolicy, error) {
	start, err := attendance.ParseClockOffset(c.Attendance.ShiftStart)
	if err != nil {
		return attendance.ShiftPolicy{}, fmt.Errorf("invalid ATTENDANCE_SHIFT_START: %w", err)
	}
	end, err := attendance.ParseClockOffset(c.Attendance.ShiftEnd)
	if err != nil {
		return attendance.ShiftPolicy{}, fmt.Errorf("invalid ATTENDANCE_SHIFT_END: %w", err)
	}
	if end <= start {
		return attendance.ShiftPolicy{}, fmt.Errorf("ATTENDANCE_SHIFT_END must be after ATTENDANCE_SHIFT_START")
	}
	return attendance.ShiftPolicy{Start: start, End: end, GraceMinutes: c.Attendance.GraceMinutes}, nil
}

// Location returns the zone used for day boundaries.
func (c *Config) Location() (*time.Location, error) {
	return clock.LoadLocation(c.App.Timezone)
}

// SlogLevel maps LOG_LEVEL onto slog levels. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
