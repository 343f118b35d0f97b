// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names a persistence backend.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Config holds every runtime setting for the binaries. Not all fields are
// used by every binary; Validate checks only what the caller asks for.
type Config struct {
	// HTTP
	Port            int
	ShutdownTimeout time.Duration

	// Persistence
	Backend      Backend
	SQLiteDBPath string

	// Auth
	JWTSecret     string
	TokenDuration time.Duration

	// Recurrence
	Timezone  string
	SweepTime string // HH:MM, local to Timezone

	// Messaging
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleCredentialsPath string
	SpreadsheetID         string
	SheetName             string

	loc *time.Location
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		Backend:      Backend(getEnv("BACKEND", string(BackendSQLite))),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./spendify.db"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenDuration: getEnvDuration("TOKEN_DURATION", 24*time.Hour),

		Timezone:  getEnv("TIMEZONE", ""),
		SweepTime: getEnv("SWEEP_TIME", "00:05"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendify"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "occurrences"),

		GoogleCredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", ""),
		SpreadsheetID:         getEnv("SPREADSHEET_ID", ""),
		SheetName:             getEnv("SHEET_NAME", "Spese"),
	}

	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
		}
	}
	cfg.loc = loc

	return cfg, nil
}

// LoadEnvFile loads a .env file if present. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Location returns the timezone used for day truncation and scheduling.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Validate checks settings needed by every binary.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port: %d", c.Port))
	}
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("unknown backend: %q", c.Backend))
	}
	if c.Backend == BackendSQLite && c.SQLiteDBPath == "" {
		errs = append(errs, "SQLITE_DB_PATH is required for the sqlite backend")
	}
	if _, _, err := ParseClock(c.SweepTime); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SWEEP_TIME: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateAuth checks settings needed to verify tokens.
func (c *Config) ValidateAuth() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// ValidateAMQP checks settings needed to publish or consume messages.
func (c *Config) ValidateAMQP() error {
	var errs []string
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required")
	}
	if c.AMQPExchange == "" {
		errs = append(errs, "AMQP_EXCHANGE is required")
	}
	if c.AMQPQueue == "" {
		errs = append(errs, "AMQP_QUEUE is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateSheets checks settings needed by the export worker.
func (c *Config) ValidateSheets() error {
	var errs []string
	if c.GoogleCredentialsPath == "" {
		errs = append(errs, "GOOGLE_CREDENTIALS_PATH is required")
	}
	if c.SpreadsheetID == "" {
		errs = append(errs, "SPREADSHEET_ID is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseClock parses an HH:MM string into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
