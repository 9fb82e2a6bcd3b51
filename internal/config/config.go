// Package config provides centralized configuration management for the
// spreadsheet job service. It loads configuration from environment variables
// with sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Jobs     JobsConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing the response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds database connection settings. The database only
// stores job history; leave URL empty to keep history in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// JobsConfig holds spreadsheet job settings.
type JobsConfig struct {
	// TemplatePath is the EC package template workbook (default: templates/template.xlsx)
	TemplatePath string `env:"JOBS_TEMPLATE_PATH" default:"templates/template.xlsx"`

	// OutputDir is where the CLI writes artifacts (default: out)
	OutputDir string `env:"JOBS_OUTPUT_DIR" default:"out"`

	// ReplacementLogPath is overwritten with the log of every PINFL run (default: replacements.log)
	ReplacementLogPath string `env:"JOBS_REPLACEMENT_LOG_PATH" default:"replacements.log"`

	// MaxFileSize is the maximum accepted workbook size in bytes (default: 50MB)
	MaxFileSize int64 `env:"JOBS_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of jobs processed in parallel (default: 4)
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a job waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"JOBS_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of one job (default: 5m)
	Timeout time.Duration `env:"JOBS_TIMEOUT" default:"5m"`

	// ChunkSize is the row count per chunk in "chunk" mode (default: 1000)
	ChunkSize int `env:"JOBS_CHUNK_SIZE" default:"1000"`

	// ChunkSize500 is the row count per chunk in "chunk500" mode (default: 500)
	ChunkSize500 int `env:"JOBS_CHUNK500_SIZE" default:"500"`

	// ChunkSize250 is the row count per chunk in "chunk250" mode (default: 250)
	ChunkSize250 int `env:"JOBS_CHUNK250_SIZE" default:"250"`
}

// SessionConfig holds settings for two-step PINFL sessions.
type SessionConfig struct {
	// TTL is how long an idle session is kept (default: 30m)
	TTL time.Duration `env:"SESSION_TTL" default:"30m"`

	// SweepInterval is how often expired sessions are removed (default: 1m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"1m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per client (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// JobLimit is requests per minute for job endpoints (default: 20)
	JobLimit int `env:"RATE_LIMIT_JOBS" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey turns on X-API-Key checks for /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
