// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Store      StoreConfig
	Upload     UploadConfig
	Processing ProcessingConfig
	Mapping    MappingConfig
	Redis      RedisConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Tracing    TracingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown,
	// including running processing jobs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required with the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"STORE_MIGRATE" default:"true"`
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// Dir is where uploaded files are stored (default: uploads)
	Dir string `env:"UPLOAD_DIR" default:"uploads"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// ProfileRows is how many data rows structure analysis profiles (default: 1000)
	ProfileRows int `env:"UPLOAD_PROFILE_ROWS" default:"1000"`
}

// ProcessingConfig holds fact transformation and job settings.
type ProcessingConfig struct {
	// BatchSize is the number of fact records inserted per batch (default: 1000)
	BatchSize int `env:"PROCESSING_BATCH_SIZE" default:"1000"`

	// MaxConcurrent is the maximum number of jobs running at once (default: 4)
	MaxConcurrent int `env:"PROCESSING_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a job waits for a slot before failing (default: 10m)
	MaxWaitTime time.Duration `env:"PROCESSING_MAX_WAIT_TIME" default:"10m"`

	// Workers is the number of goroutines resolving dimensions per job (default: 4)
	Workers int `env:"PROCESSING_WORKERS" default:"4"`

	// AggregationThreshold is the quality score above which duplicate
	// coordinates are averaged (default: 0.8)
	AggregationThreshold float64 `env:"PROCESSING_AGGREGATION_THRESHOLD" default:"0.8"`

	// Timeout is advisory: running jobs older than this are logged as slow (default: 30m)
	Timeout time.Duration `env:"PROCESSING_TIMEOUT" default:"30m"`

	// JanitorInterval is how often orphaned jobs are swept (default: 5m)
	JanitorInterval time.Duration `env:"PROCESSING_JANITOR_INTERVAL" default:"5m"`

	// OrphanGrace is the minimum age of a job the janitor may fail (default: 1m)
	OrphanGrace time.Duration `env:"PROCESSING_ORPHAN_GRACE" default:"1m"`
}

// MappingConfig holds dimension mapping settings.
type MappingConfig struct {
	// ConfidenceThreshold is the minimum score for a suggestion (default: 0.7)
	ConfidenceThreshold float64 `env:"MAPPING_CONFIDENCE_THRESHOLD" default:"0.7"`

	// SampleRows is how many data rows feed the detectors (default: 100)
	SampleRows int `env:"MAPPING_SAMPLE_ROWS" default:"100"`

	// GazetteerFile is an optional YAML vocabulary replacing the built-in one
	GazetteerFile string `env:"MAPPING_GAZETTEER_FILE"`
}

// RedisConfig holds the optional progress mirror settings.
type RedisConfig struct {
	// URL enables publishing job progress to Redis when set (redis://...)
	URL string `env:"REDIS_URL"`

	// ProgressTTL is how long the latest progress snapshot is kept (default: 1h)
	ProgressTTL time.Duration `env:"REDIS_PROGRESS_TTL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload and process endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of keys accepted on mutating
	// requests. Empty disables authentication.
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled turns on span export (default: false)
	Enabled bool `env:"OTEL_ENABLED" default:"false"`

	// Endpoint is the OTLP/HTTP collector (host:port); stdout is used when empty
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// SamplerRatio is the fraction of traces sampled (default: 1.0)
	SamplerRatio float64 `env:"OTEL_SAMPLER_RATIO" default:"1.0"`

	// ServiceName is reported as service.name (default: factflow)
	ServiceName string `env:"OTEL_SERVICE_NAME" default:"factflow"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
