// Package config loads the tracker's settings from environment variables,
// applies defaults and validates everything on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Storage  StorageConfig
	Mail     MailConfig
	Reports  ReportsConfig
	Activity ActivityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so activity streams are not cut off
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded migrations on server start
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ImportConfig holds workbook import settings.
type ImportConfig struct {
	// MaxFileSize in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"3"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// OperationTimeout flags slow imports and exports in the logs; it
	// never cancels them
	OperationTimeout time.Duration `env:"IMPORT_OPERATION_TIMEOUT" default:"20s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// AuthConfig configures verification of the identity provider's session
// tokens.
type AuthConfig struct {
	// JWTSecret is the HS256 signing secret (required)
	JWTSecret string `env:"AUTH_JWT_SECRET" required:"true"`

	Issuer   string `env:"AUTH_JWT_ISSUER"`
	Audience string `env:"AUTH_JWT_AUDIENCE"`

	// Leeway tolerates clock skew on exp/nbf
	Leeway time.Duration `env:"AUTH_JWT_LEEWAY" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// StorageConfig selects the attachment bucket. Attachments are disabled
// when Bucket is empty.
type StorageConfig struct {
	Bucket       string `env:"STORAGE_BUCKET"`
	Endpoint     string `env:"STORAGE_ENDPOINT"`
	Region       string `env:"STORAGE_REGION" default:"us-east-1"`
	AccessKey    string `env:"STORAGE_ACCESS_KEY"`
	SecretKey    string `env:"STORAGE_SECRET_KEY"`
	UsePathStyle bool   `env:"STORAGE_USE_PATH_STYLE" default:"false"`
}

// Enabled reports whether attachments are configured.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// MailConfig points at the HTTP email API. Email is disabled when APIURL
// or APIKey is empty.
type MailConfig struct {
	APIURL string `env:"MAIL_API_URL"`
	APIKey string `env:"MAIL_API_KEY"`
	From   string `env:"MAIL_FROM" default:"completions@localhost"`
}

// ReportsConfig controls the scheduled email report.
type ReportsConfig struct {
	SchedulerEnabled bool          `env:"REPORTS_SCHEDULER_ENABLED" default:"true"`
	CheckInterval    time.Duration `env:"REPORTS_CHECK_INTERVAL" default:"1m"`
}

// ActivityConfig controls the live activity stream.
type ActivityConfig struct {
	// ListenEnabled forwards activity written by other processes
	ListenEnabled bool          `env:"ACTIVITY_LISTEN_ENABLED" default:"true"`
	Heartbeat     time.Duration `env:"ACTIVITY_HEARTBEAT" default:"25s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
