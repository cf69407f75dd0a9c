// Package config defines the global configuration structure for the PushGate
// delivery pipeline. Configuration is loaded once at process startup and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"pushgate/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct shared by the worker, API, and
// janitor binaries. It is populated once during process initialization and
// never modified. Sub-components receive only the specific config subsets they
// require (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pushgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Queue         QueueConfig
	Redis         RedisConfig
	Provider      ProviderConfig
	Breaker       BreakerConfig
	RateLimit     RateLimitConfig
	Retry         RetryConfig
	Idempotency   IdempotencyConfig
	Registry      RegistryConfig
	Janitor       JanitorConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for the ops API binary.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"15s"`
	ShutdownGrace  time.Duration `envconfig:"HTTP_SHUTDOWN_GRACE" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds regional configuration shared by all AWS clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// QueueConfig holds SQS queue identifiers and consumer tuning parameters.
type QueueConfig struct {
	WorkQueueURL  string `envconfig:"SQS_WORK_QUEUE" validate:"required,url"`
	DeadLetterURL string `envconfig:"SQS_DEAD_LETTER" validate:"required,url"`

	// Consumer Tuning
	WaitTime          time.Duration `envconfig:"QUEUE_WAIT_TIME" default:"20s"` // Long-poll duration
	VisibilityTimeout time.Duration `envconfig:"QUEUE_VISIBILITY_TIMEOUT" default:"60s"`
	MaxMessages       int           `envconfig:"QUEUE_MAX_MESSAGES" default:"1"`
}

// RedisConfig holds the Redis connection used for idempotency tracking,
// rate limiting, worker presence, and job locks.
type RedisConfig struct {
	// URL may carry credentials, so it is wrapped in SecretString.
	URL SecretString `envconfig:"REDIS_URL" default:"redis://localhost:6379/0" validate:"required,url"`

	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
}

// ProviderConfig holds the upstream push gateway endpoint and credentials.
// An empty APIKey selects the stub sender for local development.
type ProviderConfig struct {
	GatewayURL string       `envconfig:"PUSH_GATEWAY_URL" default:"https://fcm.googleapis.com/fcm/send" validate:"required,url"`
	APIKey     SecretString `envconfig:"PUSH_GATEWAY_API_KEY"`

	Timeout    time.Duration `envconfig:"PUSH_GATEWAY_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"PUSH_GATEWAY_MAX_RETRIES" default:"2"` // Transport-level retries inside the HTTP client

	// Stub tuning (local mode only). A non-zero StubFailEveryN makes the
	// stub reject every Nth send so retry paths can be exercised locally.
	StubFailEveryN int           `envconfig:"PUSH_STUB_FAIL_EVERY_N" default:"0"`
	StubLatency    time.Duration `envconfig:"PUSH_STUB_LATENCY" default:"500ms"`
}

// BreakerConfig holds circuit breaker thresholds for the provider path.
type BreakerConfig struct {
	MaxFailures      int           `envconfig:"BREAKER_MAX_FAILURES" default:"3"`
	ResetTimeout     time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"60s"`
	HalfOpenMaxCalls int           `envconfig:"BREAKER_HALF_OPEN_MAX_CALLS" default:"1"`
}

// RateLimitConfig holds the per-user fixed-window quota parameters.
type RateLimitConfig struct {
	MaxPerWindow   int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	Window         time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1h"`
	BurstAllowance int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// RetryConfig holds the delivery retry policy parameters.
type RetryConfig struct {
	MaxRetries int `envconfig:"RETRY_MAX" default:"3"`
}

// IdempotencyConfig holds duplicate suppression parameters.
type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	// ClaimMode switches the guard from check-then-mark to an atomic
	// claim-before-processing scheme (SET NX up front, released on failure).
	ClaimMode bool `envconfig:"IDEMPOTENCY_CLAIM_MODE" default:"false"`
}

// RegistryConfig holds worker presence lease parameters.
type RegistryConfig struct {
	Enabled  bool          `envconfig:"REGISTRY_ENABLED" default:"true"`
	LeaseTTL time.Duration `envconfig:"REGISTRY_LEASE_TTL" default:"30s"`
}

// JanitorConfig holds retention windows and schedules for the maintenance binary.
type JanitorConfig struct {
	NotificationRetention time.Duration `envconfig:"JANITOR_NOTIFICATION_RETENTION" default:"2160h"` // 90 days
	LogRetention          time.Duration `envconfig:"JANITOR_LOG_RETENTION" default:"720h"`           // 30 days
	ArchiveDir            string        `envconfig:"JANITOR_ARCHIVE_DIR" default:"/var/lib/pushgate/archive"`
	ArchiveBatchSize      int           `envconfig:"JANITOR_ARCHIVE_BATCH" default:"500"`
	PurgeSchedule         string        `envconfig:"JANITOR_PURGE_SCHEDULE" default:"0 * * * *"`
	ArchiveSchedule       string        `envconfig:"JANITOR_ARCHIVE_SCHEDULE" default:"30 2 * * *"`
	LockTTL               time.Duration `envconfig:"JANITOR_LOCK_TTL" default:"15m"`
}

// SecurityConfig holds security-related configuration for the admin surface.
type SecurityConfig struct {
	// AdminAPIKeyHash is the bcrypt hash of the admin API key. The plaintext
	// key is never stored or configured server-side.
	AdminAPIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PushGate"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
