// Package config defines the process configuration for the ContractDesk
// services. Configuration is loaded once at startup and treated as immutable.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Mounted secret files (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"contractdesk/internal/types"
)

// SecretString is an alias for types.SecretString so configuration secrets
// are redacted when logged.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"contractdesk-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// CatalogSource selects where the feature and method catalog comes from.
	// "static" serves the built-in catalog and is meant for local runs.
	CatalogSource string `envconfig:"CATALOG_SOURCE" default:"database" validate:"oneof=database static"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build metadata is injected via ldflags, not the environment.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	// RateLimitPerMinute caps requests per organization. Zero disables it.
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600" validate:"gte=0"`
	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	EnableCompression  bool          `envconfig:"ENABLE_COMPRESSION" default:"true"`
}

// DatabaseConfig holds the connection string and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// PlanEventsQueue receives plan.published and plan.deleted events. When
	// empty, events are logged and dropped (local development).
	PlanEventsQueue string `envconfig:"SQS_PLAN_EVENTS" validate:"omitempty,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// BillingConfig holds the Stripe credentials used by the plan publisher.
type BillingConfig struct {
	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeBaseURL   string       `envconfig:"STRIPE_BASE_URL" validate:"omitempty,url"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ContractDesk"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`

	MetricFlushInterval time.Duration `envconfig:"METRIC_FLUSH_INTERVAL" default:"30s"`
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv       ConfigErrorType = "MISSING_ENV"
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	ErrValidation       ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing          ConfigErrorType = "PARSING_FAILED"
)
