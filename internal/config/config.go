// Package config defines the global configuration structure for the jobtrail
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, with an optional .env file for
// local development. Any missing required value or invalid format causes the
// process to exit immediately on startup (fail fast).
package config

import (
	"time"

	"jobtrail/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"jobtrail"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Mongo    MongoConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Billing  BillingConfig
	Hunter   HunterConfig
	Quota    QuotaConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// MongoConfig holds document-store connection settings. The usage ledgers and
// the tier catalog live here.
type MongoConfig struct {
	URI      SecretString `envconfig:"MONGODB_URI" validate:"required"`
	Database string       `envconfig:"MONGODB_DATABASE" default:"jobtrail"`

	ConnectTimeout time.Duration `envconfig:"MONGODB_CONNECT_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection and pool tuning parameters.
// Job records and the user directory live here.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Queue receiving derived quota notifications for downstream delivery.
	NotificationQueueURL string `envconfig:"SQS_QUOTA_NOTIFICATIONS"`

	// CloudWatch namespace for quota decision metrics.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"JobTrail/Quota"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe integration credentials. The billing collaborator
// only supplies the current period end for reset scheduling; checkout and
// webhooks are handled elsewhere.
type BillingConfig struct {
	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY"`
}

// HunterConfig holds the contact-email lookup provider credentials.
type HunterConfig struct {
	APIKey  SecretString `envconfig:"HUNTER_API_KEY"`
	BaseURL string       `envconfig:"HUNTER_BASE_URL" default:"https://api.hunter.io"`
}

// QuotaConfig holds tuning knobs for the quota engine and sweep.
type QuotaConfig struct {
	// ResetWindow is the default period length when the billing collaborator
	// supplies no period end.
	ResetWindow time.Duration `envconfig:"QUOTA_RESET_WINDOW" default:"720h"`

	// SweepBatchSize bounds the number of ledgers processed per sweep batch.
	SweepBatchSize int `envconfig:"QUOTA_SWEEP_BATCH" default:"50"`

	// ArchivePath, when set, enables zstd NDJSON period snapshots during the
	// sweep. Empty disables archival.
	ArchivePath string `envconfig:"QUOTA_ARCHIVE_PATH"`
}
