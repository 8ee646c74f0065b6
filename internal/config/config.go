// Package config builds the pipeline's configuration value object.
//
// A Config is constructed once at process start (Load) and passed by value
// into component constructors. Nothing else in the module reads the
// environment.
package config

import (
	"fmt"
	"strings"
)

// Source selection values.
const (
	SourceAuto      = "auto"
	SourceRemote    = "remote"
	SourceSynthetic = "synthetic"
)

// Sink selection values.
const (
	SinkBigQuery = "bigquery"
	SinkSQLite   = "sqlite"
	SinkNone     = "none"
)

// Write dispositions accepted by the sinks.
const (
	WriteAppend   = "WRITE_APPEND"
	WriteTruncate = "WRITE_TRUNCATE"
	WriteEmpty    = "WRITE_EMPTY"
)

const (
	sandboxBaseURL    = "https://api-m.sandbox.paypal.com"
	productionBaseURL = "https://api-m.paypal.com"

	// MaxPageSize is the upstream reporting API's page size ceiling.
	MaxPageSize = 500
)

// Config contains process configuration.
type Config struct {
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`

	GCPProjectID string `koanf:"gcp_project_id"`
	GCSBucket    string `koanf:"gcs_bucket"`
	BQDataset    string `koanf:"bq_dataset"`
	BQTable      string `koanf:"bq_table"`
	BQLocation   string `koanf:"bq_location"`

	PayPalClientID     string `koanf:"paypal_client_id"`
	PayPalClientSecret string `koanf:"paypal_client_secret"`
	PayPalSandbox      bool   `koanf:"paypal_sandbox"`
	// PayPalBaseURL overrides the sandbox/production endpoint when set.
	PayPalBaseURL string `koanf:"paypal_base_url"`

	Source           string `koanf:"pipeline_source"`
	Sink             string `koanf:"pipeline_sink"`
	SQLitePath       string `koanf:"sqlite_path"`
	ArtifactDir      string `koanf:"artifact_dir"`
	KeepArtifacts    bool   `koanf:"keep_artifacts"`
	PageSize         int    `koanf:"page_size"`
	MaxPages         int    `koanf:"max_pages"`
	FallbackCount    int    `koanf:"fallback_count"`
	WriteDisposition string `koanf:"write_disposition"`

	NotionToken      string `koanf:"notion_token"`
	NotionDatabaseID string `koanf:"notion_database_id"`

	APIAddr      string `koanf:"api_addr"`
	APIJWTSecret string `koanf:"api_jwt_secret"`
	ScheduleHour int    `koanf:"schedule_hour"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Environment:      "dev",
		LogLevel:         "info",
		LogFormat:        "console",
		BQDataset:        "paypal_data",
		BQTable:          "transactions",
		BQLocation:       "US",
		PayPalSandbox:    true,
		Source:           SourceAuto,
		Sink:             SinkBigQuery,
		SQLitePath:       "paypal_pipeline.db",
		ArtifactDir:      "/tmp",
		PageSize:         100,
		MaxPages:         100,
		FallbackCount:    25,
		WriteDisposition: WriteAppend,
		APIAddr:          ":8080",
		ScheduleHour:     2,
	}
}

// BaseURL returns the upstream API root for the configured environment.
func (c Config) BaseURL() string {
	if c.PayPalBaseURL != "" {
		return strings.TrimRight(c.PayPalBaseURL, "/")
	}
	if c.PayPalSandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

// APIEnvironment names the upstream environment for artifact metadata.
func (c Config) APIEnvironment() string {
	if c.PayPalSandbox {
		return "sandbox"
	}
	return "production"
}

// HasCredentials reports whether both client id and secret are set.
func (c Config) HasCredentials() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

// NotionEnabled reports whether run reports should be written to Notion.
func (c Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// TableRef returns project.dataset.table.
func (c Config) TableRef() string {
	return fmt.Sprintf("%s.%s.%s", c.GCPProjectID, c.BQDataset, c.BQTable)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d, got %d", ErrInvalidConfig, MaxPageSize, c.PageSize)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("%w: max_pages must be positive", ErrInvalidConfig)
	}
	if c.FallbackCount < 1 {
		return fmt.Errorf("%w: fallback_count must be positive", ErrInvalidConfig)
	}

	switch c.Source {
	case SourceAuto, SourceSynthetic:
	case SourceRemote:
		if !c.HasCredentials() {
			return fmt.Errorf("%w: remote source requires PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown pipeline_source %q", ErrInvalidConfig, c.Source)
	}

	switch c.Sink {
	case SinkSQLite, SinkNone:
	case SinkBigQuery:
		if c.GCPProjectID == "" {
			return fmt.Errorf("%w: bigquery sink requires GCP_PROJECT_ID", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown pipeline_sink %q", ErrInvalidConfig, c.Sink)
	}

	switch c.WriteDisposition {
	case WriteAppend, WriteTruncate, WriteEmpty:
	default:
		return fmt.Errorf("%w: unknown write_disposition %q", ErrInvalidConfig, c.WriteDisposition)
	}

	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		return fmt.Errorf("%w: schedule_hour must be 0-23", ErrInvalidConfig)
	}
	return nil
}

// Summary returns the non-secret configuration fields for logging.
func (c Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"environment":            c.Environment,
		"gcp_project":            c.GCPProjectID,
		"gcs_bucket":             c.GCSBucket,
		"bq_dataset":             c.BQDataset,
		"bq_table":               c.BQTable,
		"paypal_sandbox":         c.PayPalSandbox,
		"has_paypal_credentials": c.HasCredentials(),
		"source":                 c.Source,
		"sink":                   c.Sink,
	}
}
