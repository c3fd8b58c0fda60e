package config

import (
	"time"

	"github.com/tabulark/tabulark/pkg/telemetry"
)

// EngineConfig holds the execution engine settings.
type EngineConfig struct {
	// Budget is the per-step wall-clock budget.
	Budget time.Duration `json:"budget" validate:"required,min=1ms"`

	// MaxSteps caps interpreter steps per execution.
	MaxSteps uint64 `json:"max_steps" validate:"required,min=1000"`

	// MaxRows caps tabular result rows before truncation.
	MaxRows int `json:"max_rows" validate:"required,min=1"`

	// Workers is the worker count for non-chained batches.
	Workers int `json:"workers" validate:"required,min=1,max=64"`

	// TableName is the predeclared name the input table is bound under.
	TableName string `json:"table_name" validate:"required,alphanum"`
}

// PolicyConfig holds validation policy settings.
type PolicyConfig struct {
	// Paths lists rule files or directories loaded at startup.
	Paths []string `json:"paths,omitempty"`

	// AllowedCalls extends the built-in allowed call surface.
	AllowedCalls []string `json:"allowed_calls,omitempty"`

	// ForbiddenTokens extends the built-in deny list. Deny wins over
	// allow on overlap.
	ForbiddenTokens []string `json:"forbidden_tokens,omitempty"`

	// WatchRules enables hot reload of rule paths.
	WatchRules bool `json:"watch_rules"`
}

// HistoryConfig holds attempt log settings.
type HistoryConfig struct {
	// Enabled turns attempt persistence on.
	Enabled bool `json:"enabled"`

	// Path is the SQLite database path.
	Path string `json:"path,omitempty" validate:"required_if=Enabled true"`

	// BufferSize is the async writer queue depth.
	BufferSize int `json:"buffer_size,omitempty" validate:"omitempty,min=1"`

	// Sync makes every record durable before the batch result returns.
	Sync bool `json:"sync"`

	// RetentionDays prunes attempts older than this; zero keeps forever.
	RetentionDays int `json:"retention_days,omitempty" validate:"omitempty,min=0"`
}

// TelemetrySettings holds the observability settings surfaced in the
// config file. The full telemetry.Config is derived from these.
type TelemetrySettings struct {
	// LogLevel is the minimum log level (trace, debug, info, warn, error).
	LogLevel string `json:"log_level" validate:"omitempty,oneof=trace debug info warn error"`

	// LogFormat is the log output format (json, console).
	LogFormat string `json:"log_format" validate:"omitempty,oneof=json console"`

	// MetricsEnabled turns the Prometheus endpoint on.
	MetricsEnabled bool `json:"metrics_enabled"`

	// MetricsAddress is the metrics listen address.
	MetricsAddress string `json:"metrics_address,omitempty"`

	// TracingEnabled turns OpenTelemetry tracing on.
	TracingEnabled bool `json:"tracing_enabled"`

	// TracingExporter is the trace exporter (otlp, stdout, none).
	TracingExporter string `json:"tracing_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `json:"tracing_endpoint,omitempty"`
}

// DatasetConfig names a CSV dataset available to queries.
type DatasetConfig struct {
	// Name is the dataset identifier used on the command line.
	Name string `json:"name" validate:"required"`

	// Path is the CSV file path.
	Path string `json:"path" validate:"required"`
}

// Config is the fully resolved tabulark configuration.
type Config struct {
	Engine    EngineConfig      `json:"engine"`
	Policy    PolicyConfig      `json:"policy"`
	History   HistoryConfig     `json:"history"`
	Telemetry TelemetrySettings `json:"telemetry"`
	Datasets  []DatasetConfig   `json:"datasets,omitempty"`
}

// DefaultConfig returns the configuration used when no file overrides
// anything.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Budget:    10 * time.Second,
			MaxSteps:  10_000_000,
			MaxRows:   10_000,
			Workers:   4,
			TableName: "df",
		},
		Policy: PolicyConfig{
			WatchRules: false,
		},
		History: HistoryConfig{
			Enabled:    false,
			BufferSize: 256,
		},
		Telemetry: TelemetrySettings{
			LogLevel:        "info",
			LogFormat:       "json",
			MetricsAddress:  ":9090",
			TracingExporter: "none",
		},
	}
}

// TelemetryConfig derives the full telemetry configuration from the
// settings surfaced in the config file.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if c.Telemetry.LogLevel != "" {
		cfg.Logging.Level = c.Telemetry.LogLevel
	}
	if c.Telemetry.LogFormat != "" {
		cfg.Logging.Format = c.Telemetry.LogFormat
	}
	cfg.Metrics.Enabled = c.Telemetry.MetricsEnabled
	if c.Telemetry.MetricsAddress != "" {
		cfg.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	}
	cfg.Tracing.Enabled = c.Telemetry.TracingEnabled
	if c.Telemetry.TracingExporter != "" {
		cfg.Tracing.Exporter = c.Telemetry.TracingExporter
	}
	cfg.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	return cfg
}

// ParsedConfig represents the configuration parsed from CUE sources.
type ParsedConfig struct {
	// Config is the decoded configuration.
	Config *Config `json:"config"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "engine.max_rows").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}
