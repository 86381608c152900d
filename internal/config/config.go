package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Model selects which executor model(s) a run exercises.
type Model string

const (
	ModelPlatform Model = "platform"
	ModelVirtual  Model = "virtual"
	ModelCompare  Model = "compare"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

const (
	DefaultRequests   = 1000
	DefaultDelayMs    = 100
	DefaultPoolSize   = 200
	DefaultIterations = 100_000
)

type Config struct {
	Model        Model         `mapstructure:"model"`
	Requests     int           `mapstructure:"requests"`
	DelayMs      int           `mapstructure:"delay_ms"`
	PoolSize     int           `mapstructure:"pool_size"`
	Iterations   int           `mapstructure:"iterations"`
	SubmitRate   int           `mapstructure:"submit_rate"`
	Repeat       int           `mapstructure:"repeat"`
	JSONOutput   bool          `mapstructure:"json_output"`
	OutputFormat OutputFormat  `mapstructure:"output_format"`
	HTMLOutput   string        `mapstructure:"html_output"`
	Dashboard    bool          `mapstructure:"dashboard"`
	LogLevel     string        `mapstructure:"log_level"`
	LogJSON      bool          `mapstructure:"log_json"`
	LogErrors    bool          `mapstructure:"log_errors"`
	Thresholds   []string      `mapstructure:"thresholds"`
	HistoryFile  string        `mapstructure:"history_file"`
	PromTextfile string        `mapstructure:"prom_textfile"`
	HistoryList  bool          `mapstructure:"-"`
	HistoryShow  string        `mapstructure:"-"`
	ConfigFile   string        `mapstructure:"-"`
	Tracing      TracingConfig `mapstructure:"tracing"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether an exporter endpoint is configured, either directly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != ""
}

// Delay returns the per-unit wait as a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Format resolves the effective output format. --json-output wins over a text format.
func (c Config) Format() OutputFormat {
	if c.JSONOutput && (c.OutputFormat == "" || c.OutputFormat == OutputText) {
		return OutputJSON
	}
	if c.OutputFormat == "" {
		return OutputText
	}
	return c.OutputFormat
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	switch c.Model {
	case ModelPlatform, ModelVirtual, ModelCompare:
	default:
		issues = append(issues, fmt.Sprintf("model must be platform, virtual or compare (got %q)", c.Model))
	}

	if c.Requests < 1 {
		issues = append(issues, "requests must be >= 1")
	}
	if c.DelayMs < 0 {
		issues = append(issues, "delay-ms must be >= 0")
	}
	if c.PoolSize < 1 {
		issues = append(issues, "pool-size must be >= 1")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.SubmitRate < 0 {
		issues = append(issues, "submit-rate must be >= 0")
	}
	if c.Repeat < 1 {
		issues = append(issues, "repeat must be >= 1")
	}

	switch c.OutputFormat {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output-format must be text, json or yaml (got %q)", c.OutputFormat))
	}
	if c.JSONOutput && c.OutputFormat == OutputYAML {
		issues = append(issues, "json-output and output-format=yaml are mutually exclusive")
	}
	if c.Dashboard && c.Format() != OutputText {
		issues = append(issues, "dashboard requires text output")
	}

	if (c.HistoryList || c.HistoryShow != "") && c.HistoryFile == "" {
		issues = append(issues, "history-list and history-show require history-file")
	}
	if c.HistoryList && c.HistoryShow != "" {
		issues = append(issues, "history-list and history-show are mutually exclusive")
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// BrowsingHistory reports whether the invocation reads the history file instead of running.
func (c Config) BrowsingHistory() bool {
	return c.HistoryList || c.HistoryShow != ""
}

// Warnings lists settings that are valid but likely to overwhelm the host.
func (c Config) Warnings() []string {
	var warnings []string
	if c.PoolSize > 10_000 {
		warnings = append(warnings, fmt.Sprintf("high pool size configured (%d workers)", c.PoolSize))
	}
	if c.Requests > 1_000_000 {
		warnings = append(warnings, fmt.Sprintf("high request count configured (%d units); the unbounded model starts one goroutine per unit", c.Requests))
	}
	if c.Tracing.Enabled() && c.Tracing.Insecure {
		warnings = append(warnings, "tracing exporter TLS is disabled")
	}
	return warnings
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http (got %q)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample rate must be between 0 and 1 (got %g)", t.SampleRate))
	}
	return issues
}
