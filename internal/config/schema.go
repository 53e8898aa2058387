// Package config handles YAML configuration loading, environment variable
// expansion, defaults, and structural validation for mpdchat.
package config

import (
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "checkpoint.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`

	Workflow  WorkflowConfig  `yaml:"workflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Concurrency modes for turns that target a thread key already in flight.
const (
	ConcurrencyBlock  = "block"
	ConcurrencyReject = "reject"
)

// WorkflowConfig tunes the conversation workflow.
type WorkflowConfig struct {
	// SummaryTrigger is the message count above which a turn compacts
	// the history. Default: 30.
	SummaryTrigger int `yaml:"summary_trigger"`

	// RetainAfterSummary is how many trailing messages survive a
	// compaction. Default: 5.
	RetainAfterSummary int `yaml:"retain_after_summary"`

	// DefaultPersona is used when a request omits persona_id.
	// Default: "intelligent".
	DefaultPersona string `yaml:"default_persona"`

	// Concurrency is "block" (wait for the in-flight turn) or "reject".
	Concurrency string `yaml:"concurrency"`

	// TurnTimeout bounds a single turn, including streaming. Default: 2m.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// MaxTokens caps each completion. Zero leaves it to the provider.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature overrides the provider's sampling temperature when set.
	Temperature *float64 `yaml:"temperature"`

	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// RetrievalConfig controls the optional retrieve_context step.
type RetrievalConfig struct {
	Enabled bool `yaml:"enabled"`

	// TopK is how many passages are requested. Default: 3.
	TopK int `yaml:"top_k"`

	// Namespace selects the corpus partition. Default: "motion".
	Namespace string `yaml:"namespace"`

	// PassageChars is the per-passage character budget. Default: 400.
	PassageChars int `yaml:"passage_chars"`
}

// MaintenanceConfig schedules background housekeeping jobs.
type MaintenanceConfig struct {
	// LaneCleanup is a 5-field cron expression. Default: every 10 minutes.
	LaneCleanup string `yaml:"lane_cleanup"`

	// WritePrune is a 5-field cron expression. Default: hourly.
	WritePrune string `yaml:"write_prune"`

	// WriteRetention is how long interrupted-turn writes are kept for
	// resume before being pruned. Default: 24h.
	WriteRetention time.Duration `yaml:"write_retention"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// OTLPEndpoint is the host:port of an OTLP/HTTP collector. Tracing is
	// disabled when empty.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`

	// Metrics enables the Prometheus collectors and /metrics endpoint.
	Metrics *bool `yaml:"metrics"`
}

// MetricsEnabled reports whether Prometheus metrics are on (default true).
func (t TelemetryConfig) MetricsEnabled() bool {
	return t.Metrics == nil || *t.Metrics
}

// Defaults fills zero values with the documented defaults.
func (c *Config) Defaults() {
	w := &c.Workflow
	if w.SummaryTrigger == 0 {
		w.SummaryTrigger = 30
	}
	if w.RetainAfterSummary == 0 {
		w.RetainAfterSummary = 5
	}
	if w.DefaultPersona == "" {
		w.DefaultPersona = "intelligent"
	}
	if w.Concurrency == "" {
		w.Concurrency = ConcurrencyBlock
	}
	if w.TurnTimeout <= 0 {
		w.TurnTimeout = 2 * time.Minute
	}
	if w.Retrieval.TopK == 0 {
		w.Retrieval.TopK = 3
	}
	if w.Retrieval.Namespace == "" {
		w.Retrieval.Namespace = "motion"
	}
	if w.Retrieval.PassageChars == 0 {
		w.Retrieval.PassageChars = 400
	}
	if w.Maintenance.LaneCleanup == "" {
		w.Maintenance.LaneCleanup = "*/10 * * * *"
	}
	if w.Maintenance.WritePrune == "" {
		w.Maintenance.WritePrune = "0 * * * *"
	}
	if w.Maintenance.WriteRetention <= 0 {
		w.Maintenance.WriteRetention = 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "mpdchat"
	}
}

// SlogLevel parses Level. Unknown values fall back to info; Validate
// reports them.
func (l LoggingConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
