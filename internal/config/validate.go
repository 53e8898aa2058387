package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/cron"
)

// Validate checks the structural validity of a Config: version, module IDs
// against the registry, exactly one checkpoint backend, and the workflow,
// logging and telemetry sections. All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	var checkpoints []string
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if core.ModuleID(id).Namespace() == "checkpoint" {
			checkpoints = append(checkpoints, id)
		}
	}
	if len(checkpoints) > 1 {
		errs = append(errs, fmt.Errorf("config: at most one checkpoint module may be configured, got %s", strings.Join(checkpoints, ", ")))
	}

	errs = append(errs, validateWorkflow(cfg.Workflow)...)
	errs = append(errs, validateLogging(cfg.Logging)...)

	return errors.Join(errs...)
}

func validateWorkflow(w WorkflowConfig) []error {
	var errs []error

	if w.SummaryTrigger < 1 {
		errs = append(errs, fmt.Errorf("config: workflow.summary_trigger must be positive, got %d", w.SummaryTrigger))
	}
	if w.RetainAfterSummary < 0 {
		errs = append(errs, fmt.Errorf("config: workflow.retain_after_summary must not be negative, got %d", w.RetainAfterSummary))
	}
	if w.RetainAfterSummary >= w.SummaryTrigger {
		errs = append(errs, fmt.Errorf("config: workflow.retain_after_summary (%d) must be below summary_trigger (%d)",
			w.RetainAfterSummary, w.SummaryTrigger))
	}
	switch w.Concurrency {
	case ConcurrencyBlock, ConcurrencyReject:
	default:
		errs = append(errs, fmt.Errorf("config: workflow.concurrency must be %q or %q, got %q",
			ConcurrencyBlock, ConcurrencyReject, w.Concurrency))
	}
	if w.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("config: workflow.max_tokens must not be negative, got %d", w.MaxTokens))
	}
	if t := w.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("config: workflow.temperature must be within [0, 2], got %g", *t))
	}
	if w.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("config: workflow.retrieval.top_k must be positive, got %d", w.Retrieval.TopK))
	}
	if w.Retrieval.PassageChars < 1 {
		errs = append(errs, fmt.Errorf("config: workflow.retrieval.passage_chars must be positive, got %d", w.Retrieval.PassageChars))
	}
	for name, expr := range map[string]string{
		"lane_cleanup": w.Maintenance.LaneCleanup,
		"write_prune":  w.Maintenance.WritePrune,
	} {
		if err := cron.ParseSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: workflow.maintenance.%s: %w", name, err))
		}
	}

	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		errs = append(errs, fmt.Errorf("config: logging.level %q is not a valid level", l.Level))
	}
	if l.Format != "text" && l.Format != "json" {
		errs = append(errs, fmt.Errorf("config: logging.format must be \"text\" or \"json\", got %q", l.Format))
	}

	return errs
}
