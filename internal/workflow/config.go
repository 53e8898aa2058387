package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Concurrency selects what happens to a turn for a key that already has a
// turn in flight.
type Concurrency string

// Concurrency modes.
const (
	ConcurrencyBlock  Concurrency = "block"
	ConcurrencyReject Concurrency = "reject"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultSummaryTrigger     = 30
	DefaultRetainAfterSummary = 5
	DefaultTopK               = 3
	DefaultNamespace          = "motion"
	DefaultTurnTimeout        = 2 * time.Minute
)

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	// SummaryTrigger is the history length above which a turn compacts.
	SummaryTrigger int `yaml:"summary_trigger"`

	// RetainAfterSummary is the number of most recent messages kept by
	// compaction.
	RetainAfterSummary int `yaml:"retain_after_summary"`

	Retrieval RetrievalConfig `yaml:"retrieval"`

	Concurrency Concurrency `yaml:"concurrency"`

	// TurnTimeout bounds a whole turn, completion calls included.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// MaxTokens and Temperature are passed to the completion service for
	// replies. Zero means the backend default.
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// RetrievalConfig tunes the retrieve_context node.
type RetrievalConfig struct {
	TopK         int    `yaml:"top_k"`
	Namespace    string `yaml:"namespace"`
	PassageChars int    `yaml:"passage_chars"`
}

func (c Config) withDefaults() Config {
	if c.SummaryTrigger == 0 {
		c.SummaryTrigger = DefaultSummaryTrigger
	}
	if c.RetainAfterSummary == 0 {
		c.RetainAfterSummary = DefaultRetainAfterSummary
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Retrieval.Namespace == "" {
		c.Retrieval.Namespace = DefaultNamespace
	}
	if c.Concurrency == "" {
		c.Concurrency = ConcurrencyBlock
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	c = c.withDefaults()
	var errs []error
	if c.SummaryTrigger < 1 {
		errs = append(errs, fmt.Errorf("summary_trigger must be positive, got %d", c.SummaryTrigger))
	}
	if c.RetainAfterSummary < 0 {
		errs = append(errs, fmt.Errorf("retain_after_summary must not be negative, got %d", c.RetainAfterSummary))
	}
	if c.RetainAfterSummary > c.SummaryTrigger {
		errs = append(errs, fmt.Errorf("retain_after_summary (%d) must not exceed summary_trigger (%d)", c.RetainAfterSummary, c.SummaryTrigger))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	switch c.Concurrency {
	case ConcurrencyBlock, ConcurrencyReject:
	default:
		errs = append(errs, fmt.Errorf("concurrency must be %q or %q, got %q", ConcurrencyBlock, ConcurrencyReject, c.Concurrency))
	}
	if c.TurnTimeout < 0 {
		errs = append(errs, fmt.Errorf("turn_timeout must not be negative, got %s", c.TurnTimeout))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %g", *c.Temperature))
	}
	return errors.Join(errs...)
}
