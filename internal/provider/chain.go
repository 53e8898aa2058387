package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name     string
	Provider Provider
	Role     Role
	Auth     *AuthProfile
	Health   HealthConfig

	// FallbackFor restricts a RoleFallback entry to the listed roles.
	// Empty means it backs up every role.
	FallbackFor []Role
}

type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// Status is the health view of one chain entry.
type Status struct {
	Name      string        `json:"name"`
	Role      Role          `json:"role"`
	Model     string        `json:"model"`
	State     string        `json:"state"`
	Available bool          `json:"available"`
	Failures  int           `json:"failures"`
	Backoff   time.Duration `json:"backoff_ns,omitempty"`
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger. When nil or omitted, log output
// is discarded.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// Chain routes completion requests to providers by role and fails over to
// the next healthy candidate on retryable errors. It is not itself a
// Provider: every call names the role it needs.
type Chain struct {
	entries []chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	c := &Chain{entries: make([]chainEntry, len(entries))}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(nopHandler{})
	}

	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		ce := chainEntry{ChainEntry: e, health: newHealthTracker(e.Health)}
		name := e.Name
		ce.health.onStateChange = func(from, to healthState) {
			c.logger.Warn("provider health changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		}
		c.entries[i] = ce
	}

	return c, nil
}

// Start launches the background health probe loop.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	interval := c.entries[0].health.cfg.CheckInterval
	for i := range c.entries {
		interval = min(interval, c.entries[i].health.cfg.CheckInterval)
	}
	go c.probe(ctx, interval)
}

// Stop cancels background health checks.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Complete sends req to the best available provider for role.
func (c *Chain) Complete(ctx context.Context, role Role, req CompletionRequest) (CompletionResponse, error) {
	var resp CompletionResponse
	err := c.try(ctx, role, func(e *chainEntry) error {
		r, err := e.Provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		e.health.RecordSuccess()
		resp = r
		return nil
	})
	return resp, err
}

// Stream opens a streaming completion on the best available provider for
// role. Failover only covers connection errors; once chunks flow, a
// mid-stream error is delivered to the caller.
func (c *Chain) Stream(ctx context.Context, role Role, req CompletionRequest) (<-chan StreamChunk, error) {
	var out <-chan StreamChunk
	err := c.try(ctx, role, func(e *chainEntry) error {
		ch, err := e.Provider.Stream(ctx, req)
		if err != nil {
			return err
		}
		out = c.watchStream(ch, e)
		return nil
	})
	return out, err
}

// try calls attempt on each available candidate until one succeeds or a
// non-retryable error occurs.
func (c *Chain) try(ctx context.Context, role Role, attempt func(*chainEntry) error) error {
	candidates := c.candidates(role)
	if len(candidates) == 0 {
		return fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.health.IsAvailable() {
			continue
		}

		err := attempt(e)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if IsRateLimit(err) && e.Auth != nil && e.Auth.Rotate() {
			c.logger.Info("auth key rotated", "provider", e.Name, "key_index", e.Auth.CurrentIndex())
		}
		e.health.RecordFailure()
		c.logger.Warn("provider failed, failing over", "provider", e.Name, "role", role, "error", err)
	}

	if lastErr != nil {
		c.logger.Error("all providers exhausted", "role", role, "last_error", lastErr)
		return fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	c.logger.Error("all providers exhausted", "role", role)
	return fmt.Errorf("%w for role %q: all candidates unavailable", ErrAllProviders, role)
}

// watchStream forwards src and defers the health verdict until the stream
// ends: success only if no retryable error was seen.
func (c *Chain) watchStream(src <-chan StreamChunk, e *chainEntry) <-chan StreamChunk {
	out := make(chan StreamChunk, cap(src))
	go func() {
		defer close(out)
		degraded := false
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) && !degraded {
				degraded = true
				e.health.RecordFailure()
				c.logger.Warn("mid-stream error degraded provider health", "provider", e.Name, "error", chunk.Err)
			}
			out <- chunk
		}
		if !degraded {
			e.health.RecordSuccess()
		}
	}()
	return out
}

// HealthReport returns the status of every entry in configuration order.
func (c *Chain) HealthReport() []Status {
	report := make([]Status, len(c.entries))
	for i := range c.entries {
		e := &c.entries[i]
		snap := e.health.snapshot()
		report[i] = Status{
			Name:      e.Name,
			Role:      e.Role,
			Model:     e.Provider.ModelName(),
			State:     snap.state.String(),
			Available: snap.available,
			Failures:  snap.failures,
			Backoff:   snap.backoff,
		}
	}
	return report
}

// Roles returns the distinct non-fallback roles served by the chain.
func (c *Chain) Roles() []Role {
	var roles []Role
	for _, e := range c.entries {
		if e.Role != RoleFallback && !slices.Contains(roles, e.Role) {
			roles = append(roles, e.Role)
		}
	}
	return roles
}

// candidates returns entries serving role: direct matches first, then
// fallbacks that cover it. The internal role borrows the primary entries
// when none are configured for it.
func (c *Chain) candidates(role Role) []*chainEntry {
	var direct, primary, fallbacks []*chainEntry
	for i := range c.entries {
		e := &c.entries[i]
		switch {
		case e.Role == role:
			direct = append(direct, e)
		case e.Role == RolePrimary:
			primary = append(primary, e)
		case e.Role == RoleFallback && (len(e.FallbackFor) == 0 || slices.Contains(e.FallbackFor, role)):
			fallbacks = append(fallbacks, e)
		}
	}
	if len(direct) == 0 && role == RoleInternal {
		direct = primary
	}
	return append(direct, fallbacks...)
}

// probe periodically health-checks entries that are dead or whose
// cooldown has expired. It blocks until ctx is cancelled.
func (c *Chain) probe(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range c.entries {
				e := &c.entries[i]
				if !e.health.ShouldHealthCheck() {
					continue
				}
				checker, ok := e.Provider.(HealthChecker)
				if !ok {
					continue
				}
				if err := checker.HealthCheck(ctx); err == nil {
					e.health.RecordSuccess()
				}
			}
		}
	}
}
