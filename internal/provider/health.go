package provider

import (
	"sync"
	"time"
)

// healthState is the availability state of one provider.
type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // transient failure, backing off
	stateDead                 // MaxFailures consecutive failures
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls health tracking behavior. Zero values take the
// defaults noted per field.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Default: 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures is the number of consecutive failures before the
	// provider is marked dead. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often dead or cooled-down providers are
	// probed. Default: 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// healthTracker applies exponential backoff on failures and marks the
// provider dead after MaxFailures consecutive failures.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange runs outside the lock on every transition.
	onStateChange func(from, to healthState)

	mu              sync.Mutex
	state           healthState
	failures        int
	backoff         time.Duration
	cooldownExpires time.Time

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{cfg: cfg, now: time.Now}
}

// IsAvailable reports whether the provider may take requests. A provider
// in cooldown becomes available again once its backoff has elapsed.
func (h *healthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.availableLocked()
}

func (h *healthTracker) availableLocked() bool {
	switch h.state {
	case stateHealthy:
		return true
	case stateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

// RecordSuccess resets the tracker to healthy.
func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = stateHealthy
	h.failures = 0
	h.backoff = 0
	h.mu.Unlock()

	h.notify(prev, stateHealthy)
}

// RecordFailure moves the tracker to cooldown, doubling the backoff, or to
// dead once MaxFailures is reached.
func (h *healthTracker) RecordFailure() {
	h.mu.Lock()
	prev := h.state
	h.failures++

	if h.failures >= h.cfg.MaxFailures {
		h.state = stateDead
	} else {
		h.state = stateCooldown
		h.backoff = min(max(h.backoff*2, h.cfg.InitialBackoff), h.cfg.MaxBackoff)
		h.cooldownExpires = h.now().Add(h.backoff)
	}
	next := h.state
	h.mu.Unlock()

	h.notify(prev, next)
}

func (h *healthTracker) notify(from, to healthState) {
	if from != to && h.onStateChange != nil {
		h.onStateChange(from, to)
	}
}

// ShouldHealthCheck is true for dead providers and for cooldowns that
// have expired.
func (h *healthTracker) ShouldHealthCheck() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateDead:
		return true
	case stateCooldown:
		return h.availableLocked()
	default:
		return false
	}
}

// healthSnapshot is a consistent view of the tracker.
type healthSnapshot struct {
	state     healthState
	available bool
	failures  int
	backoff   time.Duration
}

func (h *healthTracker) snapshot() healthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return healthSnapshot{
		state:     h.state,
		available: h.availableLocked(),
		failures:  h.failures,
		backoff:   h.backoff,
	}
}
