package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its allowance.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit kinds.
const (
	KindTurn = "turn" // chat turns, per client
	KindAuth = "auth" // failed authentication attempts, per client
)

// RateLimitConfig holds per-client sliding-window limits. Zero disables a
// limit.
type RateLimitConfig struct {
	TurnsPerMin        int `yaml:"turns_per_min"`
	AuthFailuresPerMin int `yaml:"auth_failures_per_min"`
}

// RateLimiter applies sliding-window limits per kind and client key.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	window  time.Duration
	buckets map[bucketKey][]time.Time
	now     func() time.Time
}

type bucketKey struct{ kind, client string }

// NewRateLimiter creates a limiter with one-minute windows.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits: map[string]int{
			KindTurn: cfg.TurnsPerMin,
			KindAuth: cfg.AuthFailuresPerMin,
		},
		window:  time.Minute,
		buckets: make(map[bucketKey][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event of kind for client, or returns ErrRateLimited
// without recording it when the window is full. A nil limiter allows
// everything.
func (rl *RateLimiter) Allow(kind, client string) error {
	if rl == nil {
		return nil
	}
	limit := rl.limits[kind]
	if limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{kind, client}
	now := rl.now()
	events := evict(rl.buckets[key], now.Add(-rl.window))
	if len(events) >= limit {
		rl.buckets[key] = events
		return ErrRateLimited
	}
	rl.buckets[key] = append(events, now)
	return nil
}

// Blocked reports whether client has exhausted kind without recording an
// event.
func (rl *RateLimiter) Blocked(kind, client string) bool {
	if rl == nil {
		return false
	}
	limit := rl.limits[kind]
	if limit <= 0 {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{kind, client}
	events := evict(rl.buckets[key], rl.now().Add(-rl.window))
	rl.buckets[key] = events
	return len(events) >= limit
}

// Prune drops clients with no events inside the window and returns how
// many were removed.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	n := 0
	for key, events := range rl.buckets {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked client buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// evict drops events before cutoff. Events are in chronological order.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
