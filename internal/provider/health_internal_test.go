package provider

import (
	"testing"
	"time"
)

func newTestTracker(cfg HealthConfig) (*healthTracker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHealthTracker(cfg)
	h.now = func() time.Time { return now }
	return h, &now
}

func TestHealthTracker_BackoffDoubles(t *testing.T) {
	t.Parallel()

	h, _ := newTestTracker(HealthConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, MaxFailures: 10})

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		h.RecordFailure()
		if got := h.snapshot().backoff; got != w {
			t.Errorf("failure %d: backoff = %v, want %v", i+1, got, w)
		}
	}
}

func TestHealthTracker_CooldownExpires(t *testing.T) {
	t.Parallel()

	h, now := newTestTracker(HealthConfig{InitialBackoff: time.Second})
	h.RecordFailure()

	if h.IsAvailable() {
		t.Fatal("available during cooldown")
	}
	if h.ShouldHealthCheck() {
		t.Fatal("health check requested during cooldown")
	}

	*now = now.Add(time.Second)
	if !h.IsAvailable() {
		t.Fatal("not available after cooldown")
	}
	if !h.ShouldHealthCheck() {
		t.Fatal("health check not requested after cooldown")
	}
}

func TestHealthTracker_DeadAfterMaxFailures(t *testing.T) {
	t.Parallel()

	var transitions []string
	h, _ := newTestTracker(HealthConfig{MaxFailures: 2})
	h.onStateChange = func(from, to healthState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}

	h.RecordFailure()
	h.RecordFailure()
	if h.IsAvailable() {
		t.Fatal("dead provider reported available")
	}
	if !h.ShouldHealthCheck() {
		t.Fatal("dead provider should be probed")
	}

	h.RecordSuccess()
	snap := h.snapshot()
	if snap.state != stateHealthy || snap.failures != 0 || snap.backoff != 0 {
		t.Errorf("after success: %+v", snap)
	}

	want := []string{"healthy>cooldown", "cooldown>dead", "dead>healthy"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestHealthConfig_Defaults(t *testing.T) {
	t.Parallel()

	var c HealthConfig
	c.defaults()
	if c.InitialBackoff != time.Second || c.MaxBackoff != time.Minute || c.MaxFailures != 5 || c.CheckInterval != 10*time.Second {
		t.Errorf("defaults = %+v", c)
	}
}
