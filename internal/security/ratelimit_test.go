package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{TurnsPerMin: 5})
	for i := range 5 {
		if err := rl.Allow(KindTurn, "10.0.0.1"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}
	if err := rl.Allow(KindTurn, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := rl.Allow(KindTurn, "10.0.0.2"); err != nil {
		t.Fatalf("other client limited: %v", err)
	}
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow(KindTurn, "c"); err != nil {
			t.Fatal(err)
		}
	}
	if rl.Blocked(KindAuth, "c") {
		t.Error("Blocked with no limit")
	}
	if rl.Len() != 0 {
		t.Errorf("unlimited kinds tracked %d buckets", rl.Len())
	}
}

func TestRateLimiter_SlidingWindowAndPrune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{AuthFailuresPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindAuth, "c")
	_ = rl.Allow(KindAuth, "c")
	if !rl.Blocked(KindAuth, "c") {
		t.Fatal("expected client to be blocked")
	}
	if n := rl.Prune(); n != 0 {
		t.Errorf("pruned %d active buckets", n)
	}

	now = now.Add(61 * time.Second)
	if rl.Blocked(KindAuth, "c") {
		t.Fatal("still blocked after the window")
	}
	if n := rl.Prune(); n != 1 || rl.Len() != 0 {
		t.Errorf("Prune = %d, Len = %d; want 1, 0", n, rl.Len())
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{TurnsPerMin: 50})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindTurn, "c") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
