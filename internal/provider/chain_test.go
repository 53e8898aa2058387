package provider_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/provider/providertest"
)

// syncBuffer is a thread-safe bytes.Buffer for concurrent log assertions.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func mustChain(t *testing.T, entries []provider.ChainEntry, opts ...provider.ChainOption) *provider.Chain {
	t.Helper()
	c, err := provider.NewChain(entries, opts...)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func TestNewChain_Empty(t *testing.T) {
	t.Parallel()

	if _, err := provider.NewChain(nil); !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("error = %v, want ErrNoProvider", err)
	}
}

func TestNewChain_NilProvider(t *testing.T) {
	t.Parallel()

	_, err := provider.NewChain([]provider.ChainEntry{{Name: "x", Role: provider.RolePrimary}})
	if !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("error = %v, want ErrNoProvider", err)
	}
}

func TestChain_CompleteRoutesByRole(t *testing.T) {
	t.Parallel()

	primary := providertest.Reply("reply")
	internal := providertest.Reply("summary")
	c := mustChain(t, []provider.ChainEntry{
		{Name: "main", Provider: primary, Role: provider.RolePrimary},
		{Name: "summarizer", Provider: internal, Role: provider.RoleInternal},
	})

	resp, err := c.Complete(context.Background(), provider.RoleInternal, provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "summary" {
		t.Errorf("Content = %q, want %q", resp.Content, "summary")
	}
	if primary.Calls() != 0 {
		t.Errorf("primary called %d times, want 0", primary.Calls())
	}
}

func TestChain_FailoverOnRetryable(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	bad := providertest.Fail(fmt.Errorf("upstream: %w", provider.ErrProviderDown))
	good := providertest.Reply("ok")
	c := mustChain(t, []provider.ChainEntry{
		{Name: "bad", Provider: bad, Role: provider.RolePrimary},
		{Name: "backup", Provider: good, Role: provider.RoleFallback},
	}, provider.WithLogger(logger))

	resp, err := c.Complete(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
	if !strings.Contains(buf.String(), "failing over") {
		t.Errorf("expected failover log, got %q", buf.String())
	}

	report := c.HealthReport()
	if report[0].State != "cooldown" {
		t.Errorf("bad state = %q, want cooldown", report[0].State)
	}
	if report[1].State != "healthy" {
		t.Errorf("backup state = %q, want healthy", report[1].State)
	}
}

func TestChain_NonRetryableStops(t *testing.T) {
	t.Parallel()

	bad := providertest.Fail(provider.ErrAuthentication)
	good := providertest.Reply("ok")
	c := mustChain(t, []provider.ChainEntry{
		{Name: "bad", Provider: bad, Role: provider.RolePrimary},
		{Name: "backup", Provider: good, Role: provider.RoleFallback},
	})

	_, err := c.Complete(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAuthentication) {
		t.Fatalf("error = %v, want ErrAuthentication", err)
	}
	if good.Calls() != 0 {
		t.Errorf("backup called %d times, want 0", good.Calls())
	}
}

func TestChain_AllExhausted(t *testing.T) {
	t.Parallel()

	c := mustChain(t, []provider.ChainEntry{
		{Name: "a", Provider: providertest.Fail(provider.ErrRateLimit), Role: provider.RolePrimary},
		{Name: "b", Provider: providertest.Fail(provider.ErrProviderDown), Role: provider.RolePrimary},
	})

	_, err := c.Complete(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) {
		t.Fatalf("error = %v, want ErrAllProviders", err)
	}
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("error = %v, want last error wrapped", err)
	}

	// Both are now cooling down, so nothing is tried.
	_, err = c.Complete(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) {
		t.Fatalf("second error = %v, want ErrAllProviders", err)
	}
}

func TestChain_NoCandidateForRole(t *testing.T) {
	t.Parallel()

	c := mustChain(t, []provider.ChainEntry{
		{Name: "a", Provider: providertest.Reply("x"), Role: provider.RolePrimary},
		{Name: "fb", Provider: providertest.Reply("y"), Role: provider.RoleFallback, FallbackFor: []provider.Role{provider.RolePrimary}},
	})

	_, err := c.Complete(context.Background(), provider.Role("vision"), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("error = %v, want ErrNoProvider", err)
	}
}

func TestChain_InternalBorrowsPrimary(t *testing.T) {
	t.Parallel()

	c := mustChain(t, []provider.ChainEntry{
		{Name: "a", Provider: providertest.Reply("from primary"), Role: provider.RolePrimary},
	})

	resp, err := c.Complete(context.Background(), provider.RoleInternal, provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q, want %q", resp.Content, "from primary")
	}
}

func TestRouting(t *testing.T) {
	t.Parallel()

	var r provider.Routing
	r.Defaults()
	if r.Role != provider.RolePrimary {
		t.Fatalf("default role = %q", r.Role)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	r.SummaryModel = "small"
	entries := r.Entries("openai", providertest.Reply("a"), providertest.Reply("b"), nil)
	if len(entries) != 2 || entries[1].Role != provider.RoleInternal || entries[1].Name != "openai.summary" {
		t.Errorf("entries = %+v", entries)
	}

	bad := provider.Routing{Role: provider.RolePrimary, FallbackFor: []provider.Role{provider.RoleInternal}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for fallback_for on primary role")
	}
}

func TestChain_RateLimitRotatesKey(t *testing.T) {
	t.Parallel()

	auth, err := provider.NewAuthProfile("k1", "", "k2")
	if err != nil {
		t.Fatalf("NewAuthProfile: %v", err)
	}
	c := mustChain(t, []provider.ChainEntry{
		{Name: "a", Provider: providertest.Fail(provider.ErrRateLimit), Role: provider.RolePrimary, Auth: auth},
	})

	_, _ = c.Complete(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if got := auth.CurrentKey(); got != "k2" {
		t.Errorf("CurrentKey = %q, want k2", got)
	}
}

func TestChain_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := providertest.Reply("x")
	c := mustChain(t, []provider.ChainEntry{{Name: "a", Provider: p, Role: provider.RolePrimary}})
	if _, err := c.Complete(ctx, provider.RolePrimary, provider.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if p.Calls() != 0 {
		t.Errorf("provider called %d times, want 0", p.Calls())
	}
}

func TestChain_Stream(t *testing.T) {
	t.Parallel()

	c := mustChain(t, []provider.ChainEntry{
		{Name: "a", Provider: providertest.Reply("hello world", "hello", " world"), Role: provider.RolePrimary},
	})

	ch, err := c.Stream(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := provider.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if resp.Content != "hello world" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello world")
	}
	if resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
}

func TestChain_StreamMidStreamErrorDegrades(t *testing.T) {
	t.Parallel()

	p := &providertest.MockProvider{
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			ch := make(chan provider.StreamChunk, 2)
			ch <- provider.StreamChunk{Content: "par"}
			ch <- provider.StreamChunk{Err: provider.ErrProviderDown}
			close(ch)
			return ch, nil
		},
	}
	c := mustChain(t, []provider.ChainEntry{{Name: "a", Provider: p, Role: provider.RolePrimary}})

	ch, err := c.Stream(context.Background(), provider.RolePrimary, provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := provider.Collect(context.Background(), ch); !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("Collect error = %v, want ErrProviderDown", err)
	}
	// Drain so the forwarding goroutine finishes before we inspect health.
	for range ch {
	}
	if got := c.HealthReport()[0].Failures; got != 1 {
		t.Errorf("Failures = %d, want 1", got)
	}
}

func TestChain_Roles(t *testing.T) {
	t.Parallel()

	c := mustChain(t, []provider.ChainEntry{
		{Name: "a", Provider: providertest.Reply("x"), Role: provider.RolePrimary},
		{Name: "b", Provider: providertest.Reply("x"), Role: provider.RolePrimary},
		{Name: "c", Provider: providertest.Reply("x"), Role: provider.RoleInternal},
		{Name: "d", Provider: providertest.Reply("x"), Role: provider.RoleFallback},
	})

	got := c.Roles()
	if len(got) != 2 || got[0] != provider.RolePrimary || got[1] != provider.RoleInternal {
		t.Errorf("Roles = %v, want [primary internal]", got)
	}
}

func TestChain_StartStopIdempotent(t *testing.T) {
	t.Parallel()

	c := mustChain(t, []provider.ChainEntry{{Name: "a", Provider: providertest.Reply("x"), Role: provider.RolePrimary}})
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}
