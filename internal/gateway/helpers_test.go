package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/provider/providertest"
	"github.com/mpdagents/mpdchat/internal/security"
	"github.com/mpdagents/mpdchat/internal/workflow"
	"gopkg.in/yaml.v3"
)

// newTestGateway wires a gateway over a real conversation service whose
// primary provider is reply.
func newTestGateway(t *testing.T, reply *providertest.MockProvider, cfg Config, opts ...workflow.Option) *Gateway {
	t.Helper()
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "reply", Provider: reply, Role: provider.RolePrimary},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	engine, err := workflow.New(chain, checkpoint.NewMemoryStore(), opts...)
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	conv, err := conversation.New(engine)
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}

	cfg.defaults()
	return &Gateway{
		config:  cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: &Metrics{},
		limiter: security.NewRateLimiter(cfg.RateLimits),
		conv:    conv,
		chain:   chain,
	}
}

// serve starts g's router on an httptest server.
func serve(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, header ...string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

// blockingReply is a provider whose stream emits one piece and then waits
// for release or cancellation.
func blockingReply(release <-chan struct{}) *providertest.MockProvider {
	return &providertest.MockProvider{
		StreamFunc: func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			ch := make(chan provider.StreamChunk, 1)
			go func() {
				defer close(ch)
				ch <- provider.StreamChunk{Content: "thinking"}
				select {
				case <-release:
				case <-ctx.Done():
					ch <- provider.StreamChunk{Err: ctx.Err()}
				}
			}()
			return ch, nil
		},
		CompleteFunc: func(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			select {
			case <-release:
				return provider.CompletionResponse{Content: "done"}, nil
			case <-ctx.Done():
				return provider.CompletionResponse{}, ctx.Err()
			}
		},
	}
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

var errUpstream = errors.New("upstream exploded")
