package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mpdagents/mpdchat/internal/provider"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	auth, err := provider.NewAuthProfile("sk-test", "sk-second")
	if err != nil {
		t.Fatal(err)
	}
	return &Provider{
		config:       Config{BaseURL: srv.URL, MaxTokens: 256},
		model:        "gpt-4o",
		auth:         auth,
		client:       srv.Client(),
		streamClient: srv.Client(),
	}
}

func readRequestBody(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Errorf("invalid request body: %v", err)
	}
	return req
}

func writeSSE(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, l := range lines {
		_, _ = w.Write([]byte(l + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func userReq(content string) provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "be brief"},
			{Role: provider.MessageRoleUser, Content: content},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		req := readRequestBody(t, r)
		if req.Model != "gpt-4o" || req.Stream || req.MaxTokens != 256 {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))

	resp, err := p.Complete(context.Background(), userReq("hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello!" || resp.FinishReason != provider.FinishReasonStop || resp.Usage.TotalTokens != 5 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestComplete_UsesRotatedKey(t *testing.T) {
	t.Parallel()

	var got string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	}))
	p.auth.Rotate()

	if _, err := p.Complete(context.Background(), userReq("hi")); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Bearer sk-second" {
		t.Errorf("Authorization = %q, want rotated key", got)
	}
}

func TestComplete_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", 429, `{"error":{"message":"slow down"}}`, provider.ErrRateLimit},
		{"auth", 401, `{"error":{"message":"bad key"}}`, provider.ErrAuthentication},
		{"server", 503, `oops`, provider.ErrProviderDown},
		{"context", 400, `{"error":{"message":"context_length_exceeded"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := p.Complete(context.Background(), userReq("hi"))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStream_Success(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequestBody(t, r)
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("request = %+v", req)
		}
		writeSSE(w,
			`: keep-alive`,
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
			`data: [DONE]`,
		)
	}))

	ch, err := p.Stream(context.Background(), userReq("hi"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var pieces []string
	var finish provider.FinishReason
	var total int
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		if c.Content != "" {
			pieces = append(pieces, c.Content)
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Usage != nil {
			total = c.Usage.TotalTokens
		}
	}
	if len(pieces) != 2 || pieces[0] != "Hel" || pieces[1] != "lo" {
		t.Errorf("pieces = %q", pieces)
	}
	if finish != provider.FinishReasonStop || total != 3 {
		t.Errorf("finish = %q, total = %d", finish, total)
	}
}

func TestStream_HTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	if _, err := p.Stream(context.Background(), userReq("hi")); !errors.Is(err, provider.ErrRateLimit) {
		t.Fatalf("error = %v, want ErrRateLimit", err)
	}
}

func TestStream_MalformedChunk(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, `data: {not json`)
	}))
	ch, err := p.Stream(context.Background(), userReq("hi"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := provider.Collect(context.Background(), ch); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestWithModel(t *testing.T) {
	t.Parallel()

	var models []string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		models = append(models, readRequestBody(t, r).Model)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	}))
	summary := p.withModel("gpt-4o-mini")

	if _, err := summary.Complete(context.Background(), userReq("sum")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Complete(context.Background(), userReq("chat")); err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0] != "gpt-4o-mini" || models[1] != "gpt-4o" {
		t.Errorf("models = %v", models)
	}
	if summary.ModelName() != "gpt-4o-mini" || p.ModelName() != "gpt-4o" {
		t.Error("withModel changed the original provider")
	}
}
