package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/provider"
	"gopkg.in/yaml.v3"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := sdkanthropic.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	auth, err := provider.NewAuthProfile("test-key", "second-key")
	if err != nil {
		t.Fatal(err)
	}
	return &Anthropic{
		config: Config{MaxTokens: 512},
		model:  "claude-sonnet-4-5-20250929",
		client: &client,
		auth:   auth,
	}
}

func chatRequest() provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "You are a comedian."},
			{Role: provider.MessageRoleUser, Content: "Hello"},
			{Role: provider.MessageRoleAssistant, Content: "Hi!"},
			{Role: provider.MessageRoleUser, Content: "Joke?"},
		},
	}
}

func TestConvertRequest(t *testing.T) {
	t.Parallel()

	a := &Anthropic{config: Config{MaxTokens: 512}, model: "m"}
	temp := 0.2
	req := chatRequest()
	req.Temperature = &temp
	params := a.convertRequest(req)

	if len(params.System) != 1 || params.System[0].Text != "You are a comedian." {
		t.Errorf("System = %+v", params.System)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("Messages = %d, want 3", len(params.Messages))
	}
	if params.Messages[1].Role != sdkanthropic.MessageParamRoleAssistant {
		t.Errorf("Messages[1].Role = %q", params.Messages[1].Role)
	}
	if params.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d", params.MaxTokens)
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	a := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("X-Api-Key = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"system"`) {
			t.Errorf("system prompt missing from %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"content": [{"type": "text", "text": "Why did the gopher..."}],
			"model": "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	})

	resp, err := a.Complete(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Why did the gopher..." || resp.FinishReason != provider.FinishReasonStop || resp.Usage.TotalTokens != 15 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`, provider.ErrRateLimit},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, provider.ErrProviderDown},
		{"auth", 401, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`, provider.ErrAuthentication},
		{"context", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt exceeds context length"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := a.Complete(context.Background(), chatRequest())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStream_TextDeltas(t *testing.T) {
	t.Parallel()

	a := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`event: message_start` + "\n" + `data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"m","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":0}}}`,
			`event: content_block_start` + "\n" + `data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`,
			`event: content_block_stop` + "\n" + `data: {"type":"content_block_stop","index":0}`,
			`event: message_delta` + "\n" + `data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`,
			`event: message_stop` + "\n" + `data: {"type":"message_stop"}`,
		}
		for _, ev := range events {
			_, _ = w.Write([]byte(ev + "\n\n"))
			w.(http.Flusher).Flush()
		}
	})

	ch, err := a.Stream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := provider.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestStream_ConnectionError(t *testing.T) {
	t.Parallel()

	a := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"down"}}`))
	})
	if _, err := a.Stream(context.Background(), chatRequest()); !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("error = %v, want ErrProviderDown", err)
	}
}

func TestProvision_PublishesEntries(t *testing.T) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte("api_key: k\nsummary_model: claude-haiku-4-5\nrole: fallback\n"), &doc); err != nil {
		t.Fatal(err)
	}

	a := &Anthropic{}
	if err := a.Configure(doc.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	app := core.NewAppContext(nil, t.TempDir())
	if err := a.Provision(app); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	main, ok := core.Service[provider.ChainEntry](app, provider.EntryServicePrefix+"anthropic")
	if !ok || main.Role != provider.RoleFallback || main.Provider.ModelName() != defaultModel {
		t.Errorf("main = %+v", main)
	}
	summary, ok := core.Service[provider.ChainEntry](app, provider.EntryServicePrefix+"anthropic.summary")
	if !ok || summary.Provider.ModelName() != "claude-haiku-4-5" {
		t.Errorf("summary = %+v", summary)
	}
}
