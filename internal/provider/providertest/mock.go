// Package providertest provides test doubles for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior; unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc      func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	HealthCheckFunc func(ctx context.Context) error
	Model           string

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Complete records req and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.record(req)
	return m.CompleteFunc(ctx, req)
}

// Stream records req and delegates to StreamFunc.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.record(req)
	return m.StreamFunc(ctx, req)
}

// ModelName returns Model, or "mock" when unset.
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc; nil means healthy.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CompletionRequest(nil), m.requests...)
}

// Calls returns how many Complete and Stream calls were made.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockProvider) record(req provider.CompletionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

// Reply returns a provider that answers every request with text, streaming
// it as one chunk per word-sized piece in pieces.
func Reply(text string, pieces ...string) *MockProvider {
	if len(pieces) == 0 {
		pieces = []string{text}
	}
	return &MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: text, FinishReason: provider.FinishReasonStop}, nil
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return Chunks(pieces...), nil
		},
	}
}

// Fail returns a provider whose every call fails with err.
func Fail(err error) *MockProvider {
	return &MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, err
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return nil, err
		},
		HealthCheckFunc: func(context.Context) error { return err },
	}
}

// Chunks returns a closed, fully buffered stream of the given pieces.
func Chunks(pieces ...string) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(pieces)+1)
	for _, p := range pieces {
		ch <- provider.StreamChunk{Content: p}
	}
	ch <- provider.StreamChunk{FinishReason: provider.FinishReasonStop}
	close(ch)
	return ch
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
