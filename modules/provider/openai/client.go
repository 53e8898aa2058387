package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// maxResponseSize is the maximum response body size (10 MB).
const maxResponseSize = 10 * 1024 * 1024

// streamChannelBuffer is the buffer size for the streaming channel.
const streamChannelBuffer = 64

// buildChatRequest merges request-level overrides with config defaults.
func (p *Provider) buildChatRequest(req provider.CompletionRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:    p.model,
		Messages: toMessages(req.Messages),
		Stream:   stream,
	}

	switch {
	case req.MaxTokens > 0:
		cr.MaxTokens = req.MaxTokens
	case p.config.MaxTokens > 0:
		cr.MaxTokens = p.config.MaxTokens
	}

	switch {
	case req.Temperature != nil:
		cr.Temperature = req.Temperature
	case p.config.Temperature != nil:
		cr.Temperature = p.config.Temperature
	}

	if stream {
		cr.StreamOptions = &streamOpts{IncludeUsage: true}
	}
	return cr
}

// newHTTPRequest creates an authenticated request using the current key.
func (p *Provider) newHTTPRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.auth.CurrentKey())
	return httpReq, nil
}

// Complete sends a non-streaming completion request.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	httpReq, err := p.newHTTPRequest(ctx, "/chat/completions", p.buildChatRequest(req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(err)
	}
	if httpErr := mapHTTPError(resp.StatusCode, body); httpErr != nil {
		return provider.CompletionResponse{}, httpErr
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	return fromResponse(&cr), nil
}

// Stream sends a streaming completion request. HTTP errors are returned
// directly; mid-stream errors arrive in StreamChunk.Err.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	httpReq, err := p.newHTTPRequest(ctx, "/chat/completions", p.buildChatRequest(req, true))
	if err != nil {
		return nil, err
	}

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, mapConnectionError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	ch := make(chan provider.StreamChunk, streamChannelBuffer)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

// HealthCheck sends a 1-token completion, which exercises authentication,
// model access and quota in one call.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages:  []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
		MaxTokens: 1,
	})
	return err
}
