package provider

import (
	"context"
	"strings"
)

// Role selects which chain entries serve a request.
type Role string

// Roles. Replies use RolePrimary, summaries use RoleInternal, and
// RoleFallback entries back up either.
const (
	RolePrimary  Role = "primary"
	RoleInternal Role = "internal"
	RoleFallback Role = "fallback"
)

// MessageRole identifies the sender of a prompt message.
type MessageRole string

// Prompt message roles.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// FinishReason describes why the model stopped generating.
type FinishReason string

// Finish reasons normalized across backends.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage is one entry of a prompt.
type LLMMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest is the input to Complete and Stream. System messages
// may appear anywhere in Messages; backends that take a separate system
// prompt hoist them.
type CompletionRequest struct {
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

// CompletionResponse is the output of Complete.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// StreamChunk is one piece of a streaming reply.
type StreamChunk struct {
	Content      string       `json:"content,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Collect drains a stream into a single response. It stops at the first
// chunk error or when ctx is done.
func Collect(ctx context.Context, ch <-chan StreamChunk) (CompletionResponse, error) {
	var (
		sb   strings.Builder
		resp CompletionResponse
	)
	for {
		select {
		case <-ctx.Done():
			return CompletionResponse{}, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				resp.Content = sb.String()
				return resp, nil
			}
			if chunk.Err != nil {
				return CompletionResponse{}, chunk.Err
			}
			sb.WriteString(chunk.Content)
			if chunk.FinishReason != "" {
				resp.FinishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				resp.Usage = *chunk.Usage
			}
		}
	}
}
