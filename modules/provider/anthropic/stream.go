package anthropic

import (
	"context"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/mpdagents/mpdchat/internal/provider"
)

const streamBufferSize = 16

// Stream sends a streaming completion request. Connection errors are
// returned directly; mid-stream errors arrive via StreamChunk.Err.
func (a *Anthropic) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.convertRequest(req), a.requestOptions()...)

	// The first event is read synchronously so auth and network failures
	// reach the chain as a returned error, which allows failover.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapError(err)
		}
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}

	ch := make(chan provider.StreamChunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		consume(ctx, stream, ch)
	}()
	return ch, nil
}

// consume forwards text deltas and the final usage. The current event of
// stream has not been processed yet.
func consume(ctx context.Context, stream *ssestream.Stream[sdkanthropic.MessageStreamEventUnion], ch chan<- provider.StreamChunk) {
	var inputTokens int64
	for {
		switch ev := stream.Current().AsAny().(type) {
		case sdkanthropic.MessageStartEvent:
			inputTokens = ev.Message.Usage.InputTokens

		case sdkanthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdkanthropic.TextDelta); ok && delta.Text != "" {
				if !emit(ctx, ch, provider.StreamChunk{Content: delta.Text}) {
					return
				}
			}

		case sdkanthropic.MessageDeltaEvent:
			out := ev.Usage.OutputTokens
			emit(ctx, ch, provider.StreamChunk{
				FinishReason: convertStopReason(ev.Delta.StopReason),
				Usage: &provider.TokenUsage{
					PromptTokens:     int(inputTokens),
					CompletionTokens: int(out),
					TotalTokens:      int(inputTokens + out),
				},
			})
		}

		if ctx.Err() != nil || !stream.Next() {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		emit(ctx, ch, provider.StreamChunk{Err: err})
		return
	}
	if err := stream.Err(); err != nil {
		emit(ctx, ch, provider.StreamChunk{Err: mapError(err)})
	}
}

// emit sends chunk unless ctx is done first.
func emit(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
