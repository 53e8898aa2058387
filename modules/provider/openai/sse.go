package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// scannerBufferSize is the max SSE line length. bufio.Scanner's default of
// 64 KiB is too small for long content deltas.
const scannerBufferSize = 1 * 1024 * 1024

// sendChunk sends chunk on ch unless ctx is done first.
func sendChunk(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream parses an SSE body into chunks. ch is closed when the stream
// ends ([DONE], error, or ctx cancellation); body is always closed.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Closing the body unblocks the scanner on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			sendChunk(ctx, ch, provider.StreamChunk{Err: ctx.Err()})
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			sendChunk(ctx, ch, provider.StreamChunk{Err: err})
			return
		}

		var sc provider.StreamChunk
		if chunk.Usage != nil {
			u := fromUsage(*chunk.Usage)
			sc.Usage = &u
		}
		if len(chunk.Choices) > 0 {
			sc.Content = chunk.Choices[0].Delta.Content
			sc.FinishReason = mapFinishReason(chunk.Choices[0].FinishReason)
		}
		if sc.Content == "" && sc.FinishReason == "" && sc.Usage == nil {
			continue
		}
		if !sendChunk(ctx, ch, sc) {
			return
		}
	}

	if ctx.Err() != nil {
		sendChunk(ctx, ch, provider.StreamChunk{Err: ctx.Err()})
		return
	}
	if err := scanner.Err(); err != nil {
		sendChunk(ctx, ch, provider.StreamChunk{Err: mapConnectionError(err)})
	}
}
