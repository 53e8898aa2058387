package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/retrieval"
)

// retrieve sets Context from the passages matching the latest user
// message. Failures degrade to an empty context.
func (t *turn) retrieve(ctx context.Context) error {
	t.state.Context = ""

	query := strings.TrimSpace(t.latestUserText())
	if query == "" {
		return nil
	}

	cfg := t.e.cfg.Retrieval
	passages, err := t.query(ctx, query)
	if err != nil {
		t.e.logger.Warn("retrieval degraded",
			"key", t.key,
			"namespace", cfg.Namespace,
			"error", err,
		)
		return nil
	}
	t.state.Context = retrieval.Format(passages, cfg.PassageChars)
	return nil
}

// query calls the retriever, turning a panic into an error.
func (t *turn) query(ctx context.Context, text string) (passages []retrieval.Passage, err error) {
	defer func() {
		if r := recover(); r != nil {
			passages, err = nil, fmt.Errorf("retriever panic: %v", r)
		}
	}()
	cfg := t.e.cfg.Retrieval
	return t.e.retriever.Query(ctx, text, cfg.TopK, cfg.Namespace)
}

// latestUserText looks at the turn input first since retrieval runs
// before generate appends it.
func (t *turn) latestUserText() string {
	for i := len(t.input.Messages) - 1; i >= 0; i-- {
		if t.input.Messages[i].Role == RoleUser {
			return t.input.Messages[i].Content
		}
	}
	return t.state.LastUserMessage()
}

// generate appends the input, asks for a reply and appends it. In stream
// mode every piece is passed to the sink as it arrives.
func (t *turn) generate(ctx context.Context) error {
	if err := t.state.AppendMessages(t.input.Messages...); err != nil {
		return err
	}

	req := provider.CompletionRequest{
		Messages:    replyPrompt(&t.state),
		MaxTokens:   t.e.cfg.MaxTokens,
		Temperature: t.e.cfg.Temperature,
	}

	var reply string
	if t.sink == nil {
		resp, err := t.e.completer.Complete(ctx, provider.RolePrimary, req)
		if err != nil {
			return generationError(ctx, err)
		}
		reply = resp.Content
	} else {
		var err error
		if reply, err = t.streamReply(ctx, req); err != nil {
			return err
		}
	}

	msg := NewMessage(RoleAssistant, reply)
	if err := t.state.AppendMessages(msg); err != nil {
		return err
	}
	t.reply = reply
	return nil
}

func (t *turn) streamReply(ctx context.Context, req provider.CompletionRequest) (string, error) {
	ch, err := t.e.completer.Stream(ctx, provider.RolePrimary, req)
	if err != nil {
		return "", generationError(ctx, err)
	}

	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			drain(ch)
			return "", generationError(ctx, chunk.Err)
		}
		if chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		if err := t.sink(chunk.Content); err != nil {
			drain(ch)
			return "", err
		}
	}
	return sb.String(), nil
}

// compact extends the summary with the current history, then keeps only
// the most recent RetainAfterSummary messages.
func (t *turn) compact(ctx context.Context) error {
	resp, err := t.e.completer.Complete(ctx, provider.RoleInternal, provider.CompletionRequest{
		Messages: summaryRequest(&t.state),
	})
	if err != nil {
		return fmt.Errorf("%w: summarizing: %w", ErrGeneration, err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return fmt.Errorf("%w: empty summary", ErrGeneration)
	}

	keep := t.e.cfg.RetainAfterSummary
	var evict []string
	if n := len(t.state.Messages); n > keep {
		for _, m := range t.state.Messages[:n-keep] {
			evict = append(evict, m.ID)
		}
	}

	t.state.Summary = summary
	removed := t.state.RemoveMessages(evict...)
	t.compacted = true
	t.e.logger.Info("conversation compacted", "key", t.key, "removed", removed, "kept", len(t.state.Messages))
	return nil
}

// generationError wraps a completion failure unless it was caused by the
// caller going away.
func generationError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrGeneration, err)
}

// drain consumes the rest of a stream so the producer can exit.
func drain(ch <-chan provider.StreamChunk) {
	for range ch { //nolint:revive // intentional empty drain loop
	}
}
