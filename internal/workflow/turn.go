package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mpdagents/mpdchat/internal/checkpoint"
)

// snapshot is the payload of a pending write. Input is only set on the
// start record.
type snapshot struct {
	State State  `json:"state"`
	Input *Input `json:"input,omitempty"`
}

// turn is the working copy of one graph execution.
type turn struct {
	e     *Engine
	key   string
	id    string
	mode  Mode
	state State
	input Input
	sink  func(string) error

	step      int
	last      string
	reply     string
	compacted bool
}

func newTurn(e *Engine, key string, mode Mode, st State, in Input) *turn {
	return &turn{
		e:     e,
		key:   key,
		id:    uuid.NewString(),
		mode:  mode,
		state: st.Clone(),
		input: in,
		last:  NodeStart,
	}
}

// run executes node and its successors, then commits. Cancellation is
// checked before every node and before the commit.
func (t *turn) run(ctx context.Context, node string) (Result, error) {
	for node != NodeEnd {
		if err := ctx.Err(); err != nil {
			return Result{}, t.abort(ctx, err)
		}
		if err := t.exec(ctx, node); err != nil {
			return Result{}, t.abort(ctx, err)
		}
		if err := t.record(ctx, node); err != nil {
			return Result{}, t.abort(ctx, err)
		}
		node = t.e.graph.Next(node, &t.state, t.e.cfg)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, t.abort(ctx, err)
	}
	return t.commit(ctx)
}

func (t *turn) exec(ctx context.Context, node string) error {
	t.step++
	ev := NodeEvent{Key: t.key, Turn: t.id, Node: node, Step: t.step, Mode: t.mode, Start: t.e.now()}
	nctx := t.e.observer.NodeStart(ctx, ev)

	var err error
	switch node {
	case NodeRetrieve:
		err = t.retrieve(nctx)
	case NodeGenerate:
		err = t.generate(nctx)
	case NodeCompact:
		err = t.compact(nctx)
	default:
		err = fmt.Errorf("workflow: unknown node %q", node)
	}

	t.e.observer.NodeEnd(nctx, ev, err)
	t.e.logger.Debug("node finished",
		"key", t.key,
		"turn", t.id,
		"node", node,
		"step", t.step,
		"duration", time.Since(ev.Start),
		"error", err,
	)
	if err == nil {
		t.last = node
	}
	return err
}

// record appends the post-node state to the write log. The start record
// also carries the turn input.
func (t *turn) record(ctx context.Context, node string) error {
	if t.e.writes == nil {
		return nil
	}
	snap := snapshot{State: t.state}
	if node == NodeStart {
		in := t.input
		snap.Input = &in
	}
	payload, err := checkpoint.Encode(snap)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	w := checkpoint.Write{
		Key:       t.key,
		Turn:      t.id,
		Step:      t.step,
		Node:      node,
		Payload:   payload,
		CreatedAt: t.e.now(),
	}
	if err := t.e.writes.PutWrite(ctx, w); err != nil {
		return fmt.Errorf("%w: recording %s of %s: %w", ErrPersistence, node, t.key, err)
	}
	return nil
}

// abort drops the turn's pending writes and returns err.
func (t *turn) abort(ctx context.Context, err error) error {
	if t.e.writes != nil {
		if derr := t.e.writes.DiscardWrites(context.WithoutCancel(ctx), t.key); derr != nil {
			t.e.logger.Warn("discarding pending writes failed", "key", t.key, "turn", t.id, "error", derr)
		}
	}
	t.e.logger.Warn("turn aborted", "key", t.key, "turn", t.id, "after", t.last, "error", err)
	return err
}

// commit saves the state as the key's checkpoint. Once started, the save
// is not interrupted by cancellation.
func (t *turn) commit(ctx context.Context) (Result, error) {
	t.state.Context = ""
	data, err := checkpoint.Encode(t.state)
	if err != nil {
		return Result{}, t.abort(ctx, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	cp := checkpoint.Checkpoint{
		Key:       t.key,
		Turn:      t.id,
		Step:      t.step,
		LastNode:  t.last,
		State:     data,
		UpdatedAt: t.e.now(),
	}
	if err := t.e.store.Save(context.WithoutCancel(ctx), t.key, cp); err != nil {
		return Result{}, t.abort(ctx, fmt.Errorf("%w: saving %s: %w", ErrPersistence, t.key, err))
	}

	reply := t.reply
	if reply == "" {
		reply, _ = t.state.LastReply()
	}
	return Result{
		Reply:     reply,
		State:     t.state.Clone(),
		Turn:      t.id,
		Compacted: t.compacted,
	}, nil
}
