// Package workflow runs conversation turns through a small fixed graph:
// optional context retrieval, reply generation, and history compaction
// when the conversation grows past a threshold.
//
// The Engine owns the per-key serialization of turns, the checkpoint
// boundaries and the two execution modes. Run returns the finished reply;
// Stream forwards generate tokens as they arrive. Both walk the same
// graph and commit the same state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/retrieval"
)

// Mode is the way a turn's reply is consumed.
type Mode string

// Execution modes.
const (
	ModeComplete Mode = "complete"
	ModeStream   Mode = "stream"
)

// Completer is the completion service as the engine uses it. Replies use
// provider.RolePrimary and summaries provider.RoleInternal.
// *provider.Chain satisfies it.
type Completer interface {
	Complete(ctx context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error)
	Stream(ctx context.Context, role provider.Role, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
}

// Input is what a turn adds to the conversation.
type Input struct {
	Messages []Message

	PersonaID          string
	PersonaName        string
	PersonaStyle       string
	PersonaPerspective string

	// NewThread starts from an empty state even if the key has a
	// checkpoint. The checkpoint is overwritten when the turn commits.
	NewThread bool
}

// Result is the outcome of a committed turn.
type Result struct {
	Reply     string
	State     State
	Turn      string
	Compacted bool
	Resumed   bool
}

// EventType identifies a streaming event.
type EventType string

// Streaming event types. A stream ends with exactly one done or error
// event unless the caller's context ends first.
const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of a turn stream. Token events only originate from
// the generate node.
type Event struct {
	Type    EventType
	Node    string
	Content string
	Result  *Result
	Err     error
}

// Snapshot is the committed state of a key with its checkpoint metadata.
type Snapshot struct {
	Key       string    `json:"key"`
	Turn      string    `json:"turn"`
	Step      int       `json:"step"`
	LastNode  string    `json:"last_node"`
	UpdatedAt time.Time `json:"updated_at"`
	State     State     `json:"state"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger injects a structured logger. When nil or omitted, log output
// is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRetriever enables the retrieve_context node.
func WithRetriever(r retrieval.Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithObserver attaches node hooks.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithConfig overrides the defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// Engine executes turns. It is safe for concurrent use.
type Engine struct {
	graph     *Graph
	completer Completer
	retriever retrieval.Retriever
	store     checkpoint.Store
	writes    checkpoint.WriteLog
	lanes     *LaneLock
	observer  Observer

	// wipe is held shared by every running turn and exclusively by a
	// global reset, so no turn loaded before a wipe commits after it.
	wipe sync.RWMutex
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// New creates an Engine. The graph includes retrieve_context only when a
// retriever is given. If store implements checkpoint.WriteLog, every
// completed node is recorded so interrupted turns can be resumed.
func New(completer Completer, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if completer == nil {
		return nil, errors.New("workflow: nil completer")
	}
	if store == nil {
		return nil, errors.New("workflow: nil checkpoint store")
	}

	e := &Engine{
		completer: completer,
		store:     store,
		lanes:     NewLaneLock(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	e.cfg = e.cfg.withDefaults()
	if e.logger == nil {
		e.logger = slog.New(nopHandler{})
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if wl, ok := store.(checkpoint.WriteLog); ok {
		e.writes = wl
	}
	e.graph = NewGraph(GraphConfig{Retrieval: e.retriever != nil})
	return e, nil
}

// Graph returns the topology turns run through.
func (e *Engine) Graph() *Graph { return e.graph }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run executes one turn for key and returns the committed result.
func (e *Engine) Run(ctx context.Context, in Input, key string) (Result, error) {
	if err := e.lock(ctx, key); err != nil {
		return Result{}, err
	}
	defer e.unlock(key)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()
	return e.runTurn(ctx, key, in, ModeComplete, nil)
}

// Stream executes one turn for key and returns its events. The lane of
// key is taken before Stream returns, so ErrTurnInProgress is reported
// synchronously. The caller must drain the channel or cancel ctx.
// Cancelling ctx stops forwarding, skips compaction and commits nothing.
func (e *Engine) Stream(ctx context.Context, in Input, key string) (<-chan Event, error) {
	if err := e.lock(ctx, key); err != nil {
		return nil, err
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)

		ctx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()

		sink := func(token string) error {
			select {
			case ch <- Event{Type: EventToken, Node: NodeGenerate, Content: token}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// The lane is released before the final event so a caller reacting
		// to it can start the next turn immediately.
		res, err := func() (Result, error) {
			defer e.unlock(key)
			return e.runTurn(ctx, key, in, ModeStream, sink)
		}()

		final := Event{Type: EventDone, Result: &res}
		if err != nil {
			final = Event{Type: EventError, Err: err}
		}
		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Resume finishes the interrupted turn of key from its last recorded node
// and commits it. It returns ErrNothingToResume when key has no pending
// writes.
func (e *Engine) Resume(ctx context.Context, key string) (Result, error) {
	if e.writes == nil {
		return Result{}, ErrNothingToResume
	}
	if err := e.lock(ctx, key); err != nil {
		return Result{}, err
	}
	defer e.unlock(key)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()

	pending, err := e.writes.PendingWrites(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading pending writes of %s: %w", ErrPersistence, key, err)
	}
	t, next, err := e.restore(key, pending)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("resuming interrupted turn", "key", key, "turn", t.id, "after", t.last)
	res, err := t.run(ctx, next)
	res.Resumed = err == nil
	return res, err
}

// Reset deletes the checkpoints in scope and returns how many were
// removed. A key-scoped reset waits for the key's turn in flight; a
// global reset waits for every turn in flight and holds new turns back
// until the wipe is done.
func (e *Engine) Reset(ctx context.Context, scope checkpoint.Scope) (int, error) {
	if scope.All() {
		e.wipe.Lock()
		defer e.wipe.Unlock()
	} else {
		if err := e.lanes.Acquire(ctx, scope.Key()); err != nil {
			return 0, err
		}
		defer e.lanes.Release(scope.Key())
	}
	n, err := e.store.Reset(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("%w: reset %s: %w", ErrPersistence, scope, err)
	}
	e.logger.Info("checkpoints reset", "scope", scope.String(), "deleted", n)
	return n, nil
}

// Snapshot returns the committed state of key, or checkpoint.ErrNotFound.
func (e *Engine) Snapshot(ctx context.Context, key string) (Snapshot, error) {
	cp, err := e.store.Load(ctx, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: loading %s: %w", ErrPersistence, key, err)
	}
	if cp == nil {
		return Snapshot{}, fmt.Errorf("%w: %s", checkpoint.ErrNotFound, key)
	}
	snap := Snapshot{Key: key, Turn: cp.Turn, Step: cp.Step, LastNode: cp.LastNode, UpdatedAt: cp.UpdatedAt}
	if err := checkpoint.Decode(cp.State, &snap.State); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return snap, nil
}

// Keys lists the keys with a committed checkpoint.
func (e *Engine) Keys(ctx context.Context) ([]string, error) {
	keys, err := e.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return keys, nil
}

// Busy reports whether key has a turn in flight.
func (e *Engine) Busy(key string) bool { return e.lanes.Busy(key) }

// PruneLanes drops idle per-key locks and returns how many were removed.
func (e *Engine) PruneLanes() int { return e.lanes.Prune() }

// PruneWrites drops pending writes older than age, abandoning turns that
// were interrupted that long ago.
func (e *Engine) PruneWrites(ctx context.Context, age time.Duration) (int, error) {
	if e.writes == nil {
		return 0, nil
	}
	n, err := e.writes.PruneWrites(ctx, e.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return n, nil
}

// lock takes the lane of key, then a shared hold on wipe. unlock
// releases both.
func (e *Engine) lock(ctx context.Context, key string) error {
	if e.cfg.Concurrency == ConcurrencyReject {
		if !e.lanes.TryAcquire(key) {
			return fmt.Errorf("%w: %s", ErrTurnInProgress, key)
		}
	} else if err := e.lanes.Acquire(ctx, key); err != nil {
		return err
	}
	e.wipe.RLock()
	return nil
}

func (e *Engine) unlock(key string) {
	e.wipe.RUnlock()
	e.lanes.Release(key)
}

// runTurn loads the state of key, applies in and walks the graph. The
// caller holds the lane of key.
func (e *Engine) runTurn(ctx context.Context, key string, in Input, mode Mode, sink func(string) error) (Result, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return Result{}, err
	}

	cp, err := e.store.Load(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("%w: loading %s: %w", ErrPersistence, key, err)
	}
	var st State
	if cp != nil && !in.NewThread {
		if err := checkpoint.Decode(cp.State, &st); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}
	st.applyPersona(in)
	st.Context = ""

	t := newTurn(e, key, mode, st, in)
	t.sink = sink

	if e.writes != nil {
		stale, err := e.writes.PendingWrites(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("%w: reading pending writes of %s: %w", ErrPersistence, key, err)
		}
		if len(stale) > 0 {
			e.logger.Warn("discarding interrupted turn", "key", key, "turn", stale[0].Turn, "writes", len(stale))
			if err := e.writes.DiscardWrites(ctx, key); err != nil {
				return Result{}, fmt.Errorf("%w: discarding writes of %s: %w", ErrPersistence, key, err)
			}
		}
		if err := t.record(ctx, NodeStart); err != nil {
			return Result{}, err
		}
	}
	return t.run(ctx, e.graph.Entry())
}

// restore rebuilds an interrupted turn from its pending writes and
// returns the node to continue with.
func (e *Engine) restore(key string, pending []checkpoint.Write) (*turn, string, error) {
	if len(pending) == 0 {
		return nil, "", ErrNothingToResume
	}
	last := pending[len(pending)-1]
	var start *checkpoint.Write
	for i := range pending {
		if pending[i].Turn == last.Turn && pending[i].Node == NodeStart {
			start = &pending[i]
			break
		}
	}
	if start == nil {
		return nil, "", fmt.Errorf("%w: turn %s of %s has no start record", ErrNothingToResume, last.Turn, key)
	}

	var first, latest snapshot
	if err := checkpoint.Decode(start.Payload, &first); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := checkpoint.Decode(last.Payload, &latest); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if first.Input == nil {
		return nil, "", fmt.Errorf("%w: turn %s of %s has no recorded input", ErrPersistence, last.Turn, key)
	}
	if last.Node != NodeStart && !e.graph.Has(last.Node) {
		return nil, "", fmt.Errorf("%w: unknown node %q in pending writes of %s", ErrPersistence, last.Node, key)
	}

	t := newTurn(e, key, ModeComplete, latest.State, *first.Input)
	t.id = last.Turn
	t.step = last.Step
	t.last = last.Node
	t.compacted = last.Node == NodeCompact
	return t, e.graph.Next(last.Node, &t.state, e.cfg), nil
}

func normalizeInput(in Input) (Input, error) {
	msgs := make([]Message, len(in.Messages))
	for i, m := range in.Messages {
		if !m.Role.Valid() {
			return Input{}, fmt.Errorf("workflow: invalid message role %q", m.Role)
		}
		if m.ID == "" {
			m = NewMessage(m.Role, m.Content)
		}
		msgs[i] = m
	}
	in.Messages = msgs
	return in, nil
}

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
