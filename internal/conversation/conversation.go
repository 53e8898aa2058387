// Package conversation turns inbound chat requests into workflow runs.
//
// It resolves the persona, normalizes the message payload, derives the
// thread key that isolates each thread and persona pair, and shapes the
// engine's results and events for transports.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/persona"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

// DefaultPersona is used when a request names no persona.
const DefaultPersona = "intelligent"

// ServiceName is the AppContext service the running Service is published
// under.
const ServiceName = "conversation.service"

// Engine is the workflow surface the service drives. *workflow.Engine
// implements it.
type Engine interface {
	Run(ctx context.Context, in workflow.Input, key string) (workflow.Result, error)
	Stream(ctx context.Context, in workflow.Input, key string) (<-chan workflow.Event, error)
	Resume(ctx context.Context, key string) (workflow.Result, error)
	Reset(ctx context.Context, scope checkpoint.Scope) (int, error)
	Snapshot(ctx context.Context, key string) (workflow.Snapshot, error)
	Keys(ctx context.Context) ([]string, error)
}

// TurnRequest is one inbound turn.
type TurnRequest struct {
	Message   RawMessage `json:"message"`
	ThreadID  string     `json:"thread_id"`
	PersonaID string     `json:"persona_id,omitempty"`
	NewThread bool       `json:"new_thread,omitempty"`
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Reply     string         `json:"response"`
	ThreadID  string         `json:"thread_id"`
	PersonaID string         `json:"persona_id"`
	Dropped   int            `json:"dropped,omitempty"`
	Compacted bool           `json:"compacted,omitempty"`
	State     workflow.State `json:"-"`
}

// ThreadKey derives the checkpoint key of a thread and persona pair.
func ThreadKey(threadID, personaID string) string {
	return threadID + "-" + personaID
}

// ThreadRef names a stored thread.
type ThreadRef struct {
	ThreadID  string `json:"thread_id"`
	PersonaID string `json:"persona_id"`
}

// ParseThreadKey splits a key built by ThreadKey. Thread ids may contain
// dashes, so the persona is matched as a known suffix.
func ParseThreadKey(key string) (ThreadRef, bool) {
	for _, id := range persona.IDs() {
		if thread, ok := strings.CutSuffix(key, "-"+id); ok && thread != "" {
			return ThreadRef{ThreadID: thread, PersonaID: id}, true
		}
	}
	return ThreadRef{}, false
}

// Option configures a Service.
type Option func(*Service)

// WithLogger injects a structured logger. When nil or omitted, log output
// is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDefaultPersona overrides DefaultPersona.
func WithDefaultPersona(id string) Option {
	return func(s *Service) { s.defaultPersona = id }
}

// Service handles turns. It is safe for concurrent use.
type Service struct {
	engine         Engine
	logger         *slog.Logger
	defaultPersona string
}

// New creates a Service over engine.
func New(engine Engine, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, errors.New("conversation: nil engine")
	}
	s := &Service{engine: engine, defaultPersona: DefaultPersona}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if _, err := persona.Get(s.defaultPersona); err != nil {
		return nil, fmt.Errorf("conversation: default persona: %w", err)
	}
	return s, nil
}

// prepared is a validated request ready for the engine.
type prepared struct {
	input   workflow.Input
	thread  string
	persona string
	key     string
	dropped int
}

func (s *Service) prepare(req TurnRequest) (prepared, error) {
	id := req.PersonaID
	if id == "" {
		id = s.defaultPersona
	}
	p, err := persona.Get(id)
	if err != nil {
		return prepared{}, err
	}

	thread := req.ThreadID
	if thread == "" {
		thread = uuid.NewString()
	}

	msgs, dropped := req.Message.Messages()
	if dropped > 0 {
		s.logger.Warn("dropped messages with unknown roles", "thread_id", thread, "persona_id", p.ID, "dropped", dropped)
	}

	return prepared{
		input: workflow.Input{
			Messages:           msgs,
			PersonaID:          p.ID,
			PersonaName:        p.Name,
			PersonaStyle:       p.Style,
			PersonaPerspective: p.Perspective,
			NewThread:          req.NewThread,
		},
		thread:  thread,
		persona: p.ID,
		key:     ThreadKey(thread, p.ID),
		dropped: dropped,
	}, nil
}

// HandleTurn runs a turn to completion.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	p, err := s.prepare(req)
	if err != nil {
		return TurnResult{}, err
	}
	res, err := s.engine.Run(ctx, p.input, p.key)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{
		Reply:     res.Reply,
		ThreadID:  p.thread,
		PersonaID: p.persona,
		Dropped:   p.dropped,
		Compacted: res.Compacted,
		State:     res.State,
	}, nil
}

// StreamEventKind identifies a StreamEvent.
type StreamEventKind int

// Stream event kinds in emission order.
const (
	StreamStart StreamEventKind = iota
	StreamChunk
	StreamEnd
	StreamError
)

// StreamEvent is one element of a streamed turn: a start marker, reply
// chunks, then an end event carrying the full response or an error.
type StreamEvent struct {
	Kind      StreamEventKind
	Chunk     string
	Response  string
	ThreadID  string
	PersonaID string
	Err       error
}

// MarshalJSON renders the wire shapes {"streaming":true},
// {"chunk":...}, {"response":...,"streaming":false,...} and
// {"error":...,"streaming":false}.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case StreamStart:
		return json.Marshal(struct {
			Streaming bool `json:"streaming"`
		}{true})
	case StreamChunk:
		return json.Marshal(struct {
			Chunk string `json:"chunk"`
		}{e.Chunk})
	case StreamEnd:
		return json.Marshal(struct {
			Response  string `json:"response"`
			Streaming bool   `json:"streaming"`
			ThreadID  string `json:"thread_id"`
			PersonaID string `json:"persona_id"`
		}{e.Response, false, e.ThreadID, e.PersonaID})
	default:
		msg := "stream failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return json.Marshal(struct {
			Error     string `json:"error"`
			Streaming bool   `json:"streaming"`
		}{msg, false})
	}
}

// StreamTurn runs a turn and returns its events. Request and concurrency
// errors are returned directly; later failures arrive as a StreamError
// event. The caller must drain the channel or cancel ctx.
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest) (<-chan StreamEvent, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	events, err := s.engine.Stream(ctx, p.input, p.key)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(StreamEvent{Kind: StreamStart}) {
			drainEvents(events)
			return
		}
		for ev := range events {
			var next StreamEvent
			switch ev.Type {
			case workflow.EventToken:
				if ev.Node != workflow.NodeGenerate {
					continue
				}
				next = StreamEvent{Kind: StreamChunk, Chunk: ev.Content}
			case workflow.EventDone:
				next = StreamEvent{Kind: StreamEnd, Response: ev.Result.Reply, ThreadID: p.thread, PersonaID: p.persona}
			case workflow.EventError:
				next = StreamEvent{Kind: StreamError, Err: ev.Err, ThreadID: p.thread, PersonaID: p.persona}
			default:
				continue
			}
			if !send(next) {
				drainEvents(events)
				return
			}
		}
	}()
	return out, nil
}

func drainEvents(ch <-chan workflow.Event) {
	for range ch { //nolint:revive // intentional empty drain loop
	}
}

// Resume finishes an interrupted turn of the thread and persona pair.
func (s *Service) Resume(ctx context.Context, threadID, personaID string) (TurnResult, error) {
	p, err := persona.Get(personaID)
	if err != nil {
		return TurnResult{}, err
	}
	res, err := s.engine.Resume(ctx, ThreadKey(threadID, p.ID))
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Reply: res.Reply, ThreadID: threadID, PersonaID: p.ID, Compacted: res.Compacted, State: res.State}, nil
}

// Thread returns the committed state of a thread and persona pair.
func (s *Service) Thread(ctx context.Context, threadID, personaID string) (workflow.Snapshot, error) {
	p, err := persona.Get(personaID)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	return s.engine.Snapshot(ctx, ThreadKey(threadID, p.ID))
}

// Threads lists the stored threads. Keys not built by ThreadKey are
// skipped.
func (s *Service) Threads(ctx context.Context) ([]ThreadRef, error) {
	keys, err := s.engine.Keys(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]ThreadRef, 0, len(keys))
	for _, k := range keys {
		if ref, ok := ParseThreadKey(k); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// Reset deletes every checkpoint and returns how many were removed.
func (s *Service) Reset(ctx context.Context) (int, error) {
	return s.engine.Reset(ctx, checkpoint.ScopeAll)
}

// ResetThread deletes the checkpoint of one thread and persona pair.
func (s *Service) ResetThread(ctx context.Context, threadID, personaID string) (int, error) {
	p, err := persona.Get(personaID)
	if err != nil {
		return 0, err
	}
	return s.engine.Reset(ctx, checkpoint.ScopeKey(ThreadKey(threadID, p.ID)))
}

// Personas lists the available personas.
func (s *Service) Personas() []persona.Persona { return persona.All() }

// DefaultPersonaID returns the persona used when a request names none.
func (s *Service) DefaultPersonaID() string { return s.defaultPersona }
