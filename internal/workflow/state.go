package workflow

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

// Message roles kept in conversation history.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role the history accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable entry of the history.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage returns a message with a fresh id.
func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// State is the conversation record threaded through the graph and
// persisted per thread key.
type State struct {
	Messages []Message `json:"messages"`

	// Summary covers every message removed by compaction so far. It is
	// only ever extended.
	Summary string `json:"summary"`

	// Context holds retrieved passages for the current turn. It is cleared
	// before the state is committed.
	Context string `json:"context,omitempty"`

	PersonaID          string `json:"persona_id"`
	PersonaName        string `json:"persona_name"`
	PersonaStyle       string `json:"persona_style"`
	PersonaPerspective string `json:"persona_perspective"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Messages = slices.Clone(s.Messages)
	return s
}

// AppendMessages adds msgs in order. It fails without modifying s if any
// id is empty or already present.
func (s *State) AppendMessages(msgs ...Message) error {
	seen := make(map[string]struct{}, len(s.Messages)+len(msgs))
	for _, m := range s.Messages {
		seen[m.ID] = struct{}{}
	}
	for _, m := range msgs {
		if m.ID == "" {
			return fmt.Errorf("workflow: message without id")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("workflow: duplicate message id %s", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	s.Messages = append(s.Messages, msgs...)
	return nil
}

// RemoveMessages drops the messages with the given ids and returns how
// many were removed. Unknown ids are ignored.
func (s *State) RemoveMessages(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	before := len(s.Messages)
	s.Messages = slices.DeleteFunc(s.Messages, func(m Message) bool {
		_, ok := drop[m.ID]
		return ok
	})
	return before - len(s.Messages)
}

// LastUserMessage returns the content of the most recent user message, or
// "" when there is none.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastReply returns the content of the final message when it was written
// by the assistant.
func (s *State) LastReply() (string, bool) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == RoleAssistant {
		return s.Messages[n-1].Content, true
	}
	return "", false
}

// applyPersona copies the persona fields of in onto s.
func (s *State) applyPersona(in Input) {
	s.PersonaID = in.PersonaID
	s.PersonaName = in.PersonaName
	s.PersonaStyle = in.PersonaStyle
	s.PersonaPerspective = in.PersonaPerspective
}
