package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mpdagents/mpdchat/internal/workflow"
)

// ErrInvalidMessage is returned when a message payload is none of the
// accepted shapes.
var ErrInvalidMessage = errors.New("invalid message")

// MessageKind identifies the shape of a RawMessage.
type MessageKind int

// Accepted message shapes.
const (
	KindText  MessageKind = iota // a single user message
	KindTexts                    // several user messages
	KindTurns                    // role/content pairs
)

// Turn is one role/content pair of a KindTurns message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RawMessage is the inbound message of a turn: a string, a list of
// strings, or a list of role/content pairs.
type RawMessage struct {
	kind  MessageKind
	text  string
	texts []string
	turns []Turn
}

// Text returns a single-string message.
func Text(s string) RawMessage { return RawMessage{kind: KindText, text: s} }

// Texts returns a list-of-strings message.
func Texts(s ...string) RawMessage { return RawMessage{kind: KindTexts, texts: s} }

// Turns returns a list of role/content pairs.
func Turns(t ...Turn) RawMessage { return RawMessage{kind: KindTurns, turns: t} }

// Kind returns the shape of m.
func (m RawMessage) Kind() MessageKind { return m.kind }

// Messages converts m into history entries. Pairs with a role other than
// user or assistant are skipped and counted in dropped.
func (m RawMessage) Messages() (msgs []workflow.Message, dropped int) {
	switch m.kind {
	case KindText:
		return []workflow.Message{workflow.NewMessage(workflow.RoleUser, m.text)}, 0
	case KindTexts:
		msgs = make([]workflow.Message, 0, len(m.texts))
		for _, s := range m.texts {
			msgs = append(msgs, workflow.NewMessage(workflow.RoleUser, s))
		}
		return msgs, 0
	default:
		msgs = make([]workflow.Message, 0, len(m.turns))
		for _, t := range m.turns {
			role := workflow.Role(t.Role)
			if !role.Valid() {
				dropped++
				continue
			}
			msgs = append(msgs, workflow.NewMessage(role, t.Content))
		}
		return msgs, dropped
	}
}

// UnmarshalJSON accepts a string, an array of strings or an array of
// {role, content} objects. An empty array is an empty list of strings.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		*m = Text(s)
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		if len(items) == 0 {
			*m = Texts()
			return nil
		}
		if first := bytes.TrimSpace(items[0]); len(first) > 0 && first[0] == '{' {
			var turns []Turn
			if err := json.Unmarshal(data, &turns); err != nil {
				return fmt.Errorf("%w: list of role/content objects expected: %w", ErrInvalidMessage, err)
			}
			*m = Turns(turns...)
			return nil
		}
		var texts []string
		if err := json.Unmarshal(data, &texts); err != nil {
			return fmt.Errorf("%w: list of strings expected: %w", ErrInvalidMessage, err)
		}
		*m = Texts(texts...)
		return nil
	default:
		return fmt.Errorf("%w: string or list expected", ErrInvalidMessage)
	}
}

// MarshalJSON writes m back in its original shape.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case KindText:
		return json.Marshal(m.text)
	case KindTexts:
		if m.texts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.texts)
	default:
		if m.turns == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.turns)
	}
}
