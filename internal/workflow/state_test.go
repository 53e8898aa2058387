package workflow_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

func TestState_AppendMessages(t *testing.T) {
	t.Parallel()

	var s workflow.State
	a := workflow.NewMessage(workflow.RoleUser, "hi")
	b := workflow.NewMessage(workflow.RoleAssistant, "hello")
	if err := s.AppendMessages(a, b); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	c := workflow.NewMessage(workflow.RoleUser, "again")
	if err := s.AppendMessages(c, a); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if len(s.Messages) != 2 {
		t.Fatalf("failed append modified state: %d messages", len(s.Messages))
	}
	if err := s.AppendMessages(c, c); err == nil {
		t.Fatal("duplicate within one call accepted")
	}
	if err := s.AppendMessages(workflow.Message{Role: workflow.RoleUser}); err == nil {
		t.Fatal("empty id accepted")
	}
}

func TestState_RemoveMessages(t *testing.T) {
	t.Parallel()

	var s workflow.State
	msgs := []workflow.Message{
		workflow.NewMessage(workflow.RoleUser, "1"),
		workflow.NewMessage(workflow.RoleAssistant, "2"),
		workflow.NewMessage(workflow.RoleUser, "3"),
	}
	if err := s.AppendMessages(msgs...); err != nil {
		t.Fatal(err)
	}

	if n := s.RemoveMessages(msgs[0].ID, "missing", msgs[2].ID); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if diff := cmp.Diff([]workflow.Message{msgs[1]}, s.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if n := s.RemoveMessages(); n != 0 {
		t.Errorf("RemoveMessages() = %d", n)
	}
}

func TestState_Clone(t *testing.T) {
	t.Parallel()

	s := workflow.State{Summary: "s"}
	_ = s.AppendMessages(workflow.NewMessage(workflow.RoleUser, "hi"))

	c := s.Clone()
	c.Messages[0].Content = "changed"
	_ = c.AppendMessages(workflow.NewMessage(workflow.RoleAssistant, "x"))

	if s.Messages[0].Content != "hi" || len(s.Messages) != 1 {
		t.Errorf("clone aliases original: %+v", s.Messages)
	}
}

func TestState_LastMessages(t *testing.T) {
	t.Parallel()

	var s workflow.State
	if _, ok := s.LastReply(); ok {
		t.Error("empty state has a reply")
	}
	_ = s.AppendMessages(
		workflow.NewMessage(workflow.RoleUser, "q1"),
		workflow.NewMessage(workflow.RoleAssistant, "a1"),
		workflow.NewMessage(workflow.RoleUser, "q2"),
	)
	if got := s.LastUserMessage(); got != "q2" {
		t.Errorf("LastUserMessage = %q", got)
	}
	if _, ok := s.LastReply(); ok {
		t.Error("LastReply reported a user message")
	}
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	for _, r := range []workflow.Role{"user", "assistant"} {
		if !r.Valid() {
			t.Errorf("%q invalid", r)
		}
	}
	for _, r := range []workflow.Role{"system", "tool", ""} {
		if r.Valid() {
			t.Errorf("%q valid", r)
		}
	}
}
