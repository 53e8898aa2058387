package workflow

import (
	"strings"
	"testing"

	"github.com/mpdagents/mpdchat/internal/provider"
)

func TestReplyPrompt(t *testing.T) {
	t.Parallel()

	s := &State{
		PersonaName:        "Comedian",
		PersonaPerspective: "life is absurd",
		PersonaStyle:       "dry",
		Summary:            "they talked about cats",
	}
	_ = s.AppendMessages(NewMessage(RoleUser, "hi"), NewMessage(RoleAssistant, "oh, you again"))

	msgs := replyPrompt(s)
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	card := msgs[0]
	if card.Role != provider.MessageRoleSystem {
		t.Errorf("card role = %s", card.Role)
	}
	for _, want := range []string{"**Comedian**", "life is absurd", "- **Style:** dry", "they talked about cats"} {
		if !strings.Contains(card.Content, want) {
			t.Errorf("card missing %q:\n%s", want, card.Content)
		}
	}
	if strings.Contains(card.Content, "Relevant context") {
		t.Error("context section rendered without context")
	}
	if msgs[1].Role != provider.MessageRoleUser || msgs[2].Role != provider.MessageRoleAssistant {
		t.Errorf("history roles = %s, %s", msgs[1].Role, msgs[2].Role)
	}

	s.Context = "[1] (source: a.md, score: 1.00)\nfacts"
	card = replyPrompt(s)[0]
	if !strings.Contains(card.Content, "**Relevant context:**\n[1] (source: a.md") {
		t.Errorf("context not rendered:\n%s", card.Content)
	}
}

func TestSummaryRequest(t *testing.T) {
	t.Parallel()

	s := &State{PersonaName: "Philosopher"}
	_ = s.AppendMessages(NewMessage(RoleUser, "why"))

	msgs := summaryRequest(s)
	last := msgs[len(msgs)-1]
	if len(msgs) != 2 || last.Role != provider.MessageRoleUser {
		t.Fatalf("unexpected request: %+v", msgs)
	}
	if !strings.HasPrefix(last.Content, "Create a summary of the conversation between Philosopher and the user.") {
		t.Errorf("first summary prompt = %q", last.Content)
	}

	s.Summary = "earlier they asked why"
	last = summaryRequest(s)[1]
	if !strings.Contains(last.Content, "earlier they asked why\n\nExtend the summary") {
		t.Errorf("extend prompt = %q", last.Content)
	}
}
