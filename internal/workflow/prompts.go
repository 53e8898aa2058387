package workflow

import (
	"strings"
	"text/template"

	"github.com/mpdagents/mpdchat/internal/provider"
)

var characterCard = template.Must(template.New("character_card").Parse(`You are a human with Dissociative Identity Disorder (DID).
The currently dominant personality is: **{{.PersonaName}}**.

**Your Core Directive:**
You must strictly embody this personality. Your response must be short, fun, and perfectly aligned with the character's unique style and perspective. Do not break character.

**Personality Profile:**
- **Perspective:** {{.PersonaPerspective}}
- **Style:** {{.PersonaStyle}}

**Summary of messages till now:**
{{.Summary}}
{{- if .Context}}

**Relevant context:**
{{.Context}}
{{- end}}
`))

const summaryPrompt = `Create a summary of the conversation between {{.PersonaName}} and the user.
The summary must be a short description of the conversation so far, but that also captures all the
relevant information shared between {{.PersonaName}} and the user: `

const extendSummaryPrompt = `This is a summary of the conversation to date between {{.PersonaName}} and the user:

{{.Summary}}

Extend the summary by taking into account the new messages above: `

var (
	summaryTmpl       = template.Must(template.New("summary").Parse(summaryPrompt))
	extendSummaryTmpl = template.Must(template.New("extend_summary").Parse(extendSummaryPrompt))
)

func render(t *template.Template, s *State) string {
	var b strings.Builder
	// The templates only read string fields of State; Execute cannot fail.
	_ = t.Execute(&b, s)
	return b.String()
}

func historyMessages(msgs []Message) []provider.LLMMessage {
	out := make([]provider.LLMMessage, 0, len(msgs))
	for _, m := range msgs {
		role := provider.MessageRoleUser
		if m.Role == RoleAssistant {
			role = provider.MessageRoleAssistant
		}
		out = append(out, provider.LLMMessage{Role: role, Content: m.Content})
	}
	return out
}

// replyPrompt is the system character card followed by the history.
func replyPrompt(s *State) []provider.LLMMessage {
	msgs := make([]provider.LLMMessage, 0, len(s.Messages)+1)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: render(characterCard, s)})
	return append(msgs, historyMessages(s.Messages)...)
}

// summaryRequest is the history followed by an instruction to create, or
// extend when s already has one, the summary.
func summaryRequest(s *State) []provider.LLMMessage {
	tmpl := summaryTmpl
	if s.Summary != "" {
		tmpl = extendSummaryTmpl
	}
	msgs := historyMessages(s.Messages)
	return append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: render(tmpl, s)})
}
