package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/persona"
	"github.com/mpdagents/mpdchat/pkg/app"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a persona in the terminal",
		Long: `Chat with a persona in the terminal. Replies are streamed as they are
generated. Type /persona to switch persona, /reset to clear the current
thread, and /quit to leave.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			thread, _ := cmd.Flags().GetString("thread")
			personaID, _ := cmd.Flags().GetString("persona")
			plain, _ := cmd.Flags().GetBool("plain")
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				s := &chatSession{
					conv:    rt.Conversation,
					out:     cmd.OutOrStdout(),
					thread:  thread,
					persona: personaID,
				}
				if s.thread == "" {
					s.thread = uuid.NewString()
				}
				if plain {
					s.prompt = lineReader(cmd.InOrStdin())
					s.choose = func() (string, error) { return rt.Conversation.DefaultPersonaID(), nil }
				} else {
					s.prompt = huhPrompt
					s.choose = huhPersona
				}
				return s.run(ctx)
			})
		},
	}
	cmd.Flags().String("thread", "", "Thread id to continue (default: a new thread)")
	cmd.Flags().String("persona", "", "Persona id (default: ask)")
	cmd.Flags().Bool("plain", false, "Read lines from stdin instead of interactive prompts")
	return cmd
}

// chatSession is one terminal conversation.
type chatSession struct {
	conv    *conversation.Service
	out     io.Writer
	thread  string
	persona string

	prompt func(label string) (string, error)
	choose func() (string, error)
}

func (s *chatSession) run(ctx context.Context) error {
	if s.persona == "" {
		id, err := s.choose()
		if err != nil {
			return quietAbort(err)
		}
		s.persona = id
	}
	fmt.Fprintf(s.out, "thread %s, talking to %s\n", s.thread, s.persona)

	for ctx.Err() == nil {
		line, err := s.prompt("you")
		if err != nil {
			return quietAbort(err)
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			n, err := s.conv.ResetThread(ctx, s.thread, s.persona)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "cleared %d thread(s)\n", n)
			continue
		case "/persona":
			id, err := s.choose()
			if err != nil {
				return quietAbort(err)
			}
			s.persona = id
			fmt.Fprintf(s.out, "now talking to %s\n", s.persona)
			continue
		}
		if err := s.turn(ctx, line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return nil
}

func (s *chatSession) turn(ctx context.Context, text string) error {
	events, err := s.conv.StreamTurn(ctx, conversation.TurnRequest{
		Message:   conversation.Text(text),
		ThreadID:  s.thread,
		PersonaID: s.persona,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: ", s.persona)
	for ev := range events {
		switch ev.Kind {
		case conversation.StreamChunk:
			fmt.Fprint(s.out, ev.Chunk)
		case conversation.StreamEnd:
			fmt.Fprintln(s.out)
		case conversation.StreamError:
			fmt.Fprintln(s.out)
			return ev.Err
		}
	}
	return nil
}

// quietAbort turns end of input and a user abort into a clean exit.
func quietAbort(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	return err
}

func huhPrompt(label string) (string, error) {
	var line string
	err := huh.NewInput().
		Title(label).
		Value(&line).
		Run()
	return line, err
}

func huhPersona() (string, error) {
	opts := make([]huh.Option[string], 0, len(persona.IDs()))
	for _, p := range persona.All() {
		opts = append(opts, huh.NewOption(p.Name+" - "+p.Perspective, p.ID))
	}
	var id string
	err := huh.NewSelect[string]().
		Title("Who do you want to talk to?").
		Options(opts...).
		Value(&id).
		Run()
	return id, err
}

func lineReader(r io.Reader) func(string) (string, error) {
	sc := bufio.NewScanner(r)
	return func(string) (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return sc.Text(), nil
	}
}
