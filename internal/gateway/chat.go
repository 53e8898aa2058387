package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mpdagents/mpdchat/internal/conversation"
)

// decodeTurn reads a TurnRequest body.
func (g *Gateway) decodeTurn(w http.ResponseWriter, r *http.Request) (conversation.TurnRequest, error) {
	var req conversation.TurnRequest
	body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, conversation.ErrInvalidMessage) {
			return req, err
		}
		return req, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return req, nil
}

// handleChat runs one turn and returns the complete reply.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := g.decodeTurn(w, r)
		if err != nil {
			g.fail(w, r, err)
			return
		}

		start := time.Now()
		res, err := g.conv.HandleTurn(r.Context(), req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.metrics.RecordTurn(time.Since(start))
		writeJSON(w, http.StatusOK, res)
	}
}

// handleChatStream runs one turn and streams its events as Server-Sent
// Events, one JSON object per data line. Errors detected before the turn
// starts are plain JSON responses with the mapped status.
func (g *Gateway) handleChatStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := g.decodeTurn(w, r)
		if err != nil {
			g.fail(w, r, err)
			return
		}

		ctx, cancel := g.streamContext(r)
		defer cancel()

		start := time.Now()
		events, err := g.conv.StreamTurn(ctx, req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.metrics.RecordStream()

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		for ev := range events {
			if ev.Kind == conversation.StreamError {
				g.metrics.RecordError()
				g.log().Warn("stream failed", "thread_id", ev.ThreadID, "persona_id", ev.PersonaID, "error", ev.Err)
			}
			if ev.Kind == conversation.StreamEnd {
				g.metrics.RecordTurn(time.Since(start))
			}
			if err := writeSSE(w, rc, ev); err != nil {
				// Client went away: stop the turn and let the producer wind down.
				cancel()
				for range events {
				}
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
