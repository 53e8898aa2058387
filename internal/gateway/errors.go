package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/persona"
	"github.com/mpdagents/mpdchat/internal/security"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

// errBadRequest marks request bodies that could not be decoded.
var errBadRequest = errors.New("invalid request body")

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, conversation.ErrInvalidMessage),
		errors.Is(err, persona.ErrUnknownPersona):
		return http.StatusBadRequest
	case errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, workflow.ErrNothingToResume):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, workflow.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, workflow.ErrPersistence):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorJSON is the body of every error response.
type errorJSON struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorJSON{Error: msg})
}

// fail writes err with its mapped status. Server-side failures are logged
// and counted; client errors are not.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		g.metrics.RecordError()
		g.log().LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", code),
			slog.Any("error", err),
		)
	}
	writeError(w, code, err.Error())
}

func (g *Gateway) log() *slog.Logger {
	if g.logger == nil {
		return slog.Default()
	}
	return g.logger
}
