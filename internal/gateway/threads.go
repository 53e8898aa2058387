package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/persona"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

// personasJSON is the response for GET /personas.
type personasJSON struct {
	Default  string            `json:"default"`
	Personas []persona.Persona `json:"personas"`
}

func (g *Gateway) handlePersonas() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, personasJSON{
			Default:  g.conv.DefaultPersonaID(),
			Personas: g.conv.Personas(),
		})
	}
}

// resetJSON is the response of the reset endpoints.
type resetJSON struct {
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
}

// handleResetMemory deletes every stored conversation.
func (g *Gateway) handleResetMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := g.conv.Reset(r.Context())
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.log().Info("conversation memory reset", "deleted", n)
		writeJSON(w, http.StatusOK, resetJSON{Status: "success", Deleted: n})
	}
}

func (g *Gateway) handleListThreads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs, err := g.conv.Threads(r.Context())
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, refs)
	}
}

// threadJSON is the response for GET /threads/{thread_id}/{persona_id}.
type threadJSON struct {
	ThreadID  string `json:"thread_id"`
	PersonaID string `json:"persona_id"`
	workflow.Snapshot
}

func (g *Gateway) handleGetThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := threadRef(r)
		snap, err := g.conv.Thread(r.Context(), ref.ThreadID, ref.PersonaID)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, threadJSON{ThreadID: ref.ThreadID, PersonaID: snap.State.PersonaID, Snapshot: snap})
	}
}

func (g *Gateway) handleDeleteThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := threadRef(r)
		n, err := g.conv.ResetThread(r.Context(), ref.ThreadID, ref.PersonaID)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resetJSON{Status: "success", Deleted: n})
	}
}

// handleResume finishes a turn that was interrupted after it started
// recording progress.
func (g *Gateway) handleResume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := threadRef(r)
		res, err := g.conv.Resume(r.Context(), ref.ThreadID, ref.PersonaID)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func threadRef(r *http.Request) conversation.ThreadRef {
	return conversation.ThreadRef{
		ThreadID:  chi.URLParam(r, "thread_id"),
		PersonaID: chi.URLParam(r, "persona_id"),
	}
}
