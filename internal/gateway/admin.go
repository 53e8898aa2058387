package gateway

import (
	"net/http"

	"github.com/mpdagents/mpdchat/internal/config"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/security"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleListModules lists the compiled-in modules, optionally filtered by
// ?namespace=.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mods := core.GetModules()
		if ns := r.URL.Query().Get("namespace"); ns != "" {
			mods = core.GetModulesByNamespace(ns)
		}
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig returns the running configuration file with secrets
// redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.configPath == "" {
			writeError(w, http.StatusServiceUnavailable, "config path not set")
			return
		}

		cfg, err := config.Load(g.configPath)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		generic, err := config.ToMap(cfg)
		if err != nil {
			g.fail(w, r, err)
			return
		}

		redactor := g.redactor
		if redactor == nil {
			redactor = security.NewRedactor()
		}
		redactor.RedactMap(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}
