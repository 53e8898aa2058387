package gateway

import (
	"net/http"
	"time"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime         time.Duration     `json:"uptime_seconds"`
	Metrics        MetricsSnapshot   `json:"metrics"`
	Threads        int               `json:"threads"`
	DefaultPersona string            `json:"default_persona"`
	Providers      []provider.Status `json:"providers"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:  time.Since(g.startedAt).Truncate(time.Second),
			Metrics: g.metrics.Snapshot(),
		}
		if g.conv != nil {
			resp.DefaultPersona = g.conv.DefaultPersonaID()
			if refs, err := g.conv.Threads(r.Context()); err == nil {
				resp.Threads = len(refs)
			} else {
				g.log().Warn("status: listing threads failed", "error", err)
			}
		}
		if g.chain != nil {
			resp.Providers = g.chain.HealthReport()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
