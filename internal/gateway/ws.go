package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/security"
)

// wsError is sent in place of a stream when a turn cannot start.
type wsError struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Streaming bool   `json:"streaming"`
}

// handleWebSocket serves /ws/chat. Each text frame carries a TurnRequest;
// the turn's stream events are written back as text frames, in order. One
// connection runs one turn at a time.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.config.AllowedOrigins,
		})
		if err != nil {
			g.log().Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.CloseNow()
		}()
		conn.SetReadLimit(g.config.MaxBodyBytes)

		ctx, cancel := g.streamContext(r)
		defer cancel()

		// A cancelled Read tears the connection down without a close
		// frame, so shutdown closes it with a status instead.
		stop := context.AfterFunc(ctx, func() {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		})
		defer stop()

		g.metrics.WSOpened()
		defer g.metrics.WSClosed()

		client := clientKey(r)
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					g.log().Debug("websocket read failed", "error", err)
				}
				break
			}

			if err := g.limiter.Allow(security.KindTurn, client); err != nil {
				g.sendWS(ctx, conn, wsError{Error: err.Error(), Status: http.StatusTooManyRequests})
				continue
			}

			var req conversation.TurnRequest
			if err := json.Unmarshal(data, &req); err != nil {
				g.sendWS(ctx, conn, wsError{Error: fmt.Sprintf("%s: %s", errBadRequest, err), Status: http.StatusBadRequest})
				continue
			}

			if !g.streamWS(ctx, conn, req) {
				break
			}
		}

		if ctx.Err() == nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
	}
}

// streamWS runs one turn and forwards its events. It returns false when
// the connection can no longer be written to.
func (g *Gateway) streamWS(ctx context.Context, conn *websocket.Conn, req conversation.TurnRequest) bool {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	events, err := g.conv.StreamTurn(turnCtx, req)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			g.metrics.RecordError()
		}
		return g.sendWS(ctx, conn, wsError{Error: err.Error(), Status: code})
	}
	g.metrics.RecordStream()

	for ev := range events {
		switch ev.Kind {
		case conversation.StreamError:
			g.metrics.RecordError()
		case conversation.StreamEnd:
			g.metrics.RecordTurn(time.Since(start))
		}
		if !g.sendWS(turnCtx, conn, ev) {
			cancel()
			for range events {
			}
			return false
		}
	}
	return true
}

func (g *Gateway) sendWS(ctx context.Context, conn *websocket.Conn, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		g.log().Error("marshal websocket frame failed", "error", err)
		return true
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.log().Debug("websocket write failed", "error", err)
		return false
	}
	return true
}
