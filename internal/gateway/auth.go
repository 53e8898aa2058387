package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/mpdagents/mpdchat/internal/security"
)

// authMiddleware validates a Bearer token or Basic credentials in constant
// time. Clients that keep failing are throttled through the auth bucket of
// limiter.
func authMiddleware(cfg AuthConfig, limiter *security.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			if limiter != nil && limiter.Blocked(security.KindAuth, client) {
				writeError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
				return
			}

			if authorized(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			if limiter != nil {
				_ = limiter.Allow(security.KindAuth, client)
			}
			if logger != nil {
				logger.Warn("authentication failed", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="mpdchat"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func authorized(cfg AuthConfig, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		// Browsers cannot set headers on WebSocket upgrades.
		auth = bearerFromQuery(r)
	}
	if auth == "" {
		return false
	}
	if cfg.BearerToken != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(tok, cfg.BearerToken) {
			return true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return true
		}
	}
	return false
}

func bearerFromQuery(r *http.Request) string {
	if r.URL.Path != "/ws/chat" {
		return ""
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return "Bearer " + tok
	}
	return ""
}

// rateLimitMiddleware applies the per-client turn limit.
func rateLimitMiddleware(limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if err := limiter.Allow(security.KindTurn, clientKey(r)); err != nil {
					writeError(w, http.StatusTooManyRequests, err.Error())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware answers cross-origin requests whose Origin host matches
// one of patterns.
func corsMiddleware(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !originAllowed(origin, patterns) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), strings.ToLower(u.Host)); ok {
			return true
		}
	}
	return false
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
