// Package gateway exposes the conversation service over HTTP, Server-Sent
// Events and WebSocket, alongside health, status and admin endpoints. It
// binds to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Service names the gateway resolves at Start.
const (
	ChainService       = "provider.chain"
	MetricsService     = "telemetry.metrics_handler"
	RedactorService    = "security.redactor"
	ConfigPathService  = "config.path"
	RateLimiterService = "gateway.ratelimiter"
	MetricsCounters    = "gateway.metrics"
)

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports
// it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	limiter   *security.RateLimiter
	startedAt time.Time

	// closing is cancelled when shutdown begins so long-lived streams end.
	closing      context.Context
	cancelStream context.CancelFunc

	// Resolved lazily at Start() via the service registry.
	conv       *conversation.Service
	chain      *provider.Chain
	redactor   *security.Redactor
	promH      http.Handler
	configPath string
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = &Metrics{}
	g.limiter = security.NewRateLimiter(g.config.RateLimits)

	ctx.RegisterService(MetricsCounters, g.metrics)
	ctx.RegisterService(RateLimiterService, g.limiter)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if (g.config.Auth.BasicUser == "") != (g.config.Auth.BasicPass == "") {
		return errors.New("gateway: basic auth needs both basic_user and basic_pass")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server. The conversation service is
// required; everything else degrades gracefully.
func (g *Gateway) Start() error {
	g.resolve()
	if g.conv == nil {
		return errors.New("gateway: conversation service not available")
	}
	g.startedAt = time.Now()
	g.closing, g.cancelStream = context.WithCancel(context.Background())

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		g.cancelStream()
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

func (g *Gateway) resolve() {
	if g.appCtx == nil {
		return
	}
	if svc, ok := core.Service[*conversation.Service](g.appCtx, conversation.ServiceName); ok {
		g.conv = svc
	}
	if chain, ok := core.Service[*provider.Chain](g.appCtx, ChainService); ok {
		g.chain = chain
	}
	if r, ok := core.Service[*security.Redactor](g.appCtx, RedactorService); ok {
		g.redactor = r
	}
	if h, ok := core.Service[http.Handler](g.appCtx, MetricsService); ok {
		g.promH = h
	}
	if p, ok := core.Service[string](g.appCtx, ConfigPathService); ok {
		g.configPath = p
	}
}

// streamContext derives a context for a long-lived response that also
// ends when the server starts shutting down.
func (g *Gateway) streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	if g.closing == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(g.closing, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Stop implements core.Stopper. Open streams see their context cancelled
// first, which stops their turns without committing them, so Shutdown
// only waits for plain requests.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	g.cancelStream()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		// Hijacked WebSocket connections are not tracked by Shutdown.
		return g.server.Close()
	}
	return nil
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)
