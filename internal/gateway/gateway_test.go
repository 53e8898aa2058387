package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/provider/providertest"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "auth:\n  bearer_token: tok\n")); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8000" {
		t.Errorf("Bind = %q", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second || g.config.WriteTimeout != 3*time.Minute {
		t.Errorf("timeouts = %v, %v", g.config.ReadTimeout, g.config.WriteTimeout)
	}
	if g.config.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
	if g.config.Auth.BearerToken != "tok" {
		t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9000"
read_timeout: 5s
allowed_origins: ["*.example.com"]
rate_limits:
  turns_per_min: 20
  auth_failures_per_min: 5
`)
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if g.config.Bind != "0.0.0.0:9000" || g.config.ReadTimeout != 5*time.Second {
		t.Errorf("config = %+v", g.config)
	}
	if g.config.RateLimits.TurnsPerMin != 20 || g.config.RateLimits.AuthFailuresPerMin != 5 {
		t.Errorf("RateLimits = %+v", g.config.RateLimits)
	}
	if len(g.config.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", g.config.AllowedOrigins)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{Bind: "127.0.0.1:8000"}, false},
		{"bad bind", Config{Bind: "not an address"}, true},
		{"basic user only", Config{Bind: "127.0.0.1:8000", Auth: AuthConfig{BasicUser: "admin"}}, true},
		{"basic pair", Config{Bind: "127.0.0.1:8000", Auth: AuthConfig{BasicUser: "admin", BasicPass: "pw"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: tt.cfg}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_ProvisionRegistersServices(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	g := &Gateway{}
	g.config.defaults()
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if _, ok := core.Service[*Metrics](appCtx, MetricsCounters); !ok {
		t.Error("metrics not registered")
	}
	if _, ok := appCtx.GetService(RateLimiterService); !ok {
		t.Error("rate limiter not registered")
	}
}

func TestGateway_StartRequiresConversation(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	g := &Gateway{config: Config{Bind: "127.0.0.1:0"}}
	g.config.defaults()
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err == nil {
		t.Fatal("Start succeeded without a conversation service")
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	// Reserve a free port, then release it for the gateway.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	base := newTestGateway(t, providertest.Reply("ok"), Config{})
	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	appCtx.RegisterService(conversation.ServiceName, base.conv)
	appCtx.RegisterService(ChainService, base.chain)
	appCtx.RegisterService(ConfigPathService, "/etc/mpdchat/config.yaml")

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "bind: \""+addr+"\"\n")); err != nil {
		t.Fatal(err)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if g.configPath != "/etc/mpdchat/config.yaml" || g.chain == nil {
		t.Errorf("services not resolved: path=%q chain=%v", g.configPath, g.chain)
	}

	resp, body := do(t, http.MethodGet, "http://"+addr+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health = %d %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if g.closing.Err() == nil {
		t.Error("stream context not cancelled on shutdown")
	}
}

func TestGateway_StopWithoutStart(t *testing.T) {
	t.Parallel()
	if err := (&Gateway{}).Stop(context.Background()); err != nil {
		t.Errorf("Stop = %v", err)
	}
}
