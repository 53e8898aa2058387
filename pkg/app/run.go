// Package app assembles mpdchat from its configuration: modules, provider
// chain, workflow engine, conversation service, telemetry and maintenance
// jobs, all driven through the core module lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mpdagents/mpdchat/internal/config"
	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/cron"
	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/security"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

// secretEnv lists the environment variables whose values never reach logs.
var secretEnv = []string{
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"MPDCHAT_BEARER_TOKEN",
	"MPDCHAT_BASIC_PASS",
}

// RunParams configures the application.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides logging.level when set.
	LogLevel string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// Headless skips transport modules (gateway.*). Used by the terminal
	// chat, the MCP server and one-shot maintenance commands.
	Headless bool
}

// Runtime is an assembled, not yet started application.
type Runtime struct {
	App          *core.App
	Config       *config.Config
	ConfigPath   string
	Logger       *slog.Logger
	Redactor     *security.Redactor
	Chain        *provider.Chain
	Engine       *workflow.Engine
	Conversation *conversation.Service
	Scheduler    *cron.Scheduler
}

// Build loads and validates the configuration, loads the configured
// modules and wires everything the conversation service needs. The
// returned runtime has not been started.
func Build(params RunParams) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if params.LogLevel != "" {
		cfg.Logging.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	redactor.AddEnv(secretEnv...)
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := newLogger(cfg.Logging, out, redactor)

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(configPathService, cfgPath)
	appCtx.RegisterService(redactorService, redactor)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if params.Headless {
		ids = withoutNamespace(ids, "gateway")
	}
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}

	rt := &Runtime{
		App:        application,
		Config:     cfg,
		ConfigPath: cfgPath,
		Logger:     logger,
		Redactor:   redactor,
	}
	if err := rt.wire(appCtx, params.Version); err != nil {
		application.Discard()
		return nil, err
	}
	return rt, nil
}

// Run builds the application, starts it and blocks until ctx ends or a
// shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	rt, err := Build(params)
	if err != nil {
		return err
	}
	rt.Logger.Info("mpdchat starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", rt.ConfigPath,
	)
	return rt.App.Run(ctx)
}

// newLogger builds the root logger: text or JSON per cfg, behind the
// redacting handler.
func newLogger(cfg config.LoggingConfig, w io.Writer, redactor *security.Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

func withoutNamespace(ids []string, ns string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if core.ModuleID(id).Namespace() != ns {
			out = append(out, id)
		}
	}
	return out
}
