package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/config"
	"github.com/mpdagents/mpdchat/internal/conversation"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/cron"
	"github.com/mpdagents/mpdchat/internal/gateway"
	"github.com/mpdagents/mpdchat/internal/provider"
	"github.com/mpdagents/mpdchat/internal/retrieval"
	"github.com/mpdagents/mpdchat/internal/security"
	"github.com/mpdagents/mpdchat/internal/telemetry"
	"github.com/mpdagents/mpdchat/internal/workflow"
)

// Service names shared with the gateway.
const (
	configPathService = gateway.ConfigPathService
	redactorService   = gateway.RedactorService
	chainService      = gateway.ChainService
	metricsService    = gateway.MetricsService
)

// wire builds the chain, engine and conversation service from the
// services the modules published, then appends the runtime components to
// the app lifecycle. Must be called after LoadModules and before Start.
func (rt *Runtime) wire(appCtx *core.AppContext, version string) error {
	logger := rt.Logger

	store, ok := core.Service[checkpoint.Store](appCtx, checkpoint.ServiceName)
	if !ok {
		return errors.New("no checkpoint module configured (checkpoint.sqlite or checkpoint.memory)")
	}

	chain, err := buildChain(appCtx, rt.Redactor, logger)
	if err != nil {
		return err
	}
	appCtx.RegisterService(chainService, chain)
	rt.Chain = chain

	tel := &telemetryComponent{cfg: telemetry.Config{
		ServiceName:  rt.Config.Telemetry.ServiceName,
		Version:      version,
		OTLPEndpoint: rt.Config.Telemetry.OTLPEndpoint,
		Insecure:     rt.Config.Telemetry.OTLPInsecure,
	}, logger: logger}
	if err := tel.setup(); err != nil {
		return err
	}
	observers := workflow.Observers{telemetry.NewSpanObserver(tel.tracing.Provider)}
	if rt.Config.Telemetry.MetricsEnabled() {
		metrics := telemetry.NewMetrics()
		if err := metrics.RegisterProviderHealth(chain); err != nil {
			return fmt.Errorf("registering provider metrics: %w", err)
		}
		observers = append(observers, metrics)
		appCtx.RegisterService(metricsService, metrics.Handler())
	}

	opts := []workflow.Option{
		workflow.WithLogger(logger.With("component", "workflow")),
		workflow.WithConfig(engineConfig(rt.Config.Workflow)),
		workflow.WithObserver(observers),
	}
	if rt.Config.Workflow.Retrieval.Enabled {
		r, ok := core.Service[retrieval.Retriever](appCtx, retrieval.ServiceName)
		if !ok {
			return errors.New("workflow.retrieval.enabled requires a retrieval module")
		}
		opts = append(opts, workflow.WithRetriever(r))
	}
	engine, err := workflow.New(chain, store, opts...)
	if err != nil {
		return err
	}
	rt.Engine = engine

	conv, err := conversation.New(engine,
		conversation.WithLogger(logger.With("component", "conversation")),
		conversation.WithDefaultPersona(rt.Config.Workflow.DefaultPersona),
	)
	if err != nil {
		return err
	}
	appCtx.RegisterService(conversation.ServiceName, conv)
	rt.Conversation = conv

	sched := cron.NewScheduler(logger.With("component", "cron"))
	m := rt.Config.Workflow.Maintenance
	jobs := []cron.Job{
		&cron.LaneCleanupJob{Lanes: engine, Logger: logger, ScheduleExpr: m.LaneCleanup},
		&cron.WritePruneJob{Writes: engine, Retention: m.WriteRetention, Logger: logger, ScheduleExpr: m.WritePrune},
	}
	if limiter, ok := core.Service[*security.RateLimiter](appCtx, gateway.RateLimiterService); ok {
		jobs = append(jobs, &cron.LimiterPruneJob{Limiter: limiter, Logger: logger})
	}
	for _, j := range jobs {
		if err := sched.RegisterJob(j); err != nil {
			return err
		}
	}
	rt.Scheduler = sched

	rt.App.AppendModule("runtime.chain", &chainComponent{chain: chain})
	rt.App.AppendModule("runtime.cron", &cronComponent{sched: sched})
	rt.App.AppendModule("runtime.telemetry", tel)

	logger.Info("runtime wired",
		"providers", len(chain.HealthReport()),
		"retrieval", rt.Config.Workflow.Retrieval.Enabled,
		"default_persona", conv.DefaultPersonaID(),
		"concurrency", rt.Config.Workflow.Concurrency,
	)
	return nil
}

// buildChain collects the entries published by provider modules. Their
// API keys are registered with the redactor.
func buildChain(appCtx *core.AppContext, redactor *security.Redactor, logger *slog.Logger) (*provider.Chain, error) {
	names := appCtx.ServicesWithPrefix(provider.EntryServicePrefix)
	entries := make([]provider.ChainEntry, 0, len(names))
	for _, name := range names {
		e, ok := core.Service[provider.ChainEntry](appCtx, name)
		if !ok {
			return nil, fmt.Errorf("service %s is not a provider.ChainEntry", name)
		}
		if e.Auth != nil {
			for _, k := range e.Auth.Keys() {
				redactor.AddLiteral(k)
			}
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, errors.New("no provider module configured")
	}
	return provider.NewChain(entries, provider.WithLogger(logger.With("component", "provider.chain")))
}

// engineConfig maps the workflow section of the file onto the engine.
func engineConfig(w config.WorkflowConfig) workflow.Config {
	return workflow.Config{
		SummaryTrigger:     w.SummaryTrigger,
		RetainAfterSummary: w.RetainAfterSummary,
		Concurrency:        workflow.Concurrency(w.Concurrency),
		TurnTimeout:        w.TurnTimeout,
		MaxTokens:          w.MaxTokens,
		Temperature:        w.Temperature,
		Retrieval: workflow.RetrievalConfig{
			TopK:         w.Retrieval.TopK,
			Namespace:    w.Retrieval.Namespace,
			PassageChars: w.Retrieval.PassageChars,
		},
	}
}

// chainComponent runs the provider health probes for the app lifetime.
type chainComponent struct {
	chain *provider.Chain
}

func (c *chainComponent) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "runtime.chain"}
}

func (c *chainComponent) Start() error {
	c.chain.Start(context.Background())
	return nil
}

func (c *chainComponent) Stop(context.Context) error {
	c.chain.Stop()
	return nil
}

// cronComponent runs the maintenance scheduler.
type cronComponent struct {
	sched *cron.Scheduler
}

func (c *cronComponent) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "runtime.cron"}
}

func (c *cronComponent) Start() error { return c.sched.Start() }

func (c *cronComponent) Stop(ctx context.Context) error { return c.sched.Stop(ctx) }

// telemetryComponent flushes spans on shutdown.
type telemetryComponent struct {
	cfg     telemetry.Config
	logger  *slog.Logger
	tracing *telemetry.Tracing
}

func (c *telemetryComponent) setup() error {
	t, err := telemetry.SetupTracing(context.Background(), c.cfg, c.logger)
	if err != nil {
		return err
	}
	c.tracing = t
	return nil
}

func (c *telemetryComponent) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "runtime.telemetry"}
}

func (c *telemetryComponent) Stop(ctx context.Context) error {
	return c.tracing.Shutdown(ctx)
}

// Interface guards.
var (
	_ core.Starter = (*chainComponent)(nil)
	_ core.Stopper = (*chainComponent)(nil)
	_ core.Starter = (*cronComponent)(nil)
	_ core.Stopper = (*cronComponent)(nil)
	_ core.Stopper = (*telemetryComponent)(nil)
)
