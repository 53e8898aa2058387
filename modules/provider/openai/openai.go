// Package openai implements the provider.openai module for any backend that
// speaks the OpenAI Chat Completions API, with SSE streaming.
package openai

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/provider"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

// Provider is the provider.openai module. It publishes one chain entry for
// Config.Model and, with summary_model set, a second one for summaries.
type Provider struct {
	config       Config
	model        string
	logger       *slog.Logger
	auth         *provider.AuthProfile
	client       *http.Client
	streamClient *http.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	p.model = p.config.Model
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger

	// http.Client.Timeout bounds the whole body, which would cut long SSE
	// streams. The streaming client relies on context cancellation.
	p.client = &http.Client{Timeout: p.config.Timeout}
	p.streamClient = &http.Client{}

	auth, err := provider.NewAuthProfile(p.config.keys()...)
	if err != nil {
		return fmt.Errorf("provider.openai: %w", err)
	}
	p.auth = auth

	var summary provider.Provider
	if p.config.SummaryModel != "" {
		summary = p.withModel(p.config.SummaryModel)
	}
	for _, e := range p.config.Entries("openai", p, summary, p.auth) {
		ctx.RegisterService(provider.EntryServicePrefix+e.Name, e)
	}

	p.logger.Info("openai provider ready",
		"model", p.model,
		"summary_model", p.config.SummaryModel,
		"keys", len(p.auth.Keys()),
	)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if p.model == "" {
		return errors.New("provider.openai: model is required")
	}
	if p.auth == nil {
		return errors.New("provider.openai: api key is required")
	}
	if p.config.Timeout <= 0 {
		return fmt.Errorf("provider.openai: invalid timeout %s", p.config.Timeout)
	}
	if err := p.config.Routing.Validate(); err != nil {
		return fmt.Errorf("provider.openai: %w", err)
	}
	return nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.model
}

// withModel returns a view of p that shares its clients and keys but
// requests model.
func (p *Provider) withModel(model string) *Provider {
	cp := *p
	cp.model = model
	return &cp
}
