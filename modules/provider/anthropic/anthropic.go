// Package anthropic implements the provider.anthropic module on top of the
// Anthropic Messages API.
package anthropic

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/provider"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module            = (*Anthropic)(nil)
	_ core.Configurable      = (*Anthropic)(nil)
	_ core.Provisioner       = (*Anthropic)(nil)
	_ core.Validator         = (*Anthropic)(nil)
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
)

// Anthropic is the provider.anthropic module.
type Anthropic struct {
	config Config
	model  string
	client *sdkanthropic.Client
	auth   *provider.AuthProfile
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	a.model = a.config.Model
	return nil
}

// Provision implements core.Provisioner.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.logger = ctx.Logger

	auth, err := provider.NewAuthProfile(a.config.keys()...)
	if err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	a.auth = auth

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = a.config.Timeout

	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Transport: transport}),
		// The provider chain owns retries and failover.
		option.WithMaxRetries(0),
	}
	if a.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.config.BaseURL))
	}
	client := sdkanthropic.NewClient(opts...)
	a.client = &client

	var summary provider.Provider
	if a.config.SummaryModel != "" {
		summary = a.withModel(a.config.SummaryModel)
	}
	for _, e := range a.config.Entries("anthropic", a, summary, a.auth) {
		ctx.RegisterService(provider.EntryServicePrefix+e.Name, e)
	}
	return nil
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	if a.model == "" {
		return errors.New("provider.anthropic: model must not be empty")
	}
	if a.client == nil {
		return errors.New("provider.anthropic: client not initialized (Provision not called)")
	}
	if err := a.config.Routing.Validate(); err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	return nil
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.model
}

// requestOptions carries the active API key on each call so a rotation
// takes effect immediately.
func (a *Anthropic) requestOptions() []option.RequestOption {
	return []option.RequestOption{option.WithAPIKey(a.auth.CurrentKey())}
}

func (a *Anthropic) withModel(model string) *Anthropic {
	cp := *a
	cp.model = model
	return &cp
}
