package openai

import (
	"testing"
	"time"

	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/provider"
	"gopkg.in/yaml.v3"
)

func yamlNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return doc.Content[0]
}

func TestModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Provider{}).ModuleInfo()
	if info.ID != "provider.openai" {
		t.Errorf("ID = %s", info.ID)
	}
	if _, ok := info.New().(*Provider); !ok {
		t.Error("New() did not return *Provider")
	}
}

func TestConfigure_Defaults(t *testing.T) {
	t.Setenv(envSummaryModel, "")
	p := &Provider{}
	if err := p.Configure(yamlNode(t, "api_key: sk-test\nmodel: gpt-4o\n")); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if p.config.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base_url = %q", p.config.BaseURL)
	}
	if p.config.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", p.config.Timeout)
	}
	if p.config.Role != provider.RolePrimary {
		t.Errorf("role = %q", p.config.Role)
	}
}

func TestConfigure_EnvFallback(t *testing.T) {
	t.Setenv(envAPIKey, "sk-env")
	t.Setenv(envModel, "gpt-env")
	t.Setenv(envSummaryModel, "gpt-env-mini")

	p := &Provider{}
	if err := p.Configure(yamlNode(t, "{}")); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if p.config.APIKey != "sk-env" || p.model != "gpt-env" || p.config.SummaryModel != "gpt-env-mini" {
		t.Errorf("config = %+v", p.config)
	}
}

func TestProvision_PublishesEntries(t *testing.T) {
	t.Setenv(envSummaryModel, "")
	p := &Provider{}
	node := yamlNode(t, `
api_key: sk-a
api_keys: [sk-b]
model: gpt-4o
summary_model: gpt-4o-mini
health:
  max_failures: 3
`)
	if err := p.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	app := core.NewAppContext(nil, t.TempDir())
	if err := p.Provision(app); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	names := app.ServicesWithPrefix(provider.EntryServicePrefix)
	if len(names) != 2 {
		t.Fatalf("entries = %v, want 2", names)
	}
	main, _ := core.Service[provider.ChainEntry](app, provider.EntryServicePrefix+"openai")
	summary, _ := core.Service[provider.ChainEntry](app, provider.EntryServicePrefix+"openai.summary")
	if main.Role != provider.RolePrimary || main.Provider.ModelName() != "gpt-4o" || main.Health.MaxFailures != 3 {
		t.Errorf("main = %+v", main)
	}
	if summary.Role != provider.RoleInternal || summary.Provider.ModelName() != "gpt-4o-mini" {
		t.Errorf("summary = %+v", summary)
	}
	if len(p.auth.Keys()) != 2 {
		t.Errorf("keys = %d, want 2", len(p.auth.Keys()))
	}
}

func TestProvision_NoKey(t *testing.T) {
	t.Setenv(envAPIKey, "")
	p := &Provider{}
	if err := p.Configure(yamlNode(t, "model: gpt-4o")); err != nil {
		t.Fatal(err)
	}
	if err := p.Provision(core.NewAppContext(nil, t.TempDir())); err == nil {
		t.Fatal("expected error without API key")
	}
}
