package openai

import (
	"os"
	"time"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// Environment variables consulted when the YAML leaves a field empty.
const (
	envAPIKey       = "OPENAI_API_KEY"
	envModel        = "OPENAI_LLM_MODEL"
	envSummaryModel = "OPENAI_LLM_MODEL_SUMMARY"
)

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	provider.Routing `yaml:",inline"`
}

// defaults fills zero-valued fields from the environment and fixed
// defaults.
func (c *Config) defaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(envAPIKey)
	}
	if c.Model == "" {
		c.Model = os.Getenv(envModel)
	}
	if c.SummaryModel == "" {
		c.SummaryModel = os.Getenv(envSummaryModel)
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	c.Routing.Defaults()
}

// keys returns the configured API keys, api_key first.
func (c *Config) keys() []string {
	return append([]string{c.APIKey}, c.APIKeys...)
}
