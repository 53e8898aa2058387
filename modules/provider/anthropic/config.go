package anthropic

import (
	"os"
	"time"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// defaultModel is pinned to a dated release for reproducibility.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultTimeout bounds the wait for response headers. Streaming bodies are
// not affected once the first byte arrives.
const defaultTimeout = 30 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	provider.Routing `yaml:",inline"`
}

func (c *Config) defaults() {
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	c.Routing.Defaults()
}

func (c *Config) keys() []string {
	return append([]string{c.APIKey}, c.APIKeys...)
}
