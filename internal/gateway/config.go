package gateway

import (
	"time"

	"github.com/mpdagents/mpdchat/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies and WebSocket frames.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// AllowedOrigins lists host patterns accepted for cross-origin browser
	// requests and WebSocket upgrades. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimits security.RateLimitConfig `yaml:"rate_limits"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8000"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Streaming handlers lift the deadline for their own responses.
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// AuthConfig configures authentication. When configured, every route
// except /health and /metrics requires it.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
