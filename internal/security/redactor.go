// Package security keeps credentials out of logs and admin responses and
// throttles abusive clients at the transport edge.
package security

import (
	"os"
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|credential|bearer|basic_pass)`)

// Redactor replaces secret values in strings and maps. It knows the
// formats of the completion and embedding vendors' API keys and any
// literal value registered at runtime. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a compiled pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret value. Empty and duplicate values are
// ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lit := range r.literals {
		if lit == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
}

// AddEnv registers the current values of the named environment variables.
// Unset variables are skipped.
func (r *Redactor) AddEnv(names ...string) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			r.AddLiteral(strings.TrimSpace(v))
		}
	}
}

// Redact replaces every known pattern and literal in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactMap walks m in place. Non-empty strings under secret-looking keys
// are replaced outright; other strings go through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			if secretKeyPattern.MatchString(k) {
				m[k] = RedactPlaceholder
			} else if red := r.Redact(val); red != val {
				m[k] = red
			}
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		}
	}
}

// DefaultPatterns returns patterns for common API key formats.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9\-_]{20,}`),
		// Google AI Studio / Gemini
		regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.=]{16,}`),
	}
}
