package provider

import (
	"fmt"
	"slices"
)

// EntryServicePrefix prefixes the service names under which provider
// modules publish their ChainEntry values.
const EntryServicePrefix = "provider.entry."

// Routing is the chain placement shared by every provider module config.
type Routing struct {
	// Role of the main entry. Default: primary.
	Role Role `yaml:"role"`

	// FallbackFor limits a fallback entry to these roles.
	FallbackFor []Role `yaml:"fallback_for"`

	// SummaryModel, when set, publishes a second entry with the internal
	// role that uses this model for conversation summaries.
	SummaryModel string `yaml:"summary_model"`

	// APIKeys are rotated on rate limits. The module's api_key, when set,
	// is tried first.
	APIKeys []string `yaml:"api_keys"`

	Health HealthConfig `yaml:"health"`
}

// Defaults fills zero-valued fields.
func (r *Routing) Defaults() {
	if r.Role == "" {
		r.Role = RolePrimary
	}
}

// Validate checks the role names.
func (r *Routing) Validate() error {
	known := []Role{RolePrimary, RoleInternal, RoleFallback}
	if !slices.Contains(known, r.Role) {
		return fmt.Errorf("unknown role %q", r.Role)
	}
	for _, fr := range r.FallbackFor {
		if fr == RoleFallback || !slices.Contains(known, fr) {
			return fmt.Errorf("invalid fallback_for role %q", fr)
		}
	}
	if len(r.FallbackFor) > 0 && r.Role != RoleFallback {
		return fmt.Errorf("fallback_for requires role %q", RoleFallback)
	}
	return nil
}

// Entries builds the chain entries for a module named name. summary is the
// same backend bound to SummaryModel; it is ignored when SummaryModel is
// empty.
func (r *Routing) Entries(name string, main, summary Provider, auth *AuthProfile) []ChainEntry {
	entries := []ChainEntry{{
		Name:        name,
		Provider:    main,
		Role:        r.Role,
		Auth:        auth,
		Health:      r.Health,
		FallbackFor: r.FallbackFor,
	}}
	if r.SummaryModel != "" && summary != nil {
		entries = append(entries, ChainEntry{
			Name:     name + ".summary",
			Provider: summary,
			Role:     RoleInternal,
			Auth:     auth,
			Health:   r.Health,
		})
	}
	return entries
}
