package config

import (
	"cmp"
	"slices"

	"github.com/mpdagents/mpdchat/internal/core"
)

// namespaceOrder ranks namespaces whose modules publish services others
// depend on. Unlisted namespaces load afterwards.
var namespaceOrder = map[string]int{
	"checkpoint": 0,
	"provider":   1,
	"retrieval":  2,
}

// Resolve returns the module IDs from the configuration in load order:
// storage, providers and retrieval first, then everything else, each
// group sorted by ID.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(namespaceOrder)
}
