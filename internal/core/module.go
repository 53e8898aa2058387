// Package core provides the module system that mpdchat is assembled from.
//
// A module is registered at init time and instantiated on demand when the
// configuration references its ID. Modules publish values into a shared
// service registry during Provision so that later modules (and the
// application wiring) can discover them without import cycles.
package core

import "strings"

// ModuleID is a dotted identifier such as "checkpoint.sqlite". The part
// before the first dot is the namespace.
type ModuleID string

// Namespace returns the leading segment of the ID ("checkpoint" for
// "checkpoint.sqlite").
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns everything after the namespace ("sqlite" for
// "checkpoint.sqlite"), or the whole ID when there is no dot.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every module.
type Module interface {
	ModuleInfo() ModuleInfo
}
