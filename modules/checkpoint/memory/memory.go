// Package memory implements the checkpoint.memory module, an in-process
// checkpoint store for development and tests. Nothing survives a restart.
package memory

import (
	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/core"
)

func init() {
	core.RegisterModule(&Module{})
}

var _ core.Provisioner = (*Module)(nil)

// Module publishes a checkpoint.MemoryStore.
type Module struct {
	store *checkpoint.MemoryStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "checkpoint.memory",
		New: func() core.Module { return &Module{} },
	}
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.store = checkpoint.NewMemoryStore()
	ctx.RegisterService(checkpoint.ServiceName, checkpoint.Store(m.store))
	ctx.Logger.Warn("using in-memory checkpoints; conversations are lost on restart")
	return nil
}
