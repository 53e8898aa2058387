package workflow

import (
	"context"
	"time"
)

// NodeEvent describes one node execution.
type NodeEvent struct {
	Key   string
	Turn  string
	Node  string
	Step  int
	Mode  Mode
	Start time.Time
}

// Observer is notified around every node. NodeStart may return a derived
// context (for example carrying a span) that the node and the matching
// NodeEnd receive. Observers must not block.
type Observer interface {
	NodeStart(ctx context.Context, ev NodeEvent) context.Context
	NodeEnd(ctx context.Context, ev NodeEvent, err error)
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

// NodeStart implements Observer.
func (o Observers) NodeStart(ctx context.Context, ev NodeEvent) context.Context {
	for _, ob := range o {
		ctx = ob.NodeStart(ctx, ev)
	}
	return ctx
}

// NodeEnd implements Observer. Observers are notified in reverse order so
// nested spans close innermost first.
func (o Observers) NodeEnd(ctx context.Context, ev NodeEvent, err error) {
	for i := len(o) - 1; i >= 0; i-- {
		o[i].NodeEnd(ctx, ev, err)
	}
}

type nopObserver struct{}

func (nopObserver) NodeStart(ctx context.Context, _ NodeEvent) context.Context { return ctx }
func (nopObserver) NodeEnd(context.Context, NodeEvent, error)                  {}
