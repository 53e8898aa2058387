// Package provider defines the completion service contract used by the
// conversation workflow, a failover chain that routes requests by role, and
// per-provider health tracking with exponential backoff.
package provider

import "context"

// Provider is a text-completion backend. Concrete implementations live in
// modules/provider/* and register themselves as chain entries.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a finite channel of
	// chunks that is closed when the reply ends. Connection errors are
	// returned directly; mid-stream errors arrive in StreamChunk.Err.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is implemented by providers that can be probed while they
// are in cooldown or marked dead.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
