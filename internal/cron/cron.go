// Package cron runs periodic housekeeping for the conversation service:
// dropping idle lane locks, pruning the pending writes of turns that were
// never resumed, and forgetting idle rate-limit buckets.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/10 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
