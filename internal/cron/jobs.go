package cron

import (
	"context"
	"log/slog"
	"time"
)

// Default schedules and retention.
const (
	DefaultLaneCleanup    = "*/10 * * * *"
	DefaultWritePrune     = "0 * * * *"
	DefaultLimiterPrune   = "*/5 * * * *"
	DefaultWriteRetention = 24 * time.Hour
)

// LanePruner drops idle per-thread locks. *workflow.Engine implements it.
type LanePruner interface {
	PruneLanes() int
}

// WritePruner drops pending writes older than a given age.
// *workflow.Engine implements it.
type WritePruner interface {
	PruneWrites(ctx context.Context, age time.Duration) (int, error)
}

// BucketPruner drops idle client buckets. *security.RateLimiter
// implements it.
type BucketPruner interface {
	Prune() int
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// LaneCleanupJob bounds the lane map of the workflow engine.
type LaneCleanupJob struct {
	Lanes        LanePruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultLaneCleanup
}

var _ Job = (*LaneCleanupJob)(nil)

// Name implements Job.
func (j *LaneCleanupJob) Name() string { return "lane_cleanup" }

// Schedule implements Job.
func (j *LaneCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultLaneCleanup
}

// Run implements Job.
func (j *LaneCleanupJob) Run(_ context.Context) error {
	if n := j.Lanes.PruneLanes(); n > 0 {
		logger(j.Logger).Debug("cron: pruned idle lanes", "count", n)
	}
	return nil
}

// WritePruneJob abandons interrupted turns whose pending writes are older
// than Retention. They can no longer be resumed afterwards.
type WritePruneJob struct {
	Writes       WritePruner
	Retention    time.Duration // zero = DefaultWriteRetention
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultWritePrune
}

var _ Job = (*WritePruneJob)(nil)

// Name implements Job.
func (j *WritePruneJob) Name() string { return "write_prune" }

// Schedule implements Job.
func (j *WritePruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultWritePrune
}

// Run implements Job.
func (j *WritePruneJob) Run(ctx context.Context) error {
	retention := j.Retention
	if retention <= 0 {
		retention = DefaultWriteRetention
	}
	n, err := j.Writes.PruneWrites(ctx, retention)
	if err != nil {
		return err
	}
	if n > 0 {
		logger(j.Logger).Info("cron: pruned stale pending writes", "count", n, "retention", retention)
	}
	return nil
}

// LimiterPruneJob forgets rate-limit buckets with no recent events.
type LimiterPruneJob struct {
	Limiter      BucketPruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultLimiterPrune
}

var _ Job = (*LimiterPruneJob)(nil)

// Name implements Job.
func (j *LimiterPruneJob) Name() string { return "limiter_prune" }

// Schedule implements Job.
func (j *LimiterPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultLimiterPrune
}

// Run implements Job.
func (j *LimiterPruneJob) Run(_ context.Context) error {
	if n := j.Limiter.Prune(); n > 0 {
		logger(j.Logger).Debug("cron: pruned rate limit buckets", "count", n)
	}
	return nil
}
