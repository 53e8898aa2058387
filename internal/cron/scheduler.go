package cron

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and descriptors such as
// "@hourly".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reports whether expr is a valid schedule.
func ParseSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// JobStatus is a point-in-time view of one registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next,omitzero"`
}

// entry is a registered job with its bookkeeping. lock keeps ticks of the
// same job from overlapping.
type entry struct {
	job  Job
	lock sync.Mutex
	id   cron.EntryID

	mu      sync.Mutex
	runs    int
	skipped int
	lastRun time.Time
	lastErr error
}

// Scheduler manages periodic job execution using cron expressions. A tick
// that finds the previous run of the same job still going is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("cron: cannot register %q after start", j.Name())
	}
	if slices.ContainsFunc(s.entries, func(e *entry) bool { return e.job.Name() == j.Name() }) {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.entries = append(s.entries, &entry{job: j})
	return nil
}

// Start begins executing registered jobs. Returns an error if any job has
// an invalid schedule expression; no job runs in that case.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(cron.WithParser(parser))
	ctx, cancel := context.WithCancel(context.Background())

	for _, e := range s.entries {
		id, err := c.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) })
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
		e.id = id
	}

	s.cron, s.ctx, s.cancel = c, ctx, cancel
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// RunNow runs the named job once, outside its schedule, honoring the
// no-overlap rule. It reports false when no such job is registered.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.entries, func(e *entry) bool { return e.job.Name() == name })
	s.mu.Unlock()
	if idx < 0 {
		return false, nil
	}
	return true, s.run(ctx, s.entries[idx])
}

func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if err := s.run(ctx, e); err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if !e.lock.TryLock() {
		e.mu.Lock()
		e.skipped++
		e.mu.Unlock()
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return nil
	}
	defer e.lock.Unlock()

	start := time.Now()
	err := e.job.Run(ctx)

	e.mu.Lock()
	e.runs++
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()

	s.logger.Debug("cron: job finished", "job", e.job.Name(), "duration", time.Since(start), "error", err)
	return err
}

// Jobs reports every registered job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		st := JobStatus{
			Name:     e.job.Name(),
			Schedule: e.job.Schedule(),
			Runs:     e.runs,
			Skipped:  e.skipped,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		if s.cron != nil {
			st.Next = s.cron.Entry(e.id).Next
		}
		out = append(out, st)
	}
	return out
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
