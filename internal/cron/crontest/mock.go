// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mpdagents/mpdchat/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Pruner is a test double for the pruning interfaces of the cron jobs.
// Each call returns N.
type Pruner struct {
	N     int
	Err   error
	Calls atomic.Int32

	mu  sync.Mutex
	Age time.Duration // last age passed to PruneWrites
}

// PruneLanes implements cron.LanePruner.
func (p *Pruner) PruneLanes() int {
	p.Calls.Add(1)
	return p.N
}

// Prune implements cron.BucketPruner.
func (p *Pruner) Prune() int {
	p.Calls.Add(1)
	return p.N
}

// PruneWrites implements cron.WritePruner.
func (p *Pruner) PruneWrites(_ context.Context, age time.Duration) (int, error) {
	p.Calls.Add(1)
	p.mu.Lock()
	p.Age = age
	p.mu.Unlock()
	return p.N, p.Err
}

// LastAge returns the age of the last PruneWrites call.
func (p *Pruner) LastAge() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Age
}

var (
	_ cron.LanePruner   = (*Pruner)(nil)
	_ cron.WritePruner  = (*Pruner)(nil)
	_ cron.BucketPruner = (*Pruner)(nil)
)
