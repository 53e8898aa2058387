package cron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mpdagents/mpdchat/internal/cron"
	"github.com/mpdagents/mpdchat/internal/cron/crontest"
)

func TestJobs_NamesAndSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job          cron.Job
		name         string
		wantSchedule string
	}{
		{&cron.LaneCleanupJob{}, "lane_cleanup", "*/10 * * * *"},
		{&cron.WritePruneJob{}, "write_prune", "0 * * * *"},
		{&cron.LimiterPruneJob{}, "limiter_prune", "*/5 * * * *"},
		{&cron.WritePruneJob{ScheduleExpr: "@daily"}, "write_prune", "@daily"},
	}
	for _, tt := range tests {
		if tt.job.Name() != tt.name || tt.job.Schedule() != tt.wantSchedule {
			t.Errorf("%T: name %q schedule %q, want %q %q", tt.job, tt.job.Name(), tt.job.Schedule(), tt.name, tt.wantSchedule)
		}
		if err := cron.ParseSchedule(tt.job.Schedule()); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
}

func TestLaneCleanupJob_Run(t *testing.T) {
	t.Parallel()
	p := &crontest.Pruner{N: 3}
	j := &cron.LaneCleanupJob{Lanes: p}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Calls.Load() != 1 {
		t.Errorf("calls = %d", p.Calls.Load())
	}
}

func TestWritePruneJob_Run(t *testing.T) {
	t.Parallel()

	p := &crontest.Pruner{N: 2}
	j := &cron.WritePruneJob{Writes: p}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.LastAge() != 24*time.Hour {
		t.Errorf("default retention = %v", p.LastAge())
	}

	j.Retention = time.Hour
	_ = j.Run(context.Background())
	if p.LastAge() != time.Hour {
		t.Errorf("retention = %v", p.LastAge())
	}

	boom := errors.New("disk full")
	failing := &cron.WritePruneJob{Writes: &crontest.Pruner{Err: boom}}
	if err := failing.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run = %v, want %v", err, boom)
	}
}

func TestLimiterPruneJob_Run(t *testing.T) {
	t.Parallel()
	p := &crontest.Pruner{}
	if err := (&cron.LimiterPruneJob{Limiter: p}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Calls.Load() != 1 {
		t.Errorf("calls = %d", p.Calls.Load())
	}
}
