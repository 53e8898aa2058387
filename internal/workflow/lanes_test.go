package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mpdagents/mpdchat/internal/workflow"
)

func TestLaneLock_SerializesSameKey(t *testing.T) {
	t.Parallel()

	l := workflow.NewLaneLock()
	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), "k"); err != nil {
				t.Error(err)
				return
			}
			n := active.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			l.Release("k")
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen.Load())
	}
}

func TestLaneLock_DifferentKeysParallel(t *testing.T) {
	t.Parallel()

	l := workflow.NewLaneLock()
	if err := l.Acquire(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	defer l.Release("a")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Acquire(ctx, "b"); err != nil {
		t.Fatalf("key b blocked by key a: %v", err)
	}
	l.Release("b")
}

func TestLaneLock_TryAndCancel(t *testing.T) {
	t.Parallel()

	l := workflow.NewLaneLock()
	if !l.TryAcquire("k") {
		t.Fatal("TryAcquire on free lane failed")
	}
	if !l.Busy("k") {
		t.Error("Busy = false while held")
	}
	if l.TryAcquire("k") {
		t.Fatal("TryAcquire on held lane succeeded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire = %v, want deadline exceeded", err)
	}

	if n := l.Prune(); n != 0 {
		t.Errorf("pruned %d held lanes", n)
	}
	l.Release("k")
	if l.Busy("k") {
		t.Error("Busy = true after release")
	}
	if n := l.Prune(); n != 1 || l.Len() != 0 {
		t.Errorf("Prune = %d, Len = %d; want 1, 0", n, l.Len())
	}
}
