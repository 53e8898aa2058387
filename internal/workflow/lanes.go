package workflow

import (
	"context"
	"sync"
)

// LaneLock serializes turns per thread key while turns for different keys
// run in parallel.
//
// A global mutex protects the lane map and is held only to look up or
// create a lane. Each lane is a one-slot semaphore so waiting can be
// abandoned when the caller's context ends.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// refs counts holders and waiters; a lane with refs == 0 is idle.
type lane struct {
	sem  chan struct{}
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[string]*lane)}
}

func (l *LaneLock) ref(key string) *lane {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{sem: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	return ln
}

func (l *LaneLock) unref(ln *lane) {
	l.mu.Lock()
	ln.refs--
	l.mu.Unlock()
}

// Acquire waits for the lane of key. It returns ctx.Err() if ctx ends
// first; otherwise the caller must call Release.
func (l *LaneLock) Acquire(ctx context.Context, key string) error {
	ln := l.ref(key)
	select {
	case ln.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(ln)
		return ctx.Err()
	}
}

// TryAcquire takes the lane of key only if it is free.
func (l *LaneLock) TryAcquire(key string) bool {
	ln := l.ref(key)
	select {
	case ln.sem <- struct{}{}:
		return true
	default:
		l.unref(ln)
		return false
	}
}

// Release frees the lane of key taken by Acquire or TryAcquire.
func (l *LaneLock) Release(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if ok {
		ln.refs--
	}
	l.mu.Unlock()
	if ok {
		<-ln.sem
	}
}

// Busy reports whether a turn holds the lane of key.
func (l *LaneLock) Busy(key string) bool {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	l.mu.Unlock()
	return ok && len(ln.sem) > 0
}

// Len returns the number of lanes currently tracked.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Prune drops idle lanes and returns how many were removed. Lanes are
// recreated on demand, so this only bounds the map size.
func (l *LaneLock) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for key, ln := range l.lanes {
		if ln.refs == 0 {
			delete(l.lanes, key)
			n++
		}
	}
	return n
}
