package checkpoint

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store and WriteLog. State does not survive
// a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	writes      map[string][]Write
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]Checkpoint),
		writes:      make(map[string][]Write),
		now:         time.Now,
	}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, key string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[key]
	if !ok {
		return nil, nil
	}
	cp.State = bytes.Clone(cp.State)
	return &cp, nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, key string, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp.Key = key
	cp.State = bytes.Clone(cp.State)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[key] = cp
	delete(m.writes, key)
	return nil
}

// Reset implements Store.
func (m *MemoryStore) Reset(ctx context.Context, scope Scope) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope.All() {
		n := len(m.checkpoints)
		clear(m.checkpoints)
		clear(m.writes)
		return n, nil
	}

	n := 0
	if _, ok := m.checkpoints[scope.Key()]; ok {
		n = 1
	}
	delete(m.checkpoints, scope.Key())
	delete(m.writes, scope.Key())
	return n, nil
}

// Keys implements Store.
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.checkpoints))
	for k := range m.checkpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// PutWrite implements WriteLog.
func (m *MemoryStore) PutWrite(ctx context.Context, w Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.Payload = bytes.Clone(w.Payload)
	if w.CreatedAt.IsZero() {
		w.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[w.Key] = append(m.writes[w.Key], w)
	return nil
}

// PendingWrites implements WriteLog.
func (m *MemoryStore) PendingWrites(ctx context.Context, key string) ([]Write, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.writes[key])
	slices.SortStableFunc(out, func(a, b Write) int { return a.Step - b.Step })
	return out, nil
}

// DiscardWrites implements WriteLog.
func (m *MemoryStore) DiscardWrites(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.writes, key)
	return nil
}

// PruneWrites implements WriteLog.
func (m *MemoryStore) PruneWrites(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, ws := range m.writes {
		kept := ws[:0]
		for _, w := range ws {
			if w.CreatedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 {
			delete(m.writes, key)
		} else {
			m.writes[key] = kept
		}
	}
	return n, nil
}

// Interface guards.
var (
	_ Store    = (*MemoryStore)(nil)
	_ WriteLog = (*MemoryStore)(nil)
)
