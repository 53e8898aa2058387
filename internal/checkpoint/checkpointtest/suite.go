// Package checkpointtest holds a behavioural suite every checkpoint.Store
// implementation must pass.
package checkpointtest

import (
	"context"
	"testing"
	"time"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. It registers its own cleanup.
type Factory func(t *testing.T) checkpoint.Store

// Run executes the suite against stores built by newStore. Write-log cases
// are skipped for stores that do not implement checkpoint.WriteLog.
func Run(t *testing.T, newStore Factory) {
	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		cp, err := s.Load(context.Background(), "nobody-intelligent")
		require.NoError(t, err)
		assert.Nil(t, cp)
	})

	t.Run("SaveLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.Save(ctx, "t1-comedian", checkpoint.Checkpoint{
			Turn: "turn-1", Step: 2, LastNode: "generate", State: []byte{1, 2, 3}, UpdatedAt: at,
		}))
		require.NoError(t, s.Save(ctx, "t1-comedian", checkpoint.Checkpoint{
			Turn: "turn-2", Step: 3, LastNode: "compact", State: []byte{4, 5}, UpdatedAt: at.Add(time.Minute),
		}))

		cp, err := s.Load(ctx, "t1-comedian")
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, "t1-comedian", cp.Key)
		assert.Equal(t, "turn-2", cp.Turn)
		assert.Equal(t, 3, cp.Step)
		assert.Equal(t, "compact", cp.LastNode)
		assert.Equal(t, []byte{4, 5}, cp.State)
		assert.True(t, cp.UpdatedAt.Equal(at.Add(time.Minute)), "UpdatedAt = %v", cp.UpdatedAt)
	})

	t.Run("KeysIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "t1-comedian", checkpoint.Checkpoint{Turn: "a", State: []byte("c")}))
		require.NoError(t, s.Save(ctx, "t1-philosopher", checkpoint.Checkpoint{Turn: "b", State: []byte("p")}))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1-comedian", "t1-philosopher"}, keys)

		cp, err := s.Load(ctx, "t1-philosopher")
		require.NoError(t, err)
		assert.Equal(t, []byte("p"), cp.State)
	})

	t.Run("ResetKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "a-x", checkpoint.Checkpoint{State: []byte("1")}))
		require.NoError(t, s.Save(ctx, "b-x", checkpoint.Checkpoint{State: []byte("2")}))

		n, err := s.Reset(ctx, checkpoint.ScopeKey("a-x"))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.Reset(ctx, checkpoint.ScopeKey("a-x"))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		cp, err := s.Load(ctx, "b-x")
		require.NoError(t, err)
		assert.NotNil(t, cp)
	})

	t.Run("ResetAll", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, k := range []string{"a-x", "b-x", "c-y"} {
			require.NoError(t, s.Save(ctx, k, checkpoint.Checkpoint{State: []byte(k)}))
		}

		n, err := s.Reset(ctx, checkpoint.ScopeAll)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		n, err = s.Reset(ctx, checkpoint.ScopeAll)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("WriteLog", func(t *testing.T) {
		s := newStore(t)
		wl, ok := s.(checkpoint.WriteLog)
		if !ok {
			t.Skip("store has no write log")
		}
		ctx := context.Background()

		require.NoError(t, wl.PutWrite(ctx, checkpoint.Write{Key: "k", Turn: "t", Step: 1, Node: "generate", Payload: []byte("g")}))
		require.NoError(t, wl.PutWrite(ctx, checkpoint.Write{Key: "k", Turn: "t", Step: 0, Node: "__start__", Payload: []byte("s")}))
		require.NoError(t, wl.PutWrite(ctx, checkpoint.Write{Key: "other", Turn: "u", Step: 0, Node: "__start__", Payload: []byte("o")}))

		ws, err := wl.PendingWrites(ctx, "k")
		require.NoError(t, err)
		require.Len(t, ws, 2)
		assert.Equal(t, "__start__", ws[0].Node)
		assert.Equal(t, "generate", ws[1].Node)
		assert.Equal(t, []byte("g"), ws[1].Payload)

		// Committing a checkpoint clears the key's writes only.
		require.NoError(t, s.Save(ctx, "k", checkpoint.Checkpoint{Turn: "t", Step: 2, State: []byte("done")}))
		ws, err = wl.PendingWrites(ctx, "k")
		require.NoError(t, err)
		assert.Empty(t, ws)
		ws, err = wl.PendingWrites(ctx, "other")
		require.NoError(t, err)
		assert.Len(t, ws, 1)

		require.NoError(t, wl.DiscardWrites(ctx, "other"))
		ws, err = wl.PendingWrites(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, ws)
	})

	t.Run("SaveEmptyState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "k", checkpoint.Checkpoint{Turn: "t", Step: 1}))

		cp, err := s.Load(ctx, "k")
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, "t", cp.Turn)
		assert.Empty(t, cp.State)
	})

	t.Run("PruneWrites", func(t *testing.T) {
		s := newStore(t)
		wl, ok := s.(checkpoint.WriteLog)
		if !ok {
			t.Skip("store has no write log")
		}
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, wl.PutWrite(ctx, checkpoint.Write{Key: "old", Turn: "t", Node: "__start__", CreatedAt: now.Add(-48 * time.Hour)}))
		require.NoError(t, wl.PutWrite(ctx, checkpoint.Write{Key: "new", Turn: "t", Node: "__start__", CreatedAt: now}))

		n, err := wl.PruneWrites(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ws, err := wl.PendingWrites(ctx, "new")
		require.NoError(t, err)
		assert.Len(t, ws, 1)
	})

	t.Run("ResetClearsWrites", func(t *testing.T) {
		s := newStore(t)
		wl, ok := s.(checkpoint.WriteLog)
		if !ok {
			t.Skip("store has no write log")
		}
		ctx := context.Background()
		require.NoError(t, wl.PutWrite(ctx, checkpoint.Write{Key: "k", Turn: "t", Node: "__start__"}))

		n, err := s.Reset(ctx, checkpoint.ScopeKey("k"))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		ws, err := wl.PendingWrites(ctx, "k")
		require.NoError(t, err)
		assert.Empty(t, ws)
	})
}
