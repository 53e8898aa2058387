package checkpoint_test

import (
	"context"
	"testing"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/checkpoint/checkpointtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	checkpointtest.Run(t, func(*testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	s := checkpoint.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "k", checkpoint.Checkpoint{State: []byte("abc")}))

	cp, err := s.Load(ctx, "k")
	require.NoError(t, err)
	cp.State[0] = 'X'

	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.State)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := checkpoint.NewMemoryStore()
	assert.ErrorIs(t, s.Save(ctx, "k", checkpoint.Checkpoint{}), context.Canceled)
	_, err := s.Load(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScope(t *testing.T) {
	t.Parallel()

	assert.True(t, checkpoint.ScopeAll.All())
	assert.True(t, checkpoint.ScopeAll.Matches("anything"))
	assert.Equal(t, "all", checkpoint.ScopeAll.String())

	s := checkpoint.ScopeKey("t1-comedian")
	assert.False(t, s.All())
	assert.True(t, s.Matches("t1-comedian"))
	assert.False(t, s.Matches("t1-philosopher"))
	assert.Equal(t, "key:t1-comedian", s.String())
}
