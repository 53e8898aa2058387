package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/mpdagents/mpdchat/internal/checkpoint/checkpointtest"
	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "cp.db"), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		return openTestStore(t)
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cp.db")
	ctx := context.Background()

	s, err := Open(ctx, path, Config{})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "t-x", checkpoint.Checkpoint{Turn: "1", State: []byte("state")}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Config{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	cp, err := s.Load(ctx, "t-x")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, []byte("state"), cp.State)
}

func TestStore_NilBlobsStoredEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutWrite(ctx, checkpoint.Write{Key: "k", Turn: "t", Node: "__start__"}))
	ws, err := s.PendingWrites(ctx, "k")
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Empty(t, ws[0].Payload)

	require.NoError(t, s.Save(ctx, "k", checkpoint.Checkpoint{Turn: "t"}))
	var n int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM checkpoints WHERE thread_key = ? AND state IS NOT NULL", "k").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, migrate(ctx, s.db))

	var v int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&v))
	assert.Equal(t, schemaVersion, v)
}

func TestModule_Lifecycle(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("busy_timeout: 1000\nwal: false\n"), &doc))

	m := &Module{}
	require.NoError(t, m.Configure(doc.Content[0]))

	app := core.NewAppContext(nil, t.TempDir())
	require.NoError(t, m.Provision(app))
	require.NoError(t, m.Validate())
	assert.Equal(t, filepath.Join(app.DataDir, defaultDBFile), m.config.Path)
	assert.False(t, m.config.walEnabled())

	store, ok := core.Service[checkpoint.Store](app, checkpoint.ServiceName)
	require.True(t, ok)
	require.NoError(t, store.Save(context.Background(), "k", checkpoint.Checkpoint{State: []byte("x")}))

	require.NoError(t, m.Stop(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	c := Config{BusyTimeout: -1}
	assert.Error(t, c.validate())
}
