package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
)

// Store is a checkpoint.Store and checkpoint.WriteLog backed by SQLite.
// Timestamps are stored as Unix nanoseconds.
type Store struct {
	db *sql.DB
}

// Load implements checkpoint.Store.
func (s *Store) Load(ctx context.Context, key string) (*checkpoint.Checkpoint, error) {
	cp := checkpoint.Checkpoint{Key: key}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT turn_id, step, last_node, state, updated_at FROM checkpoints WHERE thread_key = ?`, key,
	).Scan(&cp.Turn, &cp.Step, &cp.LastNode, &cp.State, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint.sqlite: load %q: %w", key, err)
	}
	cp.UpdatedAt = time.Unix(0, updated).UTC()
	return &cp, nil
}

// Save implements checkpoint.Store. The upsert and the write-log cleanup
// share one transaction.
func (s *Store) Save(ctx context.Context, key string, cp checkpoint.Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint.sqlite: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_key, turn_id, step, last_node, state, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thread_key) DO UPDATE SET
		   turn_id = excluded.turn_id,
		   step = excluded.step,
		   last_node = excluded.last_node,
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		key, cp.Turn, cp.Step, cp.LastNode, blob(cp.State), cp.UpdatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("checkpoint.sqlite: save %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_writes WHERE thread_key = ?`, key); err != nil {
		return fmt.Errorf("checkpoint.sqlite: clear writes %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint.sqlite: commit save %q: %w", key, err)
	}
	return nil
}

// Reset implements checkpoint.Store.
func (s *Store) Reset(ctx context.Context, scope checkpoint.Scope) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("checkpoint.sqlite: begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if scope.All() {
		res, err = tx.ExecContext(ctx, `DELETE FROM checkpoints`)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM checkpoint_writes`)
		}
	} else {
		res, err = tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_key = ?`, scope.Key())
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM checkpoint_writes WHERE thread_key = ?`, scope.Key())
		}
	}
	if err != nil {
		return 0, fmt.Errorf("checkpoint.sqlite: reset %s: %w", scope, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checkpoint.sqlite: reset %s: %w", scope, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("checkpoint.sqlite: commit reset %s: %w", scope, err)
	}
	return int(n), nil
}

// Keys implements checkpoint.Store.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_key FROM checkpoints ORDER BY thread_key`)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.sqlite: list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("checkpoint.sqlite: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PutWrite implements checkpoint.WriteLog.
func (s *Store) PutWrite(ctx context.Context, w checkpoint.Write) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoint_writes (thread_key, turn_id, step, node, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.Key, w.Turn, w.Step, w.Node, blob(w.Payload), w.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint.sqlite: put write %q/%d: %w", w.Key, w.Step, err)
	}
	return nil
}

// PendingWrites implements checkpoint.WriteLog.
func (s *Store) PendingWrites(ctx context.Context, key string) ([]checkpoint.Write, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, step, node, payload, created_at FROM checkpoint_writes
		 WHERE thread_key = ? ORDER BY step, created_at`, key)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.sqlite: pending writes %q: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var out []checkpoint.Write
	for rows.Next() {
		w := checkpoint.Write{Key: key}
		var created int64
		if err := rows.Scan(&w.Turn, &w.Step, &w.Node, &w.Payload, &created); err != nil {
			return nil, fmt.Errorf("checkpoint.sqlite: scan write: %w", err)
		}
		w.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

// DiscardWrites implements checkpoint.WriteLog.
func (s *Store) DiscardWrites(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint_writes WHERE thread_key = ?`, key); err != nil {
		return fmt.Errorf("checkpoint.sqlite: discard writes %q: %w", key, err)
	}
	return nil
}

// PruneWrites implements checkpoint.WriteLog.
func (s *Store) PruneWrites(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint_writes WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("checkpoint.sqlite: prune writes: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// blob maps a nil slice to an empty one. database/sql binds nil as NULL,
// which the NOT NULL blob columns reject.
func blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Interface guards.
var (
	_ checkpoint.Store    = (*Store)(nil)
	_ checkpoint.WriteLog = (*Store)(nil)
)
