package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_key TEXT    PRIMARY KEY,
			turn_id    TEXT    NOT NULL,
			step       INTEGER NOT NULL,
			last_node  TEXT    NOT NULL DEFAULT '',
			state      BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoint_writes (
			thread_key TEXT    NOT NULL,
			turn_id    TEXT    NOT NULL,
			step       INTEGER NOT NULL,
			node       TEXT    NOT NULL,
			payload    BLOB    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (thread_key, turn_id, step)
		)`,
	},
	{
		`CREATE INDEX IF NOT EXISTS idx_writes_created ON checkpoint_writes(created_at)`,
	},
}

// schemaVersion is the version reached after every migration has run.
var schemaVersion = len(migrations)

// migrate brings the schema to schemaVersion, one transaction per step.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("checkpoint.sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("checkpoint.sqlite: read schema version: %w", err)
	}

	for v := current; v < schemaVersion; v++ {
		if err := applyMigration(ctx, db, v); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint.sqlite: begin migration %d: %w", from+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations[from] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("checkpoint.sqlite: migration %d: %w\nstatement: %s", from+1, err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", from+1); err != nil {
		return fmt.Errorf("checkpoint.sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
