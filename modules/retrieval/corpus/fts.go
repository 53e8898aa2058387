package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpdagents/mpdchat/internal/retrieval"
	_ "modernc.org/sqlite" // SQLite driver registration
)

// ftsSchema is applied on every open; all statements are idempotent.
var ftsSchema = []string{
	`CREATE TABLE IF NOT EXISTS passages (
		namespace TEXT NOT NULL,
		source    TEXT NOT NULL,
		content   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_passages_namespace ON passages(namespace)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS passages_fts USING fts5(
		content,
		content=passages,
		content_rowid=rowid
	)`,
	`CREATE TRIGGER IF NOT EXISTS passages_ai AFTER INSERT ON passages BEGIN
		INSERT INTO passages_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS passages_ad AFTER DELETE ON passages BEGIN
		INSERT INTO passages_fts(passages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	END`,
}

// ftsDB is a SQLite FTS5 passage index shared by every namespace.
type ftsDB struct {
	db *sql.DB
}

func openFTS(ctx context.Context, path string) (*ftsDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("retrieval.corpus: create directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("retrieval.corpus: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range ftsSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("retrieval.corpus: schema: %w", err)
		}
	}
	return &ftsDB{db: db}, nil
}

func (f *ftsDB) Close() error { return f.db.Close() }

// replace swaps the stored passages of namespace for docs.
func (f *ftsDB) replace(ctx context.Context, namespace string, docs []retrieval.Document) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("retrieval.corpus: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM passages WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("retrieval.corpus: clear %s: %w", namespace, err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO passages (namespace, source, content) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("retrieval.corpus: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, namespace, d.Source, d.Text); err != nil {
			return fmt.Errorf("retrieval.corpus: insert %s: %w", d.Source, err)
		}
	}
	return tx.Commit()
}

// searcher returns a retrieval.Searcher over one namespace.
func (f *ftsDB) searcher(namespace string) retrieval.Searcher {
	return &ftsSearcher{db: f.db, namespace: namespace}
}

type ftsSearcher struct {
	db        *sql.DB
	namespace string
}

// Search implements retrieval.Searcher. FTS5 bm25() is negative with
// better matches lower, so scores are negated.
func (s *ftsSearcher) Search(ctx context.Context, text string, topK int) ([]retrieval.Passage, error) {
	match := matchExpr(text)
	if match == "" || topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.source, p.content, bm25(passages_fts)
		FROM passages_fts
		JOIN passages p ON p.rowid = passages_fts.rowid
		WHERE passages_fts MATCH ? AND p.namespace = ?
		ORDER BY rank
		LIMIT ?`,
		match, s.namespace, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieval.corpus: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []retrieval.Passage
	for rows.Next() {
		var (
			p    retrieval.Passage
			rank float64
		)
		if err := rows.Scan(&p.Source, &p.Text, &rank); err != nil {
			return nil, fmt.Errorf("retrieval.corpus: scan: %w", err)
		}
		p.Score = -rank
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieval.corpus: rows: %w", err)
	}
	return out, nil
}

// matchExpr turns free text into an FTS5 query that ORs its quoted
// tokens, so punctuation in user input never reaches the FTS parser.
func matchExpr(text string) string {
	tokens := retrieval.Tokenize(text)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}
