// Package sqlite is the embedded single-file backend of the document store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	content    TEXT NOT NULL CHECK (trim(content) <> ''),
	source     TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '[]',
	category   TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
CREATE INDEX IF NOT EXISTS idx_documents_chunk_type ON documents(chunk_type);

CREATE TABLE IF NOT EXISTS embeddings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
	embedding   BLOB NOT NULL
);
`

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database file at path and applies the
// schema. Foreign keys are enforced on every connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	if err := addCategoryColumn(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

// addCategoryColumn upgrades files created before documents had a category
// column and backfills it from metadata.
func addCategoryColumn(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('documents') WHERE name = 'category'`,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.ExecContext(ctx, `ALTER TABLE documents ADD COLUMN category TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
		_, err = db.ExecContext(ctx, `
			UPDATE documents SET category = COALESCE((
				SELECT json_extract(e.value, '$.value')
				FROM json_each(documents.metadata) e
				WHERE json_extract(e.value, '$.key') = 'category'
				  AND json_extract(e.value, '$.type') = 'string'
				LIMIT 1
			), '')`)
		if err != nil {
			return err
		}
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category, id)`)
	return err
}
