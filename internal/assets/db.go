// Package assets persists the watch list of symbols users track, with the
// metadata resolved for them at the time they were added.
package assets

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS vn_assets (
	id         TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	asset_type TEXT NOT NULL,
	exchange   TEXT NOT NULL DEFAULT '',
	currency   TEXT NOT NULL DEFAULT 'VND',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vn_assets_type ON vn_assets(asset_type);
`

// Open opens (creating if needed) the sqlite database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}
