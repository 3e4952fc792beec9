package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/filigree-dev/keel/internal/types"
)

// migration is one forward-only schema step, applied in its own
// transaction. The file format contract is the ordered position in
// this slice: PRAGMA user_version after migration i is i+1.
type migration struct {
	name string
	up   func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the ordered, append-only list of schema steps. Never
// reorder or remove an entry; add new ones at the end.
var migrations = []migration{
	{"initial_schema", migrateInitialSchema},
	{"fulltext_search", migrateFullTextSearch},
	{"dependency_table_rebuild", migrateDependencyTableRebuild},
}

// runMigrations applies every migration beyond the file's current
// PRAGMA user_version, each in its own transaction, and refuses to run
// against a file whose recorded version exceeds the code's known
// migration count (an older binary opening a newer file).
func runMigrations(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return types.Wrap(types.CodeIntegrity, err, "read schema version")
	}

	if current > len(migrations) {
		return types.Integrity(
			"database schema version %d is newer than this build knows (%d); refusing to open",
			current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return types.Wrap(types.CodeIntegrity, err, "begin migration %q", m.name)
		}
		if err := m.up(ctx, tx); err != nil {
			_ = tx.Rollback()
			return types.Wrap(types.CodeIntegrity, err, "apply migration %q", m.name)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return types.Wrap(types.CodeIntegrity, err, "record schema version after %q", m.name)
		}
		if err := tx.Commit(); err != nil {
			return types.Wrap(types.CodeIntegrity, err, "commit migration %q", m.name)
		}
	}
	return nil
}

func migrateInitialSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE issues (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			status      TEXT NOT NULL,
			priority    INTEGER NOT NULL CHECK (priority BETWEEN 0 AND 4),
			type        TEXT NOT NULL,
			parent      TEXT REFERENCES issues(id),
			assignee    TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			closed_at   TEXT,
			description TEXT NOT NULL DEFAULT '',
			notes       TEXT NOT NULL DEFAULT '',
			fields      TEXT NOT NULL DEFAULT '{}',
			content_hash TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX idx_issues_status_priority_created ON issues(status, priority, created_at)`,
		`CREATE INDEX idx_issues_parent ON issues(parent)`,
		`CREATE TABLE dependencies (
			from_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			to_id   TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			type    TEXT NOT NULL DEFAULT 'blocks',
			PRIMARY KEY (from_id, to_id, type),
			CHECK (from_id <> to_id)
		)`,
		`CREATE INDEX idx_dependencies_to ON dependencies(to_id, from_id)`,
		`CREATE TABLE events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			issue_id   TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			actor      TEXT NOT NULL DEFAULT '',
			old_value  TEXT NOT NULL DEFAULT '',
			new_value  TEXT NOT NULL DEFAULT '',
			comment    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_events_issue_created ON events(issue_id, created_at DESC)`,
		`CREATE TABLE comments (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			issue_id   TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			author     TEXT NOT NULL DEFAULT '',
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_comments_issue_created ON comments(issue_id, created_at)`,
		`CREATE TABLE labels (
			issue_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			name     TEXT NOT NULL,
			PRIMARY KEY (issue_id, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// migrateFullTextSearch maintains a full-text index over issue
// title+description where the underlying engine supports it. FTS5
// virtual tables are not available in every SQLite build; search.go
// falls back to an escaped LIKE scan when this table is absent, so a
// failure here is tolerated rather than fatal.
func migrateFullTextSearch(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE VIRTUAL TABLE issues_fts USING fts5(
			id UNINDEXED, title, description,
			content='issues', content_rowid='rowid'
		)`)
	if err != nil {
		// FTS5 unsupported by this build: leave issues_fts absent and
		// let search.go's feature check select the LIKE fallback.
		return nil
	}

	triggers := []string{
		`CREATE TRIGGER issues_fts_ai AFTER INSERT ON issues BEGIN
			INSERT INTO issues_fts(rowid, id, title, description) VALUES (new.rowid, new.id, new.title, new.description);
		END`,
		`CREATE TRIGGER issues_fts_ad AFTER DELETE ON issues BEGIN
			INSERT INTO issues_fts(issues_fts, rowid, id, title, description) VALUES('delete', old.rowid, old.id, old.title, old.description);
		END`,
		`CREATE TRIGGER issues_fts_au AFTER UPDATE ON issues BEGIN
			INSERT INTO issues_fts(issues_fts, rowid, id, title, description) VALUES('delete', old.rowid, old.id, old.title, old.description);
			INSERT INTO issues_fts(rowid, id, title, description) VALUES (new.rowid, new.id, new.title, new.description);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// migrateDependencyTableRebuild demonstrates the rebuild pattern a
// migration needs when it changes a table's shape: create the new
// table, copy, drop the old one, rename. The foreign_keys pragmas it
// issues run inside the migration's transaction, where SQLite treats
// them as no-ops. The new table keeps the initial schema's columns and
// constraints; the rebuild adds a composite index on (from_id, to_id)
// and recreates the (to_id, from_id) index dropped with the old table.
func migrateDependencyTableRebuild(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`PRAGMA foreign_keys = OFF`,
		`CREATE TABLE dependencies_new (
			from_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			to_id   TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			type    TEXT NOT NULL DEFAULT 'blocks',
			PRIMARY KEY (from_id, to_id, type),
			CHECK (from_id <> to_id)
		)`,
		`INSERT INTO dependencies_new (from_id, to_id, type) SELECT from_id, to_id, type FROM dependencies`,
		`DROP TABLE dependencies`,
		`ALTER TABLE dependencies_new RENAME TO dependencies`,
		`CREATE INDEX idx_dependencies_from_to ON dependencies(from_id, to_id)`,
		`CREATE INDEX idx_dependencies_to ON dependencies(to_id, from_id)`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
