package store

import (
	"context"
	"strings"

	"github.com/filigree-dev/keel/internal/types"
)

// hasFTS reports whether migrateFullTextSearch successfully created the
// issues_fts virtual table on this build of the driver.
func (s *Store) hasFTS(ctx context.Context) bool {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='issues_fts'`).Scan(&name)
	return err == nil
}

// SearchIssues runs a full-text query over title and description,
// preferring the FTS5 index and falling back to an escaped LIKE scan
// when the build lacks FTS5 support (migrations.go leaves issues_fts
// absent in that case rather than failing the whole migration).
func (s *Store) SearchIssues(ctx context.Context, query string, limit int) ([]*types.Issue, error) {
	if limit <= 0 {
		limit = 50
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if s.hasFTS(ctx) {
		issues, err := s.searchFTS(ctx, query, limit)
		if err == nil {
			return issues, nil
		}
		// Malformed FTS5 MATCH syntax (bare punctuation, etc.) falls
		// through to the LIKE scan rather than surfacing a query-syntax
		// error to the caller.
	}
	return s.searchLike(ctx, query, limit)
}

func (s *Store) searchFTS(ctx context.Context, query string, limit int) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.title, i.status, i.priority, i.type, i.parent, i.assignee,
			i.created_at, i.updated_at, i.closed_at, i.description, i.notes, i.fields
		FROM issues_fts f
		JOIN issues i ON i.id = f.id
		WHERE issues_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, wrapSQLErr("fts search", err)
	}
	defer rows.Close()
	return scanIssues(rows)
}

// ftsQuery quotes each token so punctuation in the user's query string
// can't be read as FTS5 query-syntax operators.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(quoted, " ")
}

func (s *Store) searchLike(ctx context.Context, query string, limit int) ([]*types.Issue, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields
		FROM issues
		WHERE title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'
		ORDER BY priority ASC, created_at ASC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, wrapSQLErr("like search", err)
	}
	defer rows.Close()
	return scanIssues(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
