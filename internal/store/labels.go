package store

import (
	"context"

	"github.com/filigree-dev/keel/internal/types"
)

// AddLabel attaches a label, idempotently.
func (s *Store) AddLabel(ctx context.Context, l types.Label) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, name) VALUES (?, ?)`, l.IssueID, l.Name)
	if err != nil {
		return wrapSQLErr("add label", err)
	}
	return nil
}

// RemoveLabel detaches a label; a no-op if it wasn't attached.
func (s *Store) RemoveLabel(ctx context.Context, l types.Label) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ? AND name = ?`, l.IssueID, l.Name)
	if err != nil {
		return wrapSQLErr("remove label", err)
	}
	return nil
}

// GetLabels returns the labels attached to one issue.
func (s *Store) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM labels WHERE issue_id = ? ORDER BY name`, issueID)
	if err != nil {
		return nil, wrapSQLErr("list labels", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapSQLErr("scan label", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// LabelsBatch returns labels for every id in ids in a single query.
func (s *Store) LabelsBatch(ctx context.Context, ids []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `SELECT issue_id, name FROM labels WHERE issue_id IN (`+placeholders+`) ORDER BY name`, args...)
	if err != nil {
		return nil, wrapSQLErr("batch list labels", err)
	}
	defer rows.Close()
	for rows.Next() {
		var issueID, name string
		if err := rows.Scan(&issueID, &name); err != nil {
			return nil, wrapSQLErr("scan batch label", err)
		}
		out[issueID] = append(out[issueID], name)
	}
	return out, rows.Err()
}

// IssuesWithLabel returns the ids of every issue carrying name.
func (s *Store) IssuesWithLabel(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT issue_id FROM labels WHERE name = ?`, name)
	if err != nil {
		return nil, wrapSQLErr("list issues with label", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapSQLErr("scan labeled issue id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
