package store

import (
	"context"

	"github.com/filigree-dev/keel/internal/types"
)

// AddComment appends a comment row, never replacing or editing a prior
// one — comments form their own append-only log per issue.
func (s *Store) AddComment(ctx context.Context, c types.Comment) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (issue_id, author, text, created_at) VALUES (?, ?, ?, ?)`,
		c.IssueID, c.Author, c.Text, formatTime(c.CreatedAt))
	if err != nil {
		return 0, wrapSQLErr("add comment", err)
	}
	return res.LastInsertId()
}

// GetComments returns every comment for issueID, oldest first.
func (s *Store) GetComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author, text, created_at FROM comments WHERE issue_id = ? ORDER BY id ASC`, issueID)
	if err != nil {
		return nil, wrapSQLErr("list comments", err)
	}
	defer rows.Close()

	var out []*types.Comment
	for rows.Next() {
		var c types.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &createdAt); err != nil {
			return nil, wrapSQLErr("scan comment", err)
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = t
		out = append(out, &c)
	}
	return out, rows.Err()
}
