package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/filigree-dev/keel/internal/types"
)

// BulkTxn is the write surface import_jsonl uses: every insert it
// issues runs against the same BEGIN IMMEDIATE connection, so the
// whole import either lands as one unit or rolls back as one unit.
// It intentionally exposes only the handful of inserts bulk import
// needs, not the full Store surface.
type BulkTxn struct {
	conn *sql.Conn
}

// WithBulkTxn runs fn against a single BEGIN IMMEDIATE transaction,
// for callers (import_jsonl) that need many inserts spanning several
// tables to commit or roll back together rather than per statement.
func (s *Store) WithBulkTxn(ctx context.Context, fn func(*BulkTxn) error) error {
	return s.withImmediateTxn(ctx, func(conn *sql.Conn) error {
		return fn(&BulkTxn{conn: conn})
	})
}

// IssueExists checks for a colliding id within the open transaction.
func (b *BulkTxn) IssueExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := b.conn.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapSQLErr("check issue existence", err)
	}
	return true, nil
}

// CreateIssue inserts one issue row within the transaction; same shape
// as Store.CreateIssue, run against the shared connection instead.
func (b *BulkTxn) CreateIssue(ctx context.Context, issue *types.Issue) error {
	fieldsJSON, err := json.Marshal(issue.Fields)
	if err != nil {
		return types.Wrap(types.CodeUnknown, err, "marshal fields")
	}
	_, err = b.conn.ExecContext(ctx, `
		INSERT INTO issues (id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, string(issue.Status), issue.Priority, issue.Type,
		nullableString(issue.Parent), issue.Assignee,
		formatTime(issue.CreatedAt), formatTime(issue.UpdatedAt), formatNullableTime(issue.ClosedAt),
		issue.Description, issue.Notes, string(fieldsJSON),
	)
	if err != nil {
		return wrapSQLErr("create issue", err)
	}
	return nil
}

// AddDependency inserts one dependency edge within the transaction.
func (b *BulkTxn) AddDependency(ctx context.Context, dep types.Dependency) error {
	_, err := b.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO dependencies (from_id, to_id, type) VALUES (?, ?, ?)`,
		dep.From, dep.To, types.NormalizeLinkType(dep.Type))
	if err != nil {
		return wrapSQLErr("add dependency", err)
	}
	return nil
}

// AddLabel inserts one label within the transaction.
func (b *BulkTxn) AddLabel(ctx context.Context, l types.Label) error {
	_, err := b.conn.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, name) VALUES (?, ?)`, l.IssueID, l.Name)
	if err != nil {
		return wrapSQLErr("add label", err)
	}
	return nil
}

// AddComment inserts one comment within the transaction.
func (b *BulkTxn) AddComment(ctx context.Context, c types.Comment) error {
	_, err := b.conn.ExecContext(ctx, `
		INSERT INTO comments (issue_id, author, text, created_at) VALUES (?, ?, ?, ?)`,
		c.IssueID, c.Author, c.Text, formatTime(c.CreatedAt))
	if err != nil {
		return wrapSQLErr("add comment", err)
	}
	return nil
}

// AppendEvent inserts one journal row within the transaction, carrying
// over the exported event's own timestamp rather than stamping a new
// one, so a re-imported journal keeps its original history.
func (b *BulkTxn) AppendEvent(ctx context.Context, ev types.Event) error {
	_, err := b.conn.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.IssueID, string(ev.Type), ev.Actor, ev.OldValue, ev.NewValue, ev.Comment, formatTime(ev.CreatedAt))
	if err != nil {
		return wrapSQLErr("append event", err)
	}
	return nil
}
