package store

import (
	"context"

	"github.com/filigree-dev/keel/internal/types"
)

// AppendEvent writes one row to the append-only journal. The journal
// is never updated by normal operations, and rows leave it only through
// DeleteEvent (undo_last retracting the event it reversed) and
// DeleteIssueEventsBefore (driven by the compact_events maintenance op).
func (s *Store) AppendEvent(ctx context.Context, ev types.Event) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.IssueID, string(ev.Type), ev.Actor, ev.OldValue, ev.NewValue, ev.Comment, formatTime(ev.CreatedAt))
	if err != nil {
		return 0, wrapSQLErr("append event", err)
	}
	return res.LastInsertId()
}

func scanEvent(row rowScanner) (*types.Event, error) {
	var (
		id                                                 int64
		issueID, eventType, actor, oldValue, newValue, cmt string
		createdAt                                          string
	)
	if err := row.Scan(&id, &issueID, &eventType, &actor, &oldValue, &newValue, &cmt, &createdAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &types.Event{
		ID: id, IssueID: issueID, Type: types.EventType(eventType),
		Actor: actor, OldValue: oldValue, NewValue: newValue, Comment: cmt,
		CreatedAt: created,
	}, nil
}

const eventColumns = `id, issue_id, event_type, actor, old_value, new_value, comment, created_at`

// GetRecentEvents returns the most recent limit events across all
// issues, newest first — the feed get_recent_events serves.
func (s *Store) GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapSQLErr("list recent events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsSince returns every event with id > afterID, oldest first —
// the cursor a polling agent advances across calls.
func (s *Store) GetEventsSince(ctx context.Context, afterID int64, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, wrapSQLErr("list events since cursor", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetIssueEvents returns the full history for one issue, oldest first.
func (s *Store) GetIssueEvents(ctx context.Context, issueID string) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE issue_id = ? ORDER BY id ASC`, issueID)
	if err != nil {
		return nil, wrapSQLErr("list issue events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LastEventForIssue returns the single most recent event recorded
// against issueID, or a NotFound error if it has none.
func (s *Store) LastEventForIssue(ctx context.Context, issueID string) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE issue_id = ? ORDER BY id DESC LIMIT 1`, issueID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, wrapSQLErr("load last event", err)
	}
	return ev, nil
}

// LastEvent returns the single most recent event across the whole
// journal, or a NotFound error if it is empty.
func (s *Store) LastEvent(ctx context.Context) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT 1`)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, wrapSQLErr("load last event", err)
	}
	return ev, nil
}

// DeleteEvent removes a single event row (undo_last retracts the event
// it just reversed, so it cannot be undone a second time).
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return wrapSQLErr("delete event", err)
	}
	return nil
}

// DeleteIssueEventsBefore prunes issueID's journal rows with id <=
// throughID, keeping its more recent tail. Scoped to one issue so
// compacting an archived issue's history never touches another issue's
// events that happen to share the same id range.
func (s *Store) DeleteIssueEventsBefore(ctx context.Context, issueID string, throughID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE issue_id = ? AND id <= ?`, issueID, throughID)
	if err != nil {
		return 0, wrapSQLErr("compact events", err)
	}
	return res.RowsAffected()
}

func scanEvents(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*types.Event, error) {
	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, wrapSQLErr("scan event row", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
