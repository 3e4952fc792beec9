package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/filigree-dev/keel/internal/types"
)

// IssueExists is the existence oracle idgen.Generate calls per attempt
// — a direct indexed lookup, never a full-table scan.
func (s *Store) IssueExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapSQLErr("check issue existence", err)
	}
	return true, nil
}

// CreateIssue inserts issue, which must already have its ID, Status,
// CreatedAt and UpdatedAt populated by the caller (the issue engine
// resolves those against the template registry before calling down).
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue) error {
	fieldsJSON, err := json.Marshal(issue.Fields)
	if err != nil {
		return types.Wrap(types.CodeUnknown, err, "marshal fields")
	}
	_, err = s.db.ExecContext(ctx, `
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

// UpdateIssue persists every mutable column of issue (a whole-row
// replace of the mutable surface); the issue engine is responsible for
// computing the new values (merges, transition checks) before calling
// down, keeping the store itself free of workflow policy.
func (s *Store) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	fieldsJSON, err := json.Marshal(issue.Fields)
	if err != nil {
		return types.Wrap(types.CodeUnknown, err, "marshal fields")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE issues SET title=?, status=?, priority=?, type=?, parent=?, assignee=?,
			updated_at=?, closed_at=?, description=?, notes=?, fields=?
		WHERE id=?`,
		issue.Title, string(issue.Status), issue.Priority, issue.Type,
		nullableString(issue.Parent), issue.Assignee,
		formatTime(issue.UpdatedAt), formatNullableTime(issue.ClosedAt),
		issue.Description, issue.Notes, string(fieldsJSON),
		issue.ID,
	)
	if err != nil {
		return wrapSQLErr("update issue", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NotFound("issue %q not found", issue.ID)
	}
	return nil
}

// ClaimIssue performs the optimistic single-assignee lock: it sets
// assignee from unset to assignee using a conditional UPDATE gated on
// the prior assignee being empty, and reports success via the affected
// row count. No retry loop, no read-then-write.
func (s *Store) ClaimIssue(ctx context.Context, id, assignee, now string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE issues SET assignee=?, updated_at=? WHERE id=? AND (assignee IS NULL OR assignee='')`,
		assignee, now, id)
	if err != nil {
		return false, wrapSQLErr("claim issue", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ReleaseClaim mirrors ClaimIssue: gated on the current assignee being
// non-empty.
func (s *Store) ReleaseClaim(ctx context.Context, id, now string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE issues SET assignee='', updated_at=? WHERE id=? AND assignee IS NOT NULL AND assignee != ''`,
		now, id)
	if err != nil {
		return false, wrapSQLErr("release claim", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetIssue fetches a single issue by id.
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields
		FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, wrapSQLErr(fmt.Sprintf("get issue %q", id), err)
	}
	return issue, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var (
		id, title, status, typ, assignee, description, notes, fieldsJSON string
		priority                                                         int
		parent                                                           sql.NullString
		createdAt, updatedAt                                             string
		closedAt                                                         sql.NullString
	)
	if err := row.Scan(&id, &title, &status, &priority, &typ, &parent, &assignee,
		&createdAt, &updatedAt, &closedAt, &description, &notes, &fieldsJSON); err != nil {
		return nil, err
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	closed, err := parseNullableTime(closedAt)
	if err != nil {
		return nil, err
	}

	var fields types.Fields
	if fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, err
		}
	}

	return &types.Issue{
		ID: id, Title: title, Status: types.Status(status), Priority: priority, Type: typ,
		Parent: parent.String, Assignee: assignee,
		CreatedAt: created, UpdatedAt: updated, ClosedAt: closed,
		Description: description, Notes: notes, Fields: fields,
	}, nil
}

// IssueFilter narrows ListIssues.
type IssueFilter struct {
	Status   string
	Type     string
	Assignee string
	Limit    int
	Offset   int
}

// ListIssues is the paginated read behind list_issues.
func (s *Store) ListIssues(ctx context.Context, f IssueFilter) ([]*types.Issue, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Assignee != "" {
		clauses = append(clauses, "assignee = ?")
		args = append(args, f.Assignee)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields
		FROM issues %s
		ORDER BY priority ASC, created_at ASC
		LIMIT ? OFFSET ?`, where), args...)
	if err != nil {
		return nil, wrapSQLErr("list issues", err)
	}
	defer rows.Close()
	return scanIssues(rows)
}

func scanIssues(rows *sql.Rows) ([]*types.Issue, error) {
	var out []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, wrapSQLErr("scan issue row", err)
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr("iterate issue rows", err)
	}
	return out, nil
}

// CategoryClause selects issues of Type (or any type not covered by the
// registry, when Type is "") whose Status is in Statuses. The planning
// engine builds these from the template registry so the store itself
// never hard-codes a status literal's meaning.
type CategoryClause struct {
	Type     string // empty matches any type with no registered template
	Statuses []string
	IsOther  bool // true for the fallback clause over untemplated types
}

// ListIssuesMatchingAny returns every issue matching at least one
// clause, via a single parameterized OR-of-AND query, never a
// per-issue follow-up.
func (s *Store) ListIssuesMatchingAny(ctx context.Context, clauses []CategoryClause, templatedTypes []string) ([]*types.Issue, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	var parts []string
	var args []any
	for _, c := range clauses {
		if len(c.Statuses) == 0 {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(c.Statuses)), ",")
		if c.IsOther {
			otherPh := strings.TrimSuffix(strings.Repeat("?,", len(templatedTypes)), ",")
			if otherPh == "" {
				parts = append(parts, fmt.Sprintf("(status IN (%s))", placeholders))
			} else {
				parts = append(parts, fmt.Sprintf("(type NOT IN (%s) AND status IN (%s))", otherPh, placeholders))
				for _, t := range templatedTypes {
					args = append(args, t)
				}
			}
			for _, st := range c.Statuses {
				args = append(args, st)
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("(type = ? AND status IN (%s))", placeholders))
		args = append(args, c.Type)
		for _, st := range c.Statuses {
			args = append(args, st)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields
		FROM issues WHERE %s`, strings.Join(parts, " OR "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLErr("list issues matching category clauses", err)
	}
	defer rows.Close()
	return scanIssues(rows)
}

// IssuesByIDs fetches exactly the issues named by ids, in one query.
func (s *Store) IssuesByIDs(ctx context.Context, ids []string) (map[string]*types.Issue, error) {
	out := map[string]*types.Issue{}
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields
		FROM issues WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, wrapSQLErr("batch fetch issues by id", err)
	}
	defer rows.Close()
	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		out[issue.ID] = issue
	}
	return out, nil
}

// ListChildren returns the direct children of parentIDs, batched.
func (s *Store) ListChildren(ctx context.Context, parentIDs []string) (map[string][]*types.Issue, error) {
	out := map[string][]*types.Issue{}
	if len(parentIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]any, len(parentIDs))
	for i, id := range parentIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, status, priority, type, parent, assignee,
			created_at, updated_at, closed_at, description, notes, fields
		FROM issues WHERE parent IN (%s)
		ORDER BY created_at ASC`, placeholders), args...)
	if err != nil {
		return nil, wrapSQLErr("list children", err)
	}
	defer rows.Close()
	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		out[issue.Parent] = append(out[issue.Parent], issue)
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
