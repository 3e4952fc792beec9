package store

import (
	"context"

	"github.com/filigree-dev/keel/internal/types"
)

// AddDependency inserts a from->to edge of the given link type. Cycle
// prevention happens one level up: the planning engine walks the graph
// with its reaches BFS before calling down, keeping "can this edge
// exist" (an in-memory graph walk) separate from "persist this edge"
// (a plain insert).
func (s *Store) AddDependency(ctx context.Context, dep types.Dependency) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO dependencies (from_id, to_id, type) VALUES (?, ?, ?)`,
		dep.From, dep.To, dep.Type)
	if err != nil {
		return wrapSQLErr("add dependency", err)
	}
	return nil
}

// RemoveDependency deletes one edge.
func (s *Store) RemoveDependency(ctx context.Context, dep types.Dependency) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM dependencies WHERE from_id = ? AND to_id = ? AND type = ?`,
		dep.From, dep.To, dep.Type)
	if err != nil {
		return wrapSQLErr("remove dependency", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NotFound("dependency %s->%s (%s) not found", dep.From, dep.To, dep.Type)
	}
	return nil
}

// OutgoingEdges loads the full from_id->[]to_id adjacency for linkType
// in one scan, for the planning engine's in-memory BFS cycle check and
// critical-path walk — fetching the whole graph once is cheap at the
// scale a single embedded file is meant for, and avoids N+1 queries
// during a multi-hop walk.
func (s *Store) OutgoingEdges(ctx context.Context, linkType string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_id, to_id FROM dependencies WHERE type = ?`, linkType)
	if err != nil {
		return nil, wrapSQLErr("load dependency graph", err)
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, wrapSQLErr("scan dependency edge", err)
		}
		out[from] = append(out[from], to)
	}
	return out, rows.Err()
}

// DependencyEdge is one row of the dependencies table, with both ends
// named for display.
type DependencyEdge struct {
	IssueID     string
	DependsOnID string
	LinkType    string
}

// DependenciesBatch returns outgoing (this issue depends on) and
// incoming (this issue is depended on by) edges for every id in ids,
// in two queries regardless of len(ids).
func (s *Store) DependenciesBatch(ctx context.Context, ids []string) (outgoing, incoming map[string][]DependencyEdge, err error) {
	outgoing = map[string][]DependencyEdge{}
	incoming = map[string][]DependencyEdge{}
	if len(ids) == 0 {
		return outgoing, incoming, nil
	}
	placeholders, args := inClause(ids)

	outRows, err := s.db.QueryContext(ctx, `SELECT from_id, to_id, type FROM dependencies WHERE from_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, nil, wrapSQLErr("load outgoing dependencies", err)
	}
	defer outRows.Close()
	for outRows.Next() {
		var e DependencyEdge
		if err := outRows.Scan(&e.IssueID, &e.DependsOnID, &e.LinkType); err != nil {
			return nil, nil, wrapSQLErr("scan outgoing dependency", err)
		}
		outgoing[e.IssueID] = append(outgoing[e.IssueID], e)
	}
	if err := outRows.Err(); err != nil {
		return nil, nil, wrapSQLErr("iterate outgoing dependencies", err)
	}

	inRows, err := s.db.QueryContext(ctx, `SELECT from_id, to_id, type FROM dependencies WHERE to_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, nil, wrapSQLErr("load incoming dependencies", err)
	}
	defer inRows.Close()
	for inRows.Next() {
		var e DependencyEdge
		if err := inRows.Scan(&e.IssueID, &e.DependsOnID, &e.LinkType); err != nil {
			return nil, nil, wrapSQLErr("scan incoming dependency", err)
		}
		incoming[e.DependsOnID] = append(incoming[e.DependsOnID], e)
	}
	return outgoing, incoming, inRows.Err()
}

// OpenBlockerCounts returns, for each id, the number of outgoing
// "blocks"-type edges whose target issue's status is in openStatuses —
// the count get_ready/get_blocked use to classify an issue, computed
// with one join rather than a per-issue lookup.
func (s *Store) OpenBlockerCounts(ctx context.Context, ids []string, openStatuses []string) (map[string]int, error) {
	out := map[string]int{}
	if len(ids) == 0 || len(openStatuses) == 0 {
		return out, nil
	}
	idPh, idArgs := inClause(ids)
	statusPh, statusArgs := inClause(openStatuses)

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.from_id, COUNT(*)
		FROM dependencies d
		JOIN issues blocker ON blocker.id = d.to_id
		WHERE d.type = 'blocks' AND d.from_id IN (`+idPh+`) AND blocker.status IN (`+statusPh+`)
		GROUP BY d.from_id`, append(idArgs, statusArgs...)...)
	if err != nil {
		return nil, wrapSQLErr("count open blockers", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, wrapSQLErr("scan open blocker count", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func inClause(vals []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(vals))
	for i, v := range vals {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = v
	}
	return placeholders, args
}
