package store

import "context"

// CountByStatus returns a status->count map across all issues, used by
// get_stats and by the summary renderer's breakdown section.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, "status")
}

// CountByType returns a type->count map.
func (s *Store) CountByType(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, "type")
}

// CountByAssignee returns an assignee->count map, excluding unassigned.
func (s *Store) CountByAssignee(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assignee, COUNT(*) FROM issues WHERE assignee != '' GROUP BY assignee`)
	if err != nil {
		return nil, wrapSQLErr("count by assignee", err)
	}
	defer rows.Close()
	return scanCounts(rows)
}

func (s *Store) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM issues GROUP BY `+column)
	if err != nil {
		return nil, wrapSQLErr("count by "+column, err)
	}
	defer rows.Close()
	return scanCounts(rows)
}

func scanCounts(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) (map[string]int, error) {
	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, wrapSQLErr("scan count row", err)
		}
		out[key] = n
	}
	return out, rows.Err()
}

// TotalIssues returns the total issue count.
func (s *Store) TotalIssues(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`).Scan(&n); err != nil {
		return 0, wrapSQLErr("count issues", err)
	}
	return n, nil
}

// ClosedBetween returns issues closed within [sinceRFC3339, untilRFC3339)
// for cycle-time and throughput metrics (get_flow_metrics).
func (s *Store) ClosedBetween(ctx context.Context, sinceRFC3339, untilRFC3339 string) ([]ClosedIssueTiming, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, closed_at FROM issues
		WHERE closed_at IS NOT NULL AND closed_at >= ? AND closed_at < ?`, sinceRFC3339, untilRFC3339)
	if err != nil {
		return nil, wrapSQLErr("list closed issues in window", err)
	}
	defer rows.Close()

	var out []ClosedIssueTiming
	for rows.Next() {
		var t ClosedIssueTiming
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.ClosedAt); err != nil {
			return nil, wrapSQLErr("scan closed issue timing", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClosedIssueTiming carries the two timestamps get_flow_metrics needs
// to compute cycle time for one issue, both still RFC3339 strings so
// the caller controls parsing and truncation.
type ClosedIssueTiming struct {
	ID        string
	CreatedAt string
	ClosedAt  string
}
