package engine

import (
	"context"
	"time"

	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

// Stats is get_stats's return shape: aggregated counts, derived fresh
// on every call rather than maintained incrementally.
type Stats struct {
	Prefix      string
	ByStatus    map[string]int
	ByCategory  map[types.Category]int
	ByType      map[string]int
	ByPriority  map[int]int
	ByAssignee  map[string]int
	TotalIssues int
}

// GetStats is get_stats.
func (e *Engine) GetStats(ctx context.Context) (Stats, error) {
	byStatus, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	byType, err := e.store.CountByType(ctx)
	if err != nil {
		return Stats{}, err
	}
	byAssignee, err := e.store.CountByAssignee(ctx)
	if err != nil {
		return Stats{}, err
	}
	total, err := e.store.TotalIssues(ctx)
	if err != nil {
		return Stats{}, err
	}

	byPriority := map[int]int{}
	issues, err := e.store.ListIssues(ctx, issueFilterAll(total))
	if err != nil {
		return Stats{}, err
	}
	byCategory := map[types.Category]int{}
	for _, iss := range issues {
		byPriority[iss.Priority]++
		byCategory[e.registry.GetCategory(iss.Type, string(iss.Status))]++
	}

	return Stats{
		Prefix: e.config.Prefix, ByStatus: byStatus, ByCategory: byCategory, ByType: byType,
		ByPriority: byPriority, ByAssignee: byAssignee, TotalIssues: total,
	}, nil
}

// issueFilterAll is an unbounded-in-practice filter (limit = the
// current total issue count) used by the maintenance operations that
// need to scan the whole table, since store.ListIssues otherwise
// defaults to a page of 100.
func issueFilterAll(total int) store.IssueFilter {
	limit := total
	if limit <= 0 {
		limit = 100
	}
	return store.IssueFilter{Limit: limit}
}

// FlowMetrics is get_flow_metrics's return shape.
type FlowMetrics struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	Throughput     int
	AvgLeadTime    time.Duration
	AvgCycleTime   time.Duration
	ByType         map[string]TypeFlowMetrics
}

// TypeFlowMetrics is the per-type breakdown within FlowMetrics.
type TypeFlowMetrics struct {
	Throughput   int
	AvgLeadTime  time.Duration
	AvgCycleTime time.Duration
}

// GetFlowMetrics is get_flow_metrics: over [since, until), computes
// cycle time (first status_changed into a wip-category state until
// closed_at), lead time (created_at to closed_at), and throughput, plus
// per-type breakdowns. Read-only, derived from events and issue
// timestamps.
func (e *Engine) GetFlowMetrics(ctx context.Context, since, until time.Time) (FlowMetrics, error) {
	closed, err := e.store.ClosedBetween(ctx, formatRFC3339(since), formatRFC3339(until))
	if err != nil {
		return FlowMetrics{}, err
	}

	metrics := FlowMetrics{WindowStart: since, WindowEnd: until, ByType: map[string]TypeFlowMetrics{}}
	if len(closed) == 0 {
		return metrics, nil
	}

	type accum struct {
		throughput          int
		leadSum, cycleSum   time.Duration
		cycleCount          int
	}
	byType := map[string]*accum{}
	var totalLead, totalCycle time.Duration
	var totalCycleCount int

	for _, timing := range closed {
		issue, err := e.store.GetIssue(ctx, timing.ID)
		if err != nil {
			continue // a raced delete between the window query and this read drops that issue from the metric
		}
		created, err := time.Parse(time.RFC3339Nano, timing.CreatedAt)
		if err != nil {
			continue
		}
		closedAt, err := time.Parse(time.RFC3339Nano, timing.ClosedAt)
		if err != nil {
			continue
		}
		leadTime := closedAt.Sub(created)

		a, ok := byType[issue.Type]
		if !ok {
			a = &accum{}
			byType[issue.Type] = a
		}
		a.throughput++
		a.leadSum += leadTime
		totalLead += leadTime
		metrics.Throughput++

		wipStart, err := e.firstWIPEntry(ctx, timing.ID, issue.Type)
		if err == nil && wipStart != nil {
			cycleTime := closedAt.Sub(*wipStart)
			a.cycleSum += cycleTime
			a.cycleCount++
			totalCycle += cycleTime
			totalCycleCount++
		}
	}

	if metrics.Throughput > 0 {
		metrics.AvgLeadTime = totalLead / time.Duration(metrics.Throughput)
	}
	if totalCycleCount > 0 {
		metrics.AvgCycleTime = totalCycle / time.Duration(totalCycleCount)
	}
	for typeName, a := range byType {
		tm := TypeFlowMetrics{Throughput: a.throughput}
		if a.throughput > 0 {
			tm.AvgLeadTime = a.leadSum / time.Duration(a.throughput)
		}
		if a.cycleCount > 0 {
			tm.AvgCycleTime = a.cycleSum / time.Duration(a.cycleCount)
		}
		metrics.ByType[typeName] = tm
	}
	return metrics, nil
}

// firstWIPEntry returns the timestamp of the first status_changed event
// into a wip-category state for issueID, or nil if the issue never
// passed through one (e.g. it was created directly into a done state).
func (e *Engine) firstWIPEntry(ctx context.Context, issueID, typeName string) (*time.Time, error) {
	history, err := e.store.GetIssueEvents(ctx, issueID)
	if err != nil {
		return nil, err
	}
	for _, ev := range history {
		if ev.Type != types.EventStatusChanged {
			continue
		}
		if e.registry.GetCategory(typeName, ev.NewValue) == types.CategoryWIP {
			t := ev.CreatedAt
			return &t, nil
		}
	}
	return nil, nil
}

// ArchiveClosed is archive_closed: moves issues whose status category
// is done and whose closed_at is older than threshold to the reserved
// "archived" terminal state, recording an archived event for each.
func (e *Engine) ArchiveClosed(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := e.now().Add(-olderThan)
	total, err := e.store.TotalIssues(ctx)
	if err != nil {
		return nil, err
	}
	issues, err := e.store.ListIssues(ctx, issueFilterAll(total))
	if err != nil {
		return nil, err
	}

	var archived []string
	for _, issue := range issues {
		if e.registry.GetCategory(issue.Type, string(issue.Status)) != types.CategoryDone {
			continue
		}
		if issue.ClosedAt == nil || !issue.ClosedAt.Before(cutoff) {
			continue
		}
		oldStatus := issue.Status
		issue.Status = "archived"
		issue.UpdatedAt = e.now()
		if err := e.store.UpdateIssue(ctx, issue); err != nil {
			return archived, err
		}
		if _, err := e.store.AppendEvent(ctx, types.Event{
			IssueID: issue.ID, Type: types.EventArchived, OldValue: string(oldStatus), NewValue: "archived", CreatedAt: e.now(),
		}); err != nil {
			return archived, err
		}
		archived = append(archived, issue.ID)
	}
	return archived, nil
}

// CompactEvents is compact_events: for archived issues only, deletes
// events beyond the most recent keepRecent per issue.
func (e *Engine) CompactEvents(ctx context.Context, keepRecent int) (int64, error) {
	total, err := e.store.TotalIssues(ctx)
	if err != nil {
		return 0, err
	}
	issues, err := e.store.ListIssues(ctx, issueFilterAll(total))
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, issue := range issues {
		if issue.Status != "archived" {
			continue
		}
		history, err := e.store.GetIssueEvents(ctx, issue.ID)
		if err != nil {
			return removed, err
		}
		if len(history) <= keepRecent {
			continue
		}
		cutoffEvent := history[len(history)-keepRecent-1]
		n, err := e.store.DeleteIssueEventsBefore(ctx, issue.ID, cutoffEvent.ID)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// Vacuum is vacuum().
func (e *Engine) Vacuum(ctx context.Context) error { return e.store.Vacuum(ctx) }

// Analyze is analyze().
func (e *Engine) Analyze(ctx context.Context) error { return e.store.Analyze(ctx) }
