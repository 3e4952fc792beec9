package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

// RenderSummaryTo renders the compact markdown context document and
// publishes it to path via temp-file-plus-rename, so a concurrent
// reader of path never observes a partially-written file.
func (e *Engine) RenderSummaryTo(ctx context.Context, path string) error {
	body, err := e.renderSummary(ctx)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return types.Wrap(types.CodeUnknown, err, "create summary temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.WriteString(body); err != nil {
		return types.Wrap(types.CodeUnknown, err, "write summary temp file")
	}
	if err := tmp.Close(); err != nil {
		return types.Wrap(types.CodeUnknown, err, "close summary temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return types.Wrap(types.CodeUnknown, err, "publish summary")
	}
	return nil
}

const (
	summaryReadyLimit   = 15
	summaryWIPLimit     = 10
	summaryBlockedLimit = 10
	summaryEventsLimit  = 10
	staleWIPAfter       = 72 * time.Hour
)

func (e *Engine) renderSummary(ctx context.Context) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Project Context\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", e.now().UTC().Format(time.RFC3339))

	if err := e.writeVitals(ctx, &b); err != nil {
		return "", err
	}
	if err := e.writeActivePlans(ctx, &b); err != nil {
		return "", err
	}
	if err := e.writeReady(ctx, &b); err != nil {
		return "", err
	}
	if err := e.writeWIP(ctx, &b); err != nil {
		return "", err
	}
	if err := e.writeBlocked(ctx, &b); err != nil {
		return "", err
	}
	if err := e.writeCriticalPath(ctx, &b); err != nil {
		return "", err
	}
	if err := e.writeRecentEvents(ctx, &b); err != nil {
		return "", err
	}

	return b.String(), nil
}

func (e *Engine) writeVitals(ctx context.Context, b *strings.Builder) error {
	stats, err := e.GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## Vitals\n\n")
	fmt.Fprintf(b, "Total issues: %d\n\n", stats.TotalIssues)
	for _, cat := range []types.Category{types.CategoryOpen, types.CategoryWIP, types.CategoryDone} {
		fmt.Fprintf(b, "- %s: %d\n", cat, stats.ByCategory[cat])
	}
	b.WriteString("\n")
	return nil
}

func (e *Engine) writeActivePlans(ctx context.Context, b *strings.Builder) error {
	total, err := e.store.TotalIssues(ctx)
	if err != nil {
		return err
	}
	milestones, err := e.store.ListIssues(ctx, issueFilterAllOfType(total, "milestone"))
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## Active Plans\n\n")
	if len(milestones) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	for _, m := range milestones {
		if e.registry.GetCategory(m.Type, string(m.Status)) == types.CategoryDone {
			continue
		}
		plan, err := e.GetPlan(ctx, m.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(b, "- %s: %s (%.0f%% complete, %d/%d phases)\n", m.ID, m.Title, plan.ProgressPercent(), plan.Completed, plan.Total)
	}
	b.WriteString("\n")
	return nil
}

func (e *Engine) writeReady(ctx context.Context, b *strings.Builder) error {
	ready, err := e.GetReady(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## Ready (top %d, priority ascending)\n\n", summaryReadyLimit)
	writeIssueList(b, ready, summaryReadyLimit)
	return nil
}

func (e *Engine) writeWIP(ctx context.Context, b *strings.Builder) error {
	total, err := e.store.TotalIssues(ctx)
	if err != nil {
		return err
	}
	issues, err := e.store.ListIssues(ctx, issueFilterAll(total))
	if err != nil {
		return err
	}
	var wip []*types.Issue
	var stale []*types.Issue
	cutoff := e.now().Add(-staleWIPAfter)
	for _, iss := range issues {
		if e.registry.GetCategory(iss.Type, string(iss.Status)) != types.CategoryWIP {
			continue
		}
		wip = append(wip, iss)
		if iss.UpdatedAt.Before(cutoff) {
			stale = append(stale, iss)
		}
	}
	details, err := e.hydrate(ctx, wip)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## In Progress (top %d)\n\n", summaryWIPLimit)
	writeIssueList(b, details, summaryWIPLimit)

	if len(stale) > 0 {
		staleDetails, err := e.hydrate(ctx, stale)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "### Stale (no update in %s+)\n\n", staleWIPAfter)
		writeIssueList(b, staleDetails, len(staleDetails))
	}
	return nil
}

func (e *Engine) writeBlocked(ctx context.Context, b *strings.Builder) error {
	blocked, err := e.GetBlocked(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## Blocked (top %d)\n\n", summaryBlockedLimit)
	writeIssueList(b, blocked, summaryBlockedLimit)
	return nil
}

func (e *Engine) writeCriticalPath(ctx context.Context, b *strings.Builder) error {
	cp, err := e.GetCriticalPath(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## Critical Path\n\n")
	if len(cp.IssueIDs) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	fmt.Fprintf(b, "%s (length %d)\n\n", strings.Join(cp.IssueIDs, " -> "), cp.Length)
	return nil
}

func (e *Engine) writeRecentEvents(ctx context.Context, b *strings.Builder) error {
	events, err := e.store.GetRecentEvents(ctx, summaryEventsLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "## Recent Events (last %d)\n\n", summaryEventsLimit)
	if len(events) == 0 {
		b.WriteString("(none)\n")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(b, "- %s %s %s (%s -> %s)\n", ev.CreatedAt.UTC().Format(time.RFC3339), ev.IssueID, ev.Type, ev.OldValue, ev.NewValue)
	}
	return nil
}

func writeIssueList(b *strings.Builder, details []*IssueDetail, limit int) {
	if len(details) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	shown := details
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, d := range shown {
		fmt.Fprintf(b, "- %s [P%d] %s (%s/%s)\n", d.ID, d.Priority, d.Title, d.Type, d.Status)
	}
	if len(details) > limit {
		fmt.Fprintf(b, "...and %d more\n", len(details)-limit)
	}
	b.WriteString("\n")
}

func issueFilterAllOfType(total int, typeName string) store.IssueFilter {
	f := issueFilterAll(total)
	f.Type = typeName
	return f
}
