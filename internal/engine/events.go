package engine

import (
	"context"
	"strconv"

	"github.com/filigree-dev/keel/internal/types"
)

// GetRecentEvents is get_recent_events.
func (e *Engine) GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	return e.store.GetRecentEvents(ctx, limit)
}

// GetEventsSince is get_events_since.
func (e *Engine) GetEventsSince(ctx context.Context, afterID int64, limit int) ([]*types.Event, error) {
	return e.store.GetEventsSince(ctx, afterID, limit)
}

// GetIssueEvents is get_issue_events.
func (e *Engine) GetIssueEvents(ctx context.Context, issueID string) ([]*types.Event, error) {
	return e.store.GetIssueEvents(ctx, issueID)
}

// UndoResult is undo_last's return shape.
type UndoResult struct {
	Undone    bool
	EventType types.EventType
	OldValue  string
}

// UndoLast is undo_last: finds the issue's most recent reversible
// event, restores the field it changed, and retracts the original
// event so it cannot be undone twice. The retraction is recorded as a
// non-reversible "undone" marker rather than a new event of the same
// reversible type, so a second UndoLast call can't pick its own output
// back up and toggle the field forever. Non-reversible history
// (created, archived, labels, dependencies, fields_changed) is
// skipped; if nothing reversible remains, Undone is false.
func (e *Engine) UndoLast(ctx context.Context, issueID string) (UndoResult, error) {
	issue, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		return UndoResult{}, err
	}

	history, err := e.store.GetIssueEvents(ctx, issueID)
	if err != nil {
		return UndoResult{}, err
	}

	var target *types.Event
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type.IsReversible() {
			target = history[i]
			break
		}
	}
	if target == nil {
		return UndoResult{Undone: false}, nil
	}

	now := e.now()
	switch target.Type {
	case types.EventTitleChanged:
		issue.Title = target.OldValue
	case types.EventPriorityChanged:
		p, convErr := strconv.Atoi(target.OldValue)
		if convErr != nil {
			return UndoResult{}, types.Wrap(types.CodeIntegrity, convErr, "parse prior priority for undo")
		}
		issue.Priority = p
	case types.EventAssigneeChanged:
		issue.Assignee = target.OldValue
	case types.EventParentChanged:
		issue.Parent = target.OldValue
	case types.EventStatusChanged:
		issue.Status = types.Status(target.OldValue)
	}
	issue.UpdatedAt = now

	if err := e.store.UpdateIssue(ctx, issue); err != nil {
		return UndoResult{}, err
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{
		IssueID: issueID, Type: types.EventUndone, Actor: target.Actor,
		OldValue: target.NewValue, NewValue: target.OldValue, CreatedAt: now,
	}); err != nil {
		return UndoResult{}, err
	}
	if err := e.store.DeleteEvent(ctx, target.ID); err != nil {
		return UndoResult{}, err
	}

	return UndoResult{Undone: true, EventType: target.Type, OldValue: target.OldValue}, nil
}
