package engine

import (
	"context"
	"strings"

	"github.com/filigree-dev/keel/internal/types"
)

// AddComment is add_comment.
func (e *Engine) AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.Invalid("comment text must not be empty")
	}
	if _, err := e.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	c := types.Comment{IssueID: issueID, Author: author, Text: text, CreatedAt: e.now()}
	id, err := e.store.AddComment(ctx, c)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{IssueID: issueID, Type: types.EventCommentAdded, Actor: author, CreatedAt: c.CreatedAt}); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

// GetComments is get_comments.
func (e *Engine) GetComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	return e.store.GetComments(ctx, issueID)
}

// AddLabel is add_label: idempotent, records a label_added event.
func (e *Engine) AddLabel(ctx context.Context, issueID, name, actor string) error {
	if err := types.ValidateLabelName(name); err != nil {
		return err
	}
	if _, err := e.store.GetIssue(ctx, issueID); err != nil {
		return err
	}
	if err := e.store.AddLabel(ctx, types.Label{IssueID: issueID, Name: name}); err != nil {
		return err
	}
	_, err := e.store.AppendEvent(ctx, types.Event{IssueID: issueID, Type: types.EventLabelAdded, Actor: actor, NewValue: name, CreatedAt: e.now()})
	return err
}

// RemoveLabel is remove_label: idempotent, records a label_removed event.
func (e *Engine) RemoveLabel(ctx context.Context, issueID, name, actor string) error {
	if err := e.store.RemoveLabel(ctx, types.Label{IssueID: issueID, Name: name}); err != nil {
		return err
	}
	_, err := e.store.AppendEvent(ctx, types.Event{IssueID: issueID, Type: types.EventLabelRemoved, Actor: actor, OldValue: name, CreatedAt: e.now()})
	return err
}
