package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/filigree-dev/keel/internal/idgen"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

// batchConcurrency bounds how many ids a batch operation processes at
// once. The store itself serializes writes (single connection, one
// write lock), so this mainly overlaps each id's validation and
// read-back work rather than its commit.
const batchConcurrency = 4

// CreateIssueInput is the argument bag for create_issue.
type CreateIssueInput struct {
	Title       string
	Type        string
	Priority    *int // nil defaults to 2
	Parent      string
	Assignee    string
	Description string
	Notes       string
	Labels      []string
	Deps        []string // ids this issue depends on, link type "blocks"
	Fields      types.Fields
	Actor       string
}

// CreateIssue is create_issue: generates an id, resolves the type's
// initial state, validates required-at-initial fields under hard
// enforcement, and writes the issue, its labels, dependency edges, and
// a created event atomically.
func (e *Engine) CreateIssue(ctx context.Context, in CreateIssueInput) (*IssueDetail, error) {
	title := strings.TrimSpace(in.Title)
	if err := types.ValidateTitle(title); err != nil {
		return nil, err
	}
	priority := 2
	if in.Priority != nil {
		priority = *in.Priority
	}
	if err := types.ValidatePriority(priority); err != nil {
		return nil, err
	}
	if in.Parent != "" {
		if _, err := e.store.GetIssue(ctx, in.Parent); err != nil {
			return nil, types.Invalid("parent %q does not resolve", in.Parent)
		}
	}
	typeName := in.Type
	if typeName == "" {
		typeName = "task"
	}
	initial := e.registry.GetInitialState(typeName)

	if tmpl, ok := e.registry.GetType(typeName); ok {
		for _, name := range tmpl.RequiredAt(initial) {
			v, present := in.Fields[name]
			if !present || v.IsEmpty() {
				return nil, types.InvalidTransition(nil, []string{name},
					"field %q is required for %s issues entering state %q", name, typeName, initial)
			}
		}
	}

	id, err := idgen.Generate(e.config.Prefix, e.exists(ctx))
	if err != nil {
		return nil, types.Wrap(types.CodeUnknown, err, "generate issue id")
	}

	now := e.now()
	issue := &types.Issue{
		ID: id, Title: title, Status: types.Status(initial), Priority: priority, Type: typeName,
		Parent: in.Parent, Assignee: in.Assignee,
		CreatedAt: now, UpdatedAt: now,
		Description: in.Description, Notes: in.Notes, Fields: in.Fields,
	}

	if err := e.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	for _, name := range in.Labels {
		if err := types.ValidateLabelName(name); err != nil {
			return nil, err
		}
		if err := e.store.AddLabel(ctx, types.Label{IssueID: id, Name: name}); err != nil {
			return nil, err
		}
	}
	for _, depID := range in.Deps {
		if err := e.AddDependency(ctx, id, depID, types.DefaultLinkType); err != nil {
			return nil, err
		}
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{
		IssueID: id, Type: types.EventCreated, Actor: in.Actor,
		NewValue: string(issue.Status), CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	return e.GetIssue(ctx, id)
}

// GetIssue is get_issue.
func (e *Engine) GetIssue(ctx context.Context, id string) (*IssueDetail, error) {
	issue, err := e.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	details, err := e.hydrate(ctx, []*types.Issue{issue})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

// UpdateIssueInput carries the partial fields update_issue may change;
// a nil pointer/empty-value field means "leave unchanged" except for
// Fields, which merges shallowly per types.MergeFields.
type UpdateIssueInput struct {
	Title              *string
	Status             *string
	Priority           *int
	Assignee           *string
	Parent             *string
	Description        *string
	Notes              *string
	Fields             types.Fields
	SkipTransitionCheck bool
	Actor              string
}

// UpdateIssue is update_issue.
func (e *Engine) UpdateIssue(ctx context.Context, id string, in UpdateIssueInput) (*IssueDetail, error) {
	issue, err := e.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var events []types.Event

	if in.Title != nil && *in.Title != string(issue.Title) {
		if err := types.ValidateTitle(*in.Title); err != nil {
			return nil, err
		}
		events = append(events, types.Event{IssueID: id, Type: types.EventTitleChanged, Actor: in.Actor, OldValue: issue.Title, NewValue: *in.Title, CreatedAt: now})
		issue.Title = *in.Title
	}

	if in.Priority != nil && *in.Priority != issue.Priority {
		if err := types.ValidatePriority(*in.Priority); err != nil {
			return nil, err
		}
		events = append(events, types.Event{IssueID: id, Type: types.EventPriorityChanged, Actor: in.Actor, OldValue: strconv.Itoa(issue.Priority), NewValue: strconv.Itoa(*in.Priority), CreatedAt: now})
		issue.Priority = *in.Priority
	}

	if in.Assignee != nil && *in.Assignee != issue.Assignee {
		events = append(events, types.Event{IssueID: id, Type: types.EventAssigneeChanged, Actor: in.Actor, OldValue: issue.Assignee, NewValue: *in.Assignee, CreatedAt: now})
		issue.Assignee = *in.Assignee
	}

	if in.Parent != nil && *in.Parent != issue.Parent {
		if *in.Parent == issue.ID {
			return nil, types.Invalid("issue cannot be its own parent")
		}
		if *in.Parent != "" {
			if err := e.checkParentCycle(ctx, issue.ID, *in.Parent); err != nil {
				return nil, err
			}
			if _, err := e.store.GetIssue(ctx, *in.Parent); err != nil {
				return nil, types.Invalid("parent %q does not resolve", *in.Parent)
			}
		}
		events = append(events, types.Event{IssueID: id, Type: types.EventParentChanged, Actor: in.Actor, OldValue: issue.Parent, NewValue: *in.Parent, CreatedAt: now})
		issue.Parent = *in.Parent
	}

	if in.Description != nil {
		issue.Description = *in.Description // not journalled
	}
	if in.Notes != nil {
		issue.Notes = *in.Notes // not journalled
	}

	if len(in.Fields) > 0 {
		merged := types.MergeFields(issue.Fields, in.Fields)
		events = append(events, types.Event{IssueID: id, Type: types.EventFieldsChanged, Actor: in.Actor, CreatedAt: now})
		issue.Fields = merged
	}

	if in.Status != nil && *in.Status != string(issue.Status) {
		from := string(issue.Status)
		to := *in.Status
		if !in.SkipTransitionCheck {
			res := e.registry.ValidateTransition(issue.Type, from, to, issue.Fields)
			if !res.Allowed {
				valid := e.registry.GetValidTransitions(issue.Type, from, issue.Fields)
				return nil, types.InvalidTransition(valid, res.MissingFields,
					"transition %s->%s is not allowed for type %q", from, to, issue.Type)
			}
			if len(res.Warnings) > 0 {
				events = append(events, types.Event{IssueID: id, Type: types.EventTransitionWarning, Actor: in.Actor,
					OldValue: from, NewValue: to, Comment: strings.Join(res.Warnings, "; "), CreatedAt: now})
			}
		}
		events = append(events, types.Event{IssueID: id, Type: types.EventStatusChanged, Actor: in.Actor, OldValue: from, NewValue: to, CreatedAt: now})
		issue.Status = types.Status(to)
	}

	issue.UpdatedAt = now
	if err := e.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if _, err := e.store.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
	}
	return e.GetIssue(ctx, id)
}

// checkParentCycle walks newParent's ancestor chain and rejects it if
// it reaches issueID.
func (e *Engine) checkParentCycle(ctx context.Context, issueID, newParent string) error {
	current := newParent
	seen := map[string]bool{}
	for current != "" {
		if current == issueID {
			return types.Conflict("reparenting %q under %q would create a cycle", issueID, newParent)
		}
		if seen[current] {
			return types.Integrity("parent chain for %q contains a pre-existing cycle", newParent)
		}
		seen[current] = true
		parent, err := e.store.GetIssue(ctx, current)
		if err != nil {
			return nil
		}
		current = parent.Parent
	}
	return nil
}

// CloseIssue is close_issue.
func (e *Engine) CloseIssue(ctx context.Context, id, reason, actor string) (*IssueDetail, []*IssueDetail, error) {
	issue, err := e.store.GetIssue(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if e.registry.GetCategory(issue.Type, string(issue.Status)) == types.CategoryDone {
		return nil, nil, types.Conflict("issue %q is already closed", id)
	}

	before, err := e.readyBeforeSet(ctx)
	if err != nil {
		return nil, nil, err
	}

	doneStates := e.registry.StatusesForCategory(issue.Type, types.CategoryDone)
	newStatus := string(types.StatusClosed)
	if len(doneStates) > 0 {
		newStatus = doneStates[0]
	}

	now := e.now()
	oldStatus := issue.Status
	issue.Status = types.Status(newStatus)
	issue.ClosedAt = &now
	issue.UpdatedAt = now
	if err := e.store.UpdateIssue(ctx, issue); err != nil {
		return nil, nil, err
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{
		IssueID: id, Type: types.EventStatusChanged, Actor: actor,
		OldValue: string(oldStatus), NewValue: newStatus, CreatedAt: now,
	}); err != nil {
		return nil, nil, err
	}
	if reason != "" {
		if _, err := e.store.AddComment(ctx, types.Comment{IssueID: id, Author: actor, Text: "closed: " + reason, CreatedAt: now}); err != nil {
			return nil, nil, err
		}
	}

	after, err := e.readyBeforeSet(ctx)
	if err != nil {
		return nil, nil, err
	}
	var newlyUnblocked []*types.Issue
	for rid := range after {
		if !before[rid] {
			iss, err := e.store.GetIssue(ctx, rid)
			if err != nil {
				continue
			}
			newlyUnblocked = append(newlyUnblocked, iss)
		}
	}

	detail, err := e.GetIssue(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	unblockedDetails, err := e.hydrate(ctx, newlyUnblocked)
	if err != nil {
		return nil, nil, err
	}
	return detail, unblockedDetails, nil
}

// readyBeforeSet returns the id set of every currently-ready issue, for
// close_issue's before/after diff.
func (e *Engine) readyBeforeSet(ctx context.Context) (map[string]bool, error) {
	ready, err := e.GetReady(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ready))
	for _, d := range ready {
		out[d.ID] = true
	}
	return out, nil
}

// ReopenIssue is reopen_issue: restores the type's initial state and
// clears closed_at.
func (e *Engine) ReopenIssue(ctx context.Context, id, actor string) (*IssueDetail, error) {
	issue, err := e.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	initial := e.registry.GetInitialState(issue.Type)
	oldStatus := issue.Status
	now := e.now()
	issue.Status = types.Status(initial)
	issue.ClosedAt = nil
	issue.UpdatedAt = now
	if err := e.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{
		IssueID: id, Type: types.EventStatusChanged, Actor: actor,
		OldValue: string(oldStatus), NewValue: initial, CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	return e.GetIssue(ctx, id)
}

// ClaimIssue is claim_issue: an optimistic single-assignee lock.
func (e *Engine) ClaimIssue(ctx context.Context, id, assignee, actor string) (*IssueDetail, error) {
	ok, err := e.store.ClaimIssue(ctx, id, assignee, formatRFC3339(e.now()))
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := e.store.GetIssue(ctx, id); err != nil {
			return nil, err
		}
		return nil, types.Conflict("issue %q is already claimed", id)
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{IssueID: id, Type: types.EventClaimed, Actor: actor, NewValue: assignee, CreatedAt: e.now()}); err != nil {
		return nil, err
	}
	return e.GetIssue(ctx, id)
}

// ReleaseClaim is release_claim.
func (e *Engine) ReleaseClaim(ctx context.Context, id, actor string) (*IssueDetail, error) {
	ok, err := e.store.ReleaseClaim(ctx, id, formatRFC3339(e.now()))
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := e.store.GetIssue(ctx, id); err != nil {
			return nil, err
		}
		return nil, types.Conflict("issue %q is not currently claimed", id)
	}
	if _, err := e.store.AppendEvent(ctx, types.Event{IssueID: id, Type: types.EventReleased, Actor: actor, CreatedAt: e.now()}); err != nil {
		return nil, err
	}
	return e.GetIssue(ctx, id)
}

// ClaimNextFilter narrows claim_next's candidate selection.
type ClaimNextFilter struct {
	Type        string
	PriorityMin *int
	PriorityMax *int
}

// ClaimNext is claim_next: picks the highest-priority ready issue
// matching filters and claims it. Returns (nil, nil) — the "empty"
// sentinel — if nothing qualifies.
func (e *Engine) ClaimNext(ctx context.Context, assignee, actor string, f ClaimNextFilter) (*IssueDetail, error) {
	ready, err := e.GetReady(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range ready {
		if f.Type != "" && d.Type != f.Type {
			continue
		}
		if f.PriorityMin != nil && d.Priority < *f.PriorityMin {
			continue
		}
		if f.PriorityMax != nil && d.Priority > *f.PriorityMax {
			continue
		}
		claimed, err := e.ClaimIssue(ctx, d.ID, assignee, actor)
		if err == nil {
			return claimed, nil
		}
		if types.CodeOf(err) != types.CodeConflict {
			return nil, err
		}
		// Lost the race for this one; try the next-highest-priority candidate.
	}
	return nil, nil
}

// ListIssues is list_issues.
func (e *Engine) ListIssues(ctx context.Context, f store.IssueFilter) ([]*IssueDetail, error) {
	issues, err := e.store.ListIssues(ctx, f)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, issues)
}

// SearchIssues is search_issues.
func (e *Engine) SearchIssues(ctx context.Context, query string, limit int) ([]*IssueDetail, error) {
	issues, err := e.store.SearchIssues(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, issues)
}

// BatchResult is the per-item outcome batch_close/batch_update report.
// Neither operation is transactional across items: a failure on one id
// never rolls back or blocks the rest.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]string // id -> error message
}

// batchAccumulator collects concurrent BatchClose/BatchUpdate outcomes
// behind a mutex; batchResult() copies it out into the plain value the
// engine methods return.
type batchAccumulator struct {
	mu        sync.Mutex
	succeeded []string
	failed    map[string]string
}

func newBatchAccumulator() *batchAccumulator {
	return &batchAccumulator{failed: map[string]string{}}
}

func (a *batchAccumulator) ok(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded = append(a.succeeded, id)
}

func (a *batchAccumulator) fail(id string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed[id] = err.Error()
}

func (a *batchAccumulator) result() BatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return BatchResult{Succeeded: a.succeeded, Failed: a.failed}
}

// BatchClose is batch_close. ids are closed concurrently, bounded by
// batchConcurrency; one id's failure never cancels the others.
func (e *Engine) BatchClose(ctx context.Context, ids []string, reason, actor string) BatchResult {
	acc := newBatchAccumulator()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, _, err := e.CloseIssue(gctx, id, reason, actor); err != nil {
				acc.fail(id, err)
				return nil
			}
			acc.ok(id)
			return nil
		})
	}
	_ = g.Wait()
	return acc.result()
}

// BatchUpdate is batch_update: applies the same partial update to every
// id concurrently, bounded by batchConcurrency.
func (e *Engine) BatchUpdate(ctx context.Context, ids []string, in UpdateIssueInput) BatchResult {
	acc := newBatchAccumulator()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := e.UpdateIssue(gctx, id, in); err != nil {
				acc.fail(id, err)
				return nil
			}
			acc.ok(id)
			return nil
		})
	}
	_ = g.Wait()
	return acc.result()
}

