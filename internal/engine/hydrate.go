package engine

import (
	"context"

	"github.com/filigree-dev/keel/internal/types"
)

// IssueDetail is the hydrated view list_issues/search_issues/get_issue
// return: the issue plus its labels, dependency edges (with the other
// end's title), and children, assembled from batched queries rather
// than per-issue follow-ups.
type IssueDetail struct {
	*types.Issue
	Labels       []string
	Dependencies []types.Dependency // this issue depends on (blocked by)
	Dependents   []types.Dependency // issues that depend on this one
	Children     []*types.Issue
}

// openCategoryStatuses is the union, across every registered type, of
// status names that map to category "open". Classifying a blocker's
// status this way (rather than per-(type,status) pair) is a documented
// simplification: it assumes state names carry consistent category
// meaning across types, true of the shipped packs.
func (e *Engine) openCategoryStatuses() []string {
	seen := map[string]bool{}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(e.registry.StatusesForCategory("", types.CategoryOpen))
	for _, t := range e.registry.ListTypes() {
		add(e.registry.StatusesForCategory(t.Type, types.CategoryOpen))
	}
	return out
}

// hydrate batch-loads labels, dependencies, children, and open-blocker
// counts for issues and assembles IssueDetail records plus IsReady.
func (e *Engine) hydrate(ctx context.Context, issues []*types.Issue) ([]*IssueDetail, error) {
	if len(issues) == 0 {
		return nil, nil
	}
	ids := make([]string, len(issues))
	for i, iss := range issues {
		ids[i] = iss.ID
	}

	labels, err := e.store.LabelsBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	outgoing, incoming, err := e.store.DependenciesBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	children, err := e.store.ListChildren(ctx, ids)
	if err != nil {
		return nil, err
	}
	openStatuses := e.openCategoryStatuses()
	blockerCounts, err := e.store.OpenBlockerCounts(ctx, ids, openStatuses)
	if err != nil {
		return nil, err
	}

	// Titles for the other end of each edge: collect every referenced
	// id across both directions and fetch them in one more batch.
	titleIDs := map[string]bool{}
	for _, edges := range outgoing {
		for _, ed := range edges {
			titleIDs[ed.DependsOnID] = true
		}
	}
	for _, edges := range incoming {
		for _, ed := range edges {
			titleIDs[ed.IssueID] = true
		}
	}
	titles, err := e.titlesFor(ctx, titleIDs)
	if err != nil {
		return nil, err
	}

	out := make([]*IssueDetail, len(issues))
	for i, iss := range issues {
		category := e.registry.GetCategory(iss.Type, string(iss.Status))
		iss.IsReady = category == types.CategoryOpen && blockerCounts[iss.ID] == 0

		var deps, dependents []types.Dependency
		for _, ed := range outgoing[iss.ID] {
			deps = append(deps, types.Dependency{From: ed.IssueID, To: ed.DependsOnID, Type: ed.LinkType, ToTitle: titles[ed.DependsOnID]})
		}
		for _, ed := range incoming[iss.ID] {
			dependents = append(dependents, types.Dependency{From: ed.IssueID, To: ed.DependsOnID, Type: ed.LinkType, FromTitle: titles[ed.IssueID]})
		}

		out[i] = &IssueDetail{
			Issue:        iss,
			Labels:       labels[iss.ID],
			Dependencies: deps,
			Dependents:   dependents,
			Children:     children[iss.ID],
		}
	}
	return out, nil
}

func (e *Engine) titlesFor(ctx context.Context, ids map[string]bool) (map[string]string, error) {
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	issues, err := e.store.IssuesByIDs(ctx, list)
	if err != nil {
		return nil, err
	}
	for id, iss := range issues {
		out[id] = iss.Title
	}
	return out, nil
}
