package engine

import (
	"context"
	"sort"

	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

// AddDependency is add_dependency: rejects a self-edge, walks the
// to-side of the graph under the same link type to detect a would-be
// cycle, and only then inserts — all against the graph loaded at call
// time, so the BFS and the insert observe the same snapshot within the
// engine's single write path.
func (e *Engine) AddDependency(ctx context.Context, from, to, linkType string) error {
	if from == to {
		return types.Invalid("dependency cannot reference itself")
	}
	linkType = types.NormalizeLinkType(linkType)

	if _, err := e.store.GetIssue(ctx, from); err != nil {
		return err
	}
	if _, err := e.store.GetIssue(ctx, to); err != nil {
		return err
	}

	edges, err := e.store.OutgoingEdges(ctx, linkType)
	if err != nil {
		return err
	}
	if reaches(edges, to, from) {
		return types.Conflict("adding %s -> %s (%s) would create a cycle", from, to, linkType)
	}

	if err := e.store.AddDependency(ctx, types.Dependency{From: from, To: to, Type: linkType}); err != nil {
		return err
	}
	_, err = e.store.AppendEvent(ctx, types.Event{IssueID: from, Type: types.EventDependencyAdded, NewValue: to, CreatedAt: e.now()})
	return err
}

// reaches reports whether a breadth-first walk from start following
// edges reaches target.
func reaches(edges map[string][]string, start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range edges[cur] {
			if next == target {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// RemoveDependency is remove_dependency: idempotent delete.
func (e *Engine) RemoveDependency(ctx context.Context, from, to, linkType string) error {
	linkType = types.NormalizeLinkType(linkType)
	if err := e.store.RemoveDependency(ctx, types.Dependency{From: from, To: to, Type: linkType}); err != nil {
		if types.CodeOf(err) == types.CodeNotFound {
			return nil
		}
		return err
	}
	_, err := e.store.AppendEvent(ctx, types.Event{IssueID: from, Type: types.EventDependencyRemoved, OldValue: to, CreatedAt: e.now()})
	return err
}

// GetAllDependencies is get_all_dependencies: every outgoing and
// incoming edge for id, with the other end's title attached.
func (e *Engine) GetAllDependencies(ctx context.Context, id string) (outgoing, incoming []types.Dependency, err error) {
	detail, err := e.GetIssue(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return detail.Dependencies, detail.Dependents, nil
}

// readyCandidates loads every issue whose type+status maps to category
// open, across every registered type plus the untemplated fallback.
func (e *Engine) readyCandidates(ctx context.Context) ([]*types.Issue, error) {
	var clauses []store.CategoryClause
	for _, t := range e.registry.ListTypes() {
		statuses := e.registry.StatusesForCategory(t.Type, types.CategoryOpen)
		if len(statuses) > 0 {
			clauses = append(clauses, store.CategoryClause{Type: t.Type, Statuses: statuses})
		}
	}
	clauses = append(clauses, store.CategoryClause{
		IsOther:  true,
		Statuses: e.registry.StatusesForCategory("", types.CategoryOpen),
	})
	return e.store.ListIssuesMatchingAny(ctx, clauses, e.registry.TemplatedTypeNames())
}

// GetReady is get_ready: category-open issues with zero open blockers,
// sorted (priority asc, created_at asc).
func (e *Engine) GetReady(ctx context.Context) ([]*IssueDetail, error) {
	candidates, err := e.readyCandidates(ctx)
	if err != nil {
		return nil, err
	}
	details, err := e.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}
	var out []*IssueDetail
	for _, d := range details {
		if d.IsReady {
			out = append(out, d)
		}
	}
	sortByPriorityThenCreated(out)
	return out, nil
}

// GetBlocked is get_blocked: category-open issues with >=1 open blocker.
func (e *Engine) GetBlocked(ctx context.Context) ([]*IssueDetail, error) {
	candidates, err := e.readyCandidates(ctx)
	if err != nil {
		return nil, err
	}
	details, err := e.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}
	var out []*IssueDetail
	for _, d := range details {
		if !d.IsReady {
			out = append(out, d)
		}
	}
	sortByPriorityThenCreated(out)
	return out, nil
}

func sortByPriorityThenCreated(details []*IssueDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].Priority != details[j].Priority {
			return details[i].Priority < details[j].Priority
		}
		return details[i].CreatedAt.Before(details[j].CreatedAt)
	})
}

// CriticalPath is the result of get_critical_path.
type CriticalPath struct {
	IssueIDs []string
	Length   int
}

// GetCriticalPath is get_critical_path: a longest-path (by node count)
// topological walk of the category-open subgraph over "blocks" edges.
// Advisory only; returns an empty path if the subgraph is cyclic (which
// should not occur given add_dependency's invariant) or empty.
func (e *Engine) GetCriticalPath(ctx context.Context) (CriticalPath, error) {
	candidates, err := e.readyCandidates(ctx)
	if err != nil {
		return CriticalPath{}, err
	}
	if len(candidates) == 0 {
		return CriticalPath{}, nil
	}
	openSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		openSet[c.ID] = true
	}

	edges, err := e.store.OutgoingEdges(ctx, types.DefaultLinkType)
	if err != nil {
		return CriticalPath{}, err
	}
	// Restrict edges to the open subgraph in both directions.
	subEdges := map[string][]string{}
	indegree := map[string]int{}
	for id := range openSet {
		indegree[id] = 0
	}
	for from, tos := range edges {
		if !openSet[from] {
			continue
		}
		for _, to := range tos {
			if !openSet[to] {
				continue
			}
			subEdges[from] = append(subEdges[from], to)
			indegree[to]++
		}
	}

	// Kahn's algorithm for a topological order; a non-empty remainder
	// after the queue drains indicates a cycle, which should not occur.
	var queue []string
	for id := range openSet {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)
	var order []string
	indegreeWork := make(map[string]int, len(indegree))
	for k, v := range indegree {
		indegreeWork[k] = v
	}
	for len(queue) > 0 {
		sort.Strings(queue)
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, next := range subEdges[cur] {
			indegreeWork[next]--
			if indegreeWork[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(openSet) {
		return CriticalPath{}, nil // cyclic subgraph; should not occur by invariant
	}

	// Longest path by node count via dynamic programming over the
	// topological order of the from->to edges ("from depends on to"), so
	// the path runs from an issue nothing depends on down to its deepest
	// open blocker.
	longest := map[string]int{}
	prev := map[string]string{}
	for _, id := range order {
		longest[id] = 1
	}
	for _, from := range order {
		for _, to := range subEdges[from] {
			if longest[from]+1 > longest[to] {
				longest[to] = longest[from] + 1
				prev[to] = from
			}
		}
	}
	best := order[0]
	for _, id := range order {
		if longest[id] > longest[best] {
			best = id
		}
	}
	var path []string
	for cur := best; cur != ""; cur = prev[cur] {
		path = append([]string{cur}, path...)
		if _, ok := prev[cur]; !ok {
			break
		}
	}
	return CriticalPath{IssueIDs: path, Length: len(path)}, nil
}
