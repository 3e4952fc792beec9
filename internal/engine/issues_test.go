package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"github.com/filigree-dev/keel/internal/engine"
	"github.com/filigree-dev/keel/internal/types"
)

// TestClaimIssueIsOptimisticSingleWinner fires concurrent claims at the
// same issue and asserts the conditional UPDATE lets exactly one
// assignee through.
func TestClaimIssueIsOptimisticSingleWinner(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	d := mustCreate(t, e, engine.CreateIssueInput{Title: "contested"})

	const contenders = 8
	wins := make([]bool, contenders)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < contenders; i++ {
		i := i
		g.Go(func() error {
			_, err := e.ClaimIssue(gctx, d.ID, fmt.Sprintf("agent-%d", i), "tester")
			wins[i] = err == nil
			return nil
		})
	}
	assert.NoError(t, g.Wait())

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "expected exactly one claimant to win the race")

	final, err := e.GetIssue(ctx, d.ID)
	assert.NoError(t, err)
	assert.NotEmpty(t, final.Assignee)
}

// TestCloseIssueUnblocksDependent verifies closing a blocker surfaces
// its dependent in the unblocked set once every other blocker is also
// closed.
func TestCloseIssueUnblocksDependent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	blocker := mustCreate(t, e, engine.CreateIssueInput{Title: "blocker"})
	dependent := mustCreate(t, e, engine.CreateIssueInput{
		Title: "dependent",
		Deps:  []string{blocker.ID},
	})
	assert.False(t, dependent.IsReady, "dependent should start blocked")

	_, unblocked, err := e.CloseIssue(ctx, blocker.ID, "done", "tester")
	assert.NoError(t, err)

	var ids []string
	for _, u := range unblocked {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, dependent.ID)

	refreshed, err := e.GetIssue(ctx, dependent.ID)
	assert.NoError(t, err)
	assert.True(t, refreshed.IsReady)
}

// TestAddDependencyRejectsCycle exercises the BFS guard: once A depends
// on B, adding B -> A must fail rather than silently completing a loop.
func TestAddDependencyRejectsCycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, engine.CreateIssueInput{Title: "a"})
	b := mustCreate(t, e, engine.CreateIssueInput{Title: "b"})

	assert.NoError(t, e.AddDependency(ctx, a.ID, b.ID, "blocks"))

	err := e.AddDependency(ctx, b.ID, a.ID, "blocks")
	assert.Error(t, err)
	assert.Equal(t, types.CodeConflict, types.CodeOf(err))
}

// TestUndoLastRestoresPriorValue confirms undo applies the inverse of
// the last reversible event and retracts it so it can't be undone twice.
func TestUndoLastRestoresPriorValue(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	d := mustCreate(t, e, engine.CreateIssueInput{Title: "original title"})

	newTitle := "renamed title"
	_, err := e.UpdateIssue(ctx, d.ID, engine.UpdateIssueInput{Title: &newTitle, Actor: "tester"})
	assert.NoError(t, err)

	res, err := e.UndoLast(ctx, d.ID)
	assert.NoError(t, err)
	assert.True(t, res.Undone)
	assert.Equal(t, types.EventTitleChanged, res.EventType)

	reverted, err := e.GetIssue(ctx, d.ID)
	assert.NoError(t, err)
	assert.Equal(t, "original title", reverted.Title)

	again, err := e.UndoLast(ctx, d.ID)
	assert.NoError(t, err)
	assert.False(t, again.Undone, "the create event is not reversible, so a second undo finds nothing")
}

// TestBatchCloseReportsPerItemFailures checks that one bad id in a
// batch neither blocks nor rolls back the others.
func TestBatchCloseReportsPerItemFailures(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	ok := mustCreate(t, e, engine.CreateIssueInput{Title: "closeable"})

	res := e.BatchClose(ctx, []string{ok.ID, "does-not-exist"}, "cleanup", "tester")
	assert.Contains(t, res.Succeeded, ok.ID)
	assert.Contains(t, res.Failed, "does-not-exist")
}
