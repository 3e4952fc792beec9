package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filigree-dev/keel/internal/engine"
)

// TestCreatePlanBuildsThreeLevelTree checks the milestone/phase/step
// shape and the blocks edges create_plan is responsible for: a linear
// chain across phases and the intra-phase edges a StepSpec.Deps index
// describes.
func TestCreatePlanBuildsThreeLevelTree(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	node, err := e.CreatePlan(ctx, engine.CreatePlanInput{
		MilestoneTitle: "ship it",
		Actor:          "tester",
		Phases: []engine.PhaseSpec{
			{
				Title: "phase one",
				Steps: []engine.StepSpec{
					{Title: "step a"},
					{Title: "step b", Deps: []int{0}},
				},
			},
			{Title: "phase two"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "milestone", node.Issue.Type)
	assert.Len(t, node.Children, 2)
	assert.Equal(t, "phase", node.Children[0].Issue.Type)
	assert.Len(t, node.Children[0].Children, 2)

	phaseTwo, err := e.GetIssue(ctx, node.Children[1].Issue.ID)
	assert.NoError(t, err)
	var depIDs []string
	for _, d := range phaseTwo.Dependencies {
		depIDs = append(depIDs, d.To)
	}
	assert.Contains(t, depIDs, node.Children[0].Issue.ID, "phase two should block on phase one")

	stepB, err := e.GetIssue(ctx, node.Children[0].Children[1].Issue.ID)
	assert.NoError(t, err)
	assert.Len(t, stepB.Dependencies, 1)
	assert.Equal(t, node.Children[0].Children[0].Issue.ID, stepB.Dependencies[0].To)
}

// TestCreatePlanRejectsCycleWithoutPartialWrites confirms a cyclic
// step dependency fails before anything commits: the milestone itself
// must not exist afterward.
func TestCreatePlanRejectsCycleWithoutPartialWrites(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreatePlan(ctx, engine.CreatePlanInput{
		MilestoneTitle: "doomed",
		Actor:          "tester",
		Phases: []engine.PhaseSpec{
			{
				Title: "phase one",
				Steps: []engine.StepSpec{
					{Title: "step a", Deps: []int{1}},
					{Title: "step b", Deps: []int{0}},
				},
			},
		},
	})
	assert.Error(t, err)

	stats, err := e.GetStats(ctx)
	assert.NoError(t, err)
	assert.Zero(t, stats.TotalIssues, "no issue from the rejected plan should have been created")
}
