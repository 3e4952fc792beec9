package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/filigree-dev/keel/internal/idgen"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

// PhaseSpec is one phase within create_plan's input: its own issue
// fields plus the steps under it.
type PhaseSpec struct {
	Title       string
	Description string
	Priority    *int
	Steps       []StepSpec
}

// StepSpec is one step within a phase; Deps are integer indices into
// the enclosing phase's Steps slice (0-based), referring to
// previously-created steps within the same phase.
type StepSpec struct {
	Title       string
	Description string
	Priority    *int
	Deps        []int
}

// CreatePlanInput is create_plan's argument bag.
type CreatePlanInput struct {
	MilestoneTitle       string
	MilestoneDescription string
	Phases               []PhaseSpec
	Actor                string
}

// PlanNode is one level of the assembled plan tree get_plan/create_plan
// return, with per-level progress counts.
type PlanNode struct {
	Issue     *IssueDetail
	Children  []*PlanNode
	Completed int
	Total     int
}

// CreatePlan is create_plan: enforces the three-level milestone/phase/
// step shape, sequencing phases with a blocks edge from each phase to
// the prior one, and wiring each step's intra-phase Deps as blocks
// edges. The whole tree is built inside one BulkTxn (the same
// BEGIN IMMEDIATE path import_jsonl uses), so a failure partway
// through — a bad dependency index, a generation error — leaves the
// store exactly as it was rather than a half-created tree.
func (e *Engine) CreatePlan(ctx context.Context, in CreatePlanInput) (*PlanNode, error) {
	title := strings.TrimSpace(in.MilestoneTitle)
	if err := types.ValidateTitle(title); err != nil {
		return nil, err
	}
	for pi, ps := range in.Phases {
		for i, ss := range ps.Steps {
			for _, depIdx := range ss.Deps {
				if depIdx < 0 || depIdx >= len(ps.Steps) || depIdx == i {
					return nil, types.Invalid("phase %d step %d has an out-of-range dependency index %d", pi, i, depIdx)
				}
			}
		}
		if cyclicStepDeps(ps.Steps) {
			return nil, types.Conflict("phase %d's step dependencies contain a cycle", pi)
		}
	}

	now := e.now()
	var milestoneID string
	err := e.store.WithBulkTxn(ctx, func(tx *store.BulkTxn) error {
		id, err := e.generateIDIn(ctx, tx)
		if err != nil {
			return err
		}
		milestoneID = id
		if err := createPlanNodeIn(ctx, tx, id, "milestone", "", in.MilestoneTitle, in.MilestoneDescription, nil, in.Actor, now); err != nil {
			return err
		}

		var prevPhaseID string
		for _, ps := range in.Phases {
			phaseID, err := e.generateIDIn(ctx, tx)
			if err != nil {
				return err
			}
			if err := createPlanNodeIn(ctx, tx, phaseID, "phase", id, ps.Title, ps.Description, ps.Priority, in.Actor, now); err != nil {
				return err
			}
			if prevPhaseID != "" {
				if err := addDependencyIn(ctx, tx, phaseID, prevPhaseID, in.Actor, now); err != nil {
					return err
				}
			}
			prevPhaseID = phaseID

			stepIDs := make([]string, len(ps.Steps))
			for i, ss := range ps.Steps {
				stepID, err := e.generateIDIn(ctx, tx)
				if err != nil {
					return err
				}
				if err := createPlanNodeIn(ctx, tx, stepID, "step", phaseID, ss.Title, ss.Description, ss.Priority, in.Actor, now); err != nil {
					return err
				}
				stepIDs[i] = stepID
			}
			for i, ss := range ps.Steps {
				for _, depIdx := range ss.Deps {
					if err := addDependencyIn(ctx, tx, stepIDs[i], stepIDs[depIdx], in.Actor, now); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The tree is reassembled in sequence-ordered form by GetPlan rather
	// than carried forward from the creation loop above.
	return e.GetPlan(ctx, milestoneID)
}

// generateIDIn mints a collision-free id against tx's own view of the
// database, so two ids within the same plan can never collide even
// though nothing is visible outside the transaction yet.
func (e *Engine) generateIDIn(ctx context.Context, tx *store.BulkTxn) (string, error) {
	id, err := idgen.Generate(e.config.Prefix, func(candidate string) (bool, error) {
		return tx.IssueExists(ctx, candidate)
	})
	if err != nil {
		return "", types.Wrap(types.CodeUnknown, err, "generate issue id")
	}
	return id, nil
}

// createPlanNodeIn inserts one milestone/phase/step issue plus its
// created event within tx. None of the three plan-hierarchy types
// declare required-at-initial fields, so this skips the field gate
// CreateIssue applies to general-purpose issues.
func createPlanNodeIn(ctx context.Context, tx *store.BulkTxn, id, typeName, parent, title, description string, priority *int, actor string, now time.Time) error {
	title = strings.TrimSpace(title)
	if err := types.ValidateTitle(title); err != nil {
		return err
	}
	p := 2
	if priority != nil {
		p = *priority
	}
	if err := types.ValidatePriority(p); err != nil {
		return err
	}
	issue := &types.Issue{
		ID: id, Title: title, Status: types.Status("planned"), Priority: p, Type: typeName,
		Parent: parent, CreatedAt: now, UpdatedAt: now, Description: description,
	}
	if err := tx.CreateIssue(ctx, issue); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, types.Event{
		IssueID: id, Type: types.EventCreated, Actor: actor, NewValue: string(issue.Status), CreatedAt: now,
	})
}

// addDependencyIn inserts one "blocks" edge plus its dependency_added
// event within tx.
func addDependencyIn(ctx context.Context, tx *store.BulkTxn, from, to, actor string, now time.Time) error {
	if err := tx.AddDependency(ctx, types.Dependency{From: from, To: to, Type: types.DefaultLinkType}); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, types.Event{
		IssueID: from, Type: types.EventDependencyAdded, Actor: actor, NewValue: to, CreatedAt: now,
	})
}

// cyclicStepDeps reports whether steps' intra-phase Deps indices
// describe a cycle. Checked before the transaction opens since the
// whole edge set is known up front from the spec alone, with no need
// to round-trip the database to detect it.
func cyclicStepDeps(steps []StepSpec) bool {
	const white, gray, black = 0, 1, 2
	color := make([]int, len(steps))

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		for _, d := range steps[i].Deps {
			if d < 0 || d >= len(steps) || d == i {
				continue // reported separately as an out-of-range index
			}
			if color[d] == gray {
				return true
			}
			if color[d] == white && visit(d) {
				return true
			}
		}
		color[i] = black
		return false
	}

	for i := range steps {
		if color[i] == white && visit(i) {
			return true
		}
	}
	return false
}

func countDone(e *Engine, nodes []*PlanNode) int {
	n := 0
	for _, node := range nodes {
		if e.registry.GetCategory(node.Issue.Type, string(node.Issue.Status)) == types.CategoryDone {
			n++
		}
	}
	return n
}

// GetPlan is get_plan: assembles milestone -> phases -> steps, ordered
// within each level by the integer `sequence` field (default 999) then
// created_at, with per-level completed/total counts.
func (e *Engine) GetPlan(ctx context.Context, milestoneID string) (*PlanNode, error) {
	milestone, err := e.GetIssue(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	phaseIssues := milestone.Children
	sortBySequence(phaseIssues)

	var phaseNodes []*PlanNode
	for _, phaseIssue := range phaseIssues {
		phase, err := e.GetIssue(ctx, phaseIssue.ID)
		if err != nil {
			return nil, err
		}
		stepIssues := phase.Children
		sortBySequence(stepIssues)

		var stepNodes []*PlanNode
		for _, stepIssue := range stepIssues {
			step, err := e.GetIssue(ctx, stepIssue.ID)
			if err != nil {
				return nil, err
			}
			stepNodes = append(stepNodes, &PlanNode{Issue: step, Total: 1})
		}
		phaseNode := &PlanNode{Issue: phase, Children: stepNodes, Total: len(stepNodes), Completed: countDone(e, stepNodes)}
		phaseNodes = append(phaseNodes, phaseNode)
	}

	return &PlanNode{Issue: milestone, Children: phaseNodes, Total: len(phaseNodes), Completed: countDone(e, phaseNodes)}, nil
}

// sortBySequence orders by the "sequence" integer field (default 999)
// then created_at, per get_plan's ordering rule.
func sortBySequence(issues []*types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		si, sj := sequenceOf(issues[i]), sequenceOf(issues[j])
		if si != sj {
			return si < sj
		}
		return issues[i].CreatedAt.Before(issues[j].CreatedAt)
	})
}

func sequenceOf(issue *types.Issue) int {
	v, ok := issue.Fields["sequence"]
	if !ok || v.Kind != types.FieldNumber {
		return 999
	}
	return int(v.Num)
}

// ProgressPercent returns node's completed/total as a percentage,
// 100 for an empty node (vacuously complete).
func (n *PlanNode) ProgressPercent() float64 {
	if n.Total == 0 {
		return 100
	}
	return float64(n.Completed) / float64(n.Total) * 100
}
