package templates

import "github.com/filigree-dev/keel/internal/types"

// BuiltinCorePack is the software-engineering pack shipped with Keel.
// It covers the leaf work types (bug, feature, task, chore) plus the
// three plan-hierarchy types (milestone, phase, step) the planning
// engine composes into the derived plan tree.
func BuiltinCorePack() *Pack {
	leafStates := []State{
		{"open", types.CategoryOpen},
		{"in_progress", types.CategoryWIP},
		{"closed", types.CategoryDone},
	}
	leafTransitions := func() []Transition {
		return []Transition{
			{From: "open", To: "in_progress", Enforcement: Soft},
			{From: "in_progress", To: "open", Enforcement: Soft},
			{From: "in_progress", To: "closed", Enforcement: Soft},
			{From: "open", To: "closed", Enforcement: Soft},
			{From: "closed", To: "open", Enforcement: Soft},
		}
	}

	bugStates := []State{
		{"open", types.CategoryOpen},
		{"in_progress", types.CategoryWIP},
		{"verifying", types.CategoryWIP},
		{"closed", types.CategoryDone},
	}
	bugTransitions := []Transition{
		{From: "open", To: "in_progress", Enforcement: Soft},
		{From: "in_progress", To: "verifying", Enforcement: Soft},
		{From: "verifying", To: "in_progress", Enforcement: Soft},
		// Hard-gated: a bug cannot close out of verification without
		// recording how the fix was verified.
		{From: "verifying", To: "closed", Enforcement: Hard, RequiredFields: []string{"fix_verification"}},
		{From: "open", To: "closed", Enforcement: Soft},
		{From: "closed", To: "open", Enforcement: Soft},
	}
	bugFields := []FieldSchema{
		{Name: "fix_verification", Kind: types.FieldText, RequiredAt: []string{"closed"}},
	}

	planStates := []State{
		{"planned", types.CategoryOpen},
		{"in_progress", types.CategoryWIP},
		{"done", types.CategoryDone},
	}
	planTransitions := []Transition{
		{From: "planned", To: "in_progress", Enforcement: Soft},
		{From: "in_progress", To: "done", Enforcement: Soft},
		{From: "planned", To: "done", Enforcement: Soft},
		{From: "done", To: "planned", Enforcement: Soft},
	}

	return &Pack{
		Name:    "core",
		Version: "1.0.0",
		Guide:   "Built-in pack for general software work: bug, feature, task, chore leaf types, plus the milestone/phase/step plan hierarchy.",
		Relationships: []string{
			"milestone > phase > step (create_plan / get_plan hierarchy)",
		},
		Types: []*TypeTemplate{
			{
				Type: "bug", DisplayName: "Bug", Pack: "core",
				States: bugStates, Initial: "open",
				Transitions: bugTransitions, Fields: bugFields,
				SuggestedLabels: []string{"bug"},
			},
			{
				Type: "feature", DisplayName: "Feature", Pack: "core",
				States: leafStates, Initial: "open",
				Transitions: leafTransitions(),
				SuggestedLabels: []string{"feature"},
			},
			{
				Type: "task", DisplayName: "Task", Pack: "core",
				States: leafStates, Initial: "open",
				Transitions: leafTransitions(),
			},
			{
				Type: "chore", DisplayName: "Chore", Pack: "core",
				States: leafStates, Initial: "open",
				Transitions: leafTransitions(),
			},
			{
				Type: "epic", DisplayName: "Epic", Pack: "core",
				States: leafStates, Initial: "open",
				Transitions: leafTransitions(),
			},
			{
				Type: "milestone", DisplayName: "Milestone", Pack: "core",
				States: planStates, Initial: "planned",
				Transitions: planTransitions,
			},
			{
				Type: "phase", DisplayName: "Phase", Pack: "core",
				States: planStates, Initial: "planned",
				Transitions: planTransitions,
				Fields: []FieldSchema{
					{Name: "sequence", Kind: types.FieldNumber},
				},
			},
			{
				Type: "step", DisplayName: "Step", Pack: "core",
				States: planStates, Initial: "planned",
				Transitions: planTransitions,
				Fields: []FieldSchema{
					{Name: "sequence", Kind: types.FieldNumber},
				},
			},
		},
	}
}
