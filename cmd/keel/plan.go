package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/engine"
)

func init() {
	planCmd.AddCommand(planCreateCmd, planShowCmd)
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage milestone/phase/step plan trees",
}

// planSpecInput is the JSON shape accepted by `plan create --spec`,
// mirroring engine.CreatePlanInput/PhaseSpec/StepSpec one-for-one so a
// caller can describe an entire tree in a single document.
type planSpecInput struct {
	MilestoneTitle       string `json:"milestone_title"`
	MilestoneDescription string `json:"milestone_description"`
	Phases               []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    *int   `json:"priority"`
		Steps       []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Priority    *int   `json:"priority"`
			Deps        []int  `json:"deps"`
		} `json:"steps"`
	} `json:"phases"`
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a milestone/phase/step tree from a JSON spec file",
	RunE: func(cmd *cobra.Command, args []string) error {
		specPath, _ := cmd.Flags().GetString("spec")
		if specPath == "" {
			return fmt.Errorf("plan create requires --spec <file.json>")
		}
		data, err := readFileArg(specPath)
		if err != nil {
			return err
		}
		var spec planSpecInput
		if err := json.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("parse --spec: %w", err)
		}

		in := engine.CreatePlanInput{
			MilestoneTitle:       spec.MilestoneTitle,
			MilestoneDescription: spec.MilestoneDescription,
			Actor:                actor,
		}
		for _, p := range spec.Phases {
			phase := engine.PhaseSpec{Title: p.Title, Description: p.Description, Priority: p.Priority}
			for _, s := range p.Steps {
				phase.Steps = append(phase.Steps, engine.StepSpec{
					Title: s.Title, Description: s.Description, Priority: s.Priority, Deps: s.Deps,
				})
			}
			in.Phases = append(in.Phases, phase)
		}

		return withHandle(true, func(h *keel.Handle) error {
			plan, err := h.Engine.CreatePlan(rootCtx, in)
			if err != nil {
				return err
			}
			printResult(plan, func() { printPlanNode(plan, 0) })
			return nil
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <milestone-id>",
	Short: "Show a plan tree rooted at a milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			plan, err := h.Engine.GetPlan(rootCtx, args[0])
			if err != nil {
				return err
			}
			printResult(plan, func() { printPlanNode(plan, 0) })
			return nil
		})
	},
}

func printPlanNode(n *engine.PlanNode, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%s%s [P%d] %s (%s) %d/%d\n", indent, idStyle.Render(n.Issue.ID), n.Issue.Priority,
		n.Issue.Title, statusStyle(n.Issue.Status).Render(n.Issue.Status), n.Completed, n.Total)
	for _, c := range n.Children {
		printPlanNode(c, depth+1)
	}
}

func init() {
	planCreateCmd.Flags().String("spec", "", "path to a JSON plan spec (- for stdin)")
}
