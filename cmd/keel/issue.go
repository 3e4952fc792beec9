package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/engine"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

func init() {
	rootCmd.AddCommand(createCmd, getCmd, listCmd, updateCmd, closeCmd, reopenCmd,
		claimCmd, releaseCmd, claimNextCmd, searchCmd, batchCloseCmd, batchUpdateCmd)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFields(raw string) (types.Fields, error) {
	if raw == "" {
		return nil, nil
	}
	var f types.Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("parse --fields: %w", err)
	}
	return f, nil
}

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		priority, _ := cmd.Flags().GetInt("priority")
		hasPriority := cmd.Flags().Changed("priority")
		parent, _ := cmd.Flags().GetString("parent")
		assignee, _ := cmd.Flags().GetString("assignee")
		description, _ := cmd.Flags().GetString("description")
		notes, _ := cmd.Flags().GetString("notes")
		labels, _ := cmd.Flags().GetString("labels")
		deps, _ := cmd.Flags().GetString("deps")
		rawFields, _ := cmd.Flags().GetString("fields")

		fields, err := parseFields(rawFields)
		if err != nil {
			return err
		}

		in := engine.CreateIssueInput{
			Title:       args[0],
			Type:        typeName,
			Parent:      parent,
			Assignee:    assignee,
			Description: description,
			Notes:       notes,
			Labels:      splitCSV(labels),
			Deps:        splitCSV(deps),
			Fields:      fields,
			Actor:       actor,
		}
		if hasPriority {
			in.Priority = &priority
		}

		return withHandle(true, func(h *keel.Handle) error {
			detail, err := h.Engine.CreateIssue(rootCtx, in)
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			detail, err := h.Engine.GetIssue(rootCtx, args[0])
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		typeName, _ := cmd.Flags().GetString("type")
		assignee, _ := cmd.Flags().GetString("assignee")
		limit, _ := cmd.Flags().GetInt("limit")

		return withHandle(false, func(h *keel.Handle) error {
			issues, err := h.Engine.ListIssues(rootCtx, store.IssueFilter{
				Status: status, Type: typeName, Assignee: assignee, Limit: limit,
			})
			if err != nil {
				return err
			}
			printResult(issues, func() { printIssueList(issues) })
			return nil
		})
	},
}

func strPtr(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields on an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := engine.UpdateIssueInput{
			Title:       strPtr(cmd, "title"),
			Status:      strPtr(cmd, "status"),
			Assignee:    strPtr(cmd, "assignee"),
			Parent:      strPtr(cmd, "parent"),
			Description: strPtr(cmd, "description"),
			Notes:       strPtr(cmd, "notes"),
			Actor:       actor,
		}
		if cmd.Flags().Changed("priority") {
			p, _ := cmd.Flags().GetInt("priority")
			in.Priority = &p
		}
		if cmd.Flags().Changed("skip-transition-check") {
			in.SkipTransitionCheck = true
		}
		rawFields, _ := cmd.Flags().GetString("fields")
		fields, err := parseFields(rawFields)
		if err != nil {
			return err
		}
		in.Fields = fields

		return withHandle(true, func(h *keel.Handle) error {
			detail, err := h.Engine.UpdateIssue(rootCtx, args[0], in)
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue and report newly-unblocked dependents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withHandle(true, func(h *keel.Handle) error {
			detail, unblocked, err := h.Engine.CloseIssue(rootCtx, args[0], reason, actor)
			if err != nil {
				return err
			}
			out := struct {
				Issue     *engine.IssueDetail   `json:"issue"`
				Unblocked []*engine.IssueDetail `json:"unblocked"`
			}{detail, unblocked}
			printResult(out, func() {
				printIssueDetail(detail)
				if len(unblocked) > 0 {
					fmt.Println("\nNewly ready:")
					printIssueList(unblocked)
				}
			})
			return nil
		})
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a closed issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			detail, err := h.Engine.ReopenIssue(rootCtx, args[0], actor)
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <id> <assignee>",
	Short: "Claim a specific issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			detail, err := h.Engine.ClaimIssue(rootCtx, args[0], args[1], actor)
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Release a claimed issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			detail, err := h.Engine.ReleaseClaim(rootCtx, args[0], actor)
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var claimNextCmd = &cobra.Command{
	Use:   "claim-next <assignee>",
	Short: "Claim the highest-priority ready issue matching the filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		f := engine.ClaimNextFilter{Type: typeName}
		if cmd.Flags().Changed("priority-min") {
			v, _ := cmd.Flags().GetInt("priority-min")
			f.PriorityMin = &v
		}
		if cmd.Flags().Changed("priority-max") {
			v, _ := cmd.Flags().GetInt("priority-max")
			f.PriorityMax = &v
		}
		return withHandle(true, func(h *keel.Handle) error {
			detail, err := h.Engine.ClaimNext(rootCtx, args[0], actor, f)
			if err != nil {
				return err
			}
			printResult(detail, func() { printIssueDetail(detail) })
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over title/description/notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withHandle(false, func(h *keel.Handle) error {
			results, err := h.Engine.SearchIssues(rootCtx, args[0], limit)
			if err != nil {
				return err
			}
			printResult(results, func() { printIssueList(results) })
			return nil
		})
	},
}

var batchCloseCmd = &cobra.Command{
	Use:   "batch-close <id> [id...]",
	Short: "Close multiple issues, collecting per-item failures",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withHandle(true, func(h *keel.Handle) error {
			res := h.Engine.BatchClose(rootCtx, args, reason, actor)
			printResult(res, func() { printBatchResult(res) })
			return nil
		})
	},
}

var batchUpdateCmd = &cobra.Command{
	Use:   "batch-update <id> [id...]",
	Short: "Apply the same update to multiple issues, collecting per-item failures",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := engine.UpdateIssueInput{
			Status:   strPtr(cmd, "status"),
			Assignee: strPtr(cmd, "assignee"),
			Actor:    actor,
		}
		if cmd.Flags().Changed("priority") {
			p, _ := cmd.Flags().GetInt("priority")
			in.Priority = &p
		}
		return withHandle(true, func(h *keel.Handle) error {
			res := h.Engine.BatchUpdate(rootCtx, args, in)
			printResult(res, func() { printBatchResult(res) })
			return nil
		})
	},
}

func printIssueDetail(d *engine.IssueDetail) {
	fmt.Printf("%s [P%d] %s\n", idStyle.Render(d.ID), d.Priority, headerStyle.Render(d.Title))
	fmt.Printf("  type=%s status=%s assignee=%q ready=%v\n",
		d.Type, statusStyle(d.Status).Render(d.Status), d.Assignee, d.IsReady)
	if len(d.Labels) > 0 {
		fmt.Printf("  labels: %s\n", mutedStyle.Render(strings.Join(d.Labels, ", ")))
	}
	if d.Description != "" {
		fmt.Printf("  description: %s\n", d.Description)
	}
	if len(d.Dependencies) > 0 {
		fmt.Printf("  blocked by: %d\n", len(d.Dependencies))
	}
	if len(d.Dependents) > 0 {
		fmt.Printf("  blocks: %d\n", len(d.Dependents))
	}
}

func printIssueList(issues []*engine.IssueDetail) {
	if len(issues) == 0 {
		fmt.Println(mutedStyle.Render("(none)"))
		return
	}
	for _, d := range issues {
		fmt.Printf("%-12s [P%d] %-10s %-10s %s\n",
			idStyle.Render(d.ID), d.Priority, d.Type, statusStyle(d.Status).Render(d.Status), d.Title)
	}
}

func printBatchResult(res engine.BatchResult) {
	fmt.Printf("succeeded: %d\n", len(res.Succeeded))
	for _, id := range res.Succeeded {
		fmt.Printf("  %s %s\n", okStyle.Render("ok  "), id)
	}
	for id, msg := range res.Failed {
		fmt.Printf("  %s %s: %s\n", failStyle.Render("fail"), id, msg)
	}
}

func init() {
	createCmd.Flags().String("type", "task", "issue type")
	createCmd.Flags().Int("priority", 2, "priority 0..4")
	createCmd.Flags().String("parent", "", "parent issue id")
	createCmd.Flags().String("assignee", "", "assignee")
	createCmd.Flags().String("description", "", "description")
	createCmd.Flags().String("notes", "", "notes")
	createCmd.Flags().String("labels", "", "comma-separated labels")
	createCmd.Flags().String("deps", "", "comma-separated issue ids this depends on")
	createCmd.Flags().String("fields", "", "JSON object of type-specific field values")

	listCmd.Flags().String("status", "", "filter by status")
	listCmd.Flags().String("type", "", "filter by type")
	listCmd.Flags().String("assignee", "", "filter by assignee")
	listCmd.Flags().Int("limit", 0, "max results (0 = default page size)")

	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().String("status", "", "new status")
	updateCmd.Flags().Int("priority", 0, "new priority 0..4")
	updateCmd.Flags().String("assignee", "", "new assignee")
	updateCmd.Flags().String("parent", "", "new parent issue id")
	updateCmd.Flags().String("description", "", "new description")
	updateCmd.Flags().String("notes", "", "new notes")
	updateCmd.Flags().String("fields", "", "JSON object merged shallowly into existing fields")
	updateCmd.Flags().Bool("skip-transition-check", false, "bypass the template's transition gate")

	closeCmd.Flags().String("reason", "", "close reason recorded on the event")
	batchCloseCmd.Flags().String("reason", "", "close reason recorded on each event")

	claimNextCmd.Flags().String("type", "", "restrict to this type")
	claimNextCmd.Flags().Int("priority-min", 0, "minimum priority (inclusive)")
	claimNextCmd.Flags().Int("priority-max", 0, "maximum priority (inclusive)")

	searchCmd.Flags().Int("limit", 20, "max results")

	batchUpdateCmd.Flags().String("status", "", "new status for every listed id")
	batchUpdateCmd.Flags().String("assignee", "", "new assignee for every listed id")
	batchUpdateCmd.Flags().Int("priority", 0, "new priority for every listed id")
}
