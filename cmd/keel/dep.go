package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/types"
)


func init() {
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)
	rootCmd.AddCommand(depCmd, readyCmd, blockedCmd, criticalPathCmd)
}

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependency edges between issues",
}

var depAddCmd = &cobra.Command{
	Use:   "add <from> <to>",
	Short: "Record that <from> depends on <to>",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		linkType, _ := cmd.Flags().GetString("type")
		return withHandle(true, func(h *keel.Handle) error {
			return h.Engine.AddDependency(rootCtx, args[0], args[1], linkType)
		})
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <from> <to>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		linkType, _ := cmd.Flags().GetString("type")
		return withHandle(true, func(h *keel.Handle) error {
			return h.Engine.RemoveDependency(rootCtx, args[0], args[1], linkType)
		})
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "Show both directions of an issue's dependency edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			out, in, err := h.Engine.GetAllDependencies(rootCtx, args[0])
			if err != nil {
				return err
			}
			result := struct {
				Outgoing []types.Dependency `json:"outgoing"`
				Incoming []types.Dependency `json:"incoming"`
			}{out, in}
			printResult(result, func() {
				fmt.Println("depends on:")
				for _, d := range out {
					fmt.Printf("  %s -> %s (%s)\n", d.From, d.To, d.Type)
				}
				fmt.Println("depended on by:")
				for _, d := range in {
					fmt.Printf("  %s -> %s (%s)\n", d.From, d.To, d.Type)
				}
			})
			return nil
		})
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List issues with no open blockers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			issues, err := h.Engine.GetReady(rootCtx)
			if err != nil {
				return err
			}
			printResult(issues, func() { printIssueList(issues) })
			return nil
		})
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List issues with at least one open blocker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			issues, err := h.Engine.GetBlocked(rootCtx)
			if err != nil {
				return err
			}
			printResult(issues, func() { printIssueList(issues) })
			return nil
		})
	},
}

var criticalPathCmd = &cobra.Command{
	Use:   "critical-path",
	Short: "Show the longest open-issue chain by blocks edges",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			cp, err := h.Engine.GetCriticalPath(rootCtx)
			if err != nil {
				return err
			}
			printResult(cp, func() {
				if len(cp.IssueIDs) == 0 {
					fmt.Println("(none)")
					return
				}
				fmt.Printf("length %d:\n", cp.Length)
				for _, id := range cp.IssueIDs {
					fmt.Printf("  %s\n", id)
				}
			})
			return nil
		})
	},
}

func init() {
	depAddCmd.Flags().String("type", "blocks", "link type")
	depRemoveCmd.Flags().String("type", "blocks", "link type")
}
