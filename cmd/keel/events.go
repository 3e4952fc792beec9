package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/types"
)

func init() {
	eventsCmd.AddCommand(eventsRecentCmd, eventsSinceCmd, eventsIssueCmd)
	rootCmd.AddCommand(eventsCmd, undoCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read the append-only event journal",
}

var eventsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent events across every issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withHandle(false, func(h *keel.Handle) error {
			events, err := h.Engine.GetRecentEvents(rootCtx, limit)
			if err != nil {
				return err
			}
			printResult(events, func() { printEvents(events) })
			return nil
		})
	},
}

var eventsSinceCmd = &cobra.Command{
	Use:   "since <event-id>",
	Short: "Show every event after a cursor, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		after, err := parseInt64(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return withHandle(false, func(h *keel.Handle) error {
			events, err := h.Engine.GetEventsSince(rootCtx, after, limit)
			if err != nil {
				return err
			}
			printResult(events, func() { printEvents(events) })
			return nil
		})
	},
}

var eventsIssueCmd = &cobra.Command{
	Use:   "issue <id>",
	Short: "Show one issue's full history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			events, err := h.Engine.GetIssueEvents(rootCtx, args[0])
			if err != nil {
				return err
			}
			printResult(events, func() { printEvents(events) })
			return nil
		})
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <id>",
	Short: "Reverse the most recent reversible event on an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			res, err := h.Engine.UndoLast(rootCtx, args[0])
			if err != nil {
				return err
			}
			printResult(res, func() {
				if !res.Undone {
					fmt.Println(mutedStyle.Render("nothing to undo"))
					return
				}
				fmt.Printf("%s %s (restored %q)\n", okStyle.Render("undid"), res.EventType, res.OldValue)
			})
			return nil
		})
	},
}

func printEvents(events []*types.Event) {
	if len(events) == 0 {
		fmt.Println(mutedStyle.Render("(none)"))
		return
	}
	for _, ev := range events {
		fmt.Printf("%s %-8s %-20s %s -> %s %s\n",
			mutedStyle.Render(ev.CreatedAt.Format("2006-01-02 15:04:05")),
			idStyle.Render(ev.IssueID), ev.Type, ev.OldValue, ev.NewValue, ev.Comment)
	}
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	return n, nil
}

func init() {
	eventsRecentCmd.Flags().Int("limit", 50, "max events")
	eventsSinceCmd.Flags().Int("limit", 200, "max events")
}
