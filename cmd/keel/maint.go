package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
)

func init() {
	rootCmd.AddCommand(statsCmd, flowMetricsCmd, archiveCmd, compactCmd, vacuumCmd, analyzeCmd, summaryCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate issue counts by status, category, type, priority, and assignee",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			stats, err := h.Engine.GetStats(rootCtx)
			if err != nil {
				return err
			}
			printResult(stats, func() {
				fmt.Printf("total: %d\n", stats.TotalIssues)
				fmt.Println(headerStyle.Render("by category:"))
				for cat, n := range stats.ByCategory {
					fmt.Printf("  %-8s %d\n", cat, n)
				}
				fmt.Println(headerStyle.Render("by type:"))
				for t, n := range stats.ByType {
					fmt.Printf("  %-16s %d\n", t, n)
				}
			})
			return nil
		})
	},
}

var flowMetricsCmd = &cobra.Command{
	Use:   "flow-metrics",
	Short: "Cycle time, lead time, and throughput over a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		until, _ := cmd.Flags().GetString("until")
		sinceT, untilT, err := parseWindow(since, until)
		if err != nil {
			return err
		}
		return withHandle(false, func(h *keel.Handle) error {
			fm, err := h.Engine.GetFlowMetrics(rootCtx, sinceT, untilT)
			if err != nil {
				return err
			}
			printResult(fm, func() {
				fmt.Printf("window: %s .. %s\n", fm.WindowStart.Format(time.RFC3339), fm.WindowEnd.Format(time.RFC3339))
				fmt.Printf("throughput: %d  avg lead: %s  avg cycle: %s\n", fm.Throughput, fm.AvgLeadTime, fm.AvgCycleTime)
				for t, m := range fm.ByType {
					fmt.Printf("  %-16s throughput=%d lead=%s cycle=%s\n", t, m.Throughput, m.AvgLeadTime, m.AvgCycleTime)
				}
			})
			return nil
		})
	},
}

func parseWindow(since, until string) (time.Time, time.Time, error) {
	untilT := time.Now().UTC()
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --until: %w", err)
		}
		untilT = t
	}
	sinceT := untilT.AddDate(0, 0, -30)
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --since: %w", err)
		}
		sinceT = t
	}
	return sinceT, untilT, nil
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive issues closed for longer than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		return withHandle(true, func(h *keel.Handle) error {
			ids, err := h.Engine.ArchiveClosed(rootCtx, olderThan)
			if err != nil {
				return err
			}
			printResult(ids, func() {
				fmt.Printf("archived %d issue(s)\n", len(ids))
			})
			return nil
		})
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Prune archived issues' journal history, keeping the N most recent events per issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		return withHandle(false, func(h *keel.Handle) error {
			removed, err := h.Engine.CompactEvents(rootCtx, keep)
			if err != nil {
				return err
			}
			printResult(removed, func() { fmt.Printf("removed %d event(s)\n", removed) })
			return nil
		})
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim free space in the store file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			return h.Engine.Vacuum(rootCtx)
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Refresh the store's query planner statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			return h.Engine.Analyze(rootCtx)
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Render and publish the markdown context summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			fmt.Println(h.Project.SummaryPath)
			return nil
		})
	},
}

func init() {
	flowMetricsCmd.Flags().String("since", "", "RFC3339 window start (default: 30 days before --until)")
	flowMetricsCmd.Flags().String("until", "", "RFC3339 window end (default: now)")
	archiveCmd.Flags().Duration("older-than", 30*24*time.Hour, "minimum closed age to archive")
	compactCmd.Flags().Int("keep", 20, "events to keep per issue")
}
