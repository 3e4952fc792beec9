package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/types"
)

func init() {
	commentCmd.AddCommand(commentAddCmd, commentListCmd)
	labelCmd.AddCommand(labelAddCmd, labelRemoveCmd)
	rootCmd.AddCommand(commentCmd, labelCmd)
}

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage issue comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <id> <text>",
	Short: "Add a comment to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			c, err := h.Engine.AddComment(rootCtx, args[0], actor, args[1])
			if err != nil {
				return err
			}
			printResult(c, func() { fmt.Printf("#%d %s: %s\n", c.ID, c.Author, c.Text) })
			return nil
		})
	},
}

var commentListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List an issue's comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			comments, err := h.Engine.GetComments(rootCtx, args[0])
			if err != nil {
				return err
			}
			printResult(comments, func() { printComments(comments) })
			return nil
		})
	},
}

func printComments(comments []*types.Comment) {
	if len(comments) == 0 {
		fmt.Println(mutedStyle.Render("(none)"))
		return
	}
	for _, c := range comments {
		fmt.Printf("#%d %s %s: %s\n", c.ID, mutedStyle.Render(c.CreatedAt.Format("2006-01-02 15:04")), headerStyle.Render(c.Author), c.Text)
	}
}

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage issue labels",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <name>",
	Short: "Attach a label to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			return h.Engine.AddLabel(rootCtx, args[0], args[1], actor)
		})
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <name>",
	Short: "Detach a label from an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(true, func(h *keel.Handle) error {
			return h.Engine.RemoveLabel(rootCtx, args[0], args[1], actor)
		})
	},
}
