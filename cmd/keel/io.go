package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/engine"
)

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}

// readFileArg reads path, treating "-" as stdin — the convention the
// export/import and plan-spec flags share.
func readFileArg(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every issue, dependency, label, comment, and event as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		return withHandle(false, func(h *keel.Handle) error {
			var w io.Writer = os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return h.Engine.ExportJSONL(rootCtx, w)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSONL export ('-' reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("on-collision")
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		return withHandle(true, func(h *keel.Handle) error {
			res, err := h.Engine.ImportJSONL(rootCtx, r, engine.ImportCollisionMode(mode))
			if err != nil {
				return err
			}
			printResult(res, func() {
				fmt.Printf("issues created: %d, skipped: %d\n", res.IssuesCreated, res.IssuesSkipped)
				fmt.Printf("dependencies: %d, labels: %d, comments: %d, events: %d\n",
					res.Dependencies, res.Labels, res.Comments, res.Events)
			})
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("out", "-", "output path ('-' for stdout)")
	importCmd.Flags().String("on-collision", "merge", "merge|abort on a colliding issue id")
}
