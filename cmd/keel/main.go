// Command keel is the terminal front end for a Filigree project: every
// subcommand opens the project's store and runs one engine operation;
// subcommands that change the project also republish the markdown
// context summary before exiting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
)

var (
	projectDir string
	jsonOutput bool
	actor      string

	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:           "keel",
	Short:         "Agent-native issue tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCtx = ctx

	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "project directory (contains .filigree/)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable text")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name recorded on events this invocation writes")

	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}

func defaultActor() string {
	if u := os.Getenv("KEEL_ACTOR"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "keel: %v\n", err)
	os.Exit(1)
}

// withHandle opens the project, runs fn, republishes the context
// summary if publish is true, and always closes the store before
// returning — the one-write-handle-per-invocation lifecycle every
// subcommand follows.
func withHandle(publish bool, fn func(h *keel.Handle) error) error {
	p := keel.DefaultProject(projectDir)
	h, err := keel.Open(rootCtx, p)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := fn(h); err != nil {
		return err
	}

	if publish {
		if err := h.RenderSummary(rootCtx); err != nil {
			return fmt.Errorf("publish summary: %w", err)
		}
	}
	return nil
}

// printResult renders v as pretty JSON when --json is set or when the
// caller has no human-readable renderer for it; otherwise it calls
// human, the type-specific renderer the calling command supplies.
func printResult(v any, human func()) {
	if !jsonOutput && human != nil {
		human()
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}
