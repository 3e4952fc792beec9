package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filigree-dev/keel"
)

func init() {
	templatesCmd.AddCommand(typesCmd, packsCmd, transitionsCmd, validateCmd, reloadTemplatesCmd, guideCmd, explainCmd)
	rootCmd.AddCommand(templatesCmd)
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and reload the type template registry",
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List every registered type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			types := h.Engine.ListTypes()
			printResult(types, func() {
				for _, t := range types {
					fmt.Printf("%-16s pack=%-10s initial=%s\n", t.Type, t.Pack, t.Initial)
				}
			})
			return nil
		})
	},
}

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "List every loaded pack and whether it's enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			packs := h.Engine.ListPacks()
			printResult(packs, func() {
				for _, p := range packs {
					fmt.Printf("%-16s v%-8s enabled=%v types=%d\n", p.Name, p.Version, p.Enabled, len(p.Types))
				}
			})
			return nil
		})
	},
}

var transitionsCmd = &cobra.Command{
	Use:   "transitions <type> <from-state>",
	Short: "List valid next states for a type from a given state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			valid := h.Engine.GetValidTransitions(args[0], args[1], nil)
			printResult(valid, func() {
				for _, s := range valid {
					fmt.Println(s)
				}
			})
			return nil
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <type> <status>",
	Short: "Check a candidate (type, status) pair against the template registry without writing anything",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawFields, _ := cmd.Flags().GetString("fields")
		fields, err := parseFields(rawFields)
		if err != nil {
			return err
		}
		return withHandle(false, func(h *keel.Handle) error {
			res := h.Engine.ValidateIssue(args[0], args[1], fields)
			printResult(res, func() {
				allowed := failStyle.Render("false")
				if res.Allowed {
					allowed = okStyle.Render("true")
				}
				fmt.Printf("allowed=%s enforcement=%s missing=%v warnings=%v\n", allowed, res.Enforcement, res.MissingFields, res.Warnings)
			})
			return nil
		})
	},
}

var reloadTemplatesCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-scan installed and override pack directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			return h.Engine.ReloadTemplates()
		})
	},
}

var guideCmd = &cobra.Command{
	Use:   "guide <pack>",
	Short: "Print a pack's workflow guide text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			guide, ok := h.Engine.GetWorkflowGuide(args[0])
			if !ok {
				return fmt.Errorf("no guide for pack %q", args[0])
			}
			fmt.Println(guide)
			return nil
		})
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain <type> <state>",
	Short: "Print the human explanation of a type's state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandle(false, func(h *keel.Handle) error {
			fmt.Println(h.Engine.ExplainState(args[0], args[1]))
			return nil
		})
	},
}

func init() {
	validateCmd.Flags().String("fields", "", "JSON object of field values to validate against")
}
