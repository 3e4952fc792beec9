// Package policy loads project-level policy (reserved label names,
// pack enablement overrides) from a YAML document independent of the
// JSON project config the engine itself consumes: a human-edited
// validation layer sitting alongside the machine-written config file.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Policy is the resolved shape of a project's policy.yaml.
type Policy struct {
	// ReservedLabels extends the engine's built-in reserved label set
	// (all, none, any, *) with project-specific names that must never
	// be attached to an issue.
	ReservedLabels []string

	// DisabledPacks lists pack names the project has explicitly turned
	// off even if the registry would otherwise load them.
	DisabledPacks []string

	// RequiredLabels maps a type name to label names that must be
	// present before that type's issues can reach a done-category
	// state. MissingRequiredLabels reports the gap; no operation in
	// this module calls it, so the engine's update_issue/close_issue
	// do not enforce these labels (the template gate covers field
	// requirements only).
	RequiredLabels map[string][]string
}

// Load reads path if present, returning a zero-value Policy (no
// restrictions beyond the engine's built-ins) if the file is absent; a
// missing policy file is not an error.
func Load(path string) (Policy, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Policy{}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Policy{}, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var p Policy
	p.ReservedLabels = cleanStrings(v.GetStringSlice("reserved_labels"))
	p.DisabledPacks = cleanStrings(v.GetStringSlice("disabled_packs"))

	p.RequiredLabels = map[string][]string{}
	raw := v.GetStringMap("required_labels")
	for typeName, val := range raw {
		slice, ok := val.([]any)
		if !ok {
			return Policy{}, fmt.Errorf("required_labels.%s: expected a list, got %T", typeName, val)
		}
		var labels []string
		for _, item := range slice {
			s, ok := item.(string)
			if !ok {
				return Policy{}, fmt.Errorf("required_labels.%s: expected string entries, got %T", typeName, item)
			}
			s = strings.TrimSpace(s)
			if s != "" {
				labels = append(labels, s)
			}
		}
		if len(labels) > 0 {
			p.RequiredLabels[typeName] = labels
		}
	}

	return p, nil
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsReservedLabel reports whether name is blocked by this policy, on
// top of (not replacing) the engine's own built-in reserved names.
func (p Policy) IsReservedLabel(name string) bool {
	for _, r := range p.ReservedLabels {
		if r == name {
			return true
		}
	}
	return false
}

// PackEnabled reports whether packName is allowed to load, given the
// project's configured enabled_packs list and this policy's
// disabled_packs override (policy wins on conflict, so a pack disabled
// here never loads even if the project config re-lists it).
func (p Policy) PackEnabled(packName string, configEnabled []string) bool {
	for _, d := range p.DisabledPacks {
		if d == packName {
			return false
		}
	}
	if len(configEnabled) == 0 {
		return true
	}
	for _, e := range configEnabled {
		if e == packName {
			return true
		}
	}
	return false
}

// MissingRequiredLabels returns the subset of this policy's
// required_labels[typeName] not present in have.
func (p Policy) MissingRequiredLabels(typeName string, have []string) []string {
	required, ok := p.RequiredLabels[typeName]
	if !ok {
		return nil
	}
	present := map[string]bool{}
	for _, l := range have {
		present[l] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	return missing
}
