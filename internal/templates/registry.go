package templates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/filigree-dev/keel/internal/types"
)

// Registry holds the loaded, layered set of type templates and answers
// every template-introspection query the engine needs. Layers are
// applied in this order (last wins per type): built-in packs shipped
// with the code, pack files installed under InstalledDir, then
// project-local overrides under OverridesDir.
type Registry struct {
	InstalledDir string
	OverridesDir string
	EnabledPacks []string

	packs []*Pack
	types map[string]*TypeTemplate
}

// NewRegistry constructs a Registry and performs the initial Load.
func NewRegistry(installedDir, overridesDir string, enabledPacks []string) (*Registry, error) {
	r := &Registry{
		InstalledDir: installedDir,
		OverridesDir: overridesDir,
		EnabledPacks: enabledPacks,
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load re-scans the three layers without reopening the store
// (reload_templates's implementation).
func (r *Registry) Load() error {
	packs := []*Pack{BuiltinCorePack()}

	installed, err := loadPackDir(r.InstalledDir)
	if err != nil {
		return err
	}
	packs = append(packs, installed...)

	enabledSet := map[string]bool{}
	for _, name := range r.EnabledPacks {
		enabledSet[name] = true
	}
	for _, p := range packs {
		p.Enabled = len(enabledSet) == 0 || enabledSet[p.Name]
	}

	typeIndex := map[string]*TypeTemplate{}
	for _, p := range packs {
		if !p.Enabled {
			continue
		}
		for _, t := range p.Types {
			if err := t.Validate(); err != nil {
				return err
			}
			typeIndex[t.Type] = t // later packs/layers win
		}
	}

	// Project-local type overrides layer last, regardless of pack
	// enablement — an override is an explicit per-type statement.
	overrides, err := loadPackDir(r.OverridesDir)
	if err != nil {
		return err
	}
	for _, p := range overrides {
		for _, t := range p.Types {
			if err := t.Validate(); err != nil {
				return err
			}
			typeIndex[t.Type] = t
		}
	}

	r.packs = packs
	r.types = typeIndex
	return nil
}

// Reload is the reload_templates operation.
func (r *Registry) Reload() error { return r.Load() }

func loadPackDir(dir string) ([]*Pack, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.Integrity("read pack directory %q: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // deterministic layering order within a directory

	var packs []*Pack
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, types.Integrity("read pack file %q: %v", name, err)
		}
		var p Pack
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, types.Invalid("parse pack file %q: %v", name, err)
		}
		p.Enabled = true
		packs = append(packs, &p)
	}
	return packs, nil
}

// GetType is get_type.
func (r *Registry) GetType(typeName string) (*TypeTemplate, bool) {
	t, ok := r.types[typeName]
	return t, ok
}

// ListTypes is list_types.
func (r *Registry) ListTypes() []*TypeTemplate {
	out := make([]*TypeTemplate, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// ListPacks is list_packs.
func (r *Registry) ListPacks() []*Pack {
	out := make([]*Pack, len(r.packs))
	copy(out, r.packs)
	return out
}

// GetWorkflowGuide returns the narrative guide for a pack by name.
func (r *Registry) GetWorkflowGuide(packName string) (string, bool) {
	for _, p := range r.packs {
		if p.Name == packName {
			return p.Guide, true
		}
	}
	return "", false
}

// GetInitialState is get_initial_state(type). Types without a
// registered template fall back to the configured default state list.
func (r *Registry) GetInitialState(typeName string) string {
	if t, ok := r.types[typeName]; ok {
		return t.Initial
	}
	return string(types.DefaultStates[0].Name)
}

// GetCategory is get_category(type, state).
func (r *Registry) GetCategory(typeName, state string) types.Category {
	if t, ok := r.types[typeName]; ok {
		if s, ok := t.StateByName(state); ok {
			return s.Category
		}
	}
	for _, s := range types.DefaultStates {
		if string(s.Name) == state {
			return s.Category
		}
	}
	// Unknown state under a template-less type: treat as open so it
	// still participates in ready/blocked queries rather than vanishing.
	return types.CategoryOpen
}

// ExplainState is explain_state: a short human description combining
// the state's declared category and whether it is the type's initial
// state, for display in CLI/tool-server surfaces.
func (r *Registry) ExplainState(typeName, state string) string {
	cat := r.GetCategory(typeName, state)
	initial := r.GetInitialState(typeName) == state
	if initial {
		return string(cat) + " (initial state for " + typeName + ")"
	}
	return string(cat)
}

// TransitionResult is the result of validate_transition.
type TransitionResult struct {
	Allowed       bool
	Enforcement   Enforcement
	MissingFields []string
	Warnings      []string
}

// ValidateTransition implements the template's validation rules:
//   - no template for the type -> always allowed (soft fallback)
//   - template exists but (from,to) undeclared -> rejected (hard)
//   - (from,to) declared, required_fields missing -> governed by the
//     transition's enforcement
//   - fields whose RequiredAt includes the target state are folded
//     into the same gate, under the same enforcement
func (r *Registry) ValidateTransition(typeName, from, to string, fields types.Fields) TransitionResult {
	t, ok := r.types[typeName]
	if !ok {
		return TransitionResult{Allowed: true, Enforcement: Soft}
	}

	tr, ok := t.TransitionFor(from, to)
	if !ok {
		return TransitionResult{Allowed: false, Enforcement: Hard}
	}

	required := append([]string{}, tr.RequiredFields...)
	required = append(required, t.RequiredAt(to)...)

	var missing []string
	seenMissing := map[string]bool{}
	for _, name := range required {
		v, present := fields[name]
		if !present || v.IsEmpty() {
			if !seenMissing[name] {
				missing = append(missing, name)
				seenMissing[name] = true
			}
		}
	}

	if len(missing) == 0 {
		return TransitionResult{Allowed: true, Enforcement: tr.Enforcement}
	}

	if tr.Enforcement == Hard {
		return TransitionResult{Allowed: false, Enforcement: Hard, MissingFields: missing}
	}

	return TransitionResult{
		Allowed:       true,
		Enforcement:   Soft,
		MissingFields: missing,
		Warnings:      []string{"soft transition " + from + "->" + to + " missing fields: " + joinComma(missing)},
	}
}

// GetValidTransitions is get_valid_transitions(type, from, fields): the
// list of "to" states currently reachable, used to populate
// invalid_transition's ValidTransitions payload.
func (r *Registry) GetValidTransitions(typeName, from string, fields types.Fields) []string {
	t, ok := r.types[typeName]
	if !ok {
		return nil
	}
	var out []string
	for _, tr := range t.Transitions {
		if tr.From != from {
			continue
		}
		res := r.ValidateTransition(typeName, from, tr.To, fields)
		if res.Allowed {
			out = append(out, tr.To)
		}
	}
	return out
}

// StatusesForCategory returns every state name typeName's template maps
// to cat. Types with no template use the default state list instead.
func (r *Registry) StatusesForCategory(typeName string, cat types.Category) []string {
	if t, ok := r.types[typeName]; ok {
		var out []string
		for _, s := range t.States {
			if s.Category == cat {
				out = append(out, s.Name)
			}
		}
		return out
	}
	var out []string
	for _, s := range types.DefaultStates {
		if s.Category == cat {
			out = append(out, string(s.Name))
		}
	}
	return out
}

// TemplatedTypeNames lists every type with a registered template, so
// callers building query clauses can isolate the "every other type"
// fallback bucket.
func (r *Registry) TemplatedTypeNames() []string {
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
