// Package templates implements the workflow template registry: layered
// packs of per-type state machines that govern which status
// transitions are allowed and what fields they require. Packs are
// data, not code: ready/blocked computations and transition validation
// are parameterized by a state's Category, never by a literal state
// name.
package templates

import "github.com/filigree-dev/keel/internal/types"

// Enforcement controls what happens when a transition's field gates
// are not satisfied.
type Enforcement string

const (
	Soft Enforcement = "soft"
	Hard Enforcement = "hard"
)

// State is one node of a type's workflow state machine.
type State struct {
	Name     string         `json:"name"`
	Category types.Category `json:"category"`
}

// Transition is a declared (From, To) edge in a type's state machine.
type Transition struct {
	From           string      `json:"from"`
	To             string      `json:"to"`
	Enforcement    Enforcement `json:"enforcement"`
	RequiredFields []string    `json:"required_fields,omitempty"`
}

// FieldSchema declares one field a type's issues may carry in their
// fields bag.
type FieldSchema struct {
	Name        string             `json:"name"`
	Kind        types.FieldKind    `json:"kind"`
	EnumOptions []string           `json:"enum_options,omitempty"`
	Default     *types.FieldValue  `json:"default,omitempty"`
	RequiredAt  []string           `json:"required_at,omitempty"` // state names where this field becomes required
}

// TypeTemplate is the complete per-type workflow definition.
type TypeTemplate struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Pack        string `json:"pack"`

	States      []State       `json:"states"`
	Initial     string        `json:"initial"`
	Transitions []Transition  `json:"transitions"`
	Fields      []FieldSchema `json:"fields,omitempty"`

	SuggestedChildren []string `json:"suggested_children,omitempty"`
	SuggestedLabels   []string `json:"suggested_labels,omitempty"`
}

// StateByName returns the State with the given name, if declared.
func (t *TypeTemplate) StateByName(name string) (State, bool) {
	for _, s := range t.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// TransitionFor returns the declared transition (from,to), if any.
func (t *TypeTemplate) TransitionFor(from, to string) (Transition, bool) {
	for _, tr := range t.Transitions {
		if tr.From == from && tr.To == to {
			return tr, true
		}
	}
	return Transition{}, false
}

// RequiredAt returns the field names whose RequiredAt includes state.
func (t *TypeTemplate) RequiredAt(state string) []string {
	var out []string
	for _, f := range t.Fields {
		for _, s := range f.RequiredAt {
			if s == state {
				out = append(out, f.Name)
				break
			}
		}
	}
	return out
}

// Validate checks the template-construction invariants: unique state
// names, an existing initial state, transition endpoints that refer to
// declared states, no duplicate (from,to) pairs, and required_at
// states that exist.
func (t *TypeTemplate) Validate() error {
	seen := map[string]bool{}
	for _, s := range t.States {
		if seen[s.Name] {
			return types.Invalid("template %q: duplicate state %q", t.Type, s.Name)
		}
		seen[s.Name] = true
		switch s.Category {
		case types.CategoryOpen, types.CategoryWIP, types.CategoryDone:
		default:
			return types.Invalid("template %q: state %q has invalid category %q", t.Type, s.Name, s.Category)
		}
	}
	if !seen[t.Initial] {
		return types.Invalid("template %q: initial state %q is not declared", t.Type, t.Initial)
	}
	pairs := map[[2]string]bool{}
	for _, tr := range t.Transitions {
		if !seen[tr.From] {
			return types.Invalid("template %q: transition from undeclared state %q", t.Type, tr.From)
		}
		if !seen[tr.To] {
			return types.Invalid("template %q: transition to undeclared state %q", t.Type, tr.To)
		}
		key := [2]string{tr.From, tr.To}
		if pairs[key] {
			return types.Invalid("template %q: duplicate transition %s->%s", t.Type, tr.From, tr.To)
		}
		pairs[key] = true
	}
	for _, f := range t.Fields {
		for _, s := range f.RequiredAt {
			if !seen[s] {
				return types.Invalid("template %q: field %q required_at undeclared state %q", t.Type, f.Name, s)
			}
		}
	}
	return nil
}

// Pack bundles related type templates plus narrative guidance and
// inter-type relationship declarations.
type Pack struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Guide        string          `json:"guide,omitempty"`
	Types        []*TypeTemplate `json:"types"`
	Enabled      bool            `json:"-"`

	// Relationships is a free-form narrative of how this pack's types
	// relate (e.g. "milestone > phase > step"); advisory only.
	Relationships []string `json:"relationships,omitempty"`
}
