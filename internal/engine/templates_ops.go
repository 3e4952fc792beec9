package engine

import (
	"github.com/filigree-dev/keel/internal/templates"
	"github.com/filigree-dev/keel/internal/types"
)

// GetType is get_type.
func (e *Engine) GetType(typeName string) (*templates.TypeTemplate, bool) {
	return e.registry.GetType(typeName)
}

// ListTypes is list_types.
func (e *Engine) ListTypes() []*templates.TypeTemplate { return e.registry.ListTypes() }

// ListPacks is list_packs.
func (e *Engine) ListPacks() []*templates.Pack { return e.registry.ListPacks() }

// GetValidTransitions is get_valid_transitions.
func (e *Engine) GetValidTransitions(typeName, from string, fields types.Fields) []string {
	return e.registry.GetValidTransitions(typeName, from, fields)
}

// GetWorkflowGuide is get_workflow_guide.
func (e *Engine) GetWorkflowGuide(packName string) (string, bool) {
	return e.registry.GetWorkflowGuide(packName)
}

// ExplainState is explain_state.
func (e *Engine) ExplainState(typeName, state string) string {
	return e.registry.ExplainState(typeName, state)
}

// ReloadTemplates is reload_templates.
func (e *Engine) ReloadTemplates() error { return e.registry.Reload() }

// ValidateIssue is validate_issue: checks a candidate (type, status,
// fields) triple against the template registry without writing
// anything, for collaborators that want to pre-flight a change.
func (e *Engine) ValidateIssue(typeName, status string, fields types.Fields) templates.TransitionResult {
	tmpl, ok := e.registry.GetType(typeName)
	if !ok {
		return templates.TransitionResult{Allowed: true, Enforcement: templates.Soft}
	}
	if _, ok := tmpl.StateByName(status); !ok {
		return templates.TransitionResult{Allowed: false, Enforcement: templates.Hard}
	}
	var missing []string
	for _, name := range tmpl.RequiredAt(status) {
		v, present := fields[name]
		if !present || v.IsEmpty() {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return templates.TransitionResult{Allowed: true}
	}
	return templates.TransitionResult{Allowed: false, Enforcement: templates.Hard, MissingFields: missing}
}
