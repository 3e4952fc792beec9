package templates

import (
	"testing"

	"github.com/filigree-dev/keel/internal/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry("", "", nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestValidateTransitionNoTemplateIsSoftFallback(t *testing.T) {
	r := newTestRegistry(t)
	res := r.ValidateTransition("untemplated-type", "whatever", "anything", nil)
	if !res.Allowed {
		t.Fatalf("expected soft fallback allow for untemplated type")
	}
}

func TestValidateTransitionUndeclaredPairRejected(t *testing.T) {
	r := newTestRegistry(t)
	res := r.ValidateTransition("bug", "open", "verifying_wat", nil)
	if res.Allowed {
		t.Fatalf("expected undeclared (from,to) to be rejected")
	}
	if res.Enforcement != Hard {
		t.Fatalf("expected hard rejection for undeclared transition")
	}
}

// TestHardGateScenario exercises a bug's verifying -> closed
// transition, hard-gated on fix_verification.
func TestHardGateScenario(t *testing.T) {
	r := newTestRegistry(t)

	res := r.ValidateTransition("bug", "verifying", "closed", types.Fields{})
	if res.Allowed {
		t.Fatalf("expected verifying->closed to be rejected without fix_verification")
	}
	if len(res.MissingFields) != 1 || res.MissingFields[0] != "fix_verification" {
		t.Fatalf("expected missing_fields=[fix_verification], got %v", res.MissingFields)
	}

	res = r.ValidateTransition("bug", "verifying", "closed", types.Fields{
		"fix_verification": types.Text("verified via regression test"),
	})
	if !res.Allowed {
		t.Fatalf("expected verifying->closed to succeed once fix_verification is set")
	}
}

func TestSoftTransitionRecordsWarningNotRejection(t *testing.T) {
	r := newTestRegistry(t)
	// bug's open->closed is declared soft, and fix_verification is
	// required_at "closed", so closing straight from open without it is
	// allowed but carries a warning.
	res := r.ValidateTransition("bug", "open", "closed", types.Fields{})
	if !res.Allowed {
		t.Fatalf("expected soft transition to be allowed even with fields missing")
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a warning for the missing fix_verification, got none")
	}
}

func TestGetCategoryFallsBackToDefaultStatesForUnknownType(t *testing.T) {
	r := newTestRegistry(t)
	if cat := r.GetCategory("no-such-type", "in_progress"); cat != types.CategoryWIP {
		t.Fatalf("expected default state list category wip, got %q", cat)
	}
}

func TestGetValidTransitionsExcludesHardGatedWithoutFields(t *testing.T) {
	r := newTestRegistry(t)
	valid := r.GetValidTransitions("bug", "verifying", types.Fields{})
	for _, to := range valid {
		if to == "closed" {
			t.Fatalf("closed should not be reachable without fix_verification, got %v", valid)
		}
	}
}

func TestListTypesIncludesBuiltinPack(t *testing.T) {
	r := newTestRegistry(t)
	names := map[string]bool{}
	for _, tt := range r.ListTypes() {
		names[tt.Type] = true
	}
	for _, want := range []string{"bug", "feature", "task", "chore", "epic", "milestone", "phase", "step"} {
		if !names[want] {
			t.Fatalf("expected built-in type %q in registry, got %v", want, names)
		}
	}
}
