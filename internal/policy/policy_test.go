package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempPolicy(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.ReservedLabels) != 0 || len(p.DisabledPacks) != 0 {
		t.Fatalf("expected zero-value policy, got %+v", p)
	}
}

func TestLoad(t *testing.T) {
	path := writeTempPolicy(t, `
reserved_labels:
  - do-not-use
  - " spaced "
disabled_packs:
  - experimental
required_labels:
  epic:
    - triaged
    - owner-assigned
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.IsReservedLabel("do-not-use") {
		t.Error("expected do-not-use to be reserved")
	}
	if !p.IsReservedLabel("spaced") {
		t.Error("expected trimmed label to be reserved")
	}
	if p.IsReservedLabel("fine") {
		t.Error("unexpected reserved label")
	}
	missing := p.MissingRequiredLabels("epic", []string{"triaged"})
	if len(missing) != 1 || missing[0] != "owner-assigned" {
		t.Fatalf("expected [owner-assigned], got %v", missing)
	}
}

func TestPackEnabled(t *testing.T) {
	cases := []struct {
		name          string
		disabled      []string
		configEnabled []string
		pack          string
		want          bool
	}{
		{"no config list means everything enabled", nil, nil, "core", true},
		{"explicit config list excludes unlisted", nil, []string{"core"}, "extra", false},
		{"disabled overrides config", []string{"core"}, []string{"core"}, "core", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Policy{DisabledPacks: tc.disabled}
			if got := p.PackEnabled(tc.pack, tc.configEnabled); got != tc.want {
				t.Errorf("PackEnabled(%q, %v) = %v, want %v", tc.pack, tc.configEnabled, got, tc.want)
			}
		})
	}
}
