package types

import "testing"

func TestValidatePriority(t *testing.T) {
	tests := []struct {
		name    string
		p       int
		wantErr bool
	}{
		{"min boundary accepted", 0, false},
		{"max boundary accepted", 4, false},
		{"below min rejected", -1, true},
		{"above max rejected", 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePriority(tt.p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePriority(%d) err=%v, wantErr=%v", tt.p, err, tt.wantErr)
			}
			if err != nil && CodeOf(err) != CodeInvalid {
				t.Fatalf("expected CodeInvalid, got %v", CodeOf(err))
			}
		})
	}
}

func TestValidateLabelName(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"normal label", "urgent", false},
		{"empty rejected", "", true},
		{"reserved rejected", "all", true},
		{"internal whitespace rejected", "needs review", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLabelName(tt.label)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLabelName(%q) err=%v, wantErr=%v", tt.label, err, tt.wantErr)
			}
		})
	}
}

func TestMergeFieldsShallow(t *testing.T) {
	base := Fields{
		"owner": Text("alice"),
		"meta":  Map(map[string]FieldValue{"a": Text("1"), "b": Text("2")}),
		"kept":  Text("unchanged"),
	}
	update := Fields{
		"owner": Text("bob"),
		"meta":  Map(map[string]FieldValue{"a": Text("99")}), // replaces whole subtree
	}

	out := MergeFields(base, update)

	if out["owner"].Text != "bob" {
		t.Fatalf("expected owner replaced, got %q", out["owner"].Text)
	}
	if out["kept"].Text != "unchanged" {
		t.Fatalf("expected kept preserved, got %q", out["kept"].Text)
	}
	if _, ok := out["meta"].Map["b"]; ok {
		t.Fatalf("expected nested subtree replaced wholesale, but key 'b' survived")
	}
	if out["meta"].Map["a"].Text != "99" {
		t.Fatalf("expected meta.a updated, got %q", out["meta"].Map["a"].Text)
	}
}

func TestMergeFieldsClearsScalarOnEmptyString(t *testing.T) {
	base := Fields{"assignee_note": Text("has note")}
	update := Fields{"assignee_note": Text("")}
	out := MergeFields(base, update)
	if !out["assignee_note"].IsEmpty() {
		t.Fatalf("expected empty string to clear the field")
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"six hex ok", "proj-a1b2c3", false},
		{"ten hex fallback ok", "proj-a1b2c3d4e5", false},
		{"missing separator", "projabc", true},
		{"uppercase rejected", "proj-ABCDEF", true},
		{"wrong length", "proj-abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateID(%q) err=%v, wantErr=%v", tt.id, err, tt.wantErr)
			}
		})
	}
}
