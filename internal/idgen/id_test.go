package idgen

import (
	"strings"
	"testing"
)

func TestGenerateShapeAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	exists := func(id string) (bool, error) { return seen[id], nil }

	for i := 0; i < 50; i++ {
		id, err := Generate("proj", exists)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !strings.HasPrefix(id, "proj-") {
			t.Fatalf("expected prefix proj-, got %q", id)
		}
		suffix := strings.TrimPrefix(id, "proj-")
		if len(suffix) != 6 {
			t.Fatalf("expected 6-hex suffix on first attempts, got %q", suffix)
		}
		if seen[id] {
			t.Fatalf("generated duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateFallsBackTo10HexOnCollisions(t *testing.T) {
	calls := 0
	exists := func(id string) (bool, error) {
		calls++
		suffix := strings.TrimPrefix(id, "proj-")
		// Reject every 6-hex candidate, forcing the fallback.
		return len(suffix) == 6, nil
	}

	id, err := Generate("proj", exists)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	suffix := strings.TrimPrefix(id, "proj-")
	if len(suffix) != 10 {
		t.Fatalf("expected fallback to 10-hex suffix, got %q (len %d)", suffix, len(suffix))
	}
	if calls < maxShortAttempts {
		t.Fatalf("expected at least %d attempts before fallback, got %d", maxShortAttempts, calls)
	}
}

func TestGenerateExhaustion(t *testing.T) {
	exists := func(id string) (bool, error) { return true, nil }
	if _, err := Generate("proj", exists); err == nil {
		t.Fatalf("expected exhaustion error when every candidate collides")
	}
}
