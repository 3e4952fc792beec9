package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/filigree-dev/keel/internal/engine"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/templates"
	"github.com/filigree-dev/keel/internal/types"
)

// newTestEngine opens a fresh store under t.TempDir() and wraps it with
// the built-in template pack, mirroring how keel.Open composes the
// three pieces for a project directory.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "filigree.db")
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg, err := templates.NewRegistry("", "", nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	return engine.New(st, reg, types.Config{})
}

func mustCreate(t *testing.T, e *engine.Engine, in engine.CreateIssueInput) *engine.IssueDetail {
	t.Helper()
	if in.Type == "" {
		in.Type = "task"
	}
	if in.Actor == "" {
		in.Actor = "tester"
	}
	d, err := e.CreateIssue(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateIssue(%q): %v", in.Title, err)
	}
	return d
}
