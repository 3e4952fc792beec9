// Package engine composes the store and template registry into the
// full operation set collaborators (CLI, tool-server, dashboard) wrap.
// It owns no I/O of its own beyond the store, the summary file, and
// JSONL files; it never parses config or pack files itself (those are
// collaborator responsibilities).
package engine

import (
	"context"
	"time"

	"github.com/filigree-dev/keel/internal/idgen"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/templates"
	"github.com/filigree-dev/keel/internal/types"
)

// Engine is the process-local handle wrapping one connection to the
// store, composed with a template registry and a resolved config.
type Engine struct {
	store    *store.Store
	registry *templates.Registry
	config   types.Config

	// now is overridden in tests to make timestamp-dependent behavior
	// (stale WIP detection, flow metrics) deterministic.
	now func() time.Time
}

// New constructs an Engine over an already-open store and registry.
func New(st *store.Store, reg *templates.Registry, cfg types.Config) *Engine {
	return &Engine{store: st, registry: reg, config: cfg.Resolve(), now: func() time.Time { return time.Now().UTC() }}
}

func (e *Engine) exists(ctx context.Context) idgen.Exists {
	return func(id string) (bool, error) { return e.store.IssueExists(ctx, id) }
}

func formatRFC3339(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
