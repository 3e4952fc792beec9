// Package keel is the project-level facade collaborators (cmd/keel,
// cmd/keel-tool, cmd/keel-dashboard) import instead of reaching into
// internal/* directly: it bootstraps a store, template registry, and
// engine from a project's `.filigree` directory, which holds the
// database file, the JSON config, the policy file, and the pack and
// template-override directories.
package keel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/filigree-dev/keel/internal/engine"
	"github.com/filigree-dev/keel/internal/policy"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/templates"
	"github.com/filigree-dev/keel/internal/types"
)

// Project re-exports the directory layout every collaborator shares,
// rooted at a ".filigree" directory inside the user's project.
type Project struct {
	Root string // the ".filigree" directory itself

	DBPath        string
	ConfigPath    string
	PolicyPath    string
	PacksDir      string
	OverridesDir  string
	SummaryPath   string
}

// DefaultProject resolves the standard layout under projectDir.
func DefaultProject(projectDir string) Project {
	root := filepath.Join(projectDir, ".filigree")
	return Project{
		Root:         root,
		DBPath:       filepath.Join(root, "filigree.db"),
		ConfigPath:   filepath.Join(root, "config.json"),
		PolicyPath:   filepath.Join(root, "policy.yaml"),
		PacksDir:     filepath.Join(root, "packs"),
		OverridesDir: filepath.Join(root, "templates"),
		SummaryPath:  filepath.Join(root, "context.md"),
	}
}

// LoadConfig reads p.ConfigPath, returning a zero-value (then resolved)
// Config if the file does not exist yet — a brand new project is valid,
// not an error.
func (p Project) LoadConfig() (types.Config, error) {
	data, err := os.ReadFile(p.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Config{}.Resolve(), nil
		}
		return types.Config{}, fmt.Errorf("read config %s: %w", p.ConfigPath, err)
	}
	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return types.Config{}, fmt.Errorf("parse config %s: %w", p.ConfigPath, err)
	}
	return cfg.Resolve(), nil
}

// SaveConfig writes cfg back to p.ConfigPath, creating p.Root if needed.
func (p Project) SaveConfig(cfg types.Config) error {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.ConfigPath, data, 0o644)
}

// LoadPolicy reads p.PolicyPath via the policy package.
func (p Project) LoadPolicy() (policy.Policy, error) {
	return policy.Load(p.PolicyPath)
}

// Handle bundles everything one CLI/tool-server/dashboard invocation
// needs: the open store, registry, engine, resolved config, and
// project-local policy.
type Handle struct {
	Project Project
	Store   *store.Store
	Engine  *engine.Engine
	Config  types.Config
	Policy  policy.Policy
}

// Open bootstraps a read-write Handle: creates p.Root if absent, opens
// (or creates) the store file, loads config/policy/templates.
func Open(ctx context.Context, p Project) (*Handle, error) {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir %s: %w", p.Root, err)
	}

	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	pol, err := p.LoadPolicy()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, p.DBPath)
	if err != nil {
		return nil, err
	}

	reg, err := templates.NewRegistry(p.PacksDir, p.OverridesDir, enabledPacksFor(cfg, pol))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Handle{
		Project: p,
		Store:   st,
		Engine:  engine.New(st, reg, cfg),
		Config:  cfg,
		Policy:  pol,
	}, nil
}

// OpenReadOnly bootstraps a Handle backed by a read-only store
// connection, for the dashboard collaborator.
func OpenReadOnly(ctx context.Context, p Project) (*Handle, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	pol, err := p.LoadPolicy()
	if err != nil {
		return nil, err
	}

	st, err := store.OpenReadOnly(ctx, p.DBPath)
	if err != nil {
		return nil, err
	}

	reg, err := templates.NewRegistry(p.PacksDir, p.OverridesDir, enabledPacksFor(cfg, pol))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Handle{
		Project: p,
		Store:   st,
		Engine:  engine.New(st, reg, cfg),
		Config:  cfg,
		Policy:  pol,
	}, nil
}

// Close releases the underlying store handle.
func (h *Handle) Close() error {
	return h.Store.Close()
}

// RenderSummary re-renders the project's context file at its
// conventional path, the republish every mutating collaborator
// triggers after a write.
func (h *Handle) RenderSummary(ctx context.Context) error {
	return h.Engine.RenderSummaryTo(ctx, h.Project.SummaryPath)
}

// enabledPacksFor applies the policy's disabled_packs override on top
// of the config's enabled_packs list.
func enabledPacksFor(cfg types.Config, pol policy.Policy) []string {
	if len(cfg.EnabledPacks) == 0 {
		return nil
	}
	var out []string
	for _, name := range cfg.EnabledPacks {
		if pol.PackEnabled(name, cfg.EnabledPacks) {
			out = append(out, name)
		}
	}
	return out
}
