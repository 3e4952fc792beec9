package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/filigree-dev/keel/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "filigree.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newIssue(id string) *types.Issue {
	now := time.Now().UTC()
	return &types.Issue{
		ID: id, Title: "title " + id, Status: types.StatusOpen, Priority: 2, Type: "task",
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestCreateIssueThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := newIssue("proj-000001")
	in.Description = "a description"
	if err := s.CreateIssue(ctx, in); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	out, err := s.GetIssue(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if out.Title != in.Title || out.Description != in.Description {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}

func TestWALModeIsEnabled(t *testing.T) {
	s := newTestStore(t)
	var journalMode string
	if err := s.sqlDB().QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetIssue(context.Background(), "no-such-id"); types.CodeOf(err) != types.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestClaimIssueConditionalUpdateOnlyClaimsUnassigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := newIssue("proj-000002")
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	ok, err := s.ClaimIssue(ctx, issue.ID, "alice", now)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = s.ClaimIssue(ctx, issue.ID, "bob", now)
	if err != nil {
		t.Fatalf("ClaimIssue: %v", err)
	}
	if ok {
		t.Fatalf("expected second claim against an already-assigned issue to fail")
	}
}

func TestUpdateIssueNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateIssue(context.Background(), newIssue("ghost")); types.CodeOf(err) != types.CodeNotFound {
		t.Fatalf("expected not_found updating a nonexistent issue")
	}
}

func TestAddDependencyIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := newIssue("proj-a"), newIssue("proj-b")
	if err := s.CreateIssue(ctx, a); err != nil {
		t.Fatalf("CreateIssue a: %v", err)
	}
	if err := s.CreateIssue(ctx, b); err != nil {
		t.Fatalf("CreateIssue b: %v", err)
	}

	dep := types.Dependency{From: a.ID, To: b.ID, Type: "blocks"}
	if err := s.AddDependency(ctx, dep); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	// INSERT OR IGNORE: a second identical edge must not error or duplicate.
	if err := s.AddDependency(ctx, dep); err != nil {
		t.Fatalf("AddDependency (duplicate): %v", err)
	}

	edges, err := s.OutgoingEdges(ctx, "blocks")
	if err != nil {
		t.Fatalf("OutgoingEdges: %v", err)
	}
	if len(edges[a.ID]) != 1 {
		t.Fatalf("expected exactly one outgoing edge for %s, got %v", a.ID, edges[a.ID])
	}
}
