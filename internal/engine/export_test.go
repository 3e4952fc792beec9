package engine_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filigree-dev/keel/internal/engine"
)

// TestExportImportRoundTrip writes every issue/dependency/label/comment
// out of one store and replays them into a fresh one, checking the
// counts line up rather than re-diffing every field.
func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, src, engine.CreateIssueInput{Title: "exported a", Labels: []string{"core"}})
	b := mustCreate(t, src, engine.CreateIssueInput{Title: "exported b", Deps: []string{a.ID}})
	_, err := src.AddComment(ctx, b.ID, "tester", "needs a first")
	assert.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(t, src.ExportJSONL(ctx, &buf))
	assert.NotZero(t, buf.Len())

	dst := newTestEngine(t)
	result, err := dst.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), engine.ImportMerge)
	assert.NoError(t, err)
	assert.Equal(t, 2, result.IssuesCreated)
	assert.Equal(t, 1, result.Dependencies)
	assert.Equal(t, 1, result.Labels)
	assert.Equal(t, 1, result.Comments)

	got, err := dst.GetIssue(ctx, b.ID)
	assert.NoError(t, err)
	assert.Equal(t, "exported b", got.Title)
	assert.Len(t, got.Dependencies, 1)
	assert.Equal(t, b.ID, got.Dependencies[0].From)
	assert.Equal(t, a.ID, got.Dependencies[0].To)
}

// TestImportJSONLMergeSkipsExistingIDs confirms a second import of the
// same stream is a no-op on issues under merge mode, rather than erroring.
func TestImportJSONLMergeSkipsExistingIDs(t *testing.T) {
	src := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, src, engine.CreateIssueInput{Title: "once"})

	var buf bytes.Buffer
	assert.NoError(t, src.ExportJSONL(ctx, &buf))

	dst := newTestEngine(t)
	first, err := dst.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), engine.ImportMerge)
	assert.NoError(t, err)
	assert.Equal(t, 1, first.IssuesCreated)

	second, err := dst.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), engine.ImportMerge)
	assert.NoError(t, err)
	assert.Equal(t, 0, second.IssuesCreated)
	assert.Equal(t, 1, second.IssuesSkipped)
}
