package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/filigree-dev/keel"
	"github.com/filigree-dev/keel/internal/engine"
	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

type opFunc func(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error)

type opEntry struct {
	run opFunc
	// mutating marks an operation whose effect should trigger a
	// context-summary republish, per the "triggered... after every
	// mutation" contract the CLI and tool-server collaborators share.
	mutating bool
}

// operations is the complete dispatch table, one entry per operation
// the tracker exposes to collaborators.
var operations map[string]opEntry

func init() {
	operations = map[string]opEntry{
		"create_issue":  {run: opCreateIssue, mutating: true},
		"get_issue":     {run: opGetIssue},
		"update_issue":  {run: opUpdateIssue, mutating: true},
		"close_issue":   {run: opCloseIssue, mutating: true},
		"reopen_issue":  {run: opReopenIssue, mutating: true},
		"list_issues":   {run: opListIssues},
		"search_issues": {run: opSearchIssues},
		"claim_issue":   {run: opClaimIssue, mutating: true},
		"release_claim": {run: opReleaseClaim, mutating: true},
		"claim_next":    {run: opClaimNext, mutating: true},
		"batch_close":   {run: opBatchClose, mutating: true},
		"batch_update":  {run: opBatchUpdate, mutating: true},

		"add_dependency":      {run: opAddDependency, mutating: true},
		"remove_dependency":   {run: opRemoveDependency, mutating: true},
		"get_all_dependencies": {run: opGetAllDependencies},
		"get_ready":           {run: opGetReady},
		"get_blocked":         {run: opGetBlocked},
		"get_critical_path":   {run: opGetCriticalPath},

		"create_plan": {run: opCreatePlan, mutating: true},
		"get_plan":    {run: opGetPlan},

		"get_type":              {run: opGetType},
		"list_types":            {run: opListTypes},
		"list_packs":            {run: opListPacks},
		"get_valid_transitions": {run: opGetValidTransitions},
		"validate_issue":        {run: opValidateIssue},
		"reload_templates":      {run: opReloadTemplates},
		"get_workflow_guide":    {run: opGetWorkflowGuide},
		"explain_state":         {run: opExplainState},

		"add_comment":  {run: opAddComment, mutating: true},
		"get_comments": {run: opGetComments},
		"add_label":    {run: opAddLabel, mutating: true},
		"remove_label": {run: opRemoveLabel, mutating: true},

		"get_recent_events": {run: opGetRecentEvents},
		"get_events_since":  {run: opGetEventsSince},
		"get_issue_events":  {run: opGetIssueEvents},
		"undo_last":         {run: opUndoLast, mutating: true},

		"get_stats":        {run: opGetStats},
		"get_flow_metrics": {run: opGetFlowMetrics},
		"archive_closed":   {run: opArchiveClosed, mutating: true},
		"compact_events":   {run: opCompactEvents},
		"vacuum":           {run: opVacuum},
		"analyze":          {run: opAnalyze},
		"export_jsonl":     {run: opExportJSONL},
		"import_jsonl":     {run: opImportJSONL, mutating: true},

		"render_summary_to": {run: opRenderSummaryTo},
	}
}

func unmarshalParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, types.Invalid("parse params: %v", err)
	}
	return v, nil
}

func resolveActor(given, fallback string) string {
	if given != "" {
		return given
	}
	return fallback
}

// --- issues ---

func opCreateIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	in, err := unmarshalParams[engine.CreateIssueInput](raw)
	if err != nil {
		return nil, err
	}
	in.Actor = resolveActor(in.Actor, actor)
	return h.Engine.CreateIssue(ctx, in)
}

type idParams struct {
	ID string `json:"id"`
}

func opGetIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetIssue(ctx, p.ID)
}

type updateIssueParams struct {
	ID     string `json:"id"`
	engine.UpdateIssueInput
}

func opUpdateIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[updateIssueParams](raw)
	if err != nil {
		return nil, err
	}
	p.Actor = resolveActor(p.Actor, actor)
	return h.Engine.UpdateIssue(ctx, p.ID, p.UpdateIssueInput)
}

type closeIssueParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func opCloseIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[closeIssueParams](raw)
	if err != nil {
		return nil, err
	}
	issue, unblocked, err := h.Engine.CloseIssue(ctx, p.ID, p.Reason, actor)
	if err != nil {
		return nil, err
	}
	return struct {
		Issue     *engine.IssueDetail   `json:"issue"`
		Unblocked []*engine.IssueDetail `json:"unblocked"`
	}{issue, unblocked}, nil
}

func opReopenIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ReopenIssue(ctx, p.ID, actor)
}

func opListIssues(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	f, err := unmarshalParams[store.IssueFilter](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ListIssues(ctx, f)
}

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func opSearchIssues(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[searchParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.SearchIssues(ctx, p.Query, p.Limit)
}

type claimIssueParams struct {
	ID       string `json:"id"`
	Assignee string `json:"assignee"`
}

func opClaimIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[claimIssueParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ClaimIssue(ctx, p.ID, p.Assignee, actor)
}

func opReleaseClaim(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ReleaseClaim(ctx, p.ID, actor)
}

type claimNextParams struct {
	Assignee string `json:"assignee"`
	engine.ClaimNextFilter
}

func opClaimNext(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[claimNextParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ClaimNext(ctx, p.Assignee, actor, p.ClaimNextFilter)
}

type batchCloseParams struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}

func opBatchClose(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[batchCloseParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.BatchClose(ctx, p.IDs, p.Reason, actor), nil
}

type batchUpdateParams struct {
	IDs []string `json:"ids"`
	engine.UpdateIssueInput
}

func opBatchUpdate(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[batchUpdateParams](raw)
	if err != nil {
		return nil, err
	}
	p.Actor = resolveActor(p.Actor, actor)
	return h.Engine.BatchUpdate(ctx, p.IDs, p.UpdateIssueInput), nil
}

// --- dependencies ---

type depParams struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

func opAddDependency(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[depParams](raw)
	if err != nil {
		return nil, err
	}
	return nil, h.Engine.AddDependency(ctx, p.From, p.To, p.Type)
}

func opRemoveDependency(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[depParams](raw)
	if err != nil {
		return nil, err
	}
	return nil, h.Engine.RemoveDependency(ctx, p.From, p.To, p.Type)
}

func opGetAllDependencies(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	out, in, err := h.Engine.GetAllDependencies(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return struct {
		Outgoing []types.Dependency `json:"outgoing"`
		Incoming []types.Dependency `json:"incoming"`
	}{out, in}, nil
}

func opGetReady(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return h.Engine.GetReady(ctx)
}

func opGetBlocked(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return h.Engine.GetBlocked(ctx)
}

func opGetCriticalPath(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return h.Engine.GetCriticalPath(ctx)
}

// --- plans ---

func opCreatePlan(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	in, err := unmarshalParams[engine.CreatePlanInput](raw)
	if err != nil {
		return nil, err
	}
	in.Actor = resolveActor(in.Actor, actor)
	return h.Engine.CreatePlan(ctx, in)
}

type milestoneParams struct {
	MilestoneID string `json:"milestone_id"`
}

func opGetPlan(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[milestoneParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetPlan(ctx, p.MilestoneID)
}

// --- templates ---

type typeNameParams struct {
	Type string `json:"type"`
}

func opGetType(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[typeNameParams](raw)
	if err != nil {
		return nil, err
	}
	t, ok := h.Engine.GetType(p.Type)
	if !ok {
		return nil, types.NotFound("type %q is not registered", p.Type)
	}
	return t, nil
}

func opListTypes(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return h.Engine.ListTypes(), nil
}

func opListPacks(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return h.Engine.ListPacks(), nil
}

type transitionsParams struct {
	Type   string       `json:"type"`
	From   string       `json:"from"`
	Fields types.Fields `json:"fields"`
}

func opGetValidTransitions(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[transitionsParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetValidTransitions(p.Type, p.From, p.Fields), nil
}

type validateIssueParams struct {
	Type   string       `json:"type"`
	Status string       `json:"status"`
	Fields types.Fields `json:"fields"`
}

func opValidateIssue(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[validateIssueParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ValidateIssue(p.Type, p.Status, p.Fields), nil
}

func opReloadTemplates(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return nil, h.Engine.ReloadTemplates()
}

type packNameParams struct {
	Pack string `json:"pack"`
}

func opGetWorkflowGuide(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[packNameParams](raw)
	if err != nil {
		return nil, err
	}
	guide, ok := h.Engine.GetWorkflowGuide(p.Pack)
	if !ok {
		return nil, types.NotFound("no guide for pack %q", p.Pack)
	}
	return guide, nil
}

type explainParams struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

func opExplainState(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[explainParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ExplainState(p.Type, p.State), nil
}

// --- comments/labels ---

type addCommentParams struct {
	IssueID string `json:"issue_id"`
	Text    string `json:"text"`
}

func opAddComment(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[addCommentParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.AddComment(ctx, p.IssueID, actor, p.Text)
}

type issueIDParams struct {
	IssueID string `json:"issue_id"`
}

func opGetComments(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[issueIDParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetComments(ctx, p.IssueID)
}

type labelParams struct {
	IssueID string `json:"issue_id"`
	Name    string `json:"name"`
}

func opAddLabel(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[labelParams](raw)
	if err != nil {
		return nil, err
	}
	return nil, h.Engine.AddLabel(ctx, p.IssueID, p.Name, actor)
}

func opRemoveLabel(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[labelParams](raw)
	if err != nil {
		return nil, err
	}
	return nil, h.Engine.RemoveLabel(ctx, p.IssueID, p.Name, actor)
}

// --- events/history ---

type limitParams struct {
	Limit int `json:"limit"`
}

func opGetRecentEvents(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[limitParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetRecentEvents(ctx, p.Limit)
}

type sinceParams struct {
	AfterID int64 `json:"after_id"`
	Limit   int   `json:"limit"`
}

func opGetEventsSince(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[sinceParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetEventsSince(ctx, p.AfterID, p.Limit)
}

func opGetIssueEvents(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[issueIDParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetIssueEvents(ctx, p.IssueID)
}

func opUndoLast(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[issueIDParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.UndoLast(ctx, p.IssueID)
}

// --- analytics/maintenance ---

func opGetStats(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return h.Engine.GetStats(ctx)
}

type flowMetricsParams struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

func opGetFlowMetrics(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[flowMetricsParams](raw)
	if err != nil {
		return nil, err
	}
	since, until, err := parseWindowRFC3339(p.Since, p.Until)
	if err != nil {
		return nil, err
	}
	return h.Engine.GetFlowMetrics(ctx, since, until)
}

type olderThanParams struct {
	OlderThanSeconds int64 `json:"older_than_seconds"`
}

func opArchiveClosed(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[olderThanParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.ArchiveClosed(ctx, secondsToDuration(p.OlderThanSeconds))
}

type keepRecentParams struct {
	KeepRecent int `json:"keep_recent"`
}

func opCompactEvents(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[keepRecentParams](raw)
	if err != nil {
		return nil, err
	}
	return h.Engine.CompactEvents(ctx, p.KeepRecent)
}

func opVacuum(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return nil, h.Engine.Vacuum(ctx)
}

func opAnalyze(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	return nil, h.Engine.Analyze(ctx)
}

type exportParams struct {
	Path string `json:"path"`
}

func opExportJSONL(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[exportParams](raw)
	if err != nil {
		return nil, err
	}
	var w io.Writer
	if p.Path == "" {
		var buf strings.Builder
		if err := h.Engine.ExportJSONL(ctx, &buf); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}
	f, err := os.Create(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w = f
	if err := h.Engine.ExportJSONL(ctx, w); err != nil {
		return nil, err
	}
	return p.Path, nil
}

type importParams struct {
	Path       string `json:"path"`
	OnCollision string `json:"on_collision"`
}

func opImportJSONL(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[importParams](raw)
	if err != nil {
		return nil, err
	}
	mode := engine.ImportMerge
	if p.OnCollision == string(engine.ImportAbort) {
		mode = engine.ImportAbort
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return h.Engine.ImportJSONL(ctx, f, mode)
}

type summaryPathParams struct {
	Path string `json:"path"`
}

func opRenderSummaryTo(ctx context.Context, h *keel.Handle, actor string, raw json.RawMessage) (any, error) {
	p, err := unmarshalParams[summaryPathParams](raw)
	if err != nil {
		return nil, err
	}
	path := p.Path
	if path == "" {
		path = h.Project.SummaryPath
	}
	if err := h.Engine.RenderSummaryTo(ctx, path); err != nil {
		return nil, err
	}
	return path, nil
}
