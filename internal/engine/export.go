package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/filigree-dev/keel/internal/store"
	"github.com/filigree-dev/keel/internal/types"
)

// jsonlRecord is the envelope every exported line carries: a `_type`
// discriminator flattened alongside the record's own fields rather
// than nested under a "data" key.
type jsonlRecord struct {
	Type string `json:"_type"`
	Data any    `json:"-"`
}

// MarshalJSON flattens Data's fields alongside _type so an exported
// line matches the in-memory record's shape plus one added field.
func (r jsonlRecord) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(r.Data)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(r.Type)
	if err != nil {
		return nil, err
	}
	fields["_type"] = typeJSON

	buf := []byte{'{'}
	first := true
	for k, v := range fields {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ExportJSONL writes every issue, dependency, label, comment, and event
// to w, one JSON object per line, issues first so a streaming importer
// never sees a reference to an issue it hasn't created yet.
func (e *Engine) ExportJSONL(ctx context.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)

	total, err := e.store.TotalIssues(ctx)
	if err != nil {
		return err
	}
	issues, err := e.store.ListIssues(ctx, issueFilterAll(total))
	if err != nil {
		return err
	}
	for _, iss := range issues {
		if err := writeJSONLLine(bw, "issue", iss); err != nil {
			return err
		}
	}

	ids := make([]string, len(issues))
	for i, iss := range issues {
		ids[i] = iss.ID
	}
	outgoing, _, err := e.store.DependenciesBatch(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		for _, dep := range outgoing[id] {
			d := types.Dependency{From: dep.IssueID, To: dep.DependsOnID, Type: dep.LinkType}
			if err := writeJSONLLine(bw, "dependency", d); err != nil {
				return err
			}
		}
	}

	labelsByIssue, err := e.store.LabelsBatch(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		for _, name := range labelsByIssue[id] {
			if err := writeJSONLLine(bw, "label", types.Label{IssueID: id, Name: name}); err != nil {
				return err
			}
		}
	}

	for _, id := range ids {
		comments, err := e.store.GetComments(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range comments {
			if err := writeJSONLLine(bw, "comment", c); err != nil {
				return err
			}
		}
	}

	for _, id := range ids {
		events, err := e.store.GetIssueEvents(ctx, id)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := writeJSONLLine(bw, "event", ev); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

func writeJSONLLine(w *bufio.Writer, typeName string, data any) error {
	line, err := json.Marshal(jsonlRecord{Type: typeName, Data: data})
	if err != nil {
		return types.Wrap(types.CodeUnknown, err, "marshal %s record", typeName)
	}
	if _, err := w.Write(line); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// ImportCollisionMode controls ImportJSONL's behavior when an incoming
// issue id already exists in the target store.
type ImportCollisionMode string

const (
	// ImportMerge skips issues whose id already exists, along with any
	// dependency/label/comment/event record that references one.
	ImportMerge ImportCollisionMode = "merge"
	// ImportAbort fails the whole import on the first colliding id.
	ImportAbort ImportCollisionMode = "abort"
)

// ImportResult summarizes one ImportJSONL call.
type ImportResult struct {
	IssuesCreated int
	IssuesSkipped int
	Dependencies  int
	Labels        int
	Comments      int
	Events        int
}

// ImportJSONL reads r line by line and recreates the exported records,
// every insert running inside one BEGIN IMMEDIATE transaction so a
// failure partway through leaves the store untouched rather than
// half-imported; the transaction commits once the whole stream is read,
// and ANALYZE runs after the commit.
func (e *Engine) ImportJSONL(ctx context.Context, r io.Reader, mode ImportCollisionMode) (ImportResult, error) {
	var result ImportResult
	skipped := map[string]bool{}

	err := e.store.WithBulkTxn(ctx, func(tx *store.BulkTxn) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var head struct {
				Type string `json:"_type"`
			}
			if err := json.Unmarshal(line, &head); err != nil {
				return types.Wrap(types.CodeInvalid, err, "parse jsonl line")
			}

			switch head.Type {
			case "issue":
				var iss types.Issue
				if err := json.Unmarshal(line, &iss); err != nil {
					return types.Wrap(types.CodeInvalid, err, "parse issue record")
				}
				exists, err := tx.IssueExists(ctx, iss.ID)
				if err != nil {
					return err
				}
				if exists {
					if mode == ImportAbort {
						return types.Conflict("issue %s already exists", iss.ID)
					}
					skipped[iss.ID] = true
					result.IssuesSkipped++
					continue
				}
				if err := tx.CreateIssue(ctx, &iss); err != nil {
					return err
				}
				result.IssuesCreated++

			case "dependency":
				var dep types.Dependency
				if err := json.Unmarshal(line, &dep); err != nil {
					return types.Wrap(types.CodeInvalid, err, "parse dependency record")
				}
				if skipped[dep.From] || skipped[dep.To] {
					continue
				}
				if err := tx.AddDependency(ctx, dep); err != nil {
					return err
				}
				result.Dependencies++

			case "label":
				var l types.Label
				if err := json.Unmarshal(line, &l); err != nil {
					return types.Wrap(types.CodeInvalid, err, "parse label record")
				}
				if skipped[l.IssueID] {
					continue
				}
				if err := tx.AddLabel(ctx, l); err != nil {
					return err
				}
				result.Labels++

			case "comment":
				var c types.Comment
				if err := json.Unmarshal(line, &c); err != nil {
					return types.Wrap(types.CodeInvalid, err, "parse comment record")
				}
				if skipped[c.IssueID] {
					continue
				}
				if err := tx.AddComment(ctx, c); err != nil {
					return err
				}
				result.Comments++

			case "event":
				var ev types.Event
				if err := json.Unmarshal(line, &ev); err != nil {
					return types.Wrap(types.CodeInvalid, err, "parse event record")
				}
				if skipped[ev.IssueID] {
					continue
				}
				if err := tx.AppendEvent(ctx, ev); err != nil {
					return err
				}
				result.Events++

			default:
				return types.Invalid("unknown jsonl record type %q", head.Type)
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return result, err
	}

	if err := e.store.Analyze(ctx); err != nil {
		return result, err
	}
	return result, nil
}
