package types

import "time"

// Comment is a free-text note attached to an issue.
type Comment struct {
	ID        int64
	IssueID   string
	Author    string
	Text      string
	CreatedAt time.Time
}

// Label is a name attached to an issue; composite identity is
// (IssueID, Name). There is no separate registry of label names.
type Label struct {
	IssueID string
	Name    string
}

// reservedLabelNames can never be attached to an issue: they collide
// with query-language wildcards and filter shorthands used throughout
// the list/search operations.
var reservedLabelNames = map[string]bool{
	"all":  true,
	"none": true,
	"any":  true,
	"*":    true,
}

// ValidateLabelName rejects empty, reserved, or whitespace-containing
// label names.
func ValidateLabelName(name string) error {
	if name == "" {
		return Invalid("label name must not be empty")
	}
	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' {
			return Invalid("label name %q must not contain whitespace", name)
		}
	}
	if reservedLabelNames[name] {
		return Invalid("label name %q is reserved", name)
	}
	return nil
}
