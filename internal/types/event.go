package types

import "time"

// EventType is the canonical set of structured mutation names the
// journal records. Callers may add more, but these exist with exactly
// this meaning.
type EventType string

const (
	EventCreated            EventType = "created"
	EventTitleChanged        EventType = "title_changed"
	EventStatusChanged       EventType = "status_changed"
	EventPriorityChanged     EventType = "priority_changed"
	EventAssigneeChanged     EventType = "assignee_changed"
	EventParentChanged       EventType = "parent_changed"
	EventFieldsChanged       EventType = "fields_changed"
	EventDependencyAdded     EventType = "dependency_added"
	EventDependencyRemoved   EventType = "dependency_removed"
	EventLabelAdded          EventType = "label_added"
	EventLabelRemoved        EventType = "label_removed"
	EventCommentAdded        EventType = "comment_added"
	EventClaimed             EventType = "claimed"
	EventReleased            EventType = "released"
	EventArchived            EventType = "archived"
	EventTransitionWarning   EventType = "transition_warning"
	EventUndone              EventType = "undone"
)

// reversibleEvents is the set undo_last will consider; creates,
// archives, labels, dependencies, and fields_changed are skipped by
// policy. fields_changed carries no per-key old/new history in the
// journal's single old/new pair, so it can't be reconstructed into a
// real inverse and is left out rather than treated as a no-op "undo".
// undone is never reversible either: it is the record undo_last itself
// writes, and letting it be undone would just toggle the same change
// back and forth forever.
var reversibleEvents = map[EventType]bool{
	EventTitleChanged:    true,
	EventStatusChanged:   true,
	EventPriorityChanged: true,
	EventAssigneeChanged: true,
	EventParentChanged:   true,
}

// IsReversible reports whether undo_last may apply this event's inverse.
func (t EventType) IsReversible() bool { return reversibleEvents[t] }

// Event is an immutable append-only journal entry.
type Event struct {
	ID        int64
	IssueID   string
	Type      EventType
	Actor     string
	OldValue  string
	NewValue  string
	Comment   string
	CreatedAt time.Time
}
