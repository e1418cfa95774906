package watch

import (
	"time"

	"hone/internal/types"
)

// EventKind is what a new item snapshot means. The log carries plain
// snapshots, not pre-classified events, so the kind is inferred from the
// item's status and timestamps.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventClosed  EventKind = "closed"
)

// createdWindow is how close updatedAt must sit to createdAt for a
// first sighting to count as a creation rather than an update to an item
// that predates the watcher.
const createdWindow = 2 * time.Second

// ItemEvent pairs a snapshot with its inferred kind.
type ItemEvent struct {
	Kind EventKind
	Item types.WorkItem
}

// Classify infers the event kind for a snapshot. firstSighting reports
// whether the watcher has seen this item id before: repeat sightings are
// never creations, whatever the timestamps say.
func Classify(item types.WorkItem, firstSighting bool) EventKind {
	if item.Status == types.ItemClosed {
		return EventClosed
	}
	if firstSighting && !item.CreatedAt.IsZero() &&
		item.UpdatedAt.Sub(item.CreatedAt) <= createdWindow {
		return EventCreated
	}
	return EventUpdated
}
