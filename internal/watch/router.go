package watch

import (
	"context"
	"fmt"

	"hone/internal/config"
	"hone/internal/logging"
	"hone/internal/tracker"
	"hone/internal/types"
)

// Router sends classified item events to their configured review
// destination: the review log, a tracker comment, a follow-up item, or
// nowhere.
type Router struct {
	routing   map[string]string
	reviewLog *logging.EventLog
	adapter   tracker.Adapter
}

// NewRouter builds a router over the given review-routing table.
func NewRouter(routing map[string]string, reviewLog *logging.EventLog, adapter tracker.Adapter) *Router {
	return &Router{routing: routing, reviewLog: reviewLog, adapter: adapter}
}

// Route delivers one event. Unrouted event kinds and the "none" destination
// are silently dropped. Delivery failures are returned so the watcher can
// count them, but they never stop the loop.
func (r *Router) Route(ctx context.Context, ev ItemEvent) error {
	dest, ok := r.routing[string(ev.Kind)]
	if !ok || dest == config.ReviewDestNone {
		return nil
	}

	switch dest {
	case config.ReviewDestFile:
		return r.toReviewLog(ev)
	case config.ReviewDestComment:
		return r.toComment(ctx, ev)
	case config.ReviewDestNewItem:
		return r.toNewItem(ctx, ev)
	default:
		return fmt.Errorf("unknown review destination %q for %s events", dest, ev.Kind)
	}
}

func (r *Router) toReviewLog(ev ItemEvent) error {
	return r.reviewLog.Append(eventKindName(ev.Kind), map[string]interface{}{
		"itemId": ev.Item.ID,
		"title":  ev.Item.Title,
		"status": string(ev.Item.Status),
	})
}

// toComment attaches a note to the item itself. Adapters that cannot comment
// fall back to the review log so the event is never lost.
func (r *Router) toComment(ctx context.Context, ev ItemEvent) error {
	c, ok := r.adapter.(tracker.Commenter)
	if !ok {
		logging.WatchDebug("adapter cannot comment, routing %s for %s to the review log", ev.Kind, ev.Item.ID)
		return r.toReviewLog(ev)
	}
	body := fmt.Sprintf("hone observed this item %s (status %s)", ev.Kind, ev.Item.Status)
	return c.Comment(ctx, ev.Item.ID, body)
}

func (r *Router) toNewItem(ctx context.Context, ev ItemEvent) error {
	followUp := types.WorkItem{
		Title:       fmt.Sprintf("Review: %s", ev.Item.Title),
		Description: fmt.Sprintf("Follow-up for item %s (%s)", ev.Item.ID, ev.Kind),
		Labels:      []string{"hone-review"},
	}
	created, err := r.adapter.Create(ctx, followUp)
	if err != nil {
		return err
	}
	return r.adapter.AddDep(ctx, types.ItemDep{
		FromID: created.ID,
		ToID:   ev.Item.ID,
		Type:   types.DepDiscoveredFrom,
	})
}

func eventKindName(kind EventKind) string {
	switch kind {
	case EventCreated:
		return logging.EventItemCreated
	case EventUpdated:
		return logging.EventItemUpdated
	default:
		return logging.EventItemClosed
	}
}
