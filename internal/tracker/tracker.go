// Package tracker adapts external issue trackers to the minimal surface the
// learning pipeline needs: item CRUD, typed dependencies, readiness, and an
// append-only event log that closure triggers hang off.
package tracker

import (
	"context"
	"fmt"

	"hone/internal/config"
	"hone/internal/types"
)

// UpdateFields is a partial item update. Zero-valued fields are left alone;
// Priority uses a pointer so zero is expressible.
type UpdateFields struct {
	Title       string
	Description string
	Status      types.ItemStatus
	Priority    *int
	Labels      []string
}

// Adapter is the tracker surface. Items are observed, never owned: the
// external tracker keeps authority over ids and status transitions.
type Adapter interface {
	// Create registers a new item. An empty id is assigned by the tracker.
	Create(ctx context.Context, item types.WorkItem) (types.WorkItem, error)
	// List returns items, filtered to one status when status is non-empty.
	List(ctx context.Context, status types.ItemStatus) ([]types.WorkItem, error)
	// Show returns one item by id. A missing item is an artifact-missing
	// error.
	Show(ctx context.Context, id string) (types.WorkItem, error)
	// Update applies a partial update and returns the new state.
	Update(ctx context.Context, id string, fields UpdateFields) (types.WorkItem, error)
	// Close marks the item closed and returns its final state.
	Close(ctx context.Context, id string) (types.WorkItem, error)
	// Ready returns open items with no open blockers.
	Ready(ctx context.Context) ([]types.WorkItem, error)
	// AddDep records one typed dependency edge.
	AddDep(ctx context.Context, dep types.ItemDep) error
	// DepTree returns every dependency edge reachable from id.
	DepTree(ctx context.Context, id string) ([]types.ItemDep, error)
	// DiscoveredFrom lists items discovered while working parentID.
	DiscoveredFrom(ctx context.Context, parentID string) ([]types.WorkItem, error)
	// Export returns every item, for JSON snapshots.
	Export(ctx context.Context) ([]types.WorkItem, error)
}

// Commenter is implemented by adapters whose tracker can attach comments to
// items. Callers type-assert and fall back to the review log when the
// adapter cannot comment.
type Commenter interface {
	Comment(ctx context.Context, id, body string) error
}

// New returns the adapter the config selects. The cli adapter shells out to
// the configured tracker binary; local keeps items in a SQLite file; memory
// is the in-process stub.
func New(cfg *config.Config) (Adapter, error) {
	tc := cfg.Tracker
	switch tc.Adapter {
	case config.AdapterCLI:
		return NewCLI(tc.Bin, cfg.GetTrackerTimeout()), nil
	case config.AdapterLocal:
		return NewLocal(tc.DBPath)
	case config.AdapterMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown tracker adapter %q", tc.Adapter)
	}
}
