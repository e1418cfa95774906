package tracker

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"hone/internal/fsutil"
	"hone/internal/logging"
	"hone/internal/types"
)

// ItemLog is the append-only file the watcher tails. Every mutation through a
// Recorder appends one WorkItem snapshot per line; consumers infer what
// happened by comparing the snapshot against what they already know.
type ItemLog struct {
	mu   sync.Mutex
	path string
}

// NewItemLog returns an item log backed by the given JSONL file.
func NewItemLog(path string) *ItemLog {
	return &ItemLog{path: path}
}

// Path returns the backing file path.
func (il *ItemLog) Path() string {
	return il.path
}

// Append writes one item snapshot as a JSON line.
func (il *ItemLog) Append(item types.WorkItem) error {
	il.mu.Lock()
	defer il.mu.Unlock()

	line, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return fsutil.AppendLine(il.path, line)
}

// Read returns all snapshots in file order, skipping malformed lines.
func (il *ItemLog) Read() ([]types.WorkItem, int, error) {
	lines, err := fsutil.ReadLines(il.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var items []types.WorkItem
	skipped := 0
	for _, line := range lines {
		var item types.WorkItem
		if err := json.Unmarshal(line, &item); err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}
	if skipped > 0 {
		logging.TrackerWarn("item log %s: skipped %d malformed lines", il.path, skipped)
	}
	return items, skipped, nil
}

// Recorder wraps an Adapter and appends a snapshot to the item log after
// every successful mutation. OnClosed, when set, fires after an item reaches
// the closed status; the learn engine hooks it to trigger a cycle.
type Recorder struct {
	Adapter

	log      *ItemLog
	OnClosed func(types.WorkItem)
}

// NewRecorder wraps inner so that mutations are mirrored to log.
func NewRecorder(inner Adapter, log *ItemLog) *Recorder {
	return &Recorder{Adapter: inner, log: log}
}

func (r *Recorder) record(item types.WorkItem) {
	if err := r.log.Append(item); err != nil {
		logging.TrackerWarn("failed to append item event: %v", err)
	}
	if item.Status == types.ItemClosed && r.OnClosed != nil {
		r.OnClosed(item)
	}
}

func (r *Recorder) Create(ctx context.Context, item types.WorkItem) (types.WorkItem, error) {
	created, err := r.Adapter.Create(ctx, item)
	if err != nil {
		return created, err
	}
	r.record(created)
	return created, nil
}

func (r *Recorder) Update(ctx context.Context, id string, fields UpdateFields) (types.WorkItem, error) {
	updated, err := r.Adapter.Update(ctx, id, fields)
	if err != nil {
		return updated, err
	}
	r.record(updated)
	return updated, nil
}

func (r *Recorder) Close(ctx context.Context, id string) (types.WorkItem, error) {
	closed, err := r.Adapter.Close(ctx, id)
	if err != nil {
		return closed, err
	}
	r.record(closed)
	return closed, nil
}
