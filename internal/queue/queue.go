// Package queue implements the durable delta queue: a pretty-printed JSON
// array file, sorted on every write for deterministic diffs.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"hone/internal/fsutil"
	"hone/internal/logging"
	"hone/internal/types"
)

// Queue is the durable FIFO-ish delta queue. The queue file is wholly
// rewritten on every mutation; this type is its sole writer.
type Queue struct {
	path string
	mu   sync.Mutex
}

// New returns a queue backed by the given file path.
func New(path string) *Queue {
	return &Queue{path: path}
}

// Path returns the queue file path.
func (q *Queue) Path() string {
	return q.path
}

// Read returns all queued deltas. A missing file is an empty queue;
// malformed JSON is fatal.
func (q *Queue) Read() ([]types.Delta, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read delta queue: %w", err)
	}

	var deltas []types.Delta
	if err := json.Unmarshal(data, &deltas); err != nil {
		return nil, types.Parsef("delta queue %s: %v", q.path, err)
	}
	return deltas, nil
}

// Write replaces the queue with the given deltas, sorted by
// (section asc, created_at asc).
func (q *Queue) Write(all []types.Delta) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writeLocked(all)
}

func (q *Queue) writeLocked(all []types.Delta) error {
	sorted := make([]types.Delta, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Section != sorted[j].Section {
			return sorted[i].Section < sorted[j].Section
		}
		return sorted[i].Metadata.CreatedAt.Before(sorted[j].Metadata.CreatedAt)
	})

	if sorted == nil {
		sorted = []types.Delta{}
	}
	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal delta queue: %w", err)
	}

	if err := fsutil.WriteAtomic(q.path, append(data, '\n'), 0644); err != nil {
		return err
	}
	logging.QueueDebug("wrote %d deltas to %s", len(sorted), q.path)
	return nil
}

// Enqueue appends a batch to the queue.
func (q *Queue) Enqueue(batch []types.Delta) error {
	if len(batch) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.Read()
	if err != nil {
		return err
	}
	logging.Queue("enqueueing %d deltas (queue had %d)", len(batch), len(existing))
	return q.writeLocked(append(existing, batch...))
}

// Dequeue removes the deltas with the given ids and returns them.
// Unknown ids are ignored.
func (q *Queue) Dequeue(ids []string) ([]types.Delta, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.Read()
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var taken, remaining []types.Delta
	for _, d := range existing {
		if want[d.ID] {
			taken = append(taken, d)
		} else {
			remaining = append(remaining, d)
		}
	}
	if len(taken) == 0 {
		return nil, nil
	}

	if err := q.writeLocked(remaining); err != nil {
		return nil, err
	}
	logging.Queue("dequeued %d deltas (%d remain)", len(taken), len(remaining))
	return taken, nil
}

// Clear empties the queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writeLocked(nil)
}
