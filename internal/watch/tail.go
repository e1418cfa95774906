// Package watch observes the tracker's append-only event log and turns new
// item snapshots into classified events: review-log entries, tracker
// comments, follow-up items, or learning-cycle triggers.
package watch

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sync"

	"hone/internal/logging"
	"hone/internal/types"
)

// Tail reads item snapshots appended to a JSONL file past a remembered
// offset. Only complete lines are consumed; a partially written line stays in
// the file until a later read finds its newline. A truncated file resets the
// offset so log rotation starts clean.
type Tail struct {
	mu     sync.Mutex
	path   string
	offset int64
}

// NewTail returns a tail positioned at the start of the file.
func NewTail(path string) *Tail {
	return &Tail{path: path}
}

// NewTailAtEnd returns a tail positioned at the current end of the file, so
// only lines appended after this call are seen. A missing file is treated as
// empty.
func NewTailAtEnd(path string) (*Tail, error) {
	t := &Tail{path: path}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	t.offset = info.Size()
	return t, nil
}

// Offset returns the current read position.
func (t *Tail) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Next returns the item snapshots appended since the last call. Malformed
// lines are skipped and logged. A missing file yields nothing.
func (t *Tail) Next() ([]types.WorkItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		logging.WatchWarn("event log %s shrank, restarting from the top", t.path)
		t.offset = 0
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	// Consume only up to the last newline; the remainder is a line still
	// being written.
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	consumed := data[:end+1]
	t.offset += int64(len(consumed))

	var items []types.WorkItem
	for _, line := range bytes.Split(consumed, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var item types.WorkItem
		if err := json.Unmarshal(line, &item); err != nil {
			logging.WatchWarn("skipping malformed event line: %v", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
