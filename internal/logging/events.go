package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one line in an append-only JSONL event log. Learning-cycle
// milestones, review notices, and watch-mode decisions all flow through this
// shape so downstream tooling can tail a single format.
type Event struct {
	Timestamp string                 `json:"timestamp"`
	Kind      string                 `json:"kind"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Event kinds emitted by the pipeline.
const (
	EventCycleStart     = "cycle_start"
	EventCycleComplete  = "cycle_complete"
	EventCycleAbort     = "cycle_abort"
	EventDeltaAccepted  = "delta_accepted"
	EventDeltaRejected  = "delta_rejected"
	EventBulletArchived = "bullet_archived"
	EventBulletPruned   = "bullet_pruned"
	EventItemCreated    = "item_created"
	EventItemUpdated    = "item_updated"
	EventItemClosed     = "item_closed"
	EventReviewPending  = "review_pending"
	EventRetentionSweep = "retention_sweep"
)

// EventLog appends structured events to a JSONL file. Writes are best-effort:
// a failed append is reported to the category logger but never fails the
// operation that produced the event.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog returns an event log backed by the given file path. The file and
// its parent directory are created on first append.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the backing file path.
func (e *EventLog) Path() string {
	return e.path
}

// Append writes one event line. The timestamp is set here so callers only
// supply the kind and fields.
func (e *EventLog) Append(kind string, fields map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Kind:      kind,
		Fields:    fields,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}

	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Read returns all events in the log, oldest first. A missing file yields an
// empty slice. Lines that fail to parse are skipped and counted.
func (e *EventLog) Read() ([]Event, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read event log: %w", err)
	}

	var events []Event
	skipped := 0
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				skipped++
				continue
			}
			events = append(events, ev)
		}
	}
	return events, skipped, nil
}
