// Package tracestore owns the append-only execution trace log and its
// retention policy.
package tracestore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"hone/internal/config"
	"hone/internal/fsutil"
	"hone/internal/logging"
	"hone/internal/types"
)

// Store is the sole writer of the trace JSONL file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a store over the trace log at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the trace log path.
func (s *Store) Path() string {
	return s.path
}

// Append records one closed trace. Traces are never modified afterwards.
func (s *Store) Append(trace types.ExecutionTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to encode trace %s: %w", trace.TraceID, err)
	}
	if err := fsutil.AppendLine(s.path, data); err != nil {
		return err
	}
	logging.Traces("appended trace %s (bead=%s outcome=%s)", trace.TraceID, trace.BeadID, trace.Outcome)
	return nil
}

// Load reads every trace. A missing file is an empty history; malformed
// lines are skipped and counted.
func (s *Store) Load() ([]types.ExecutionTrace, int, error) {
	lines, err := fsutil.ReadLines(s.path)
	if err != nil {
		return nil, 0, err
	}

	var traces []types.ExecutionTrace
	skipped := 0
	for _, line := range lines {
		var t types.ExecutionTrace
		if err := json.Unmarshal(line, &t); err != nil {
			skipped++
			continue
		}
		traces = append(traces, t)
	}
	if skipped > 0 {
		logging.TracesWarn("skipped %d malformed lines in %s", skipped, s.path)
	}
	return traces, skipped, nil
}

// ForBead returns the traces recorded for one work-item, oldest first.
func (s *Store) ForBead(beadID string) ([]types.ExecutionTrace, error) {
	all, _, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []types.ExecutionTrace
	for _, t := range all {
		if t.BeadID == beadID {
			out = append(out, t)
		}
	}
	sortChronological(out)
	return out, nil
}

// RetentionResult reports one retention sweep.
type RetentionResult struct {
	Kept     int `json:"kept"`
	Archived int `json:"archived"`
}

// Retain applies the retention policy: per work-item, the newest
// MaxTracesPerBead traces always stay; traces beyond that cap are archived
// once they are older than MaxAgeInDays. The live file is rewritten in
// chronological order. The archive append happens before the rewrite so a
// crash cannot lose a trace.
func (s *Store) Retain(rc config.TraceRetentionConfig, now time.Time) (RetentionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryTraces, "retention sweep")
	defer timer.Stop()

	traces, _, err := s.Load()
	if err != nil {
		return RetentionResult{}, err
	}
	if len(traces) == 0 {
		return RetentionResult{}, nil
	}

	cutoff := now.AddDate(0, 0, -rc.MaxAgeInDays)

	perBead := make(map[string][]int)
	for i, t := range traces {
		perBead[t.BeadID] = append(perBead[t.BeadID], i)
	}

	archive := make(map[int]bool)
	for _, idxs := range perBead {
		if len(idxs) <= rc.MaxTracesPerBead {
			continue
		}
		// Newest first; everything past the cap is an eviction candidate.
		sort.SliceStable(idxs, func(a, b int) bool {
			return traces[idxs[a]].Timestamp.After(traces[idxs[b]].Timestamp)
		})
		for _, i := range idxs[rc.MaxTracesPerBead:] {
			if traces[i].Timestamp.Before(cutoff) {
				archive[i] = true
			}
		}
	}

	var kept []types.ExecutionTrace
	for i, t := range traces {
		if !archive[i] {
			kept = append(kept, t)
		}
	}
	sortChronological(kept)

	if len(archive) == 0 && inOrder(traces) {
		return RetentionResult{Kept: len(kept)}, nil
	}

	if len(archive) > 0 {
		idxs := make([]int, 0, len(archive))
		for i := range archive {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		for _, i := range idxs {
			data, err := json.Marshal(traces[i])
			if err != nil {
				return RetentionResult{}, fmt.Errorf("failed to encode trace %s: %w", traces[i].TraceID, err)
			}
			if err := fsutil.AppendLine(rc.ArchivePath, data); err != nil {
				return RetentionResult{}, err
			}
		}
	}

	var buf []byte
	for _, t := range kept {
		data, err := json.Marshal(t)
		if err != nil {
			return RetentionResult{}, fmt.Errorf("failed to encode trace %s: %w", t.TraceID, err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if err := fsutil.WriteAtomic(s.path, buf, 0644); err != nil {
		return RetentionResult{}, err
	}

	res := RetentionResult{Kept: len(kept), Archived: len(archive)}
	logging.Traces("retention kept %d traces, archived %d to %s", res.Kept, res.Archived, rc.ArchivePath)
	return res, nil
}

func sortChronological(traces []types.ExecutionTrace) {
	sort.SliceStable(traces, func(i, j int) bool {
		if !traces[i].Timestamp.Equal(traces[j].Timestamp) {
			return traces[i].Timestamp.Before(traces[j].Timestamp)
		}
		return traces[i].TraceID < traces[j].TraceID
	})
}

func inOrder(traces []types.ExecutionTrace) bool {
	for i := 1; i < len(traces); i++ {
		if traces[i].Timestamp.Before(traces[i-1].Timestamp) {
			return false
		}
	}
	return true
}
