package watch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hone/internal/config"
	"hone/internal/logging"
	"hone/internal/tracker"
	"hone/internal/types"
)

func TestWatcherStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	review := logging.NewEventLog(filepath.Join(dir, "review.jsonl"))
	router := NewRouter(map[string]string{}, review, tracker.NewMemory())

	w, err := New(filepath.Join(dir, "events.jsonl"), router)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Running())

	// Start is idempotent.
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	assert.False(t, w.Running())

	// Stop is idempotent too.
	w.Stop()
}

func TestWatcherRoutesAppendedSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	itemLog := tracker.NewItemLog(logPath)
	review := logging.NewEventLog(filepath.Join(dir, "review.jsonl"))
	router := NewRouter(map[string]string{
		"created": config.ReviewDestFile,
		"closed":  config.ReviewDestFile,
	}, review, tracker.NewMemory())

	w, err := New(logPath, router)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	now := time.Now().UTC()
	require.NoError(t, itemLog.Append(types.WorkItem{
		ID: "hn-1", Title: "a", Status: types.ItemOpen, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, itemLog.Append(types.WorkItem{
		ID: "hn-1", Title: "a", Status: types.ItemClosed, CreatedAt: now, UpdatedAt: now.Add(time.Minute),
	}))

	require.Eventually(t, func() bool {
		return w.GetStats().LinesRead == 2
	}, 5*time.Second, 20*time.Millisecond, "watcher never consumed the appended snapshots")

	stats := w.GetStats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Closed)

	events, _, err := review.Read()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, logging.EventItemCreated, events[0].Kind)
	assert.Equal(t, logging.EventItemClosed, events[1].Kind)
}

func TestWatcherTriggersCycleOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	itemLog := tracker.NewItemLog(logPath)
	review := logging.NewEventLog(filepath.Join(dir, "review.jsonl"))
	router := NewRouter(map[string]string{}, review, tracker.NewMemory())

	w, err := New(logPath, router)
	require.NoError(t, err)

	var mu sync.Mutex
	var closed []string
	w.OnClosed = func(_ context.Context, item types.WorkItem) {
		mu.Lock()
		closed = append(closed, item.ID)
		mu.Unlock()
	}

	require.NoError(t, w.Start(context.Background()))

	now := time.Now().UTC()
	require.NoError(t, itemLog.Append(types.WorkItem{
		ID: "hn-1", Status: types.ItemOpen, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, itemLog.Append(types.WorkItem{
		ID: "hn-1", Status: types.ItemClosed, CreatedAt: now, UpdatedAt: now.Add(time.Second),
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(closed) == 1
	}, 5*time.Second, 20*time.Millisecond)

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"hn-1"}, closed)
	assert.Equal(t, 1, w.GetStats().CyclesTriggered)
}

func TestWatcherIgnoresHistoryBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	itemLog := tracker.NewItemLog(logPath)

	// History from a previous run must not be replayed.
	require.NoError(t, itemLog.Append(types.WorkItem{ID: "old", Status: types.ItemClosed}))

	review := logging.NewEventLog(filepath.Join(dir, "review.jsonl"))
	router := NewRouter(map[string]string{"closed": config.ReviewDestFile}, review, tracker.NewMemory())

	w, err := New(logPath, router)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	now := time.Now().UTC()
	require.NoError(t, itemLog.Append(types.WorkItem{
		ID: "new", Status: types.ItemClosed, CreatedAt: now.Add(-time.Hour), UpdatedAt: now,
	}))

	require.Eventually(t, func() bool {
		return w.GetStats().LinesRead == 1
	}, 5*time.Second, 20*time.Millisecond)

	events, _, err := review.Read()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].Fields["itemId"])
}
