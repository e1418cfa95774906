package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hone/internal/fsutil"
	"hone/internal/types"
)

func TestItemLogAppendRead(t *testing.T) {
	log := NewItemLog(filepath.Join(t.TempDir(), "items.jsonl"))

	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(types.WorkItem{ID: "hn-1", Title: "a", Status: types.ItemOpen, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, log.Append(types.WorkItem{ID: "hn-1", Title: "a", Status: types.ItemClosed, CreatedAt: now, UpdatedAt: now.Add(time.Hour)}))

	items, skipped, err := log.Read()
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, items, 2)
	assert.Equal(t, types.ItemOpen, items[0].Status)
	assert.Equal(t, types.ItemClosed, items[1].Status)
}

func TestItemLogMissingFile(t *testing.T) {
	log := NewItemLog(filepath.Join(t.TempDir(), "absent.jsonl"))
	items, skipped, err := log.Read()
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, items)
}

func TestItemLogSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.jsonl")
	require.NoError(t, fsutil.AppendLine(path, []byte(`{"id":"hn-1","status":"open"}`)))
	require.NoError(t, fsutil.AppendLine(path, []byte(`{broken`)))
	require.NoError(t, fsutil.AppendLine(path, []byte(`{"id":"hn-2","status":"open"}`)))

	log := NewItemLog(path)
	items, skipped, err := log.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Len(t, items, 2)
}

func TestRecorderMirrorsMutations(t *testing.T) {
	dir := t.TempDir()
	log := NewItemLog(filepath.Join(dir, "items.jsonl"))
	rec := NewRecorder(NewMemory(), log)
	ctx := context.Background()

	created, err := rec.Create(ctx, types.WorkItem{Title: "track me"})
	require.NoError(t, err)

	_, err = rec.Update(ctx, created.ID, UpdateFields{Status: types.ItemInProgress})
	require.NoError(t, err)

	_, err = rec.Close(ctx, created.ID)
	require.NoError(t, err)

	items, skipped, err := log.Read()
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, items, 3)
	assert.Equal(t, types.ItemOpen, items[0].Status)
	assert.Equal(t, types.ItemInProgress, items[1].Status)
	assert.Equal(t, types.ItemClosed, items[2].Status)
}

func TestRecorderReadsDoNotLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.jsonl")
	rec := NewRecorder(NewMemory(), NewItemLog(path))
	ctx := context.Background()

	created, err := rec.Create(ctx, types.WorkItem{Title: "x"})
	require.NoError(t, err)

	_, err = rec.Show(ctx, created.ID)
	require.NoError(t, err)
	_, err = rec.List(ctx, "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(data))
}

func TestRecorderOnClosedHook(t *testing.T) {
	log := NewItemLog(filepath.Join(t.TempDir(), "items.jsonl"))
	rec := NewRecorder(NewMemory(), log)
	ctx := context.Background()

	var fired []types.WorkItem
	rec.OnClosed = func(item types.WorkItem) { fired = append(fired, item) }

	created, err := rec.Create(ctx, types.WorkItem{Title: "x"})
	require.NoError(t, err)
	require.Empty(t, fired)

	_, err = rec.Update(ctx, created.ID, UpdateFields{Status: types.ItemInProgress})
	require.NoError(t, err)
	require.Empty(t, fired)

	_, err = rec.Close(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, created.ID, fired[0].ID)
	assert.Equal(t, types.ItemClosed, fired[0].Status)
}

func TestRecorderFailedMutationNotLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.jsonl")
	rec := NewRecorder(NewMemory(), NewItemLog(path))

	_, err := rec.Update(context.Background(), "ghost", UpdateFields{Title: "x"})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
