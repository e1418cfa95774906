package queue

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hone/internal/types"
)

func mkDelta(section, content string, created time.Time) types.Delta {
	return types.Delta{
		ID:      uuid.NewString(),
		Section: section,
		Op:      types.OpAdd,
		Content: content,
		Metadata: types.DeltaMetadata{
			Confidence: 0.9,
			Evidence:   "seen in three separate runs",
			CreatedAt:  created,
		},
	}
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "deltas.json"))
	deltas, err := q.Read()
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestReadMalformedIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deltas.json")
	require.NoError(t, os.WriteFile(path, []byte("{not an array"), 0644))

	_, err := New(path).Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrParse))
}

func TestEnqueueReadDequeue(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "deltas.json"))
	now := time.Now().UTC().Truncate(time.Second)

	a := mkDelta("build/test/patterns", "Run tests in CI mode", now)
	b := mkDelta("typescript/patterns", "Avoid any in exports", now.Add(time.Minute))
	require.NoError(t, q.Enqueue([]types.Delta{a, b}))

	got, err := q.Read()
	require.NoError(t, err)
	require.Len(t, got, 2)

	taken, err := q.Dequeue([]string{a.ID, "unknown"})
	require.NoError(t, err)
	require.Len(t, taken, 1)
	assert.Equal(t, a.ID, taken[0].ID)

	remaining, err := q.Read()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].ID)
}

func TestWriteSortsBySectionThenCreatedAt(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "deltas.json"))
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	later := mkDelta("alpha/patterns", "Later in same section", base.Add(time.Hour))
	earlier := mkDelta("alpha/patterns", "Earlier in same section", base)
	zeta := mkDelta("zeta/patterns", "Different section entirely", base)
	require.NoError(t, q.Write([]types.Delta{zeta, later, earlier}))

	got, err := q.Read()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, earlier.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)
	assert.Equal(t, zeta.ID, got[2].ID)
}

func TestWriteIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	q := New(filepath.Join(dir, "deltas.json"))
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	deltas := []types.Delta{
		mkDelta("b/patterns", "Second section content", now),
		mkDelta("a/patterns", "First section content", now),
	}

	require.NoError(t, q.Write(deltas))
	first, err := os.ReadFile(q.Path())
	require.NoError(t, err)

	require.NoError(t, q.Write(deltas))
	second, err := os.ReadFile(q.Path())
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.True(t, strings.HasPrefix(string(first), "["), "queue file is a JSON array")
	assert.Contains(t, string(first), "  {", "2-space indentation")
}

func TestClear(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "deltas.json"))
	require.NoError(t, q.Enqueue([]types.Delta{mkDelta("s/patterns", "Something to clear out", time.Now())}))
	require.NoError(t, q.Clear())

	got, err := q.Read()
	require.NoError(t, err)
	assert.Empty(t, got)

	data, err := os.ReadFile(q.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
