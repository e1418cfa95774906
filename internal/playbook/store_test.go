package playbook

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hone/internal/types"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "AGENTS.md"), dir), dir
}

func TestGuard(t *testing.T) {
	s, dir := newTestStore(t)

	assert.NoError(t, s.Guard(filepath.Join(dir, "AGENTS.md")))
	assert.NoError(t, s.Guard(filepath.Join(dir, "nested", "archive.md")))

	err := s.Guard(filepath.Join(dir, "..", "escape.md"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrScope))

	err = s.Guard("/etc/passwd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrScope))
}

func TestWriteOutsideRootFails(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	s := NewStore(filepath.Join(outside, "AGENTS.md"), root)

	err := s.WriteRaw("content")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrScope))
	assert.NoFileExists(t, filepath.Join(outside, "AGENTS.md"))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	bullets, err := s.LoadBullets()
	require.NoError(t, err)
	assert.Empty(t, bullets)
	assert.False(t, s.Exists())
}

func TestWriteBulletsLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	bullets := []types.Bullet{
		{ID: "b1", Section: "build/test/patterns", Content: "Always validate input before processing", Helpful: 1},
		{ID: "b2", Section: "typescript/patterns", Content: "Avoid any in public signatures", Helpful: 4, Harmful: 1},
	}
	require.NoError(t, s.WriteBullets(nil, bullets))

	loaded, err := s.LoadBullets()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "b1", loaded[0].ID)
	assert.Equal(t, "build/test/patterns", loaded[0].Section)
	assert.Equal(t, "b2", loaded[1].ID)

	// Byte determinism across rewrites of the same state.
	first, err := s.Raw()
	require.NoError(t, err)
	require.NoError(t, s.WriteBullets(nil, bullets))
	second, err := s.Raw()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIncrementCountersPreservesSurroundingText(t *testing.T) {
	s, dir := newTestStore(t)
	content := `# Playbook

Keep this prose exactly as written.

## Build Test Patterns

- [Bullet #b1, helpful:1, harmful:0] Run tests before committing
  <!-- deltaId=d-1, sourceId=bd-2, createdAt=2026-01-01T00:00:00Z, hash=build/test/patterns::run tests before committing -->
- [Bullet #b2, helpful:2, harmful:0, Aggregated from 4 instances] Pin versions

Trailing prose survives too.
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(content), 0644))

	applied, err := s.IncrementCounters(map[string]CounterDelta{
		"b1":      {Helpful: 2, Harmful: 1},
		"b2":      {Helpful: 1},
		"missing": {Helpful: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied, "missing bullet is a no-op")

	out, err := s.Raw()
	require.NoError(t, err)
	assert.Contains(t, out, "[Bullet #b1, helpful:3, harmful:1] Run tests before committing")
	assert.Contains(t, out, "[Bullet #b2, helpful:3, harmful:0, Aggregated from 4 instances] Pin versions")
	assert.Contains(t, out, "Keep this prose exactly as written.")
	assert.Contains(t, out, "Trailing prose survives too.")
	assert.Contains(t, out, "deltaId=d-1", "provenance comment untouched")
}

func TestIncrementCountersAllMissingLeavesFileUntouched(t *testing.T) {
	s, dir := newTestStore(t)
	content := "## Patterns\n\n- [Bullet #b1, helpful:1, harmful:0] Something useful here\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(content), 0644))

	applied, err := s.IncrementCounters(map[string]CounterDelta{"ghost": {Helpful: 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	out, _ := s.Raw()
	assert.Equal(t, content, out)
}

func TestRemoveBullets(t *testing.T) {
	s, dir := newTestStore(t)
	content := `## Patterns

- [Bullet #b1, helpful:1, harmful:0] Keep me
- [Bullet #b2, helpful:0, harmful:3] Remove me
  <!-- deltaId=d-2, sourceId=bd-9, createdAt=2026-01-01T00:00:00Z, hash=patterns::remove me -->
- [Bullet #b3, helpful:2, harmful:0] Keep me too
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(content), 0644))

	removed, err := s.RemoveBullets([]string{"b2", "nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	out, _ := s.Raw()
	assert.NotContains(t, out, "Remove me")
	assert.NotContains(t, out, "deltaId=d-2", "provenance comment removed with its bullet")
	assert.Contains(t, out, "Keep me")
	assert.Contains(t, out, "Keep me too")
}

func TestArchiveBullets(t *testing.T) {
	s, dir := newTestStore(t)
	archive := filepath.Join(dir, "AGENTS-archive.md")
	content := `## Patterns

- [Bullet #bad, helpful:1, harmful:3] Retry flaky tests until they pass
- [Bullet #good, helpful:4, harmful:0] Fix flaky tests at the root cause
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(content), 0644))

	date := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	archived, err := s.ArchiveBullets(archive, []string{"bad"}, date)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	// Playbook no longer carries the bullet; archive carries it verbatim
	// with counters and a date stamp, on exactly one line.
	pb, _ := s.Raw()
	assert.NotContains(t, pb, "#bad")
	assert.Contains(t, pb, "#good")

	arch, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Contains(t, string(arch), "[Bullet #bad, helpful:1, harmful:3] Retry flaky tests until they pass")
	assert.Contains(t, string(arch), "archived 2026-08-26")
	assert.Equal(t, 1, strings.Count(string(arch), "#bad"))

	// Re-running is idempotent.
	archived, err = s.ArchiveBullets(archive, []string{"bad"}, date)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)
	arch, _ = os.ReadFile(archive)
	assert.Equal(t, 1, strings.Count(string(arch), "#bad"))
}

func TestArchiveOutsideRootFails(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"),
		[]byte("## Patterns\n\n- [Bullet #b1, helpful:0, harmful:5] Bad advice here\n"), 0644))

	outside := filepath.Join(t.TempDir(), "archive.md")
	_, err := s.ArchiveBullets(outside, []string{"b1"}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrScope))
}

func TestStoreFindInsertPosition(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"),
		[]byte("## Patterns\n\n- [Bullet #b1, helpful:0, harmful:0] First bullet here\n"), 0644))

	pos, ok, err := s.FindInsertPosition("patterns")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, pos)

	_, ok, err = s.FindInsertPosition("absent/section")
	require.NoError(t, err)
	assert.False(t, ok)
}
