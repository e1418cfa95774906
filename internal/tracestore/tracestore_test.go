package tracestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hone/internal/config"
	"hone/internal/types"
)

func trace(id, bead string, ts time.Time) types.ExecutionTrace {
	return types.ExecutionTrace{
		TraceID:   id,
		BeadID:    bead,
		Timestamp: ts,
		Completed: true,
		Outcome:   types.OutcomeSuccess,
	}
}

func TestAppendLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sub", "traces.jsonl"))

	ts := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(trace("tr-1", "bd-1", ts)))
	require.NoError(t, s.Append(trace("tr-2", "bd-1", ts.Add(time.Hour))))

	traces, skipped, err := s.Load()
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, traces, 2)
	assert.Equal(t, "tr-1", traces[0].TraceID)
	assert.True(t, traces[0].Timestamp.Equal(ts))
}

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.jsonl"))
	traces, skipped, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, traces)
	assert.Zero(t, skipped)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	content := `{"traceId":"tr-1","timestamp":"2026-08-20T09:00:00Z","completed":true}
{broken
{"traceId":"tr-2","timestamp":"2026-08-20T10:00:00Z","completed":true}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	traces, skipped, err := New(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Len(t, traces, 2)
}

func TestForBead(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "traces.jsonl"))
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(trace("tr-2", "bd-1", base.Add(time.Hour))))
	require.NoError(t, s.Append(trace("tr-3", "bd-2", base)))
	require.NoError(t, s.Append(trace("tr-1", "bd-1", base)))

	got, err := s.ForBead("bd-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tr-1", got[0].TraceID)
	assert.Equal(t, "tr-2", got[1].TraceID)
}

func TestRetainArchivesOldExcess(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "traces.jsonl"))
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	// bead A: four traces; cap 2 leaves tr-a1 and tr-a2 as excess, but only
	// tr-a1 is past the age limit.
	require.NoError(t, s.Append(trace("tr-a1", "bd-a", now.AddDate(0, 0, -40))))
	require.NoError(t, s.Append(trace("tr-a2", "bd-a", now.AddDate(0, 0, -20))))
	require.NoError(t, s.Append(trace("tr-a3", "bd-a", now.AddDate(0, 0, -10))))
	require.NoError(t, s.Append(trace("tr-a4", "bd-a", now.AddDate(0, 0, -1))))
	require.NoError(t, s.Append(trace("tr-b1", "bd-b", now.AddDate(0, 0, -35))))

	rc := config.TraceRetentionConfig{
		MaxTracesPerBead: 2,
		MaxAgeInDays:     30,
		ArchivePath:      filepath.Join(dir, "traces-archive.jsonl"),
	}

	res, err := s.Retain(rc, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	assert.Equal(t, 4, res.Kept)

	traces, _, err := s.Load()
	require.NoError(t, err)
	ids := make([]string, 0, len(traces))
	for _, tr := range traces {
		ids = append(ids, tr.TraceID)
	}
	assert.Equal(t, []string{"tr-b1", "tr-a2", "tr-a3", "tr-a4"}, ids)

	archived, _, err := New(rc.ArchivePath).Load()
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "tr-a1", archived[0].TraceID)
}

func TestRetainRewritesChronologically(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "traces.jsonl"))
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(trace("tr-2", "bd-a", now.Add(-time.Hour))))
	require.NoError(t, s.Append(trace("tr-1", "bd-b", now.Add(-2*time.Hour))))

	rc := config.TraceRetentionConfig{
		MaxTracesPerBead: 50,
		MaxAgeInDays:     30,
		ArchivePath:      filepath.Join(dir, "traces-archive.jsonl"),
	}

	res, err := s.Retain(rc, now)
	require.NoError(t, err)
	assert.Zero(t, res.Archived)

	traces, _, err := s.Load()
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "tr-1", traces[0].TraceID)
	assert.Equal(t, "tr-2", traces[1].TraceID)
}

func TestRetainNoChangesNoWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traces.jsonl")
	s := New(path)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(trace("tr-1", "bd-a", now.Add(-2*time.Hour))))
	require.NoError(t, s.Append(trace("tr-2", "bd-a", now.Add(-time.Hour))))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := s.Retain(config.TraceRetentionConfig{
		MaxTracesPerBead: 50,
		MaxAgeInDays:     30,
		ArchivePath:      filepath.Join(dir, "traces-archive.jsonl"),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, RetentionResult{Kept: 2}, res)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRetainEmptyStore(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "traces.jsonl"))
	res, err := s.Retain(config.TraceRetentionConfig{
		MaxTracesPerBead: 2,
		MaxAgeInDays:     30,
		ArchivePath:      filepath.Join(dir, "archive.jsonl"),
	}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RetentionResult{}, res)
}

func TestGitInfoNoRepo(t *testing.T) {
	_, _, ok := GitInfo(t.TempDir())
	assert.False(t, ok)

	tr := trace("tr-1", "bd-1", time.Now().UTC())
	Stamp(&tr, t.TempDir())
	assert.Empty(t, tr.Commit)
	assert.Empty(t, tr.Branch)
}

func TestStampFromRepo(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	tr := trace("tr-1", "bd-1", time.Now().UTC())
	Stamp(&tr, sub)
	assert.Equal(t, hash.String(), tr.Commit)
	assert.Equal(t, "master", tr.Branch)
}

func TestStampKeepsExisting(t *testing.T) {
	tr := trace("tr-1", "bd-1", time.Now().UTC())
	tr.Commit = "abc123"
	Stamp(&tr, t.TempDir())
	assert.Equal(t, "abc123", tr.Commit)
}
