package reflector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hone/internal/types"
)

func TestInsightsAppendRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "insights.jsonl")

	batch := []types.Insight{
		{
			ID:         "in-1",
			Timestamp:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			Source:     types.InsightSource{Runner: "tsc", BeadIDs: []string{"bd-1"}},
			Signal:     types.InsightSignal{Pattern: "type-error", Evidence: []string{"e1"}},
			Confidence: 0.5,
		},
		{
			ID:             "in-2",
			Timestamp:      time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
			Signal:         types.InsightSignal{Pattern: "discovery-chain"},
			Confidence:     0.85,
			OnlineEligible: true,
		},
	}

	require.NoError(t, AppendInsights(path, batch[:1]))
	require.NoError(t, AppendInsights(path, batch[1:]))

	got, skipped, err := ReadInsights(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, got, 2)
	assert.Equal(t, "in-1", got[0].ID)
	assert.Equal(t, "discovery-chain", got[1].Signal.Pattern)
	assert.True(t, got[1].OnlineEligible)
}

func TestReadInsightsMissingFile(t *testing.T) {
	got, skipped, err := ReadInsights(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, skipped)
}

func TestReadInsightsSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.jsonl")
	content := `{"id":"in-1","signal":{"pattern":"type-error"},"confidence":0.5,"onlineEligible":false,"timestamp":"2026-08-01T10:00:00Z","source":{}}
not json at all
{"id":"in-2","signal":{"pattern":"test-failure"},"confidence":0.3,"onlineEligible":false,"timestamp":"2026-08-01T11:00:00Z","source":{}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, skipped, err := ReadInsights(path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, got, 2)
	assert.Equal(t, "in-1", got[0].ID)
	assert.Equal(t, "in-2", got[1].ID)
}

func TestAppendInsightsEmptyBatchNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.jsonl")
	require.NoError(t, AppendInsights(path, nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
