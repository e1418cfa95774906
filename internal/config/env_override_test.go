package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Paths(t *testing.T) {
	t.Run("HONE_AGENTS_PATH", func(t *testing.T) {
		t.Setenv("HONE_AGENTS_PATH", "docs/PLAYBOOK.md")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "docs/PLAYBOOK.md", cfg.AgentsPath)
	})

	t.Run("HONE_DELTA_QUEUE_PATH", func(t *testing.T) {
		t.Setenv("HONE_DELTA_QUEUE_PATH", "/var/hone/deltas.json")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/var/hone/deltas.json", cfg.DeltaQueuePath)
	})

	t.Run("empty env leaves value", func(t *testing.T) {
		t.Setenv("HONE_AGENTS_PATH", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "AGENTS.md", cfg.AgentsPath)
	})
}

func TestEnvOverrides_Thresholds(t *testing.T) {
	t.Run("numeric overrides", func(t *testing.T) {
		t.Setenv("HONE_MAX_DELTAS_PER_SESSION", "10")
		t.Setenv("HONE_DEFAULT_CONFIDENCE", "0.65")
		t.Setenv("HONE_CONFIDENCE_MIN", "0.55")
		t.Setenv("HONE_HARMFUL_THRESHOLD", "3")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 10, cfg.MaxDeltasPerSession)
		assert.Equal(t, 0.65, cfg.DefaultConfidence)
		assert.Equal(t, 0.55, cfg.Learning.ConfidenceMin)
		assert.Equal(t, 3, cfg.HarmfulThreshold)
	})

	t.Run("unparseable numeric is ignored", func(t *testing.T) {
		t.Setenv("HONE_MAX_DELTAS_PER_SESSION", "lots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 3, cfg.MaxDeltasPerSession)
	})

	t.Run("offline learning", func(t *testing.T) {
		t.Setenv("HONE_OFFLINE_EPOCHS", "4")
		t.Setenv("HONE_REVIEW_THRESHOLD", "0.95")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 4, cfg.Learning.Offline.Epochs)
		assert.Equal(t, 0.95, cfg.Learning.Offline.ReviewThreshold)
	})
}

func TestEnvOverrides_Tracker(t *testing.T) {
	t.Setenv("HONE_TRACKER_ADAPTER", "local")
	t.Setenv("HONE_TRACKER_BIN", "bd")
	t.Setenv("HONE_TRACKER_TIMEOUT", "45s")
	t.Setenv("HONE_TRACKER_DB", "/tmp/tracker.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "local", cfg.Tracker.Adapter)
	assert.Equal(t, "bd", cfg.Tracker.Bin)
	assert.Equal(t, "45s", cfg.Tracker.Timeout)
	assert.Equal(t, "/tmp/tracker.db", cfg.Tracker.DBPath)
	assert.Equal(t, float64(45), cfg.GetTrackerTimeout().Seconds())
}

func TestEnvOverrides_Retention(t *testing.T) {
	t.Setenv("HONE_MAX_TRACES_PER_BEAD", "25")
	t.Setenv("HONE_MAX_AGE_IN_DAYS", "14")
	t.Setenv("HONE_TRACE_ARCHIVE_PATH", "old-traces.jsonl")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, 25, cfg.TraceRetention.MaxTracesPerBead)
	assert.Equal(t, 14, cfg.TraceRetention.MaxAgeInDays)
	assert.Equal(t, "old-traces.jsonl", cfg.TraceRetention.ArchivePath)
}

func TestEnvOverrides_Debug(t *testing.T) {
	t.Run("HONE_DEBUG=1", func(t *testing.T) {
		t.Setenv("HONE_DEBUG", "1")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("HONE_DEBUG=true", func(t *testing.T) {
		t.Setenv("HONE_DEBUG", "true")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("HONE_LOG_LEVEL", func(t *testing.T) {
		t.Setenv("HONE_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
