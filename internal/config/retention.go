package config

// TraceRetentionConfig configures trace store retention sweeps.
type TraceRetentionConfig struct {
	// Most-recent traces kept per bead; older excess becomes archival
	// candidates.
	MaxTracesPerBead int `yaml:"max_traces_per_bead"`

	// Excess traces older than this many days are moved to the archive.
	MaxAgeInDays int `yaml:"max_age_in_days"`

	// Archive file (JSONL, append-only).
	ArchivePath string `yaml:"archive_path"`
}
