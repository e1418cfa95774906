package config

// LearningConfig configures the learning pipeline.
type LearningConfig struct {
	// Minimum confidence for an insight to become a delta.
	ConfidenceMin float64 `yaml:"confidence_min"`

	// Offline (batch) learning
	Offline OfflineConfig `yaml:"offline"`
}

// OfflineConfig configures offline batch learning passes.
type OfflineConfig struct {
	// Number of analyze/curate passes over the trace corpus.
	Epochs int `yaml:"epochs"`

	// Deltas with confidence below this are logged for human review
	// instead of being applied.
	ReviewThreshold float64 `yaml:"review_threshold"`
}
