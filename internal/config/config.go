// Package config holds all hone configuration and the precedence chain used
// to assemble it: built-in defaults, then the user-home config file, then the
// project-local config file, then .env, then HONE_* environment variables.
// Invocation flags are applied last by the command layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hone/internal/types"
)

// Config holds all hone configuration.
type Config struct {
	Version string `yaml:"version"`

	// Playbook location (the knowledge root is its directory).
	AgentsPath string `yaml:"agents_path"`

	// Artifact paths
	LogsDir        string `yaml:"logs_dir"`
	InsightsPath   string `yaml:"insights_path"`
	TracesPath     string `yaml:"traces_path"`
	DeltaQueuePath string `yaml:"delta_queue_path"`

	// Curation thresholds
	MaxDeltasPerSession int     `yaml:"max_deltas_per_session"`
	DefaultConfidence   float64 `yaml:"default_confidence"`
	HarmfulThreshold    int     `yaml:"harmful_threshold"`

	// Archive file for harmful bullets, under the knowledge root.
	BulletArchivePath string `yaml:"bullet_archive_path"`

	// Learning pipeline
	Learning LearningConfig `yaml:"learning"`

	// Trace retention
	TraceRetention TraceRetentionConfig `yaml:"trace_retention"`

	// Section routing for curated deltas (ordered, first match wins)
	Routing []RoutingRule `yaml:"routing"`

	// Review destinations per watch event type
	ReviewRouting map[string]string `yaml:"review_routing"`

	// External tracker
	Tracker TrackerConfig `yaml:"tracker"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",

		AgentsPath:     "AGENTS.md",
		LogsDir:        ".hone/logs",
		InsightsPath:   ".hone/insights.jsonl",
		TracesPath:     ".hone/traces.jsonl",
		DeltaQueuePath: ".hone/deltas.json",

		MaxDeltasPerSession: 3,
		DefaultConfidence:   0.8,
		HarmfulThreshold:    2,
		BulletArchivePath:   "AGENTS-archive.md",

		Learning: LearningConfig{
			ConfidenceMin: 0.7,
			Offline: OfflineConfig{
				Epochs:          1,
				ReviewThreshold: 0.9,
			},
		},

		TraceRetention: TraceRetentionConfig{
			MaxTracesPerBead: 50,
			MaxAgeInDays:     30,
			ArchivePath:      ".hone/traces-archive.jsonl",
		},

		Routing: DefaultRoutingRules(),

		ReviewRouting: map[string]string{
			"created": ReviewDestNone,
			"updated": ReviewDestNone,
			"closed":  ReviewDestFile,
		},

		Tracker: TrackerConfig{
			Adapter:      "cli",
			Bin:          "beads",
			Timeout:      "30s",
			DBPath:       ".hone/tracker.db",
			EventLogPath: ".hone/events.jsonl",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigPath returns the path to the user-home config file.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hone", "config.yaml")
}

// ProjectConfigPath returns the path to the project-local config file.
func ProjectConfigPath(workspace string) string {
	return filepath.Join(workspace, ".hone", "config.yaml")
}

// Resolve assembles the effective configuration for a workspace, walking the
// full precedence chain. Flag overrides are applied by the caller afterwards.
// A malformed config file is fatal; a missing one is not.
func Resolve(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	if p := UserConfigPath(); p != "" {
		if err := cfg.mergeFile(p); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeFile(ProjectConfigPath(workspace)); err != nil {
		return nil, err
	}

	// .env sits between the config files and the real environment: values it
	// sets are visible to applyEnvOverrides but never clobber variables the
	// caller already exported.
	_ = godotenv.Load(filepath.Join(workspace, ".env"))

	cfg.applyEnvOverrides()
	cfg.ResolvePaths(workspace)

	return cfg, nil
}

// Load loads configuration from a single YAML file over defaults. Used by
// tests and by commands given an explicit --config path.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, types.Parsef("config %s: %v", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// mergeFile overlays one YAML file onto the config. Missing files are
// ignored; unparseable files are fatal.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return types.Parsef("config %s: %v", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies HONE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HONE_AGENTS_PATH"); v != "" {
		c.AgentsPath = v
	}
	if v := os.Getenv("HONE_LOGS_DIR"); v != "" {
		c.LogsDir = v
	}
	if v := os.Getenv("HONE_INSIGHTS_PATH"); v != "" {
		c.InsightsPath = v
	}
	if v := os.Getenv("HONE_TRACES_PATH"); v != "" {
		c.TracesPath = v
	}
	if v := os.Getenv("HONE_DELTA_QUEUE_PATH"); v != "" {
		c.DeltaQueuePath = v
	}
	if v := os.Getenv("HONE_MAX_DELTAS_PER_SESSION"); v != "" {
		if n, err := parseIntEnv(v); err == nil {
			c.MaxDeltasPerSession = n
		}
	}
	if v := os.Getenv("HONE_DEFAULT_CONFIDENCE"); v != "" {
		if f, err := parseFloatEnv(v); err == nil {
			c.DefaultConfidence = f
		}
	}
	if v := os.Getenv("HONE_HARMFUL_THRESHOLD"); v != "" {
		if n, err := parseIntEnv(v); err == nil {
			c.HarmfulThreshold = n
		}
	}
	if v := os.Getenv("HONE_BULLET_ARCHIVE_PATH"); v != "" {
		c.BulletArchivePath = v
	}
	if v := os.Getenv("HONE_CONFIDENCE_MIN"); v != "" {
		if f, err := parseFloatEnv(v); err == nil {
			c.Learning.ConfidenceMin = f
		}
	}
	if v := os.Getenv("HONE_OFFLINE_EPOCHS"); v != "" {
		if n, err := parseIntEnv(v); err == nil {
			c.Learning.Offline.Epochs = n
		}
	}
	if v := os.Getenv("HONE_REVIEW_THRESHOLD"); v != "" {
		if f, err := parseFloatEnv(v); err == nil {
			c.Learning.Offline.ReviewThreshold = f
		}
	}
	if v := os.Getenv("HONE_MAX_TRACES_PER_BEAD"); v != "" {
		if n, err := parseIntEnv(v); err == nil {
			c.TraceRetention.MaxTracesPerBead = n
		}
	}
	if v := os.Getenv("HONE_MAX_AGE_IN_DAYS"); v != "" {
		if n, err := parseIntEnv(v); err == nil {
			c.TraceRetention.MaxAgeInDays = n
		}
	}
	if v := os.Getenv("HONE_TRACE_ARCHIVE_PATH"); v != "" {
		c.TraceRetention.ArchivePath = v
	}
	if v := os.Getenv("HONE_TRACKER_ADAPTER"); v != "" {
		c.Tracker.Adapter = v
	}
	if v := os.Getenv("HONE_TRACKER_BIN"); v != "" {
		c.Tracker.Bin = v
	}
	if v := os.Getenv("HONE_TRACKER_TIMEOUT"); v != "" {
		c.Tracker.Timeout = v
	}
	if v := os.Getenv("HONE_TRACKER_DB"); v != "" {
		c.Tracker.DBPath = v
	}
	if v := os.Getenv("HONE_TRACKER_EVENT_LOG"); v != "" {
		c.Tracker.EventLogPath = v
	}
	if v := os.Getenv("HONE_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("HONE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseIntEnv(v string) (int, error) {
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	return n, err
}

func parseFloatEnv(v string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(v, "%g", &f)
	return f, err
}

// ResolvePaths makes all relative paths absolute against base (the working
// directory). Already-absolute paths are untouched.
func (c *Config) ResolvePaths(base string) {
	c.AgentsPath = resolvePath(base, c.AgentsPath)
	c.BulletArchivePath = resolvePath(base, c.BulletArchivePath)
	c.LogsDir = resolvePath(base, c.LogsDir)
	c.InsightsPath = resolvePath(base, c.InsightsPath)
	c.TracesPath = resolvePath(base, c.TracesPath)
	c.DeltaQueuePath = resolvePath(base, c.DeltaQueuePath)
	c.TraceRetention.ArchivePath = resolvePath(base, c.TraceRetention.ArchivePath)
	c.Tracker.DBPath = resolvePath(base, c.Tracker.DBPath)
	c.Tracker.EventLogPath = resolvePath(base, c.Tracker.EventLogPath)
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// KnowledgeRoot returns the directory all playbook writes must stay under.
func (c *Config) KnowledgeRoot() string {
	return filepath.Dir(c.AgentsPath)
}

// GetTrackerTimeout returns the tracker subprocess timeout as a duration.
func (c *Config) GetTrackerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Tracker.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// NotificationLogPath returns the notification event log location.
func (c *Config) NotificationLogPath() string {
	return filepath.Join(c.LogsDir, "notifications.jsonl")
}

// ReviewLogPath returns the review log location.
func (c *Config) ReviewLogPath() string {
	return filepath.Join(c.LogsDir, "review.jsonl")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxDeltasPerSession < 1 {
		return fmt.Errorf("max_deltas_per_session must be >= 1, got %d", c.MaxDeltasPerSession)
	}
	if c.DefaultConfidence < 0 || c.DefaultConfidence > 1 {
		return fmt.Errorf("default_confidence must be in [0,1], got %g", c.DefaultConfidence)
	}
	if c.Learning.ConfidenceMin < 0 || c.Learning.ConfidenceMin > 1 {
		return fmt.Errorf("learning.confidence_min must be in [0,1], got %g", c.Learning.ConfidenceMin)
	}
	if c.Learning.Offline.Epochs < 1 {
		return fmt.Errorf("learning.offline.epochs must be >= 1, got %d", c.Learning.Offline.Epochs)
	}
	if c.HarmfulThreshold < 1 {
		return fmt.Errorf("harmful_threshold must be >= 1, got %d", c.HarmfulThreshold)
	}
	for event, dest := range c.ReviewRouting {
		if !ValidReviewDest(dest) {
			return fmt.Errorf("review_routing.%s: invalid destination %q (valid: %v)", event, dest, ReviewDests)
		}
	}
	if err := ValidateRouting(c.Routing); err != nil {
		return err
	}
	if !validAdapter(c.Tracker.Adapter) {
		return fmt.Errorf("invalid tracker adapter: %s (valid: %v)", c.Tracker.Adapter, ValidAdapters)
	}
	return nil
}
