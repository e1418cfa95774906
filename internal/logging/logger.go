// Package logging provides config-driven categorized file-based logging for
// hone. Logs are written to <workspace>/.hone/logs/ with separate files per
// category. Logging is controlled by the logging section of .hone/config.yaml;
// when debug mode is off, no category logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, workspace resolution
	CategoryConfig   Category = "config"   // Config loading, precedence, validation
	CategoryPlaybook Category = "playbook" // Playbook parse/serialize/guard
	CategoryQueue    Category = "queue"    // Delta queue reads/writes
	CategoryMerge    Category = "merge"    // Merger decisions, rejections
	CategoryReflect  Category = "reflect"  // Trace mining, clustering
	CategoryCurate   Category = "curate"   // Routing, dedup, consolidation, archival
	CategoryEval     Category = "eval"     // Playbook metrics, accept/reject
	CategoryTraces   Category = "traces"   // Trace store appends, retention
	CategoryTracker  Category = "tracker"  // Tracker adapter, subprocess calls
	CategoryWatch    Category = "watch"    // Event-log watcher, review routing
	CategoryLearn    Category = "learn"    // Cycle orchestration
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports.
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// configFile is the shape of .hone/config.yaml as far as logging cares.
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// StructuredLogEntry is the JSON form of one log line when json_format is on.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers      = make(map[Category]*Logger)
	loggersMu    sync.RWMutex
	logsDir      string
	workspace    string
	config       loggingConfig
	configLoaded bool
	configMu     sync.RWMutex
	logLevel     int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".hone", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create the logs directory when debug mode is on; production runs
	// stay silent.
	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== hone logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", config.Level)
	if len(config.Categories) > 0 {
		enabled := 0
		for _, on := range config.Categories {
			if on {
				enabled++
			}
		}
		boot.Info("Enabled categories: %d/%d", enabled, len(config.Categories))
	} else {
		boot.Info("All categories enabled (no category filter)")
	}

	return nil
}

// loadConfig reads the logging section from .hone/config.yaml.
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".hone", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging).
			config.DebugMode = false
			configLoaded = true
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	configLoaded = true
	logLevel = parseLevel(config.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ReloadConfig reloads the config from disk.
func ReloadConfig() error {
	return loadConfig()
}

// Override forces debug mode and level regardless of the config file. Used by
// the --verbose flag and by tests.
func Override(debugMode bool, level string) {
	configMu.Lock()
	defer configMu.Unlock()
	config.DebugMode = debugMode
	if level != "" {
		config.Level = level
		logLevel = parseLevel(level)
	}
	configLoaded = true
	if debugMode && logsDir != "" {
		_ = os.MkdirAll(logsDir, 0755)
	}
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or the category is off.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}
	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a plain file move.
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Error logs an error message (always logged if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Config logs to the config category
func Config(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

// ConfigDebug logs debug to the config category
func ConfigDebug(format string, args ...interface{}) {
	Get(CategoryConfig).Debug(format, args...)
}

// ConfigWarn logs warning to the config category
func ConfigWarn(format string, args ...interface{}) {
	Get(CategoryConfig).Warn(format, args...)
}

// ConfigError logs error to the config category
func ConfigError(format string, args ...interface{}) {
	Get(CategoryConfig).Error(format, args...)
}

// Playbook logs to the playbook category
func Playbook(format string, args ...interface{}) {
	Get(CategoryPlaybook).Info(format, args...)
}

// PlaybookDebug logs debug to the playbook category
func PlaybookDebug(format string, args ...interface{}) {
	Get(CategoryPlaybook).Debug(format, args...)
}

// PlaybookWarn logs warning to the playbook category
func PlaybookWarn(format string, args ...interface{}) {
	Get(CategoryPlaybook).Warn(format, args...)
}

// PlaybookError logs error to the playbook category
func PlaybookError(format string, args ...interface{}) {
	Get(CategoryPlaybook).Error(format, args...)
}

// Queue logs to the queue category
func Queue(format string, args ...interface{}) {
	Get(CategoryQueue).Info(format, args...)
}

// QueueDebug logs debug to the queue category
func QueueDebug(format string, args ...interface{}) {
	Get(CategoryQueue).Debug(format, args...)
}

// QueueWarn logs warning to the queue category
func QueueWarn(format string, args ...interface{}) {
	Get(CategoryQueue).Warn(format, args...)
}

// QueueError logs error to the queue category
func QueueError(format string, args ...interface{}) {
	Get(CategoryQueue).Error(format, args...)
}

// Merge logs to the merge category
func Merge(format string, args ...interface{}) {
	Get(CategoryMerge).Info(format, args...)
}

// MergeDebug logs debug to the merge category
func MergeDebug(format string, args ...interface{}) {
	Get(CategoryMerge).Debug(format, args...)
}

// MergeWarn logs warning to the merge category
func MergeWarn(format string, args ...interface{}) {
	Get(CategoryMerge).Warn(format, args...)
}

// MergeError logs error to the merge category
func MergeError(format string, args ...interface{}) {
	Get(CategoryMerge).Error(format, args...)
}

// Reflect logs to the reflect category
func Reflect(format string, args ...interface{}) {
	Get(CategoryReflect).Info(format, args...)
}

// ReflectDebug logs debug to the reflect category
func ReflectDebug(format string, args ...interface{}) {
	Get(CategoryReflect).Debug(format, args...)
}

// ReflectWarn logs warning to the reflect category
func ReflectWarn(format string, args ...interface{}) {
	Get(CategoryReflect).Warn(format, args...)
}

// ReflectError logs error to the reflect category
func ReflectError(format string, args ...interface{}) {
	Get(CategoryReflect).Error(format, args...)
}

// Curate logs to the curate category
func Curate(format string, args ...interface{}) {
	Get(CategoryCurate).Info(format, args...)
}

// CurateDebug logs debug to the curate category
func CurateDebug(format string, args ...interface{}) {
	Get(CategoryCurate).Debug(format, args...)
}

// CurateWarn logs warning to the curate category
func CurateWarn(format string, args ...interface{}) {
	Get(CategoryCurate).Warn(format, args...)
}

// CurateError logs error to the curate category
func CurateError(format string, args ...interface{}) {
	Get(CategoryCurate).Error(format, args...)
}

// Eval logs to the eval category
func Eval(format string, args ...interface{}) {
	Get(CategoryEval).Info(format, args...)
}

// EvalDebug logs debug to the eval category
func EvalDebug(format string, args ...interface{}) {
	Get(CategoryEval).Debug(format, args...)
}

// EvalWarn logs warning to the eval category
func EvalWarn(format string, args ...interface{}) {
	Get(CategoryEval).Warn(format, args...)
}

// EvalError logs error to the eval category
func EvalError(format string, args ...interface{}) {
	Get(CategoryEval).Error(format, args...)
}

// Traces logs to the traces category
func Traces(format string, args ...interface{}) {
	Get(CategoryTraces).Info(format, args...)
}

// TracesDebug logs debug to the traces category
func TracesDebug(format string, args ...interface{}) {
	Get(CategoryTraces).Debug(format, args...)
}

// TracesWarn logs warning to the traces category
func TracesWarn(format string, args ...interface{}) {
	Get(CategoryTraces).Warn(format, args...)
}

// TracesError logs error to the traces category
func TracesError(format string, args ...interface{}) {
	Get(CategoryTraces).Error(format, args...)
}

// Tracker logs to the tracker category
func Tracker(format string, args ...interface{}) {
	Get(CategoryTracker).Info(format, args...)
}

// TrackerDebug logs debug to the tracker category
func TrackerDebug(format string, args ...interface{}) {
	Get(CategoryTracker).Debug(format, args...)
}

// TrackerWarn logs warning to the tracker category
func TrackerWarn(format string, args ...interface{}) {
	Get(CategoryTracker).Warn(format, args...)
}

// TrackerError logs error to the tracker category
func TrackerError(format string, args ...interface{}) {
	Get(CategoryTracker).Error(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}

// WatchWarn logs warning to the watch category
func WatchWarn(format string, args ...interface{}) {
	Get(CategoryWatch).Warn(format, args...)
}

// WatchError logs error to the watch category
func WatchError(format string, args ...interface{}) {
	Get(CategoryWatch).Error(format, args...)
}

// Learn logs to the learn category
func Learn(format string, args ...interface{}) {
	Get(CategoryLearn).Info(format, args...)
}

// LearnDebug logs debug to the learn category
func LearnDebug(format string, args ...interface{}) {
	Get(CategoryLearn).Debug(format, args...)
}

// LearnWarn logs warning to the learn category
func LearnWarn(format string, args ...interface{}) {
	Get(CategoryLearn).Warn(format, args...)
}

// LearnError logs error to the learn category
func LearnError(format string, args ...interface{}) {
	Get(CategoryLearn).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
