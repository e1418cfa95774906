package config

// Tracker adapter names.
const (
	AdapterCLI    = "cli"
	AdapterLocal  = "local"
	AdapterMemory = "memory"
)

// ValidAdapters lists all supported tracker adapters.
var ValidAdapters = []string{AdapterCLI, AdapterLocal, AdapterMemory}

// TrackerConfig configures the external issue tracker.
type TrackerConfig struct {
	// Adapter selects the tracker backend: "cli" drives an external binary,
	// "local" uses an embedded sqlite database, "memory" is for tests.
	Adapter string `yaml:"adapter"`

	// Binary name or path for the cli adapter.
	Bin string `yaml:"bin"`

	// Subprocess timeout (duration string).
	Timeout string `yaml:"timeout"`

	// Database path for the local adapter.
	DBPath string `yaml:"db_path"`

	// Append-only event log the watcher observes.
	EventLogPath string `yaml:"event_log_path"`
}

func validAdapter(a string) bool {
	for _, v := range ValidAdapters {
		if a == v {
			return true
		}
	}
	return false
}
