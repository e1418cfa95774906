package reflector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hone/internal/logging"
	"hone/internal/types"
)

// AppendInsights writes insights to the JSONL sink, one object per line.
func AppendInsights(path string, insights []types.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create insights dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open insights log: %w", err)
	}
	defer f.Close()

	for _, in := range insights {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode insight %s: %w", in.ID, err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to append insight %s: %w", in.ID, err)
		}
	}
	logging.Reflect("appended %d insights to %s", len(insights), path)
	return nil
}

// ReadInsights loads the JSONL sink. A missing file is an empty history.
// Malformed lines are skipped and counted rather than aborting the read.
func ReadInsights(path string) ([]types.Insight, int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read insights log: %w", err)
	}

	var insights []types.Insight
	skipped := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var in types.Insight
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			skipped++
			continue
		}
		insights = append(insights, in)
	}
	if skipped > 0 {
		logging.ReflectWarn("skipped %d malformed lines in %s", skipped, path)
	}
	return insights, skipped, nil
}
