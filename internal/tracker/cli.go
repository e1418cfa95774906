package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"hone/internal/logging"
	"hone/internal/types"
)

// CLI drives an external tracker binary. Every call runs
// `<bin> <verb> [args] --json` under the configured timeout and parses the
// JSON the binary prints.
type CLI struct {
	bin     string
	timeout time.Duration

	// run is swapped in tests to avoid shelling out.
	run func(ctx context.Context, bin string, args []string) (stdout, stderr []byte, err error)
}

// NewCLI returns a CLI adapter for the given binary.
func NewCLI(bin string, timeout time.Duration) *CLI {
	return &CLI{bin: bin, timeout: timeout, run: runCommand}
}

func runCommand(ctx context.Context, bin string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (c *CLI) invoke(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full := append(args, "--json")
	logging.TrackerDebug("invoking %s %s", c.bin, strings.Join(full, " "))

	stdout, stderr, err := c.run(ctx, c.bin, full)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.Trackerf("%s %s timed out after %s", c.bin, args[0], c.timeout)
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return nil, types.Trackerf("%s %s failed: %s", c.bin, args[0], msg)
	}
	return stdout, nil
}

// decodeItem parses a single item, unwrapping a one-element array.
func decodeItem(data []byte) (types.WorkItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return types.WorkItem{}, types.Trackerf("tracker returned no output")
	}
	if trimmed[0] == '[' {
		var items []types.WorkItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return types.WorkItem{}, types.Trackerf("cannot parse tracker output: %v", err)
		}
		switch len(items) {
		case 1:
			return items[0], nil
		case 0:
			return types.WorkItem{}, types.Missingf("tracker returned an empty result")
		default:
			return types.WorkItem{}, types.Trackerf("expected one item, tracker returned %d", len(items))
		}
	}
	var item types.WorkItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return types.WorkItem{}, types.Trackerf("cannot parse tracker output: %v", err)
	}
	return item, nil
}

func decodeItems(data []byte) ([]types.WorkItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		item, err := decodeItem(trimmed)
		if err != nil {
			return nil, err
		}
		return []types.WorkItem{item}, nil
	}
	var items []types.WorkItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, types.Trackerf("cannot parse tracker output: %v", err)
	}
	return items, nil
}

func (c *CLI) Create(ctx context.Context, item types.WorkItem) (types.WorkItem, error) {
	args := []string{"create", item.Title}
	if item.Description != "" {
		args = append(args, "--description", item.Description)
	}
	if item.Priority != 0 {
		args = append(args, "--priority", strconv.Itoa(item.Priority))
	}
	for _, l := range item.Labels {
		args = append(args, "--label", l)
	}
	out, err := c.invoke(ctx, args...)
	if err != nil {
		return types.WorkItem{}, err
	}
	return decodeItem(out)
}

func (c *CLI) List(ctx context.Context, status types.ItemStatus) ([]types.WorkItem, error) {
	args := []string{"list"}
	if status != "" {
		args = append(args, "--status", string(status))
	}
	out, err := c.invoke(ctx, args...)
	if err != nil {
		return nil, err
	}
	return decodeItems(out)
}

func (c *CLI) Show(ctx context.Context, id string) (types.WorkItem, error) {
	out, err := c.invoke(ctx, "show", id)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return types.WorkItem{}, types.Missingf("item %s not found", id)
		}
		return types.WorkItem{}, err
	}
	item, err := decodeItem(out)
	if err != nil {
		if errors.Is(err, types.ErrArtifactMissing) {
			return types.WorkItem{}, types.Missingf("item %s not found", id)
		}
		return types.WorkItem{}, err
	}
	return item, nil
}

func (c *CLI) Update(ctx context.Context, id string, fields UpdateFields) (types.WorkItem, error) {
	args := []string{"update", id}
	if fields.Title != "" {
		args = append(args, "--title", fields.Title)
	}
	if fields.Description != "" {
		args = append(args, "--description", fields.Description)
	}
	if fields.Status != "" {
		args = append(args, "--status", string(fields.Status))
	}
	if fields.Priority != nil {
		args = append(args, "--priority", strconv.Itoa(*fields.Priority))
	}
	for _, l := range fields.Labels {
		args = append(args, "--label", l)
	}
	out, err := c.invoke(ctx, args...)
	if err != nil {
		return types.WorkItem{}, err
	}
	return decodeItem(out)
}

func (c *CLI) Close(ctx context.Context, id string) (types.WorkItem, error) {
	out, err := c.invoke(ctx, "close", id)
	if err != nil {
		return types.WorkItem{}, err
	}
	// Some trackers print nothing on close; synthesize the final state.
	if len(bytes.TrimSpace(out)) == 0 {
		now := time.Now().UTC()
		return types.WorkItem{ID: id, Status: types.ItemClosed, UpdatedAt: now, ClosedAt: &now}, nil
	}
	return decodeItem(out)
}

func (c *CLI) Ready(ctx context.Context) ([]types.WorkItem, error) {
	out, err := c.invoke(ctx, "ready")
	if err != nil {
		return nil, err
	}
	return decodeItems(out)
}

func (c *CLI) AddDep(ctx context.Context, dep types.ItemDep) error {
	_, err := c.invoke(ctx, "dep", "add", dep.FromID, dep.ToID, "--type", string(dep.Type))
	return err
}

func (c *CLI) DepTree(ctx context.Context, id string) ([]types.ItemDep, error) {
	out, err := c.invoke(ctx, "dep", "tree", id)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var dep types.ItemDep
		if err := json.Unmarshal(trimmed, &dep); err != nil {
			return nil, types.Trackerf("cannot parse dep tree: %v", err)
		}
		return []types.ItemDep{dep}, nil
	}
	var deps []types.ItemDep
	if err := json.Unmarshal(trimmed, &deps); err != nil {
		return nil, types.Trackerf("cannot parse dep tree: %v", err)
	}
	return deps, nil
}

func (c *CLI) DiscoveredFrom(ctx context.Context, parentID string) ([]types.WorkItem, error) {
	out, err := c.invoke(ctx, "list", "--discovered-from", parentID)
	if err != nil {
		return nil, err
	}
	return decodeItems(out)
}

func (c *CLI) Export(ctx context.Context) ([]types.WorkItem, error) {
	return c.List(ctx, "")
}

// Comment attaches a comment to an item.
func (c *CLI) Comment(ctx context.Context, id, body string) error {
	_, err := c.invoke(ctx, "comment", id, body)
	return err
}
