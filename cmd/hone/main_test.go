package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hone/internal/cli"
	"hone/internal/config"
	"hone/internal/evaluator"
	"hone/internal/learn"
	"hone/internal/logging"
	"hone/internal/tracker"
	"hone/internal/types"
)

// setupTest points the globals at a fresh workspace and resets every flag
// variable a previous test may have touched.
func setupTest(t *testing.T) {
	t.Helper()

	logger = zap.NewNop()
	workspace = t.TempDir()
	jsonOut = false
	verbose = false
	cfgPath = ""
	cfg = config.DefaultConfig()
	cfg.ResolvePaths(workspace)
	cfg.Tracker.Adapter = config.AdapterMemory

	initForce = false
	analyzeTraceFile, analyzeBead = "", ""
	analyzeBatch, analyzeThreads, analyzeFeedback = false, false, false
	curateApply = false
	cycleBead, cycleBatch = "", false
	showPlain = false
	pruneThreshold = evaluator.DefaultPruneThreshold
	tracesBead = ""
	itemDesc, itemTitle, itemStatus = "", "", ""
	createPriority, updatePriority = 2, 0
	itemLabels = nil
	listStatus = ""
	depEdgeType = string(types.DepBlocks)
	closeNoCycle = false
	reviewThreshold = 0
}

// testCmd returns a command with a context, which the handlers require.
func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Fatalf("expected 'short', got '%s'", got)
	}
	if got := clip("a very long advice line", 10); got != "a very ..." {
		t.Fatalf("expected 'a very ...', got '%s'", got)
	}
}

func TestExactArgsIsUsageError(t *testing.T) {
	check := exactArgs(1)
	err := check(&cobra.Command{Use: "show"}, []string{})
	if err == nil {
		t.Fatal("expected usage error for missing argument")
	}
	if code := cli.ExitCode(err); code != cli.ExitUsage {
		t.Fatalf("expected exit code %d, got %d", cli.ExitUsage, code)
	}

	err = maxArgs(1)(&cobra.Command{Use: "record"}, []string{"a", "b"})
	if err == nil {
		t.Fatal("expected usage error for extra argument")
	}
	if code := cli.ExitCode(err); code != cli.ExitUsage {
		t.Fatalf("expected exit code %d, got %d", cli.ExitUsage, code)
	}
}

func TestRunInitScaffolds(t *testing.T) {
	setupTest(t)

	output := captureOutput(t, func() {
		if err := runInit(testCmd(), nil); err != nil {
			t.Fatalf("runInit returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Initialized hone in") {
		t.Fatalf("expected init message, got: %s", output)
	}
	if _, err := os.Stat(config.ProjectConfigPath(workspace)); err != nil {
		t.Fatalf("expected project config to exist: %v", err)
	}
	raw, err := os.ReadFile(cfg.AgentsPath)
	if err != nil {
		t.Fatalf("expected playbook to exist: %v", err)
	}
	if !strings.Contains(string(raw), "build/test/patterns") {
		t.Fatalf("expected default sections in playbook front-matter, got: %s", raw)
	}

	// A second run leaves everything alone.
	output = captureOutput(t, func() {
		if err := runInit(testCmd(), nil); err != nil {
			t.Fatalf("second runInit returned error: %v", err)
		}
	})
	if !strings.Contains(output, "nothing written") {
		t.Fatalf("expected idempotent message, got: %s", output)
	}
}

func TestRunAnalyzeEmptyWorkspace(t *testing.T) {
	setupTest(t)

	output := captureOutput(t, func() {
		if err := runAnalyze(testCmd(), nil); err != nil {
			t.Fatalf("runAnalyze returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Analyzed 0 traces -> 0 insights") {
		t.Fatalf("expected empty analyze summary, got: %s", output)
	}
}

func TestRunCycleScopedToBead(t *testing.T) {
	setupTest(t)

	e := learn.New(cfg)
	trace := types.ExecutionTrace{
		TraceID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		BeadID:        "hn-9",
		DiscoveredIDs: []string{"hn-a", "hn-b", "hn-c"},
		Completed:     true,
		Outcome:       types.OutcomeSuccess,
	}
	if err := e.RecordTrace(trace, workspace); err != nil {
		t.Fatalf("failed to record trace: %v", err)
	}

	cycleBead = "hn-9"
	output := captureOutput(t, func() {
		if err := runCycle(testCmd(), nil); err != nil {
			t.Fatalf("runCycle returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Cycle complete: 1 traces, 1 insights, 1 queued") {
		t.Fatalf("expected cycle summary, got: %s", output)
	}
	if !strings.Contains(output, "Playbook updated") {
		t.Fatalf("expected playbook commit, got: %s", output)
	}

	raw, err := os.ReadFile(cfg.AgentsPath)
	if err != nil {
		t.Fatalf("expected playbook to exist: %v", err)
	}
	if !strings.Contains(string(raw), "## Architecture Patterns") {
		t.Fatalf("expected routed section in playbook, got: %s", raw)
	}
}

func TestItemLifecycleLocalAdapter(t *testing.T) {
	setupTest(t)
	cfg.Tracker.Adapter = config.AdapterLocal

	a, err := tracker.NewLocal(cfg.Tracker.DBPath)
	if err != nil {
		t.Fatalf("failed to open local tracker: %v", err)
	}
	created, err := a.Create(context.Background(), types.WorkItem{Title: "Fix flaky parser test"})
	if err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("failed to close local tracker: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runItemList(testCmd(), nil); err != nil {
			t.Fatalf("runItemList returned error: %v", err)
		}
	})
	if !strings.Contains(output, created.ID) {
		t.Fatalf("expected %s in listing, got: %s", created.ID, output)
	}

	closeNoCycle = true
	output = captureOutput(t, func() {
		if err := runItemClose(testCmd(), []string{created.ID}); err != nil {
			t.Fatalf("runItemClose returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Closed "+created.ID) {
		t.Fatalf("expected close message, got: %s", output)
	}

	// The mutation was mirrored into the event log the watcher tails.
	items, _, err := tracker.NewItemLog(cfg.Tracker.EventLogPath).Read()
	if err != nil {
		t.Fatalf("failed to read item log: %v", err)
	}
	if len(items) != 1 || items[0].Status != types.ItemClosed {
		t.Fatalf("expected one closed snapshot in item log, got: %+v", items)
	}
}

func TestRunItemShowMissing(t *testing.T) {
	setupTest(t)

	err := runItemShow(testCmd(), []string{"hn-404"})
	if err == nil {
		t.Fatal("expected error for missing item")
	}
	if code := cli.ExitCode(err); code != cli.ExitMissing {
		t.Fatalf("expected exit code %d, got %d", cli.ExitMissing, code)
	}
}

func TestRunQueueShowEmpty(t *testing.T) {
	setupTest(t)

	output := captureOutput(t, func() {
		if err := runQueueShow(testCmd(), nil); err != nil {
			t.Fatalf("runQueueShow returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Queue is empty") {
		t.Fatalf("expected empty queue message, got: %s", output)
	}

	jsonOut = true
	output = captureOutput(t, func() {
		if err := runQueueShow(testCmd(), nil); err != nil {
			t.Fatalf("runQueueShow returned error: %v", err)
		}
	})
	if strings.TrimSpace(output) != "[]" {
		t.Fatalf("expected empty JSON array, got: %s", output)
	}
}

func TestRunPlaybookShowMissing(t *testing.T) {
	setupTest(t)

	err := runPlaybookShow(testCmd(), nil)
	if err == nil {
		t.Fatal("expected error for missing playbook")
	}
	if code := cli.ExitCode(err); code != cli.ExitMissing {
		t.Fatalf("expected exit code %d, got %d", cli.ExitMissing, code)
	}
}

func TestRunPlaybookStats(t *testing.T) {
	setupTest(t)

	pb := "## Build Test Patterns\n\n" +
		"- [Bullet #b1, helpful:3, harmful:1] Pin the CI toolchain version\n"
	if err := os.WriteFile(cfg.AgentsPath, []byte(pb), 0o644); err != nil {
		t.Fatalf("failed to seed playbook: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runPlaybookStats(testCmd(), nil); err != nil {
			t.Fatalf("runPlaybookStats returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Net score:   2") {
		t.Fatalf("expected net score 2, got: %s", output)
	}
	if !strings.Contains(output, "build/test/patterns") {
		t.Fatalf("expected section breakdown, got: %s", output)
	}
}

func TestRunPlaybookPruneArchives(t *testing.T) {
	setupTest(t)

	pb := "## Build Test Patterns\n\n" +
		"- [Bullet #good, helpful:4, harmful:0] Keep builds hermetic\n" +
		"- [Bullet #bad, helpful:0, harmful:5] Skip the test suite when in a hurry\n"
	if err := os.WriteFile(cfg.AgentsPath, []byte(pb), 0o644); err != nil {
		t.Fatalf("failed to seed playbook: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runPlaybookPrune(testCmd(), nil); err != nil {
			t.Fatalf("runPlaybookPrune returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Archived 1 bullets") {
		t.Fatalf("expected one archived bullet, got: %s", output)
	}

	raw, err := os.ReadFile(cfg.AgentsPath)
	if err != nil {
		t.Fatalf("failed to read playbook: %v", err)
	}
	if strings.Contains(string(raw), "Skip the test suite") {
		t.Fatalf("expected pruned bullet gone from playbook, got: %s", raw)
	}
	archived, err := os.ReadFile(cfg.BulletArchivePath)
	if err != nil {
		t.Fatalf("expected archive file: %v", err)
	}
	if !strings.Contains(string(archived), "Skip the test suite") {
		t.Fatalf("expected pruned bullet in archive, got: %s", archived)
	}

	events, _, err := logging.NewEventLog(cfg.NotificationLogPath()).Read()
	if err != nil {
		t.Fatalf("failed to read notification log: %v", err)
	}
	if len(events) != 1 || events[0].Kind != logging.EventBulletPruned {
		t.Fatalf("expected one bullet_pruned event, got: %+v", events)
	}
}

func TestRunReviewThresholdPromotes(t *testing.T) {
	setupTest(t)

	e := learn.New(cfg)
	d := types.Delta{
		ID:      uuid.NewString(),
		Section: "build/test/patterns",
		Op:      types.OpAdd,
		Content: "Re-run flaky suites once before failing the build",
		Metadata: types.DeltaMetadata{
			Confidence: 0.85,
			Evidence:   "held back by an offline epoch",
			CreatedAt:  time.Now().UTC(),
		},
	}
	if err := e.Review().Append(logging.EventReviewPending, map[string]interface{}{"delta": d}); err != nil {
		t.Fatalf("failed to seed review log: %v", err)
	}

	reviewThreshold = 0.8
	output := captureOutput(t, func() {
		if err := runReview(testCmd(), nil); err != nil {
			t.Fatalf("runReview returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Promoted 1 of 1") {
		t.Fatalf("expected promotion summary, got: %s", output)
	}

	queued, err := e.Queue().Read()
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != d.ID {
		t.Fatalf("expected promoted delta in queue, got: %+v", queued)
	}
}

func TestRunTracesRecordFromFile(t *testing.T) {
	setupTest(t)

	data, err := json.Marshal(types.ExecutionTrace{
		BeadID:    "hn-3",
		Completed: true,
		Outcome:   types.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("failed to marshal trace: %v", err)
	}
	path := filepath.Join(workspace, "trace.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write trace file: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runTracesRecord(testCmd(), []string{path}); err != nil {
			t.Fatalf("runTracesRecord returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Recorded trace") {
		t.Fatalf("expected record confirmation, got: %s", output)
	}

	traces, _, err := learn.New(cfg).Traces().Load()
	if err != nil {
		t.Fatalf("failed to load traces: %v", err)
	}
	if len(traces) != 1 || traces[0].BeadID != "hn-3" || traces[0].TraceID == "" {
		t.Fatalf("expected one stamped trace, got: %+v", traces)
	}
}

func TestRunTracesRecordMalformed(t *testing.T) {
	setupTest(t)

	path := filepath.Join(workspace, "trace.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write trace file: %v", err)
	}

	err := runTracesRecord(testCmd(), []string{path})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if code := cli.ExitCode(err); code != cli.ExitParse {
		t.Fatalf("expected exit code %d, got %d", cli.ExitParse, code)
	}
}

func TestReviewModelTriage(t *testing.T) {
	deltas := []types.Delta{
		{ID: "d-1", Section: "build/test/patterns", Op: types.OpAdd, Content: "First pending advice line"},
		{ID: "d-2", Section: "typescript/patterns", Op: types.OpAdd, Content: "Second pending advice line"},
	}

	m := newReviewModel(deltas)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	rm := updated.(reviewModel)

	approved := rm.approvedDeltas()
	if len(approved) != 1 || approved[0].ID != "d-1" {
		t.Fatalf("expected first delta approved, got: %+v", approved)
	}
	if !strings.Contains(rm.View(), "1 approved") {
		t.Fatalf("expected approval count in view, got: %s", rm.View())
	}

	updated, _ = rm.Update(tea.KeyMsg{Type: tea.KeyEsc})
	rm = updated.(reviewModel)
	if !rm.aborted {
		t.Fatal("expected esc to abort the review")
	}
}
