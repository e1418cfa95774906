package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hone/internal/types"
)

var tracesBead string

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect and maintain the execution trace log",
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded traces",
	Args:  exactArgs(0),
	RunE:  runTracesList,
}

var tracesRetainCmd = &cobra.Command{
	Use:   "retain",
	Short: "Apply the retention policy to the trace log",
	Long: `Archives excess traces per work-item once they age out. The newest traces
for each item always stay; see learning.trace_retention in the config.`,
	Args: exactArgs(0),
	RunE: runTracesRetain,
}

var tracesRecordCmd = &cobra.Command{
	Use:   "record [file]",
	Short: "Append an execution trace from a JSON file or stdin",
	Long: `Reads one execution trace as JSON and appends it to the trace log, stamped
with the workspace's current git commit and branch. Agent harnesses pipe
their session telemetry through this command.`,
	Args: maxArgs(1),
	RunE: runTracesRecord,
}

func init() {
	tracesListCmd.Flags().StringVar(&tracesBead, "bead", "", "Only traces for this work-item")

	tracesCmd.AddCommand(tracesListCmd)
	tracesCmd.AddCommand(tracesRetainCmd)
	tracesCmd.AddCommand(tracesRecordCmd)
	rootCmd.AddCommand(tracesCmd)
}

func runTracesList(cmd *cobra.Command, args []string) error {
	store := newEngine().Traces()

	var (
		traces  []types.ExecutionTrace
		skipped int
		err     error
	)
	if tracesBead != "" {
		traces, err = store.ForBead(tracesBead)
	} else {
		traces, skipped, err = store.Load()
	}
	if err != nil {
		return err
	}

	if traces == nil {
		traces = []types.ExecutionTrace{}
	}
	if done, err := emit(traces); done || err != nil {
		return err
	}

	if len(traces) == 0 {
		fmt.Println("No traces recorded")
		return nil
	}
	fmt.Printf("%d traces:\n", len(traces))
	for _, tr := range traces {
		status := "ok"
		if tr.Failed() {
			status = "fail"
		}
		bead := tr.BeadID
		if bead == "" {
			bead = "-"
		}
		fmt.Printf("  %s  %-10s %-4s %d results  %s\n",
			tr.Timestamp.Format(time.RFC3339), bead, status, len(tr.Results), clip(tr.TaskDescription, 48))
	}
	if skipped > 0 {
		fmt.Printf("  (%d malformed lines skipped)\n", skipped)
	}
	return nil
}

func runTracesRetain(cmd *cobra.Command, args []string) error {
	res, err := newEngine().RetainTraces(time.Now().UTC())
	if err != nil {
		return err
	}
	if done, err := emit(res); done || err != nil {
		return err
	}
	fmt.Printf("Retention sweep: %d kept, %d archived\n", res.Kept, res.Archived)
	if res.Archived > 0 {
		fmt.Printf("  archive: %s\n", cfg.TraceRetention.ArchivePath)
	}
	return nil
}

func runTracesRecord(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
		src  = "stdin"
	)
	if len(args) == 1 {
		src = args[0]
		data, err = os.ReadFile(args[0])
		if err != nil {
			if os.IsNotExist(err) {
				return types.Missingf("trace file %s does not exist", args[0])
			}
			return err
		}
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	var trace types.ExecutionTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return types.Parsef("trace from %s: %v", src, err)
	}
	if trace.TraceID == "" {
		trace.TraceID = uuid.NewString()
	}
	if trace.Timestamp.IsZero() {
		trace.Timestamp = time.Now().UTC()
	}

	if err := newEngine().RecordTrace(trace, workspace); err != nil {
		return err
	}

	report := struct {
		TraceID string `json:"traceId"`
		BeadID  string `json:"beadId,omitempty"`
	}{trace.TraceID, trace.BeadID}
	if done, err := emit(report); done || err != nil {
		return err
	}
	fmt.Printf("Recorded trace %s\n", trace.TraceID)
	return nil
}
