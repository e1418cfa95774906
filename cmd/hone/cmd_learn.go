package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hone/internal/learn"
)

var (
	analyzeTraceFile string
	analyzeBead      string
	analyzeBatch     bool
	analyzeThreads   bool
	analyzeFeedback  bool

	curateApply bool

	cycleBead  string
	cycleBatch bool
)

// analyzeCmd runs the reflector over recorded traces
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Mine execution traces for insights",
	Long: `Runs the reflector over the trace log and appends the resulting insights
to the insights log. Nothing is queued or merged; see 'hone curate' and
'hone apply' for the rest of the pipeline.

Examples:
  hone analyze                       # every recorded trace, one at a time
  hone analyze --bead hn-42          # only traces for one work-item
  hone analyze --batch               # cluster failures across traces
  hone analyze --threads             # batch mode with per-thread weighting`,
	Args: exactArgs(0),
	RunE: runAnalyze,
}

// curateCmd turns logged insights into queued deltas
var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Curate insights into queued playbook deltas",
	Long: `Filters logged insights by eligibility and confidence, routes each to a
playbook section, and appends the resulting deltas to the queue. With
--apply the queue is drained through the merge gate immediately after.`,
	Args: exactArgs(0),
	RunE: runCurate,
}

// applyCmd drains the delta queue through the merge gate
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Merge queued deltas into the playbook",
	Long: `Reads the delta queue, merges into a candidate playbook, and commits only
if the evaluator scores the candidate at least as healthy as the current
playbook. Consumed deltas leave the queue whether they were accepted or
not.`,
	Args: exactArgs(0),
	RunE: runApply,
}

// cycleCmd runs the full learning cycle
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run analyze, curate, and apply back to back",
	Long: `Runs the complete learning cycle. With --bead the cycle is scoped to one
closed work-item and that item's bullet feedback is folded into the
playbook counters.`,
	Args: exactArgs(0),
	RunE: runCycle,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTraceFile, "trace-file", "", "Read traces from this file instead of the configured log")
	analyzeCmd.Flags().StringVar(&analyzeBead, "bead", "", "Restrict analysis to one work-item's traces")
	analyzeCmd.Flags().BoolVar(&analyzeBatch, "batch", false, "Cluster failures across traces")
	analyzeCmd.Flags().BoolVar(&analyzeThreads, "threads", false, "Batch mode; traces carrying thread ids get per-thread weighting")
	analyzeCmd.Flags().BoolVar(&analyzeFeedback, "ingest-feedback", false, "Also apply bullet feedback counters from the analyzed traces")

	curateCmd.Flags().BoolVar(&curateApply, "apply", false, "Drain the queue through the merge gate after curating")

	cycleCmd.Flags().StringVar(&cycleBead, "bead", "", "Scope the cycle to one closed work-item")
	cycleCmd.Flags().BoolVar(&cycleBatch, "batch", false, "Cluster failures across traces in the analyze stage")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(curateCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(cycleCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	report, err := newEngine().Analyze(cmd.Context(), learn.AnalyzeOptions{
		TracePath:      analyzeTraceFile,
		BeadID:         analyzeBead,
		Batch:          analyzeBatch || analyzeThreads,
		IngestFeedback: analyzeFeedback,
	})
	if err != nil {
		return err
	}

	if done, err := emit(report); done || err != nil {
		return err
	}
	fmt.Printf("Analyzed %d traces -> %d insights\n", report.TracesRead, report.Insights)
	if report.CountersApplied > 0 {
		fmt.Printf("  feedback updated %d bullets\n", report.CountersApplied)
	}
	if report.SkippedLines > 0 {
		fmt.Printf("  skipped %d malformed trace lines\n", report.SkippedLines)
	}
	return nil
}

func runCurate(cmd *cobra.Command, args []string) error {
	e := newEngine()
	report, err := e.Curate(cmd.Context(), learn.CurateOptions{})
	if err != nil {
		return err
	}

	if curateApply {
		applyReport, err := e.Apply(cmd.Context())
		if err != nil {
			return err
		}
		combined := struct {
			Curate learn.CurateReport `json:"curate"`
			Apply  learn.ApplyReport  `json:"apply"`
		}{report, applyReport}
		if done, err := emit(combined); done || err != nil {
			return err
		}
		printCurateReport(report)
		printApplyReport(applyReport)
		return nil
	}

	if done, err := emit(report); done || err != nil {
		return err
	}
	printCurateReport(report)
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	report, err := newEngine().Apply(cmd.Context())
	if err != nil {
		return err
	}
	if done, err := emit(report); done || err != nil {
		return err
	}
	printApplyReport(report)
	return nil
}

func runCycle(cmd *cobra.Command, args []string) error {
	logger.Info("running learning cycle", zap.String("bead", cycleBead))
	report, err := newEngine().Cycle(cmd.Context(), learn.CycleOptions{
		BeadID: cycleBead,
		Batch:  cycleBatch,
	})
	if err != nil {
		return err
	}
	if done, err := emit(report); done || err != nil {
		return err
	}
	fmt.Printf("Cycle complete: %d traces, %d insights, %d queued\n",
		report.Analyze.TracesRead, report.Analyze.Insights, report.Curate.Queued)
	if report.Analyze.CountersApplied > 0 {
		fmt.Printf("  feedback updated %d bullets\n", report.Analyze.CountersApplied)
	}
	printApplyReport(report.Apply)
	return nil
}

func printCurateReport(r learn.CurateReport) {
	fmt.Printf("Curated %d insights -> %d deltas (%d queued", r.InsightsRead, r.Deltas, r.Queued)
	if r.SentToReview > 0 {
		fmt.Printf(", %d held for review", r.SentToReview)
	}
	fmt.Println(")")
}

func printApplyReport(r learn.ApplyReport) {
	if !r.Applied {
		fmt.Printf("Playbook unchanged: %s\n", r.Verdict)
	} else {
		fmt.Printf("Playbook updated (%s): +%d bullets, -%d bullets, net score %+d\n",
			r.Verdict, r.BulletsAdded, r.BulletsPruned, r.NetScoreChange)
	}
	for _, rej := range r.Rejected {
		fmt.Printf("  rejected %s: %s\n", rej.ID, rej.Reason)
	}
	if r.Consolidated > 0 {
		fmt.Printf("  consolidated %d duplicate bullets\n", r.Consolidated)
	}
	if len(r.Archived) > 0 {
		fmt.Printf("  archived %d harmful bullets\n", len(r.Archived))
	}
}
