// Package learn orchestrates the closed learning loop: reflect over traces,
// curate insights into deltas, merge deltas into the playbook behind the
// evaluator gate. Cycles are serialized by a process-wide mutex and
// interruptible at stage boundaries only.
package learn

import (
	"context"
	"sync"
	"time"

	"hone/internal/config"
	"hone/internal/curator"
	"hone/internal/logging"
	"hone/internal/merger"
	"hone/internal/playbook"
	"hone/internal/queue"
	"hone/internal/reflector"
	"hone/internal/tracestore"
	"hone/internal/types"
)

// Engine wires the pipeline stores together. One engine per workspace.
type Engine struct {
	cfg     *config.Config
	store   *playbook.Store
	queue   *queue.Queue
	traces  *tracestore.Store
	curator *curator.Curator
	events  *logging.EventLog
	review  *logging.EventLog

	// mu serializes cycles. Closure triggers, the scheduler, and manual
	// invocations all funnel through it.
	mu sync.Mutex
}

// New builds an engine over the workspace the config describes.
func New(cfg *config.Config) *Engine {
	store := playbook.NewStore(cfg.AgentsPath, cfg.KnowledgeRoot())
	q := queue.New(cfg.DeltaQueuePath)
	return &Engine{
		cfg:     cfg,
		store:   store,
		queue:   q,
		traces:  tracestore.New(cfg.TracesPath),
		curator: curator.New(cfg, store, q),
		events:  logging.NewEventLog(cfg.NotificationLogPath()),
		review:  logging.NewEventLog(cfg.ReviewLogPath()),
	}
}

// Playbook exposes the engine's playbook store to the command layer.
func (e *Engine) Playbook() *playbook.Store { return e.store }

// Queue exposes the delta queue.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Traces exposes the trace store.
func (e *Engine) Traces() *tracestore.Store { return e.traces }

// Curator exposes the curator for direct maintenance commands.
func (e *Engine) Curator() *curator.Curator { return e.curator }

// Events exposes the notification log.
func (e *Engine) Events() *logging.EventLog { return e.events }

// Review exposes the review log.
func (e *Engine) Review() *logging.EventLog { return e.review }

// RecordTrace stamps the trace with the workspace's git head and appends it
// to the trace store. Feedback counters are not applied here; that happens
// in the bead-scoped cycle the item closure triggers.
func (e *Engine) RecordTrace(trace types.ExecutionTrace, workspace string) error {
	tracestore.Stamp(&trace, workspace)
	return e.traces.Append(trace)
}

// RetainTraces runs the retention sweep and, when anything was archived,
// records it in the notification log.
func (e *Engine) RetainTraces(now time.Time) (tracestore.RetentionResult, error) {
	res, err := e.traces.Retain(e.cfg.TraceRetention, now)
	if err != nil {
		return res, err
	}
	if res.Archived > 0 {
		e.notify(logging.EventRetentionSweep, map[string]interface{}{
			"kept":     res.Kept,
			"archived": res.Archived,
		})
	}
	return res, nil
}

// AnalyzeOptions select which traces the reflector reads and how.
type AnalyzeOptions struct {
	// TracePath overrides the configured trace log.
	TracePath string
	// BeadID restricts analysis to one work-item's traces.
	BeadID string
	// Batch switches to cross-trace clustering instead of per-trace insights.
	Batch bool
	// IngestFeedback applies bullet feedback counters from the analyzed
	// traces to the playbook. Only the closure-triggered, bead-scoped cycle
	// sets this, so counters are applied once per closed item.
	IngestFeedback bool
}

// AnalyzeReport summarizes one reflector run.
type AnalyzeReport struct {
	TracesRead      int `json:"tracesRead"`
	SkippedLines    int `json:"skippedLines,omitempty"`
	Insights        int `json:"insights"`
	CountersApplied int `json:"countersApplied,omitempty"`
}

// Analyze runs the reflector over the selected traces and appends the
// resulting insights to the insights log.
func (e *Engine) Analyze(ctx context.Context, opts AnalyzeOptions) (AnalyzeReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return AnalyzeReport{}, err
	}
	return e.analyze(opts)
}

func (e *Engine) analyze(opts AnalyzeOptions) (AnalyzeReport, error) {
	timer := logging.StartTimer(logging.CategoryLearn, "analyze")
	defer timer.Stop()

	ts := e.traces
	if opts.TracePath != "" {
		ts = tracestore.New(opts.TracePath)
	}

	var report AnalyzeReport
	var traces []types.ExecutionTrace
	var err error
	if opts.BeadID != "" {
		traces, err = ts.ForBead(opts.BeadID)
	} else {
		traces, report.SkippedLines, err = ts.Load()
	}
	if err != nil {
		return report, err
	}
	report.TracesRead = len(traces)

	var insights []types.Insight
	if opts.Batch {
		insights = reflector.AnalyzeBatch(traces)
	} else {
		for _, tr := range traces {
			insights = append(insights, reflector.AnalyzeTrace(tr)...)
		}
	}
	report.Insights = len(insights)

	if err := reflector.AppendInsights(e.cfg.InsightsPath, insights); err != nil {
		return report, err
	}

	if opts.IngestFeedback {
		for _, tr := range traces {
			applied, err := e.curator.IngestFeedback(tr)
			if err != nil {
				return report, err
			}
			report.CountersApplied += applied
		}
	}

	logging.Learn("analyze: %d traces -> %d insights", report.TracesRead, report.Insights)
	return report, nil
}

// CurateOptions tune one curation run.
type CurateOptions struct {
	// ReviewThreshold, when positive, diverts deltas whose confidence falls
	// below it to the review log instead of the queue. Offline epochs pass
	// learning.offline.review_threshold here; online curation leaves it 0.
	ReviewThreshold float64
}

// CurateReport summarizes one curation run.
type CurateReport struct {
	InsightsRead int `json:"insightsRead"`
	SkippedLines int `json:"skippedLines,omitempty"`
	Deltas       int `json:"deltas"`
	Queued       int `json:"queued"`
	SentToReview int `json:"sentToReview,omitempty"`
}

// Curate turns logged insights into queued deltas.
func (e *Engine) Curate(ctx context.Context, opts CurateOptions) (CurateReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return CurateReport{}, err
	}
	return e.curate(opts)
}

func (e *Engine) curate(opts CurateOptions) (CurateReport, error) {
	timer := logging.StartTimer(logging.CategoryLearn, "curate")
	defer timer.Stop()

	var report CurateReport
	insights, skipped, err := reflector.ReadInsights(e.cfg.InsightsPath)
	if err != nil {
		return report, err
	}
	report.InsightsRead = len(insights)
	report.SkippedLines = skipped

	deltas := e.curator.SelectDeltas(insights)
	report.Deltas = len(deltas)

	var queueable []types.Delta
	for _, d := range deltas {
		if opts.ReviewThreshold > 0 && d.Metadata.Confidence < opts.ReviewThreshold {
			if err := e.review.Append(logging.EventReviewPending, map[string]interface{}{
				"delta":      d,
				"confidence": d.Metadata.Confidence,
			}); err != nil {
				logging.LearnWarn("failed to write review entry for %s: %v", d.ID, err)
			}
			report.SentToReview++
			continue
		}
		queueable = append(queueable, d)
	}

	if len(queueable) > 0 {
		if err := e.queue.Enqueue(queueable); err != nil {
			return report, err
		}
	}
	report.Queued = len(queueable)

	logging.Learn("curate: %d insights -> %d deltas (%d queued, %d to review)",
		report.InsightsRead, report.Deltas, report.Queued, report.SentToReview)
	return report, nil
}

// ApplyReport is the user-visible outcome of one apply: what the merger
// decided, what the evaluator ruled, and how the playbook moved.
type ApplyReport struct {
	Accepted       []string           `json:"accepted"`
	Rejected       []merger.Rejection `json:"rejected"`
	BulletsAdded   int                `json:"bulletsAdded"`
	BulletsPruned  int                `json:"bulletsPruned"`
	NetScoreChange int                `json:"netScoreChange"`
	Verdict        string             `json:"verdict"`
	Applied        bool               `json:"applied"`
	Consolidated   int                `json:"consolidated,omitempty"`
	Archived       []string           `json:"archived,omitempty"`
}

// Apply drains the delta queue through the merger, gates the candidate
// playbook with the evaluator, and commits or reverts. Consumed deltas leave
// the queue either way; an evaluator revert reports them as rejected rather
// than retrying the same merge forever.
func (e *Engine) Apply(ctx context.Context) (ApplyReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return ApplyReport{}, err
	}
	return e.apply()
}
