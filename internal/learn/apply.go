package learn

import (
	"context"
	"time"

	"hone/internal/evaluator"
	"hone/internal/logging"
	"hone/internal/merger"
	"hone/internal/playbook"
)

func (e *Engine) apply() (ApplyReport, error) {
	timer := logging.StartTimer(logging.CategoryLearn, "apply")
	defer timer.Stop()

	report := ApplyReport{Accepted: []string{}, Rejected: []merger.Rejection{}}

	deltas, err := e.queue.Read()
	if err != nil {
		return report, err
	}
	if len(deltas) == 0 {
		report.Verdict = "queue empty"
		return report, nil
	}

	doc, err := e.store.Load()
	if err != nil {
		return report, err
	}
	current := evaluator.MetricsOf(doc.Bullets)

	res := merger.Merge(doc.Bullets, deltas, merger.Options{
		ConfidenceFloor: e.cfg.Learning.ConfidenceMin,
	})
	candidate := evaluator.MetricsOf(res.Bullets)

	accepted, verdict := evaluator.AcceptReason(current, candidate)
	report.Verdict = verdict

	ids := make([]string, len(deltas))
	for i, d := range deltas {
		ids[i] = d.ID
	}

	if !accepted {
		// Revert: the playbook stays as it is. The batch is still consumed;
		// re-queuing it would replay the identical merge next cycle.
		if _, err := e.queue.Dequeue(ids); err != nil {
			return report, err
		}
		report.Rejected = res.Rejected
		for _, id := range res.Accepted {
			report.Rejected = append(report.Rejected, merger.Rejection{
				ID: id, Reason: "evaluator", Detail: verdict,
			})
		}
		for _, rej := range report.Rejected {
			e.notify(logging.EventDeltaRejected, map[string]interface{}{
				"deltaId": rej.ID, "reason": rej.Reason,
			})
		}
		logging.Learn("apply: evaluator reverted %d deltas (%s)", len(deltas), verdict)
		return report, nil
	}

	manifest := doc.Manifest
	if manifest == nil && len(res.Bullets) > 0 {
		manifest = defaultManifest(res)
	}
	if err := e.store.WriteBullets(manifest, res.Bullets); err != nil {
		return report, err
	}
	if _, err := e.queue.Dequeue(ids); err != nil {
		return report, err
	}

	report.Applied = true
	report.Accepted = res.Accepted
	report.Rejected = res.Rejected
	report.BulletsAdded, report.BulletsPruned = diffBullets(doc, res)
	report.NetScoreChange = candidate.NetScore - current.NetScore

	for _, id := range res.Accepted {
		e.notify(logging.EventDeltaAccepted, map[string]interface{}{"deltaId": id})
	}
	for _, rej := range res.Rejected {
		e.notify(logging.EventDeltaRejected, map[string]interface{}{
			"deltaId": rej.ID, "reason": rej.Reason,
		})
	}

	// Post-write maintenance: fold duplicate bullets, then archive the ones
	// feedback has turned harmful.
	consolidated, err := e.curator.Consolidate()
	if err != nil {
		return report, err
	}
	report.Consolidated = consolidated

	archived, err := e.curator.ArchiveHarmful(time.Now().UTC())
	if err != nil {
		return report, err
	}
	report.Archived = archived
	for _, id := range archived {
		e.notify(logging.EventBulletArchived, map[string]interface{}{"bulletId": id})
	}

	logging.Learn("apply: accepted %d, rejected %d, net %+d (%s)",
		len(report.Accepted), len(report.Rejected), report.NetScoreChange, verdict)
	return report, nil
}

// defaultManifest declares the candidate's sections with unit weight, so a
// playbook born from an empty file still carries front matter.
func defaultManifest(res merger.Result) *playbook.Manifest {
	m := &playbook.Manifest{Version: "1.0"}
	for _, b := range res.Bullets {
		m.EnsureSection(b.Section, 1.0)
	}
	return m
}

// diffBullets counts additions and removals between the loaded document and
// the merge result, by bullet id.
func diffBullets(doc *playbook.Document, res merger.Result) (added, pruned int) {
	before := make(map[string]bool, len(doc.Bullets))
	for _, b := range doc.Bullets {
		before[b.ID] = true
	}
	after := make(map[string]bool, len(res.Bullets))
	for _, b := range res.Bullets {
		after[b.ID] = true
		if !before[b.ID] {
			added++
		}
	}
	for id := range before {
		if !after[id] {
			pruned++
		}
	}
	return added, pruned
}

// notify appends to the notification log, best-effort.
func (e *Engine) notify(kind string, fields map[string]interface{}) {
	if err := e.events.Append(kind, fields); err != nil {
		logging.LearnWarn("failed to append %s event: %v", kind, err)
	}
}

// CycleOptions select the cycle's trace filter.
type CycleOptions struct {
	// BeadID scopes the cycle to one closed work-item. Bead-scoped cycles
	// also ingest that item's bullet feedback.
	BeadID string
	// Batch runs cross-trace clustering in the analyze stage.
	Batch bool
}

// CycleReport aggregates the three stage reports.
type CycleReport struct {
	Analyze AnalyzeReport `json:"analyze"`
	Curate  CurateReport  `json:"curate"`
	Apply   ApplyReport   `json:"apply"`
	Aborted string        `json:"aborted,omitempty"`
}

// Cycle runs analyze, curate, and apply back to back. Cancellation is
// honored between stages only: an aborted cycle leaves every artifact the
// finished stages produced, and unmerged deltas stay queued.
func (e *Engine) Cycle(ctx context.Context, opts CycleOptions) (CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report CycleReport
	if err := ctx.Err(); err != nil {
		return report, err
	}

	e.notify(logging.EventCycleStart, map[string]interface{}{"beadId": opts.BeadID})

	var err error
	report.Analyze, err = e.analyze(AnalyzeOptions{
		BeadID:         opts.BeadID,
		Batch:          opts.Batch,
		IngestFeedback: opts.BeadID != "",
	})
	if err != nil {
		return e.abortCycle(report, "analyze", err)
	}
	if err := ctx.Err(); err != nil {
		return e.abortCycle(report, "analyze", err)
	}

	report.Curate, err = e.curate(CurateOptions{})
	if err != nil {
		return e.abortCycle(report, "curate", err)
	}
	if err := ctx.Err(); err != nil {
		return e.abortCycle(report, "curate", err)
	}

	report.Apply, err = e.apply()
	if err != nil {
		return e.abortCycle(report, "apply", err)
	}

	e.notify(logging.EventCycleComplete, map[string]interface{}{
		"beadId":   opts.BeadID,
		"insights": report.Analyze.Insights,
		"queued":   report.Curate.Queued,
		"accepted": len(report.Apply.Accepted),
		"applied":  report.Apply.Applied,
	})
	return report, nil
}

func (e *Engine) abortCycle(report CycleReport, stage string, err error) (CycleReport, error) {
	report.Aborted = stage
	e.notify(logging.EventCycleAbort, map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
	logging.LearnWarn("cycle aborted at %s: %v", stage, err)
	return report, err
}

// OfflineReport collects the per-epoch cycle reports of one offline run.
type OfflineReport struct {
	Epochs []CycleReport `json:"epochs"`
}

// Offline repeats the batch reflect-curate-apply loop for the configured
// number of epochs. Deltas under the offline review threshold are diverted
// to the review log instead of being auto-applied.
func (e *Engine) Offline(ctx context.Context) (OfflineReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report OfflineReport
	epochs := e.cfg.Learning.Offline.Epochs
	if epochs < 1 {
		epochs = 1
	}

	for i := 0; i < epochs; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var epoch CycleReport
		var err error
		epoch.Analyze, err = e.analyze(AnalyzeOptions{Batch: true})
		if err != nil {
			return report, err
		}
		if err := ctx.Err(); err != nil {
			report.Epochs = append(report.Epochs, epoch)
			return report, err
		}

		epoch.Curate, err = e.curate(CurateOptions{
			ReviewThreshold: e.cfg.Learning.Offline.ReviewThreshold,
		})
		if err != nil {
			return report, err
		}
		if err := ctx.Err(); err != nil {
			report.Epochs = append(report.Epochs, epoch)
			return report, err
		}

		epoch.Apply, err = e.apply()
		if err != nil {
			return report, err
		}
		report.Epochs = append(report.Epochs, epoch)
		logging.Learn("offline epoch %d/%d: %d insights, %d queued, applied=%t",
			i+1, epochs, epoch.Analyze.Insights, epoch.Curate.Queued, epoch.Apply.Applied)
	}
	return report, nil
}
