package learn

import (
	"encoding/json"

	"hone/internal/logging"
	"hone/internal/types"
)

// ReviewedDeltas decodes the deltas embedded in review_pending events. The
// event log stores fields as generic JSON, so each delta takes a round trip
// through the encoder. Events of other kinds and undecodable entries are
// skipped.
func ReviewedDeltas(events []logging.Event) []types.Delta {
	var deltas []types.Delta
	for _, ev := range events {
		if ev.Kind != logging.EventReviewPending {
			continue
		}
		raw, ok := ev.Fields["delta"]
		if !ok {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var d types.Delta
		if err := json.Unmarshal(data, &d); err != nil || d.ID == "" {
			logging.LearnWarn("skipping undecodable review entry")
			continue
		}
		deltas = append(deltas, d)
	}
	return deltas
}

// PendingReview returns review-log deltas that are still actionable: not
// yet queued and not already merged. The review log is append-only, so a
// promoted delta stays in it; merged bullets share the delta's id, which
// makes the filter exact.
func (e *Engine) PendingReview() ([]types.Delta, error) {
	events, _, err := e.review.Read()
	if err != nil {
		return nil, err
	}
	all := ReviewedDeltas(events)
	if len(all) == 0 {
		return nil, nil
	}

	queued, err := e.queue.Read()
	if err != nil {
		return nil, err
	}
	bullets, err := e.store.LoadBullets()
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(queued)+len(bullets))
	for _, d := range queued {
		done[d.ID] = true
	}
	for _, b := range bullets {
		done[b.ID] = true
	}

	var pending []types.Delta
	for _, d := range all {
		if done[d.ID] {
			continue
		}
		done[d.ID] = true
		pending = append(pending, d)
	}
	return pending, nil
}

// PromoteReviewed enqueues deltas a human approved from the review log.
func (e *Engine) PromoteReviewed(deltas []types.Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	return e.queue.Enqueue(deltas)
}
