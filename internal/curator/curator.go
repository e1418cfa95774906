// Package curator turns scored insights into playbook deltas and runs the
// post-write hygiene passes: duplicate consolidation, feedback ingestion,
// and harmful-bullet archival.
package curator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"hone/internal/config"
	"hone/internal/logging"
	"hone/internal/playbook"
	"hone/internal/queue"
	"hone/internal/types"
)

// Curator mediates between reflector output and the delta queue, and owns
// the narrow playbook edits that are not full merges.
type Curator struct {
	cfg   *config.Config
	store *playbook.Store
	queue *queue.Queue
}

// New returns a curator over the given stores.
func New(cfg *config.Config, store *playbook.Store, q *queue.Queue) *Curator {
	return &Curator{cfg: cfg, store: store, queue: q}
}

// SelectDeltas runs the curation pipeline on a batch of insights: filter by
// eligibility and confidence, deduplicate by normalized pattern (first one
// wins), route each survivor to a section, then emit deltas in
// confidence-descending order truncated to the per-session cap.
func (c *Curator) SelectDeltas(insights []types.Insight) []types.Delta {
	timer := logging.StartTimer(logging.CategoryCurate, fmt.Sprintf("curate %d insights", len(insights)))
	defer timer.Stop()

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var deltas []types.Delta
	for _, in := range insights {
		if !in.OnlineEligible || in.Confidence < c.cfg.Learning.ConfidenceMin {
			logging.CurateDebug("insight %s filtered (eligible=%v confidence=%.2f)", in.ID, in.OnlineEligible, in.Confidence)
			continue
		}
		key := types.Normalize(in.Signal.Pattern)
		if seen[key] {
			logging.CurateDebug("insight %s deduplicated on pattern %q", in.ID, key)
			continue
		}
		seen[key] = true

		d, ok := c.deltaFromInsight(in, c.Route(in), now)
		if !ok {
			continue
		}
		deltas = append(deltas, d)
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Metadata.Confidence > deltas[j].Metadata.Confidence
	})
	if len(deltas) > c.cfg.MaxDeltasPerSession {
		logging.Curate("truncating %d deltas to session cap %d", len(deltas), c.cfg.MaxDeltasPerSession)
		deltas = deltas[:c.cfg.MaxDeltasPerSession]
	}

	logging.Curate("selected %d deltas from %d insights", len(deltas), len(insights))
	return deltas
}

// Route returns the section for an insight: first routing rule matching the
// source runner or the meta tags wins.
func (c *Curator) Route(in types.Insight) string {
	for _, rule := range c.cfg.Routing {
		if rule.Matches(in.Source.Runner, in.MetaTags) {
			return rule.Section
		}
	}
	// Config validation requires a trailing catch-all rule.
	return "build/test/patterns"
}

func (c *Curator) deltaFromInsight(in types.Insight, section string, now time.Time) (types.Delta, bool) {
	content := strings.TrimSpace(in.Recommendation)
	if len(content) < 8 {
		logging.CurateWarn("insight %s has no usable recommendation, skipped", in.ID)
		return types.Delta{}, false
	}

	evidence := strings.Join(in.Signal.Evidence, "; ")
	if len(evidence) < 8 {
		evidence = "pattern: " + in.Signal.Pattern
	}

	beadID := ""
	if len(in.Source.BeadIDs) > 0 {
		beadID = in.Source.BeadIDs[0]
	}

	return types.Delta{
		ID:      uuid.NewString(),
		Section: section,
		Op:      types.OpAdd,
		Content: content,
		Metadata: types.DeltaMetadata{
			Source:     types.DeltaSource{BeadID: beadID},
			Confidence: in.Confidence,
			Tags:       in.MetaTags,
			Scope:      in.Scope,
			Evidence:   evidence,
			CreatedAt:  now,
		},
	}, true
}

// Curate selects deltas from the insights and appends them to the queue.
func (c *Curator) Curate(insights []types.Insight) ([]types.Delta, error) {
	deltas := c.SelectDeltas(insights)
	if len(deltas) == 0 {
		return nil, nil
	}
	if err := c.queue.Enqueue(deltas); err != nil {
		return nil, err
	}
	return deltas, nil
}

// IngestFeedback applies a closed trace's bullet feedback to the playbook
// counters. Bullets no longer in the playbook are tolerated as no-ops.
func (c *Curator) IngestFeedback(trace types.ExecutionTrace) (int, error) {
	incs := make(map[string]playbook.CounterDelta)
	for _, fb := range trace.BulletsUsed {
		inc := incs[fb.BulletID]
		switch fb.Feedback {
		case types.FeedbackHelpful:
			inc.Helpful++
		case types.FeedbackHarmful:
			inc.Harmful++
		default:
			continue
		}
		incs[fb.BulletID] = inc
	}
	if len(incs) == 0 {
		return 0, nil
	}
	applied, err := c.store.IncrementCounters(incs)
	if err != nil {
		return 0, err
	}
	logging.Curate("trace %s feedback updated %d bullets", trace.TraceID, applied)
	return applied, nil
}

// ArchiveHarmful excises bullets whose harmful counter reached the
// configured threshold and appends them to the archive file, dated.
func (c *Curator) ArchiveHarmful(now time.Time) ([]string, error) {
	bullets, err := c.store.LoadBullets()
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, b := range bullets {
		if b.Harmful >= c.cfg.HarmfulThreshold {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	archived, err := c.store.ArchiveBullets(c.cfg.BulletArchivePath, ids, now)
	if err != nil {
		return nil, err
	}
	logging.Curate("archived %d harmful bullets to %s", archived, c.cfg.BulletArchivePath)
	return ids, nil
}
