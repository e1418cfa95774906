package reflector

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"hone/internal/logging"
	"hone/internal/types"
)

// minClusterFrequency is the smallest cluster that counts as a recurring
// error. Singletons stay with the single-trace pass.
const minClusterFrequency = 2

// cluster aggregates one error signature across a batch of traces.
type cluster struct {
	sig      signature
	count    int
	beads    map[string]bool
	files    map[string]bool
	threads  map[string]bool
	evidence []string
	sample   types.NormalizedError
	allError bool
}

// AnalyzeBatch clusters failures across many traces and promotes signatures
// seen at least twice into recurring-error insights. When the batch carries
// thread IDs, per-thread recurrences are boosted 1.2x and signatures spanning
// two or more threads are re-emitted as systemic insights boosted 1.5x.
func AnalyzeBatch(traces []types.ExecutionTrace) []types.Insight {
	timer := logging.StartTimer(logging.CategoryReflect, fmt.Sprintf("analyze batch of %d traces", len(traces)))
	defer timer.Stop()

	threaded := false
	for _, t := range traces {
		if t.ThreadID != "" {
			threaded = true
			break
		}
	}

	var insights []types.Insight
	if !threaded {
		for _, c := range orderedClusters(collectClusters(traces)) {
			if c.count < minClusterFrequency {
				continue
			}
			insights = append(insights, clusterInsight(c, 1.0))
		}
		logging.Reflect("batch yielded %d recurring-error insights", len(insights))
		return insights
	}

	// Per-thread recurrences carry more weight: the same error inside one
	// line of work means the fix attempt is not landing.
	for _, threadID := range threadIDs(traces) {
		var subset []types.ExecutionTrace
		for _, t := range traces {
			if t.ThreadID == threadID {
				subset = append(subset, t)
			}
		}
		for _, c := range orderedClusters(collectClusters(subset)) {
			if c.count < minClusterFrequency {
				continue
			}
			in := clusterInsight(c, 1.2, "thread-specific")
			in.Source.ThreadIDs = []string{threadID}
			insights = append(insights, in)
		}
	}

	// Signatures crossing thread boundaries point at shared infrastructure.
	for _, c := range orderedClusters(collectClusters(traces)) {
		if c.count < minClusterFrequency || len(c.threads) < 2 {
			continue
		}
		in := clusterInsight(c, 1.5, "systemic")
		in.Source.ThreadIDs = sortedKeys(c.threads, len(c.threads))
		insights = append(insights, in)
	}

	logging.Reflect("threaded batch yielded %d insights", len(insights))
	return insights
}

func collectClusters(traces []types.ExecutionTrace) map[signature]*cluster {
	clusters := make(map[signature]*cluster)
	for _, t := range traces {
		for _, res := range t.Results {
			if res.Status != types.StatusFail {
				continue
			}
			for _, e := range ExtractErrors(res) {
				sig := clusterKey(e)
				c, ok := clusters[sig]
				if !ok {
					c = &cluster{
						sig:      sig,
						beads:    make(map[string]bool),
						files:    make(map[string]bool),
						threads:  make(map[string]bool),
						sample:   e,
						allError: true,
					}
					clusters[sig] = c
				}
				c.count++
				if t.BeadID != "" {
					c.beads[t.BeadID] = true
				}
				if t.ThreadID != "" {
					c.threads[t.ThreadID] = true
				}
				if e.File != "" {
					c.files[e.File] = true
				}
				if len(c.evidence) < 5 {
					c.evidence = append(c.evidence, e.Message)
				}
				if e.Severity != types.SeverityError {
					c.allError = false
				}
			}
		}
	}
	return clusters
}

func orderedClusters(clusters map[signature]*cluster) []*cluster {
	out := make([]*cluster, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].sig, out[j].sig
		if a.toolPattern != b.toolPattern {
			return a.toolPattern < b.toolPattern
		}
		if a.errPattern != b.errPattern {
			return a.errPattern < b.errPattern
		}
		return a.filePattern < b.filePattern
	})
	return out
}

func clusterInsight(c *cluster, boost float64, extraTags ...string) types.Insight {
	conf := clamp01(boost * Confidence(ConfidenceInputs{
		Frequency:        c.count,
		Beads:            len(c.beads),
		Files:            len(c.files),
		AllSeverityError: c.allError,
	}))
	pattern := PatternFor(c.sample)

	tags := []string{string(c.sig.toolPattern), pattern, "recurring-error"}
	tags = append(tags, extraTags...)

	return types.Insight{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    types.InsightSource{Runner: string(c.sig.toolPattern), BeadIDs: sortedKeys(c.beads, len(c.beads))},
		Signal: types.InsightSignal{
			Pattern:  pattern,
			Evidence: c.evidence,
		},
		Recommendation: recommendFor(c.sig.toolPattern, pattern, c.count),
		Scope:          sortedKeys(c.files, 5),
		Confidence:     conf,
		OnlineEligible: conf >= OnlineEligibleThreshold,
		MetaTags:       tags,
	}
}

func threadIDs(traces []types.ExecutionTrace) []string {
	seen := make(map[string]bool)
	for _, t := range traces {
		if t.ThreadID != "" {
			seen[t.ThreadID] = true
		}
	}
	return sortedKeys(seen, len(seen))
}
