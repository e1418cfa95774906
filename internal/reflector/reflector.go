package reflector

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"hone/internal/logging"
	"hone/internal/types"
)

// AnalyzeTrace mines one closed trace. It emits one insight per
// (tool, pattern) pair across the trace's failed executions, plus a
// discovery-chain insight when the task spawned follow-up items and a
// harmful-bullet-feedback insight when consulted advice was flagged harmful.
func AnalyzeTrace(trace types.ExecutionTrace) []types.Insight {
	timer := logging.StartTimer(logging.CategoryReflect, fmt.Sprintf("analyze trace %s", trace.TraceID))
	defer timer.Stop()

	var insights []types.Insight
	insights = append(insights, errorInsights(trace)...)

	if di, ok := discoveryChainInsight(trace); ok {
		insights = append(insights, di)
	}
	if hi, ok := harmfulFeedbackInsight(trace); ok {
		insights = append(insights, hi)
	}

	logging.Reflect("trace %s yielded %d insights", trace.TraceID, len(insights))
	return insights
}

// errorGroup aggregates one (tool, pattern) pair within a trace.
type errorGroup struct {
	tool     types.Tool
	pattern  string
	count    int
	files    map[string]bool
	evidence []string
	allError bool
}

func errorInsights(trace types.ExecutionTrace) []types.Insight {
	groups := make(map[string]*errorGroup)
	for _, res := range trace.Results {
		if res.Status != types.StatusFail {
			continue
		}
		for _, e := range ExtractErrors(res) {
			pattern := PatternFor(e)
			key := string(e.Tool) + "\x00" + pattern
			g, ok := groups[key]
			if !ok {
				g = &errorGroup{tool: e.Tool, pattern: pattern, files: make(map[string]bool), allError: true}
				groups[key] = g
			}
			g.count++
			if e.File != "" {
				g.files[e.File] = true
			}
			if len(g.evidence) < 5 {
				g.evidence = append(g.evidence, e.Message)
			}
			if e.Severity != types.SeverityError {
				g.allError = false
			}
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var insights []types.Insight
	for _, k := range keys {
		g := groups[k]
		conf := Confidence(ConfidenceInputs{
			Frequency:        g.count,
			Beads:            beadCount(trace),
			Files:            len(g.files),
			AllSeverityError: g.allError,
		})
		insights = append(insights, types.Insight{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			TaskID:         trace.TraceID,
			Source:         types.InsightSource{Runner: string(g.tool), BeadIDs: beadIDs(trace)},
			Signal:         types.InsightSignal{Pattern: g.pattern, Evidence: g.evidence},
			Recommendation: recommendFor(g.tool, g.pattern, g.count),
			Scope:          sortedKeys(g.files, 5),
			Confidence:     conf,
			OnlineEligible: conf >= OnlineEligibleThreshold,
			MetaTags:       []string{string(g.tool), g.pattern},
		})
	}
	return insights
}

// discoveryChainInsight reports that closing this task surfaced additional
// work-items. Three or more discoveries mark a strong decomposition signal.
func discoveryChainInsight(trace types.ExecutionTrace) (types.Insight, bool) {
	n := len(trace.DiscoveredIDs)
	if n < 1 {
		return types.Insight{}, false
	}

	conf := 0.65
	if n >= 3 {
		conf = 0.85
	}

	beads := append([]string{}, beadIDs(trace)...)
	beads = append(beads, trace.DiscoveredIDs...)

	return types.Insight{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TaskID:    trace.TraceID,
		Source:    types.InsightSource{BeadIDs: beads},
		Signal: types.InsightSignal{
			Pattern:  PatternDiscoveryChain,
			Evidence: []string{fmt.Sprintf("task %s discovered %d follow-up items: %s", trace.BeadID, n, strings.Join(trace.DiscoveredIDs, ", "))},
		},
		Recommendation: "Scope similar tasks smaller up front: this kind of task keeps uncovering follow-up work mid-flight",
		Confidence:     conf,
		OnlineEligible: conf >= OnlineEligibleThreshold,
		MetaTags:       []string{"discovery", "meta-pattern"},
	}, true
}

// harmfulFeedbackInsight reports consulted bullets the session flagged
// harmful. Never online-eligible: demoting advice wants a human pass.
func harmfulFeedbackInsight(trace types.ExecutionTrace) (types.Insight, bool) {
	var evidence []string
	for _, fb := range trace.BulletsUsed {
		if fb.Feedback != types.FeedbackHarmful {
			continue
		}
		line := fmt.Sprintf("bullet %s flagged harmful", fb.BulletID)
		if fb.Reason != "" {
			line += ": " + fb.Reason
		}
		evidence = append(evidence, line)
	}
	if len(evidence) == 0 {
		return types.Insight{}, false
	}

	return types.Insight{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TaskID:    trace.TraceID,
		Source:    types.InsightSource{BeadIDs: beadIDs(trace)},
		Signal: types.InsightSignal{
			Pattern:  PatternHarmfulFeedback,
			Evidence: evidence,
		},
		Recommendation: "Review the flagged bullets; repeated harmful feedback will archive them",
		Confidence:     0.75,
		OnlineEligible: false,
		MetaTags:       []string{"feedback", "harmful-bullet"},
	}, true
}

func recommendFor(tool types.Tool, pattern string, count int) string {
	switch pattern {
	case PatternTypeError:
		return "Check assignability at module boundaries before running the suite; type errors recur here"
	case PatternModuleResolution:
		return "Verify imports and package installs first; module resolution failures recur here"
	case PatternAssertionFailure:
		return "Re-read the failing expectations before editing code; assertions here fail repeatedly"
	default:
		return fmt.Sprintf("Investigate recurring %s %s failures (%d occurrences)", tool, pattern, count)
	}
}

func beadIDs(trace types.ExecutionTrace) []string {
	if trace.BeadID == "" {
		return nil
	}
	return []string{trace.BeadID}
}

func beadCount(trace types.ExecutionTrace) int {
	if trace.BeadID == "" {
		return 0
	}
	return 1
}

func sortedKeys(m map[string]bool, limit int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
