package reflector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hone/internal/types"
)

func failedResult(runner string, errs ...types.NormalizedError) types.ExecutionResult {
	return types.ExecutionResult{
		Runner:    runner,
		Status:    types.StatusFail,
		Errors:    errs,
		ExitCode:  1,
		Timestamp: time.Now().UTC(),
	}
}

func tscError(file, code, msg string) types.NormalizedError {
	return types.NormalizedError{
		Tool:     types.ToolTSC,
		File:     file,
		Code:     code,
		Message:  msg,
		Severity: types.SeverityError,
	}
}

func TestDiscoveryChainThreeOrMore(t *testing.T) {
	trace := types.ExecutionTrace{
		TraceID:       "tr-1",
		BeadID:        "bd-100",
		DiscoveredIDs: []string{"bd-101", "bd-102", "bd-103"},
		Completed:     true,
		Outcome:       types.OutcomeSuccess,
	}

	insights := AnalyzeTrace(trace)
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, PatternDiscoveryChain, in.Signal.Pattern)
	assert.Equal(t, 0.85, in.Confidence)
	assert.True(t, in.OnlineEligible)
	assert.Equal(t, []string{"bd-100", "bd-101", "bd-102", "bd-103"}, in.Source.BeadIDs)
	assert.True(t, in.HasTag("discovery"))
	assert.True(t, in.HasTag("meta-pattern"))
}

func TestDiscoveryChainUnderThree(t *testing.T) {
	trace := types.ExecutionTrace{
		TraceID:       "tr-2",
		BeadID:        "bd-200",
		DiscoveredIDs: []string{"bd-201", "bd-202"},
	}

	insights := AnalyzeTrace(trace)
	require.Len(t, insights, 1)
	assert.Equal(t, 0.65, insights[0].Confidence)
	assert.False(t, insights[0].OnlineEligible)
}

func TestErrorInsightsGroupByToolAndPattern(t *testing.T) {
	trace := types.ExecutionTrace{
		TraceID: "tr-3",
		BeadID:  "bd-300",
		Results: []types.ExecutionResult{
			failedResult("tsc",
				tscError("src/api.ts", "TS2322", "Type 'string' is not assignable to type 'number'"),
				tscError("src/db.ts", "TS2345", "Argument of type 'X' is not assignable to parameter of type 'Y'"),
				tscError("src/cfg.ts", "TS2307", "Cannot find module './settings'"),
			),
		},
	}

	insights := AnalyzeTrace(trace)
	require.Len(t, insights, 2)

	// Groups come out ordered by (tool, pattern).
	moduleIn, typeIn := insights[0], insights[1]
	assert.Equal(t, PatternModuleResolution, moduleIn.Signal.Pattern)
	assert.Equal(t, PatternTypeError, typeIn.Signal.Pattern)

	assert.Equal(t, "tsc", typeIn.Source.Runner)
	assert.Equal(t, []string{"bd-300"}, typeIn.Source.BeadIDs)
	assert.Equal(t, []string{"src/api.ts", "src/db.ts"}, typeIn.Scope)
	assert.Len(t, typeIn.Signal.Evidence, 2)
	assert.True(t, typeIn.HasTag("tsc"))
	assert.True(t, typeIn.HasTag(PatternTypeError))

	// freq 2, one bead, two files, uniform error severity.
	assert.InDelta(t, 0.5, typeIn.Confidence, 1e-9)
	assert.False(t, typeIn.OnlineEligible)
	// freq 1, one bead, one file, uniform error severity.
	assert.InDelta(t, 0.4, moduleIn.Confidence, 1e-9)
}

func TestPassingResultsIgnored(t *testing.T) {
	trace := types.ExecutionTrace{
		TraceID: "tr-4",
		BeadID:  "bd-400",
		Results: []types.ExecutionResult{
			{
				Runner: "tsc",
				Status: types.StatusPass,
				Errors: []types.NormalizedError{tscError("src/a.ts", "TS2322", "ghost")},
			},
		},
	}
	assert.Empty(t, AnalyzeTrace(trace))
}

func TestEvidenceCapped(t *testing.T) {
	errs := make([]types.NormalizedError, 0, 8)
	for _, f := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		errs = append(errs, tscError("src/"+f+".ts", "TS2322", "Type 'A' is not assignable to type 'B'"))
	}
	trace := types.ExecutionTrace{
		TraceID: "tr-5",
		BeadID:  "bd-500",
		Results: []types.ExecutionResult{failedResult("tsc", errs...)},
	}

	insights := AnalyzeTrace(trace)
	require.Len(t, insights, 1)
	assert.Len(t, insights[0].Signal.Evidence, 5)
	assert.Len(t, insights[0].Scope, 5)
}

func TestHarmfulFeedbackInsight(t *testing.T) {
	trace := types.ExecutionTrace{
		TraceID: "tr-6",
		BeadID:  "bd-600",
		BulletsUsed: []types.BulletFeedback{
			{BulletID: "b-1", Feedback: types.FeedbackHelpful},
			{BulletID: "b-2", Feedback: types.FeedbackHarmful, Reason: "advice broke the build"},
			{BulletID: "b-3", Feedback: types.FeedbackIgnored},
		},
	}

	insights := AnalyzeTrace(trace)
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, PatternHarmfulFeedback, in.Signal.Pattern)
	assert.Equal(t, 0.75, in.Confidence)
	assert.False(t, in.OnlineEligible, "harmful feedback must never take the online path")
	require.Len(t, in.Signal.Evidence, 1)
	assert.Contains(t, in.Signal.Evidence[0], "b-2")
	assert.Contains(t, in.Signal.Evidence[0], "advice broke the build")
}

func TestAnalyzeTraceCombined(t *testing.T) {
	trace := types.ExecutionTrace{
		TraceID: "tr-7",
		BeadID:  "bd-700",
		Results: []types.ExecutionResult{
			failedResult("tsc", tscError("src/a.ts", "TS2307", "Cannot find module 'pg'")),
		},
		DiscoveredIDs: []string{"bd-701", "bd-702", "bd-703"},
		BulletsUsed: []types.BulletFeedback{
			{BulletID: "b-9", Feedback: types.FeedbackHarmful},
		},
	}

	insights := AnalyzeTrace(trace)
	require.Len(t, insights, 3)
	assert.Equal(t, PatternModuleResolution, insights[0].Signal.Pattern)
	assert.Equal(t, PatternDiscoveryChain, insights[1].Signal.Pattern)
	assert.Equal(t, PatternHarmfulFeedback, insights[2].Signal.Pattern)

	for _, in := range insights {
		assert.NotEmpty(t, in.ID)
		assert.Equal(t, "tr-7", in.TaskID)
		assert.False(t, in.Timestamp.IsZero())
	}
}

func TestQuietTraceYieldsNothing(t *testing.T) {
	trace := types.ExecutionTrace{TraceID: "tr-8", BeadID: "bd-800", Completed: true}
	assert.Empty(t, AnalyzeTrace(trace))
}
