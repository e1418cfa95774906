// Package types provides shared type definitions used across hone packages.
// This package exists to break import cycles between the playbook, merger,
// reflector, and curator packages. Types in this package should be
// foundational data structures with no complex dependencies.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// BULLET - One durable advice line in the playbook
// =============================================================================

// Bullet is a unit of durable advice. The id is stable for the bullet's
// lifetime; hash is unique within the live playbook.
type Bullet struct {
	ID             string      `json:"id"`
	Section        string      `json:"section"`
	Content        string      `json:"content"`
	Helpful        int         `json:"helpful"`
	Harmful        int         `json:"harmful"`
	AggregatedFrom int         `json:"aggregatedFrom,omitempty"`
	Hash           string      `json:"hash,omitempty"`
	Provenance     *Provenance `json:"provenance,omitempty"`
}

// Provenance links a bullet back to the delta that created it. Back-references
// from deltas to traces are reconstructed by scanning logs, never stored here.
type Provenance struct {
	DeltaID   string    `json:"deltaId"`
	SourceID  string    `json:"sourceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Score is the bullet's net usefulness, used for top/bottom rankings and
// pruning.
func (b Bullet) Score() int {
	return b.Helpful - b.Harmful
}

// ComputeHash fills and returns the bullet's dedup hash.
func (b *Bullet) ComputeHash() string {
	b.Hash = BulletHash(b.Section, b.Content)
	return b.Hash
}

// =============================================================================
// DELTA - A proposed atomic change to the bullet set
// =============================================================================

// DeltaOp enumerates the three mutations a delta may request.
type DeltaOp string

const (
	OpAdd       DeltaOp = "add"
	OpAmend     DeltaOp = "amend"
	OpDeprecate DeltaOp = "deprecate"
)

// Delta is a proposed change to the playbook, produced by the curator and
// consumed exactly once by the merger.
type Delta struct {
	ID       string        `json:"id" validate:"required,uuid4"`
	Section  string        `json:"section" validate:"required,section"`
	Op       DeltaOp       `json:"op" validate:"required,oneof=add amend deprecate"`
	Content  string        `json:"content" validate:"required,min=8"`
	Metadata DeltaMetadata `json:"metadata"`
}

// DeltaMetadata carries the evidence and accounting for a delta.
type DeltaMetadata struct {
	Source     DeltaSource `json:"source"`
	Confidence float64     `json:"confidence" validate:"gte=0,lte=1"`
	Helpful    int         `json:"helpful" validate:"gte=0"`
	Harmful    int         `json:"harmful" validate:"gte=0"`
	Tags       []string    `json:"tags,omitempty"`
	Scope      []string    `json:"scope,omitempty"`
	Evidence   string      `json:"evidence" validate:"min=8"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// DeltaSource identifies where a delta's evidence came from.
type DeltaSource struct {
	BeadID string   `json:"beadId,omitempty"`
	Commit string   `json:"commit,omitempty"`
	Files  []string `json:"files,omitempty"`
	Run    string   `json:"run,omitempty"`
}

// =============================================================================
// INSIGHT - Reflector output before curator interpretation
// =============================================================================

// Insight is a scored pattern mined from execution traces. Insights are
// append-only once written.
type Insight struct {
	ID             string        `json:"id" validate:"required"`
	Timestamp      time.Time     `json:"timestamp"`
	TaskID         string        `json:"taskId,omitempty"`
	Source         InsightSource `json:"source"`
	Signal         InsightSignal `json:"signal"`
	Recommendation string        `json:"recommendation"`
	Scope          []string      `json:"scope,omitempty"`
	Confidence     float64       `json:"confidence" validate:"gte=0,lte=1"`
	OnlineEligible bool          `json:"onlineEligible"`
	MetaTags       []string      `json:"metaTags,omitempty"`
}

// InsightSource names the runner and the work-items the insight draws on.
// ThreadIDs is set only for insights derived from threaded batches.
type InsightSource struct {
	Runner    string   `json:"runner,omitempty"`
	BeadIDs   []string `json:"beadIds,omitempty"`
	ThreadIDs []string `json:"threadIds,omitempty"`
}

// InsightSignal is the pattern plus its supporting evidence lines.
type InsightSignal struct {
	Pattern  string   `json:"pattern" validate:"required"`
	Evidence []string `json:"evidence,omitempty"`
}

// HasTag reports whether tag appears in the insight's meta tags.
func (in Insight) HasTag(tag string) bool {
	for _, t := range in.MetaTags {
		if t == tag {
			return true
		}
	}
	return false
}

// =============================================================================
// EXECUTION TRACE - Structured record of one task execution
// =============================================================================

// TraceOutcome classifies how a task ended.
type TraceOutcome string

const (
	OutcomeSuccess TraceOutcome = "success"
	OutcomeFailure TraceOutcome = "failure"
	OutcomePartial TraceOutcome = "partial"
)

// ExecutionTrace records one task execution. A trace is created on task
// start, mutated only by its owning session, closed on task completion, then
// append-written and never modified.
type ExecutionTrace struct {
	TraceID         string            `json:"traceId"`
	Timestamp       time.Time         `json:"timestamp"`
	BeadID          string            `json:"beadId,omitempty"`
	TaskDescription string            `json:"taskDescription,omitempty"`
	BulletsUsed     []BulletFeedback  `json:"bulletsUsed,omitempty"`
	Results         []ExecutionResult `json:"results,omitempty"`
	DiscoveredIDs   []string          `json:"discoveredIds,omitempty"`
	ThreadID        string            `json:"threadId,omitempty"`
	Commit          string            `json:"commit,omitempty"`
	Branch          string            `json:"branch,omitempty"`
	Completed       bool              `json:"completed"`
	Outcome         TraceOutcome      `json:"outcome,omitempty"`
}

// Failed reports whether any execution result in the trace failed.
func (t ExecutionTrace) Failed() bool {
	for _, r := range t.Results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// FeedbackKind is the session's verdict on one consulted bullet.
type FeedbackKind string

const (
	FeedbackHelpful FeedbackKind = "helpful"
	FeedbackHarmful FeedbackKind = "harmful"
	FeedbackIgnored FeedbackKind = "ignored"
)

// BulletFeedback snapshots one bullet consultation inside a trace. Content is
// copied at apply time so feedback survives later playbook edits.
type BulletFeedback struct {
	BulletID  string       `json:"bulletId"`
	Content   string       `json:"content,omitempty"`
	Feedback  FeedbackKind `json:"feedback"`
	Reason    string       `json:"reason,omitempty"`
	AppliedAt time.Time    `json:"appliedAt"`
}

// ResultStatus is the pass/fail outcome of one runner invocation.
type ResultStatus string

const (
	StatusPass ResultStatus = "pass"
	StatusFail ResultStatus = "fail"
)

// ExecutionResult records one runner invocation inside a trace.
type ExecutionResult struct {
	Runner     string            `json:"runner"`
	Command    string            `json:"command,omitempty"`
	Status     ResultStatus      `json:"status"`
	Errors     []NormalizedError `json:"errors,omitempty"`
	Stdout     string            `json:"stdout,omitempty"`
	Stderr     string            `json:"stderr,omitempty"`
	ExitCode   int               `json:"exitCode"`
	DurationMS int64             `json:"durationMs"`
	Timestamp  time.Time         `json:"timestamp"`
}

// =============================================================================
// NORMALIZED ERROR - Tool-agnostic diagnostic record
// =============================================================================

// Tool tags which runner produced a diagnostic.
type Tool string

const (
	ToolTSC     Tool = "tsc"
	ToolESLint  Tool = "eslint"
	ToolVitest  Tool = "vitest"
	ToolUnknown Tool = "unknown"
)

// Severity of a normalized diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// NormalizedError is a diagnostic reduced to a tool-agnostic shape. Runner
// output parsers produce these; the reflector only ever sees this form.
type NormalizedError struct {
	Tool     Tool     `json:"tool"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// =============================================================================
// WORK ITEMS - Tracker adapter surface
// =============================================================================

// ItemStatus is the observed work-item state machine: open → in_progress →
// closed. The learning pipeline only reacts to closed.
type ItemStatus string

const (
	ItemOpen       ItemStatus = "open"
	ItemInProgress ItemStatus = "in_progress"
	ItemClosed     ItemStatus = "closed"
)

// DepType enumerates typed dependencies between work-items.
type DepType string

const (
	DepBlocks         DepType = "blocks"
	DepRelated        DepType = "related"
	DepParentChild    DepType = "parent-child"
	DepDiscoveredFrom DepType = "discovered-from"
)

// WorkItem is an external issue observed (never owned) by the adapter.
type WorkItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      ItemStatus `json:"status"`
	Priority    int        `json:"priority,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// ItemDep is one typed edge between two work-items.
type ItemDep struct {
	FromID string  `json:"fromId"`
	ToID   string  `json:"toId"`
	Type   DepType `json:"type"`
}

// =============================================================================
// NORMALIZATION - Shared lexical canonicalization
// =============================================================================

// Normalize trims, collapses whitespace runs to a single space, and
// lowercases. It is the one canonicalization used for dedup hashing,
// consolidation grouping, and curator pattern dedup; changing it changes
// every hash in existing playbooks.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// BulletHash derives the dedup identity of a bullet from its section and
// content.
func BulletHash(section, content string) string {
	return section + "::" + Normalize(content)
}
