// Package merger folds delta batches into the bullet set. Merging is a pure
// function of its inputs: re-running the same queue against the same playbook
// yields byte-identical results.
package merger

import (
	"fmt"
	"sort"

	"hone/internal/logging"
	"hone/internal/types"
)

// Rejection reasons.
const (
	ReasonDuplicate     = "duplicate"
	ReasonLowEvidence   = "low-evidence"
	ReasonLowConfidence = "low-confidence"
	ReasonInvalid       = "invalid"
	ReasonHarmful       = "harmful"
)

// Rejection records one delta the merger refused, with the reason a caller
// reports in its summary.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of one merge.
type Result struct {
	Bullets  []types.Bullet
	Accepted []string
	Rejected []Rejection
}

// Options tune merge validation.
type Options struct {
	// ConfidenceFloor is the minimum metadata.confidence for a delta to be
	// valid.
	ConfidenceFloor float64
}

// Merge applies deltas to the existing bullet set in input order and returns
// the new set in canonical order. Existing bullets whose harmful count
// exceeds their helpful count are dropped; deltas that would create such a
// bullet are rejected instead of applied.
func Merge(existing []types.Bullet, deltas []types.Delta, opts Options) Result {
	timer := logging.StartTimer(logging.CategoryMerge, fmt.Sprintf("merge %d deltas into %d bullets", len(deltas), len(existing)))
	defer timer.Stop()

	byHash := make(map[string]types.Bullet, len(existing))
	for _, b := range existing {
		if b.Hash == "" {
			b.ComputeHash()
		}
		byHash[b.Hash] = b
	}

	var res Result
	reject := func(d types.Delta, reason, detail string) {
		res.Rejected = append(res.Rejected, Rejection{ID: d.ID, Reason: reason, Detail: detail})
		logging.MergeDebug("rejected delta %s (%s): %s", d.ID, reason, detail)
	}

	for _, d := range deltas {
		if len(d.Metadata.Evidence) < 8 {
			reject(d, ReasonLowEvidence, fmt.Sprintf("evidence %d chars, need 8", len(d.Metadata.Evidence)))
			continue
		}
		if err := d.Validate(); err != nil {
			reject(d, ReasonInvalid, err.Error())
			continue
		}
		if d.Metadata.Confidence < opts.ConfidenceFloor {
			reject(d, ReasonLowConfidence, fmt.Sprintf("confidence %.2f below floor %.2f", d.Metadata.Confidence, opts.ConfidenceFloor))
			continue
		}

		h := types.BulletHash(d.Section, d.Content)

		switch d.Op {
		case types.OpAdd:
			if _, ok := byHash[h]; ok {
				reject(d, ReasonDuplicate, "bullet with same hash exists")
				continue
			}
			if d.Metadata.Harmful > d.Metadata.Helpful {
				reject(d, ReasonHarmful, "initial counters mark the bullet harmful")
				continue
			}
			byHash[h] = types.Bullet{
				ID:      d.ID,
				Section: d.Section,
				Content: d.Content,
				Helpful: d.Metadata.Helpful,
				Harmful: d.Metadata.Harmful,
				Hash:    h,
				Provenance: &types.Provenance{
					DeltaID:   d.ID,
					SourceID:  d.Metadata.Source.BeadID,
					CreatedAt: d.Metadata.CreatedAt,
				},
			}
			res.Accepted = append(res.Accepted, d.ID)

		case types.OpAmend:
			b, ok := byHash[h]
			if !ok {
				reject(d, ReasonInvalid, "amend target not found")
				continue
			}
			helpful := b.Helpful + d.Metadata.Helpful
			harmful := b.Harmful + d.Metadata.Harmful
			if harmful > helpful {
				reject(d, ReasonHarmful, "amend would tip the bullet harmful")
				continue
			}
			b.Content = d.Content
			b.Helpful = helpful
			b.Harmful = harmful
			b.Provenance = &types.Provenance{
				DeltaID:   d.ID,
				SourceID:  d.Metadata.Source.BeadID,
				CreatedAt: d.Metadata.CreatedAt,
			}
			byHash[h] = b
			res.Accepted = append(res.Accepted, d.ID)

		case types.OpDeprecate:
			if _, ok := byHash[h]; !ok {
				reject(d, ReasonInvalid, "deprecate target not found")
				continue
			}
			delete(byHash, h)
			res.Accepted = append(res.Accepted, d.ID)
		}
	}

	// Keep only bullets still pulling their weight.
	res.Bullets = make([]types.Bullet, 0, len(byHash))
	for _, b := range byHash {
		if b.Harmful > b.Helpful {
			logging.MergeDebug("filtered harmful bullet %s (%d/%d)", b.ID, b.Helpful, b.Harmful)
			continue
		}
		res.Bullets = append(res.Bullets, b)
	}

	// Canonical order: section asc, helpful desc, content asc. Hash
	// uniqueness guarantees no ties remain.
	sort.Slice(res.Bullets, func(i, j int) bool {
		a, b := res.Bullets[i], res.Bullets[j]
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Helpful != b.Helpful {
			return a.Helpful > b.Helpful
		}
		return a.Content < b.Content
	})

	logging.Merge("merge complete: %d bullets, %d accepted, %d rejected",
		len(res.Bullets), len(res.Accepted), len(res.Rejected))
	return res
}
