// Package evaluator scores playbooks and gates candidate playbooks against
// the current one. Acceptance is deliberately conservative: a candidate that
// does not measurably improve the playbook is rejected.
package evaluator

import (
	"sort"

	"hone/internal/logging"
	"hone/internal/playbook"
	"hone/internal/types"
)

// DefaultPruneThreshold is the net score below which Prune drops a bullet.
const DefaultPruneThreshold = -3

// rankLimit bounds the top/bottom bullet lists in Metrics.
const rankLimit = 5

// RankedBullet is one entry in the top/bottom rankings.
type RankedBullet struct {
	ID      string `json:"id"`
	Section string `json:"section"`
	Content string `json:"content"`
	Score   int    `json:"score"`
}

// Metrics summarizes one playbook's health.
type Metrics struct {
	TotalBullets int            `json:"totalBullets"`
	AvgHelpful   float64        `json:"avgHelpful"`
	AvgHarmful   float64        `json:"avgHarmful"`
	NetScore     int            `json:"netScore"`
	Sections     map[string]int `json:"sections"`
	Top          []RankedBullet `json:"top,omitempty"`
	Bottom       []RankedBullet `json:"bottom,omitempty"`
}

// Evaluate parses a playbook string and computes its metrics.
func Evaluate(content string) (Metrics, error) {
	doc, err := playbook.Parse(content)
	if err != nil {
		return Metrics{}, err
	}
	return MetricsOf(doc.Bullets), nil
}

// MetricsOf computes metrics over a bullet list.
func MetricsOf(bullets []types.Bullet) Metrics {
	m := Metrics{Sections: make(map[string]int)}

	sumHelpful, sumHarmful := 0, 0
	for _, b := range bullets {
		m.TotalBullets++
		m.Sections[b.Section]++
		sumHelpful += b.Helpful
		sumHarmful += b.Harmful
	}
	m.NetScore = sumHelpful - sumHarmful
	if m.TotalBullets > 0 {
		m.AvgHelpful = float64(sumHelpful) / float64(m.TotalBullets)
		m.AvgHarmful = float64(sumHarmful) / float64(m.TotalBullets)
	}

	ranked := make([]types.Bullet, len(bullets))
	copy(ranked, bullets)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.Content < b.Content
	})

	for i, b := range ranked {
		if i >= rankLimit {
			break
		}
		m.Top = append(m.Top, rank(b))
	}
	for i := len(ranked) - 1; i >= 0 && len(m.Bottom) < rankLimit; i-- {
		m.Bottom = append(m.Bottom, rank(ranked[i]))
	}

	return m
}

func rank(b types.Bullet) RankedBullet {
	return RankedBullet{ID: b.ID, Section: b.Section, Content: b.Content, Score: b.Score()}
}

// Accept decides whether candidate replaces current.
func Accept(current, candidate Metrics) bool {
	ok, _ := AcceptReason(current, candidate)
	return ok
}

// AcceptReason decides acceptance and names the rule that decided it.
// A candidate is accepted when its net score strictly improves, or holds the
// net score while raising average helpfulness, or grows the playbook without
// lowering average helpfulness.
func AcceptReason(current, candidate Metrics) (bool, string) {
	switch {
	case candidate.NetScore > current.NetScore:
		return true, "net score improved"
	case candidate.NetScore == current.NetScore && candidate.AvgHelpful > current.AvgHelpful:
		return true, "net score held, avg helpful improved"
	case candidate.TotalBullets > current.TotalBullets && candidate.AvgHelpful >= current.AvgHelpful:
		return true, "playbook grew without diluting avg helpful"
	case candidate.NetScore < current.NetScore:
		return false, "net score regressed"
	default:
		return false, "no measurable improvement"
	}
}

// Prune removes every bullet whose net score is below threshold. Returns the
// kept and pruned lists; order is preserved.
func Prune(bullets []types.Bullet, threshold int) (kept, pruned []types.Bullet) {
	for _, b := range bullets {
		if b.Score() < threshold {
			pruned = append(pruned, b)
			continue
		}
		kept = append(kept, b)
	}
	if len(pruned) > 0 {
		logging.Eval("pruned %d bullets below net score %d", len(pruned), threshold)
	}
	return kept, pruned
}
