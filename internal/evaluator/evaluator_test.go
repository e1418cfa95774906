package evaluator

import (
	"math"
	"testing"

	"hone/internal/types"
)

func bullet(id, section string, helpful, harmful int) types.Bullet {
	return types.Bullet{ID: id, Section: section, Content: "advice " + id, Helpful: helpful, Harmful: harmful}
}

func TestMetricsEmpty(t *testing.T) {
	m := MetricsOf(nil)
	if m.TotalBullets != 0 || m.NetScore != 0 || m.AvgHelpful != 0 || m.AvgHarmful != 0 {
		t.Errorf("empty metrics not zeroed: %+v", m)
	}
	if len(m.Top) != 0 || len(m.Bottom) != 0 {
		t.Errorf("empty playbook should have no rankings: %+v", m)
	}
}

func TestMetricsOf(t *testing.T) {
	m := MetricsOf([]types.Bullet{
		bullet("a", "build/test/patterns", 4, 1),
		bullet("b", "build/test/patterns", 2, 0),
		bullet("c", "typescript/patterns", 6, 3),
	})

	if m.TotalBullets != 3 {
		t.Errorf("TotalBullets = %d, want 3", m.TotalBullets)
	}
	if m.NetScore != 8 {
		t.Errorf("NetScore = %d, want 8", m.NetScore)
	}
	if math.Abs(m.AvgHelpful-4.0) > 1e-9 {
		t.Errorf("AvgHelpful = %v, want 4.0", m.AvgHelpful)
	}
	if math.Abs(m.AvgHarmful-4.0/3.0) > 1e-9 {
		t.Errorf("AvgHarmful = %v, want 4/3", m.AvgHarmful)
	}
	if m.Sections["build/test/patterns"] != 2 || m.Sections["typescript/patterns"] != 1 {
		t.Errorf("bad section distribution: %v", m.Sections)
	}
}

func TestEvaluateParsesPlaybook(t *testing.T) {
	content := `## Build Test Patterns

- [Bullet #x1, helpful:3, harmful:1] Run the full suite before merging
- [Bullet #x2, helpful:1, harmful:0] Pin tool versions
`
	m, err := Evaluate(content)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if m.TotalBullets != 2 || m.NetScore != 3 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestTopAndBottomRankings(t *testing.T) {
	var bullets []types.Bullet
	scores := []int{7, -2, 5, 0, 9, 3, -5}
	for i, s := range scores {
		helpful, harmful := s, 0
		if s < 0 {
			helpful, harmful = 0, -s
		}
		bullets = append(bullets, bullet(string(rune('a'+i)), "build/test/patterns", helpful, harmful))
	}

	m := MetricsOf(bullets)
	if len(m.Top) != 5 || len(m.Bottom) != 5 {
		t.Fatalf("rankings truncated wrong: top=%d bottom=%d", len(m.Top), len(m.Bottom))
	}

	wantTop := []int{9, 7, 5, 3, 0}
	for i, r := range m.Top {
		if r.Score != wantTop[i] {
			t.Errorf("Top[%d].Score = %d, want %d", i, r.Score, wantTop[i])
		}
	}
	wantBottom := []int{-5, -2, 0, 3, 5}
	for i, r := range m.Bottom {
		if r.Score != wantBottom[i] {
			t.Errorf("Bottom[%d].Score = %d, want %d", i, r.Score, wantBottom[i])
		}
	}
}

func TestAccept(t *testing.T) {
	cases := []struct {
		name      string
		current   Metrics
		candidate Metrics
		want      bool
	}{
		{
			"net score improved",
			Metrics{TotalBullets: 2, NetScore: 4, AvgHelpful: 2},
			Metrics{TotalBullets: 2, NetScore: 5, AvgHelpful: 2},
			true,
		},
		{
			"net tied avg helpful improved",
			Metrics{TotalBullets: 2, NetScore: 4, AvgHelpful: 2},
			Metrics{TotalBullets: 2, NetScore: 4, AvgHelpful: 2.5},
			true,
		},
		{
			"grew without diluting",
			Metrics{TotalBullets: 0, NetScore: 0, AvgHelpful: 0},
			Metrics{TotalBullets: 1, NetScore: 0, AvgHelpful: 0},
			true,
		},
		{
			"grew but diluted",
			Metrics{TotalBullets: 1, NetScore: 5, AvgHelpful: 5},
			Metrics{TotalBullets: 2, NetScore: 5, AvgHelpful: 2.5},
			false,
		},
		{
			"identical",
			Metrics{TotalBullets: 3, NetScore: 6, AvgHelpful: 2},
			Metrics{TotalBullets: 3, NetScore: 6, AvgHelpful: 2},
			false,
		},
		{
			"regression rejected",
			Metrics{TotalBullets: 4, NetScore: 10, AvgHelpful: 2.5},
			Metrics{TotalBullets: 3, NetScore: 8, AvgHelpful: 2.7},
			false,
		},
		{
			"growth outweighs small net dip",
			Metrics{TotalBullets: 2, NetScore: 10, AvgHelpful: 5},
			Metrics{TotalBullets: 3, NetScore: 9, AvgHelpful: 5},
			true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := AcceptReason(tc.current, tc.candidate)
			if got != tc.want {
				t.Errorf("accept = %v (%s), want %v", got, reason, tc.want)
			}
			// Accepting always means the candidate holds net score or avg
			// helpful.
			if got && tc.candidate.NetScore < tc.current.NetScore && tc.candidate.AvgHelpful < tc.current.AvgHelpful {
				t.Error("accepted a candidate that regressed both net score and avg helpful")
			}
		})
	}
}

func TestPrune(t *testing.T) {
	bullets := []types.Bullet{
		bullet("keep1", "build/test/patterns", 2, 2),
		bullet("edge", "build/test/patterns", 0, 3),
		bullet("drop", "build/test/patterns", 0, 4),
		bullet("keep2", "build/test/patterns", 5, 0),
	}

	kept, pruned := Prune(bullets, DefaultPruneThreshold)
	if len(kept) != 3 || len(pruned) != 1 {
		t.Fatalf("kept %d pruned %d, want 3/1", len(kept), len(pruned))
	}
	if pruned[0].ID != "drop" {
		t.Errorf("pruned wrong bullet: %s", pruned[0].ID)
	}
	// Exactly at the threshold stays.
	for _, b := range kept {
		if b.ID == "edge" {
			return
		}
	}
	t.Error("bullet at the threshold should be kept")
}
