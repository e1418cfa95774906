package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"hone/internal/evaluator"
	"hone/internal/logging"
	"hone/internal/types"
)

var (
	showPlain      bool
	pruneThreshold int
)

var playbookCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Inspect and maintain the playbook",
}

var playbookShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the playbook in the terminal",
	Args:  exactArgs(0),
	RunE:  runPlaybookShow,
}

var playbookStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report playbook health metrics",
	Args:  exactArgs(0),
	RunE:  runPlaybookStats,
}

var playbookPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Archive bullets whose net score fell below the threshold",
	Args:  exactArgs(0),
	RunE:  runPlaybookPrune,
}

var playbookConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Fold duplicate bullets across sections",
	Args:  exactArgs(0),
	RunE:  runPlaybookConsolidate,
}

func init() {
	playbookShowCmd.Flags().BoolVar(&showPlain, "plain", false, "Print raw markdown without terminal rendering")
	playbookPruneCmd.Flags().IntVar(&pruneThreshold, "threshold", evaluator.DefaultPruneThreshold, "Net score below which a bullet is archived")

	playbookCmd.AddCommand(playbookShowCmd)
	playbookCmd.AddCommand(playbookStatsCmd)
	playbookCmd.AddCommand(playbookPruneCmd)
	playbookCmd.AddCommand(playbookConsolidateCmd)
	rootCmd.AddCommand(playbookCmd)
}

func runPlaybookShow(cmd *cobra.Command, args []string) error {
	store := newEngine().Playbook()
	if !store.Exists() {
		return types.Missingf("playbook not found at %s (run 'hone init')", store.Path())
	}
	raw, err := store.Raw()
	if err != nil {
		return err
	}

	if jsonOut {
		doc, err := store.Load()
		if err != nil {
			return err
		}
		_, err = emit(struct {
			Path    string         `json:"path"`
			Bullets []types.Bullet `json:"bullets"`
		}{store.Path(), doc.Bullets})
		return err
	}

	if showPlain {
		fmt.Print(raw)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		if out, rerr := renderer.Render(raw); rerr == nil {
			fmt.Print(out)
			return nil
		}
	}
	fmt.Print(raw)
	return nil
}

func runPlaybookStats(cmd *cobra.Command, args []string) error {
	bullets, err := newEngine().Playbook().LoadBullets()
	if err != nil {
		return err
	}
	m := evaluator.MetricsOf(bullets)
	if done, err := emit(m); done || err != nil {
		return err
	}

	fmt.Printf("Bullets:     %d\n", m.TotalBullets)
	fmt.Printf("Net score:   %d\n", m.NetScore)
	fmt.Printf("Avg helpful: %.2f\n", m.AvgHelpful)
	fmt.Printf("Avg harmful: %.2f\n", m.AvgHarmful)

	if len(m.Sections) > 0 {
		fmt.Println("\nSections:")
		ids := make([]string, 0, len(m.Sections))
		for id := range m.Sections {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-28s %d\n", id, m.Sections[id])
		}
	}
	if len(m.Top) > 0 {
		fmt.Println("\nTop bullets:")
		for _, b := range m.Top {
			fmt.Printf("  %+d  %s\n", b.Score, clip(b.Content, 72))
		}
	}
	if len(m.Bottom) > 0 {
		fmt.Println("\nBottom bullets:")
		for _, b := range m.Bottom {
			fmt.Printf("  %+d  %s\n", b.Score, clip(b.Content, 72))
		}
	}
	return nil
}

func runPlaybookPrune(cmd *cobra.Command, args []string) error {
	e := newEngine()
	store := e.Playbook()
	bullets, err := store.LoadBullets()
	if err != nil {
		return err
	}

	_, pruned := evaluator.Prune(bullets, pruneThreshold)
	ids := make([]string, 0, len(pruned))
	for _, b := range pruned {
		ids = append(ids, b.ID)
	}

	archived := 0
	if len(ids) > 0 {
		archived, err = store.ArchiveBullets(cfg.BulletArchivePath, ids, time.Now().UTC())
		if err != nil {
			return err
		}
		for _, b := range pruned {
			if err := e.Events().Append(logging.EventBulletPruned, map[string]interface{}{
				"bulletId": b.ID,
				"section":  b.Section,
				"score":    b.Score(),
			}); err != nil {
				logging.LearnWarn("failed to append %s event: %v", logging.EventBulletPruned, err)
			}
		}
	}

	report := struct {
		Threshold int      `json:"threshold"`
		Pruned    int      `json:"pruned"`
		Archived  int      `json:"archived"`
		IDs       []string `json:"ids,omitempty"`
	}{pruneThreshold, len(pruned), archived, ids}
	if done, err := emit(report); done || err != nil {
		return err
	}

	if len(pruned) == 0 {
		fmt.Printf("No bullets below net score %d\n", pruneThreshold)
		return nil
	}
	fmt.Printf("Archived %d bullets below net score %d -> %s\n", len(pruned), pruneThreshold, cfg.BulletArchivePath)
	return nil
}

func runPlaybookConsolidate(cmd *cobra.Command, args []string) error {
	removed, err := newEngine().Curator().Consolidate()
	if err != nil {
		return err
	}
	if done, err := emit(struct {
		Consolidated int `json:"consolidated"`
	}{removed}); done || err != nil {
		return err
	}
	if removed == 0 {
		fmt.Println("No duplicate bullets found")
		return nil
	}
	fmt.Printf("Consolidated %d duplicate bullets\n", removed)
	return nil
}

// clip shortens s to at most n runes for single-line display.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
