package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hone/internal/types"
)

var reviewThreshold float64

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Triage review-log deltas into the queue",
	Long: `Lists deltas the offline epochs held back for human review and lets you
approve or skip each one. Approved deltas join the queue and go through
the same merge gate as everything else on the next apply.

With --threshold the triage is non-interactive: every pending delta at or
above the given confidence is promoted.`,
	Args: exactArgs(0),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().Float64Var(&reviewThreshold, "threshold", 0, "Approve every pending delta at or above this confidence without the TUI")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	e := newEngine()
	pending, err := e.PendingReview()
	if err != nil {
		return err
	}

	if reviewThreshold > 0 {
		var approved []types.Delta
		for _, d := range pending {
			if d.Metadata.Confidence >= reviewThreshold {
				approved = append(approved, d)
			}
		}
		if err := e.PromoteReviewed(approved); err != nil {
			return err
		}
		report := struct {
			Pending  int `json:"pending"`
			Promoted int `json:"promoted"`
		}{len(pending), len(approved)}
		if done, err := emit(report); done || err != nil {
			return err
		}
		fmt.Printf("Promoted %d of %d pending deltas (confidence >= %.2f)\n",
			len(approved), len(pending), reviewThreshold)
		return nil
	}

	// JSON mode lists; the TUI is for humans.
	if jsonOut {
		if pending == nil {
			pending = []types.Delta{}
		}
		_, err := emit(pending)
		return err
	}

	if len(pending) == 0 {
		fmt.Println("Nothing pending review")
		return nil
	}

	final, err := tea.NewProgram(newReviewModel(pending), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("review ui failed: %w", err)
	}
	m, ok := final.(reviewModel)
	if !ok || m.aborted {
		fmt.Println("Review cancelled; nothing promoted")
		return nil
	}

	approved := m.approvedDeltas()
	if err := e.PromoteReviewed(approved); err != nil {
		return err
	}
	fmt.Printf("Promoted %d of %d pending deltas to the queue\n", len(approved), len(pending))
	if len(approved) > 0 {
		fmt.Println("Run 'hone apply' to merge them")
	}
	return nil
}
