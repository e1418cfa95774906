package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hone/internal/types"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the pending delta queue",
}

var queueShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List queued deltas",
	Args:  exactArgs(0),
	RunE:  runQueueShow,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every queued delta",
	Args:  exactArgs(0),
	RunE:  runQueueClear,
}

func init() {
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueShow(cmd *cobra.Command, args []string) error {
	deltas, err := newEngine().Queue().Read()
	if err != nil {
		return err
	}
	if deltas == nil {
		deltas = []types.Delta{}
	}
	if done, err := emit(deltas); done || err != nil {
		return err
	}

	if len(deltas) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}
	fmt.Printf("%d queued deltas:\n", len(deltas))
	for _, d := range deltas {
		fmt.Printf("  [%s] %s (%.2f) %s\n", d.Op, d.Section, d.Metadata.Confidence, clip(d.Content, 60))
	}
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	q := newEngine().Queue()
	deltas, err := q.Read()
	if err != nil {
		return err
	}
	if err := q.Clear(); err != nil {
		return err
	}

	report := struct {
		Cleared int `json:"cleared"`
	}{len(deltas)}
	if done, err := emit(report); done || err != nil {
		return err
	}
	fmt.Printf("Cleared %d deltas from the queue\n", len(deltas))
	return nil
}
