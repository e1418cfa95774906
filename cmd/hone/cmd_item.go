package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hone/internal/cli"
	"hone/internal/learn"
	"hone/internal/tracker"
	"hone/internal/types"
)

var (
	itemDesc       string
	itemTitle      string
	itemStatus     string
	createPriority int
	updatePriority int
	itemLabels     []string
	listStatus     string
	depEdgeType    string
	closeNoCycle   bool
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Work with tracker items",
	Long: `Observes and mutates work-items through the configured tracker adapter.
Closing an item triggers a bead-scoped learning cycle over that item's
traces unless --no-cycle is given.`,
}

var itemCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a work-item",
	Args:  exactArgs(1),
	RunE:  runItemCreate,
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work-items",
	Args:  exactArgs(0),
	RunE:  runItemList,
}

var itemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one work-item",
	Args:  exactArgs(1),
	RunE:  runItemShow,
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a work-item's fields",
	Args:  exactArgs(1),
	RunE:  runItemUpdate,
}

var itemCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a work-item and run its learning cycle",
	Args:  exactArgs(1),
	RunE:  runItemClose,
}

var itemReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List open items with no open blockers",
	Args:  exactArgs(0),
	RunE:  runItemReady,
}

var itemDepCmd = &cobra.Command{
	Use:   "dep",
	Short: "Work with typed dependencies between items",
}

var itemDepAddCmd = &cobra.Command{
	Use:   "add <from> <to>",
	Short: "Record a dependency edge",
	Args:  exactArgs(2),
	RunE:  runItemDepAdd,
}

var itemDepTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show every dependency edge reachable from an item",
	Args:  exactArgs(1),
	RunE:  runItemDepTree,
}

var itemDiscoveredCmd = &cobra.Command{
	Use:   "discovered <id>",
	Short: "List items discovered while working an item",
	Args:  exactArgs(1),
	RunE:  runItemDiscovered,
}

var itemExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump every item as JSON",
	Args:  exactArgs(0),
	RunE:  runItemExport,
}

func init() {
	itemCreateCmd.Flags().StringVar(&itemDesc, "desc", "", "Item description")
	itemCreateCmd.Flags().IntVar(&createPriority, "priority", 2, "Item priority (0 highest)")
	itemCreateCmd.Flags().StringArrayVar(&itemLabels, "label", nil, "Item label (repeatable)")

	itemListCmd.Flags().StringVar(&listStatus, "status", "", "Only items with this status (open, in_progress, closed)")

	itemUpdateCmd.Flags().StringVar(&itemTitle, "title", "", "New title")
	itemUpdateCmd.Flags().StringVar(&itemDesc, "desc", "", "New description")
	itemUpdateCmd.Flags().StringVar(&itemStatus, "status", "", "New status (open, in_progress, closed)")
	itemUpdateCmd.Flags().IntVar(&updatePriority, "priority", 0, "New priority")
	itemUpdateCmd.Flags().StringArrayVar(&itemLabels, "label", nil, "Replacement labels (repeatable)")

	itemCloseCmd.Flags().BoolVar(&closeNoCycle, "no-cycle", false, "Skip the closure-triggered learning cycle")

	itemDepAddCmd.Flags().StringVar(&depEdgeType, "type", string(types.DepBlocks), "Edge type (blocks, related, parent-child, discovered-from)")

	itemDepCmd.AddCommand(itemDepAddCmd)
	itemDepCmd.AddCommand(itemDepTreeCmd)

	itemCmd.AddCommand(itemCreateCmd)
	itemCmd.AddCommand(itemListCmd)
	itemCmd.AddCommand(itemShowCmd)
	itemCmd.AddCommand(itemUpdateCmd)
	itemCmd.AddCommand(itemCloseCmd)
	itemCmd.AddCommand(itemReadyCmd)
	itemCmd.AddCommand(itemDepCmd)
	itemCmd.AddCommand(itemDiscoveredCmd)
	itemCmd.AddCommand(itemExportCmd)
	rootCmd.AddCommand(itemCmd)
}

func parseStatus(s string) (types.ItemStatus, error) {
	switch st := types.ItemStatus(s); st {
	case types.ItemOpen, types.ItemInProgress, types.ItemClosed:
		return st, nil
	default:
		return "", types.Usagef("unknown status %q (want open, in_progress, or closed)", s)
	}
}

func runItemCreate(cmd *cobra.Command, args []string) error {
	rec, cleanup, err := newRecorder()
	if err != nil {
		return err
	}
	defer cleanup()

	item, err := rec.Create(cmd.Context(), types.WorkItem{
		Title:       args[0],
		Description: itemDesc,
		Priority:    createPriority,
		Labels:      itemLabels,
	})
	if err != nil {
		return err
	}

	if done, err := emit(item); done || err != nil {
		return err
	}
	fmt.Printf("Created %s: %s\n", item.ID, item.Title)
	return nil
}

func runItemList(cmd *cobra.Command, args []string) error {
	var status types.ItemStatus
	if listStatus != "" {
		var err error
		if status, err = parseStatus(listStatus); err != nil {
			return err
		}
	}

	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	items, err := a.List(cmd.Context(), status)
	if err != nil {
		return err
	}
	return printItems(items, "No items")
}

func runItemShow(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	item, err := a.Show(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if done, err := emit(item); done || err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", item.ID, item.Title)
	fmt.Printf("  Status:   %s\n", item.Status)
	fmt.Printf("  Priority: %d\n", item.Priority)
	if len(item.Labels) > 0 {
		fmt.Printf("  Labels:   %s\n", strings.Join(item.Labels, ", "))
	}
	fmt.Printf("  Created:  %s\n", item.CreatedAt.Format(time.RFC3339))
	if item.ClosedAt != nil {
		fmt.Printf("  Closed:   %s\n", item.ClosedAt.Format(time.RFC3339))
	}
	if item.Description != "" {
		fmt.Printf("\n%s\n", item.Description)
	}
	return nil
}

func runItemUpdate(cmd *cobra.Command, args []string) error {
	fields := tracker.UpdateFields{
		Title:       itemTitle,
		Description: itemDesc,
		Labels:      itemLabels,
	}
	if itemStatus != "" {
		status, err := parseStatus(itemStatus)
		if err != nil {
			return err
		}
		fields.Status = status
	}
	if cmd.Flags().Changed("priority") {
		p := updatePriority
		fields.Priority = &p
	}

	rec, cleanup, err := newRecorder()
	if err != nil {
		return err
	}
	defer cleanup()

	item, err := rec.Update(cmd.Context(), args[0], fields)
	if err != nil {
		return err
	}

	if done, err := emit(item); done || err != nil {
		return err
	}
	fmt.Printf("Updated %s: %s (%s)\n", item.ID, item.Title, item.Status)
	return nil
}

func runItemClose(cmd *cobra.Command, args []string) error {
	rec, cleanup, err := newRecorder()
	if err != nil {
		return err
	}
	defer cleanup()

	var cycleReport *learn.CycleReport
	if !closeNoCycle {
		e := newEngine()
		rec.OnClosed = func(item types.WorkItem) {
			report, err := e.Cycle(cmd.Context(), learn.CycleOptions{BeadID: item.ID})
			if err != nil {
				logger.Warn("closure cycle failed",
					zap.String("item", item.ID), zap.Error(err))
				return
			}
			cycleReport = &report
		}
	}

	item, err := rec.Close(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := struct {
		Item  types.WorkItem     `json:"item"`
		Cycle *learn.CycleReport `json:"cycle,omitempty"`
	}{item, cycleReport}
	if done, err := emit(out); done || err != nil {
		return err
	}

	fmt.Printf("Closed %s: %s\n", item.ID, item.Title)
	if cycleReport != nil {
		fmt.Printf("Learning cycle: %d traces, %d insights, %d queued\n",
			cycleReport.Analyze.TracesRead, cycleReport.Analyze.Insights, cycleReport.Curate.Queued)
		printApplyReport(cycleReport.Apply)
	}
	return nil
}

func runItemReady(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	items, err := a.Ready(cmd.Context())
	if err != nil {
		return err
	}
	return printItems(items, "No items ready")
}

func runItemDepAdd(cmd *cobra.Command, args []string) error {
	dt := types.DepType(depEdgeType)
	switch dt {
	case types.DepBlocks, types.DepRelated, types.DepParentChild, types.DepDiscoveredFrom:
	default:
		return types.Usagef("unknown dependency type %q", depEdgeType)
	}

	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	dep := types.ItemDep{FromID: args[0], ToID: args[1], Type: dt}
	if err := a.AddDep(cmd.Context(), dep); err != nil {
		return err
	}

	if done, err := emit(dep); done || err != nil {
		return err
	}
	fmt.Printf("Added dependency %s -> %s (%s)\n", dep.FromID, dep.ToID, dep.Type)
	return nil
}

func runItemDepTree(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	deps, err := a.DepTree(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if deps == nil {
		deps = []types.ItemDep{}
	}
	if done, err := emit(deps); done || err != nil {
		return err
	}

	if len(deps) == 0 {
		fmt.Printf("%s has no dependencies\n", args[0])
		return nil
	}
	for _, d := range deps {
		fmt.Printf("  %s -> %s (%s)\n", d.FromID, d.ToID, d.Type)
	}
	return nil
}

func runItemDiscovered(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	items, err := a.DiscoveredFrom(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printItems(items, "Nothing discovered from "+args[0])
}

func runItemExport(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	items, err := a.Export(cmd.Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []types.WorkItem{}
	}
	// Export is a JSON snapshot with or without --json.
	return cli.WriteJSON(os.Stdout, items)
}

func printItems(items []types.WorkItem, empty string) error {
	if items == nil {
		items = []types.WorkItem{}
	}
	if done, err := emit(items); done || err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println(empty)
		return nil
	}
	for _, it := range items {
		fmt.Printf("  %-8s %-12s p%-2d %s\n", it.ID, it.Status, it.Priority, clip(it.Title, 60))
	}
	return nil
}
