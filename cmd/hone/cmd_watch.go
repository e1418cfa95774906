package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hone/internal/learn"
	"hone/internal/types"
	"hone/internal/watch"
)

var (
	retentionEvery time.Duration
	offlineEvery   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the watcher service",
	Long: `Tails the tracker event log and reacts to item snapshots: closures trigger
a bead-scoped learning cycle, and created/updated/closed events are routed
to their configured review destinations.

A scheduler runs the trace retention sweep periodically and, when
--offline-every is set, repeats the offline learning epochs. The service
stops cleanly on SIGINT or SIGTERM.`,
	Args: exactArgs(0),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&retentionEvery, "retention-every", 24*time.Hour, "Interval between trace retention sweeps (0 disables)")
	watchCmd.Flags().DurationVar(&offlineEvery, "offline-every", 0, "Interval between offline learning runs (0 disables)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e := newEngine()
	adapter, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	router := watch.NewRouter(cfg.ReviewRouting, e.Review(), adapter)
	watcher, err := watch.New(cfg.Tracker.EventLogPath, router)
	if err != nil {
		return err
	}
	watcher.OnClosed = func(ctx context.Context, item types.WorkItem) {
		report, err := e.Cycle(ctx, learn.CycleOptions{BeadID: item.ID})
		if err != nil {
			logger.Warn("closure cycle failed",
				zap.String("item", item.ID), zap.Error(err))
			return
		}
		logger.Info("closure cycle complete",
			zap.String("item", item.ID),
			zap.Int("insights", report.Analyze.Insights),
			zap.Int("queued", report.Curate.Queued),
			zap.Bool("applied", report.Apply.Applied))
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if retentionEvery > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(retentionEvery),
			gocron.NewTask(func() {
				res, err := e.RetainTraces(time.Now().UTC())
				if err != nil {
					logger.Warn("retention sweep failed", zap.Error(err))
					return
				}
				logger.Info("retention sweep",
					zap.Int("kept", res.Kept), zap.Int("archived", res.Archived))
			}),
			gocron.WithName("trace-retention"),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule retention sweep: %w", err)
		}
	}
	if offlineEvery > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(offlineEvery),
			gocron.NewTask(func() {
				report, err := e.Offline(ctx)
				if err != nil {
					logger.Warn("offline run failed", zap.Error(err))
					return
				}
				logger.Info("offline run complete", zap.Int("epochs", len(report.Epochs)))
			}),
			gocron.WithName("offline-learning"),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule offline learning: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		<-ctx.Done()
		watcher.Stop()
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if !jsonOut {
		fmt.Printf("Watching %s (tracker adapter: %s)\n", cfg.Tracker.EventLogPath, cfg.Tracker.Adapter)
		fmt.Println("Press Ctrl-C to stop")
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats := watcher.GetStats()
	if done, err := emit(stats); done || err != nil {
		return err
	}
	fmt.Printf("Stopped: %d created, %d updated, %d closed, %d cycles triggered, %d route errors\n",
		stats.Created, stats.Updated, stats.Closed, stats.CyclesTriggered, stats.RouteErrors)
	return nil
}
