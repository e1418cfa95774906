package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hone/internal/cli"
	"hone/internal/config"
	"hone/internal/learn"
	"hone/internal/logging"
	"hone/internal/tracker"
	"hone/internal/types"
)

var (
	// Global flags
	cfgPath   string
	workspace string
	jsonOut   bool
	verbose   bool

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hone",
	Short: "hone - a self-improving playbook for coding agents",
	Long: `hone maintains a markdown playbook of operational advice and closes the
loop that keeps it honest: execution traces are mined for insights, insights
are curated into playbook deltas, and deltas are merged only when the
evaluator agrees the playbook got better.

The playbook (AGENTS.md) stays a plain markdown file your agents read
directly; every change to it flows through the merge gate.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			workspace = wd
		}
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("failed to resolve workspace %s: %w", workspace, err)
		}
		workspace = abs

		// Process logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Category file logger
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if verbose {
			logging.Override(true, "debug")
		}

		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
			if err == nil {
				cfg.ResolvePaths(workspace)
			}
		} else {
			cfg, err = config.Resolve(workspace)
		}
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger.Debug("configuration resolved",
			zap.String("workspace", workspace),
			zap.String("playbook", cfg.AgentsPath),
			zap.String("tracker", cfg.Tracker.Adapter))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (overrides the precedence chain)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Flag misuse is a usage error, not a runtime failure.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return types.Usagef("%v", err)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOut {
			_ = cli.WriteError(os.Stdout, err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

// newEngine builds the learn engine over the resolved config.
func newEngine() *learn.Engine {
	return learn.New(cfg)
}

// newAdapter builds the configured tracker adapter plus its cleanup func.
func newAdapter() (tracker.Adapter, func(), error) {
	a, err := tracker.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	if l, ok := a.(*tracker.Local); ok {
		cleanup = func() {
			if err := l.Shutdown(); err != nil {
				logger.Warn("tracker shutdown failed", zap.Error(err))
			}
		}
	}
	return a, cleanup, nil
}

// newRecorder wraps the adapter so mutations mirror into the event log the
// watcher tails.
func newRecorder() (*tracker.Recorder, func(), error) {
	a, cleanup, err := newAdapter()
	if err != nil {
		return nil, nil, err
	}
	return tracker.NewRecorder(a, tracker.NewItemLog(cfg.Tracker.EventLogPath)), cleanup, nil
}

// exactArgs mirrors cobra.ExactArgs but raises a usage error so the process
// exits with the usage code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return types.Usagef("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// maxArgs mirrors cobra.MaximumNArgs with a usage error.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return types.Usagef("%s expects at most %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// emit writes v as JSON in --json mode and returns true when it did, so text
// handlers can skip their human rendering.
func emit(v interface{}) (bool, error) {
	if !jsonOut {
		return false, nil
	}
	return true, cli.WriteJSON(os.Stdout, v)
}
