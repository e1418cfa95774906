package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hone/internal/config"
	"hone/internal/playbook"
)

var initForce bool

// initCmd scaffolds hone in the current workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize hone in the current workspace",
	Long: `Scaffolds the .hone/ directory, writes the default configuration, and
creates an empty playbook with front-matter declaring the default sections.

Existing files are left alone unless --force is given.`,
	Args: exactArgs(0),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config and playbook")
	rootCmd.AddCommand(initCmd)
}

type initReport struct {
	Workspace  string   `json:"workspace"`
	ConfigPath string   `json:"configPath"`
	Playbook   string   `json:"playbook"`
	Created    []string `json:"created"`
}

func runInit(cmd *cobra.Command, args []string) error {
	report := initReport{Workspace: workspace}

	for _, dir := range []string{
		filepath.Join(workspace, ".hone"),
		cfg.LogsDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	report.ConfigPath = config.ProjectConfigPath(workspace)
	if _, err := os.Stat(report.ConfigPath); os.IsNotExist(err) || initForce {
		if err := cfg.Save(report.ConfigPath); err != nil {
			return err
		}
		report.Created = append(report.Created, report.ConfigPath)
		logger.Info("wrote config", zap.String("path", report.ConfigPath))
	}

	store := playbook.NewStore(cfg.AgentsPath, cfg.KnowledgeRoot())
	report.Playbook = store.Path()
	if !store.Exists() || initForce {
		m := &playbook.Manifest{Version: cfg.Version}
		for _, rule := range cfg.Routing {
			m.EnsureSection(rule.Section, 1.0)
		}
		if err := store.WriteBullets(m, nil); err != nil {
			return err
		}
		report.Created = append(report.Created, store.Path())
		logger.Info("wrote playbook", zap.String("path", store.Path()))
	}

	if done, err := emit(report); done || err != nil {
		return err
	}

	fmt.Printf("Initialized hone in %s\n", workspace)
	if len(report.Created) == 0 {
		fmt.Println("Everything was already in place; nothing written.")
		return nil
	}
	for _, p := range report.Created {
		fmt.Printf("  created %s\n", p)
	}
	return nil
}
