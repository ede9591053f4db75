package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/code-rag-indexer/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Add a project and print its indexer_status once",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rootPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(rootPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	e := engine.New(cfg, newLogger())
	defer e.Close()

	name := filepath.Base(rootPath)
	if err := e.AddProject(name, rootPath); err != nil {
		return fmt.Errorf("add project: %w", err)
	}

	status, err := e.IndexerStatus(name)
	if err != nil {
		return err
	}
	fmt.Printf("project=%s queued=%d in_flight=%d transient_errors=%d permanent_errors=%d\n",
		status.Project, status.Queued, status.InFlight, status.ErrorCounts.Transient, status.ErrorCounts.Permanent)
	return nil
}
