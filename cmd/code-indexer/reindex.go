package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/code-rag-indexer/internal/engine"
)

var reindexDryRun bool

var reindexCmd = &cobra.Command{
	Use:   "reindex <path>",
	Short: "Run a one-shot full reindex of a project and exit once settled",
	Args:  cobra.ExactArgs(1),
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexDryRun, "dry-run", false, "report what would be enqueued without indexing")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
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

	result, err := e.TriggerReindex(name, reindexDryRun)
	if err != nil {
		return fmt.Errorf("trigger reindex: %w", err)
	}

	if reindexDryRun {
		fmt.Printf("would enqueue %d file(s):\n", len(result.Paths))
		for _, p := range result.Paths {
			fmt.Println("  " + p)
		}
		return nil
	}

	fmt.Printf("enqueued %d file(s), waiting for completion...\n", result.Enqueued)
	for {
		status, err := e.IndexerStatus(name)
		if err != nil {
			return err
		}
		if status.Queued == 0 && status.InFlight == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	status, _ := e.IndexerStatus(name)
	fmt.Printf("done: %d transient error(s), %d permanent error(s)\n", status.ErrorCounts.Transient, status.ErrorCounts.Permanent)
	return nil
}
