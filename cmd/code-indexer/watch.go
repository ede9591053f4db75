package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/code-rag-indexer/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Index a project and keep watching it for changes until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("watching %s as project %q (ctrl-c to stop)\n", rootPath, name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("shutting down...")
	return nil
}
