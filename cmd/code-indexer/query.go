package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/code-rag-indexer/internal/engine"
	"github.com/mvp-joe/code-rag-indexer/internal/vectorstore"
)

var (
	queryK            int
	queryMinScore     float32
	queryGraphContext bool
	queryPathGlob     string
)

var queryCmd = &cobra.Command{
	Use:   "query <path> <text>",
	Short: "Index a project to a settled state, then run one query against it",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryK, "k", 10, "number of results to return")
	queryCmd.Flags().Float32Var(&queryMinScore, "min-score", 0, "drop results below this score")
	queryCmd.Flags().BoolVar(&queryGraphContext, "graph", false, "include 1-hop graph neighbors per result")
	queryCmd.Flags().StringVar(&queryPathGlob, "path", "", "restrict results to relative paths matching this glob")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	rootPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	queryText := args[1]

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

	opts := engine.QueryOptions{
		K:                   queryK,
		MinScore:            queryMinScore,
		IncludeGraphContext: queryGraphContext,
	}
	if queryPathGlob != "" {
		opts.Filter = vectorstore.PathGlobFilter(queryPathGlob)
	}

	resp, err := e.Query(context.Background(), name, queryText, opts)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	for _, hit := range resp.Results {
		fmt.Printf("%.3f  %s:%d-%d  %s\n", hit.Score, hit.RelativePath, hit.StartLine, hit.EndLine, hit.Name)
		for _, rel := range hit.Related {
			fmt.Printf("    related: %s %s (%s:%d-%d)\n", rel.Kind, rel.Name, rel.FilePath, rel.StartLine, rel.EndLine)
		}
	}
	fmt.Println("---")
	fmt.Println(resp.Context)
	return nil
}
