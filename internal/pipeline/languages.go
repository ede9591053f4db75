package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/mvp-joe/code-rag-indexer/internal/chunker"
	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
)

// fileType is the outcome of classifying a path by extension: the language
// tag attached to its chunks/graph nodes, and the chunking strategy to run.
type fileType struct {
	language string
	strategy chunker.Strategy
}

// extensionTable maps a lowercased file extension to its fileType. An
// extension absent from this table falls back to sliding-window chunking
// with no language tag, per spec.md §4.4's strategy table.
var extensionTable = map[string]fileType{
	".py":   {parserpool.Python, chunker.StrategyAST},
	".rb":   {parserpool.Ruby, chunker.StrategyAST},
	".rs":   {parserpool.Rust, chunker.StrategyAST},
	".php":  {parserpool.PHP, chunker.StrategyAST},
	".java": {parserpool.Java, chunker.StrategyAST},
	".c":    {parserpool.C, chunker.StrategyAST},
	".h":    {parserpool.C, chunker.StrategyAST},
	// TypeScript's grammar is a superset-compatible parse for plain JS;
	// .js/.jsx ride the typescript/tsx grammars rather than adding a
	// dedicated (and ungrounded) javascript grammar dependency.
	".ts":  {parserpool.TypeScript, chunker.StrategyAST},
	".mts": {parserpool.TypeScript, chunker.StrategyAST},
	".js":  {parserpool.TypeScript, chunker.StrategyAST},
	".mjs": {parserpool.TypeScript, chunker.StrategyAST},
	".cjs": {parserpool.TypeScript, chunker.StrategyAST},
	".tsx": {parserpool.TSX, chunker.StrategyAST},
	".jsx": {parserpool.TSX, chunker.StrategyAST},

	".json":     {"json", chunker.StrategyJSONObject},
	".yaml":     {"yaml", chunker.StrategyYAMLDocument},
	".yml":      {"yaml", chunker.StrategyYAMLDocument},
	".md":       {"markdown", chunker.StrategyMarkdownSection},
	".markdown": {"markdown", chunker.StrategyMarkdownSection},
}

// classify returns the fileType for relPath, defaulting to an untagged
// sliding-window classification for unrecognized extensions.
func classify(relPath string) fileType {
	ext := strings.ToLower(filepath.Ext(relPath))
	if ft, ok := extensionTable[ext]; ok {
		return ft
	}
	return fileType{language: "", strategy: chunker.StrategySlidingWindow}
}
