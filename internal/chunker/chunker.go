package chunker

import (
	"context"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Input bundles everything one file's chunking pass needs.
type Input struct {
	Project      string
	RelativePath string
	Language     string // empty when the language is unknown/unconfigured
	Strategy     Strategy
	Content      []byte
	Tree         *sitter.Tree // nil when no parser is available or AST parse failed
}

// Chunk dispatches to the strategy named by in.Strategy, falling back to
// sliding-window whenever the AST strategy was requested but no tree is
// available (parse failure is non-fatal, per spec.md §4.3/§4.4).
func Chunk(ctx context.Context, in Input, cfg Config) ([]Chunk, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	strategy := in.Strategy
	if strategy == StrategyAST && in.Tree == nil {
		strategy = StrategySlidingWindow
	}

	var chunks []Chunk
	var err error

	switch strategy {
	case StrategyAST:
		chunks = astChunks(in.RelativePath, in.Language, in.Content, in.Tree, cfg)
		if chunks == nil {
			// Unrecognized language under the ast strategy: fall back.
			chunks = slidingWindow(in.RelativePath, in.Language, in.Content, cfg)
		}
	case StrategyJSONObject:
		chunks, err = jsonObject(in.RelativePath, in.Language, in.Content, cfg)
	case StrategyYAMLDocument:
		chunks = yamlDocument(in.RelativePath, in.Language, in.Content, cfg)
	case StrategyMarkdownSection:
		chunks = markdownSection(in.RelativePath, in.Language, in.Content, cfg)
	default:
		chunks = slidingWindow(in.RelativePath, in.Language, in.Content, cfg)
	}
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Project = in.Project
	}
	return chunks, nil
}
