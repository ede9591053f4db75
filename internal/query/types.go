// Package query implements the query planner: embed, vector search, graph
// expansion, re-rank, and context assembly over one project's stores.
package query

import "github.com/mvp-joe/code-rag-indexer/internal/vectorstore"

// Request is one query invocation.
type Request struct {
	Project             string
	QueryText           string
	K                   int
	MinScore            float32
	Filter              vectorstore.Filter
	IncludeGraphContext bool
}

// GraphNeighbor is one 1-hop graph neighbor attached to a ChunkHit when
// IncludeGraphContext is set.
type GraphNeighbor struct {
	NodeID    string
	Kind      string
	Name      string
	FilePath  string
	StartLine int
	EndLine   int
}

// ChunkHit is one ranked result.
type ChunkHit struct {
	ChunkID      string
	Score        float32
	RelativePath string
	Language     string
	Kind         string
	Name         string
	StartLine    int
	EndLine      int
	Text         string
	Related      []GraphNeighbor
}

// Response is the planner's output: ordered hits plus an assembled context
// string ready to hand to a model prompt.
type Response struct {
	Results []ChunkHit
	Context string
}
