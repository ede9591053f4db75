// Package vectorstore implements the per-project vector collection: a
// pure-Go HNSW index (github.com/coder/hnsw) plus a metadata sidecar mapping
// chunk_id -> {text, metadata}.
package vectorstore

import "github.com/gobwas/glob"

// Metadata is the filterable/displayable side of a chunk record. It
// mirrors the chunker's Chunk fields that the spec calls out as required
// k-NN metadata (language, kind, path, line range, name).
type Metadata struct {
	Project      string `json:"project"`
	RelativePath string `json:"relative_path"`
	Language     string `json:"language"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
}

// ChunkRecord is one upsertable unit: a chunk's id, its embedding, and the
// metadata/text needed to resolve a k-NN hit without re-reading source.
type ChunkRecord struct {
	ChunkID  string    `json:"chunk_id"`
	Vector   []float32 `json:"vector"`
	Text     string    `json:"text"`
	Metadata Metadata  `json:"metadata"`
}

// Result is one k-NN hit.
type Result struct {
	ChunkID  string
	Score    float32
	Metadata Metadata
	Text     string
}

// Filter is a metadata predicate applied as a post-filter over the k-NN
// candidate set (the candidate set is oversampled by the caller to absorb
// filtered-out hits; see internal/query's k' = max(k*2, 20)).
type Filter func(Metadata) bool

// PathGlobFilter builds a Filter that keeps only hits whose relative path
// matches pattern (gobwas/glob syntax, '/' as the path separator). An
// invalid pattern compiles to a Filter that rejects everything rather than
// panicking at query time.
func PathGlobFilter(pattern string) Filter {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return func(Metadata) bool { return false }
	}
	return func(m Metadata) bool { return g.Match(m.RelativePath) }
}
