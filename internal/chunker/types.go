// Package chunker turns a file (optionally with a parsed syntax tree) into
// an ordered sequence of semantically meaningful chunks.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind identifies the semantic unit a Chunk represents.
type Kind string

const (
	KindModule   Kind = "module"
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindBlock    Kind = "block"
	KindSection  Kind = "section"
	KindDocument Kind = "document"
	KindWindow   Kind = "window"
)

// Strategy is the closed set of chunking strategies a language class may be
// assigned in configuration.
type Strategy string

const (
	StrategyAST             Strategy = "ast"
	StrategySlidingWindow    Strategy = "sliding_window"
	StrategyJSONObject       Strategy = "json_object"
	StrategyYAMLDocument     Strategy = "yaml_document"
	StrategyMarkdownSection  Strategy = "markdown_section"
)

// Chunk is a contiguous, semantically meaningful slice of a file.
type Chunk struct {
	ID            string
	Project       string
	RelativePath  string
	Language      string
	Kind          Kind
	Name          string // empty means null per the data model
	StartLine     int
	EndLine       int
	Text          string
	ParentChunkID string
	Metadata      map[string]string
}

// Config carries the byte-level chunking parameters from configuration.
type Config struct {
	MaxChunkSize int
	MinChunkSize int
	ChunkOverlap int // interpreted in bytes (Open Question resolved, see SPEC_FULL.md)
}

// DefaultConfig returns reasonable defaults matching the teacher's chunking
// configuration scale.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize: 2000,
		MinChunkSize: 200,
		ChunkOverlap: 100,
	}
}

// ComputeID derives the deterministic chunk_id: a hash of
// (relative_path, kind, name-or-start_line, end_line). Two chunker runs over
// unchanged content produce identical ids.
func ComputeID(relPath string, kind Kind, name string, startLine, endLine int) string {
	key := name
	if key == "" {
		key = fmt.Sprintf("L%d", startLine)
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s\x00%d", relPath, kind, key, endLine)))
	return hex.EncodeToString(h[:16])
}
