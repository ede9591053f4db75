// Package config loads the indexer's configuration: a typed value object
// built from defaults, an optional YAML file, and environment variable
// overrides, per spec.md §6's configuration keys.
package config

import "time"

// Config is the complete, validated configuration the engine is
// constructed from.
type Config struct {
	Indexer   IndexerConfig   `yaml:"indexer" mapstructure:"indexer"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Languages map[string]LanguageConfig `yaml:"languages" mapstructure:"languages"`
}

// IndexerConfig carries the pipeline/watcher tunables of spec.md §6.
type IndexerConfig struct {
	MaxWorkers      int           `yaml:"max_workers" mapstructure:"max_workers"`
	PollingInterval time.Duration `yaml:"polling_interval" mapstructure:"polling_interval"`
	HashAlgorithm   string        `yaml:"hash_algorithm" mapstructure:"hash_algorithm"` // "sha256" or "xxhash"
	IgnorePatterns  []string      `yaml:"ignore_patterns" mapstructure:"ignore_patterns"`
	DebounceDelay   time.Duration `yaml:"debounce_delay" mapstructure:"debounce_delay"`
}

// ChunkingConfig carries the byte-level chunking parameters, applied to
// sliding-window and to split-oversized-AST-node logic.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size" mapstructure:"max_chunk_size"`
	MinChunkSize int `yaml:"min_chunk_size" mapstructure:"min_chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"` // bytes
}

// EmbeddingConfig carries the embedder client's tunables.
type EmbeddingConfig struct {
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Model          string        `yaml:"model" mapstructure:"model"`
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"`
	MaxInFlight    int64         `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig bounds the embedder client's backoff attempts.
type RetryConfig struct {
	MaxAttempts uint `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LanguageConfig maps a language tag to the file extensions that select it
// and the chunking strategy applied to those files.
type LanguageConfig struct {
	Extensions      []string `yaml:"extensions" mapstructure:"extensions"`
	ChunkingStrategy string  `yaml:"chunking_strategy" mapstructure:"chunking_strategy"`
}

// Default returns a configuration with sensible defaults, matching the
// extension/strategy table internal/pipeline ships with and the teacher's
// engine-default ignore patterns.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			MaxWorkers:      4,
			PollingInterval: 0,
			HashAlgorithm:   "sha256",
			DebounceDelay:   250 * time.Millisecond,
			IgnorePatterns: []string{
				".git/**",
				"node_modules/**",
				"vendor/**",
				"dist/**",
				"build/**",
				"target/**",
				"__pycache__/**",
				"*.pyc",
			},
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 2000,
			MinChunkSize: 50,
			ChunkOverlap: 100,
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "http://localhost:8121/embed",
			Model:          "BAAI/bge-small-en-v1.5",
			BatchSize:      50,
			MaxInFlight:    4,
			RequestTimeout: 30 * time.Second,
			Retry:          RetryConfig{MaxAttempts: 3},
		},
		Languages: map[string]LanguageConfig{
			"python":     {Extensions: []string{".py"}, ChunkingStrategy: "ast"},
			"ruby":       {Extensions: []string{".rb"}, ChunkingStrategy: "ast"},
			"rust":       {Extensions: []string{".rs"}, ChunkingStrategy: "ast"},
			"php":        {Extensions: []string{".php"}, ChunkingStrategy: "ast"},
			"java":       {Extensions: []string{".java"}, ChunkingStrategy: "ast"},
			"c":          {Extensions: []string{".c", ".h"}, ChunkingStrategy: "ast"},
			"typescript": {Extensions: []string{".ts", ".mts", ".js", ".mjs", ".cjs"}, ChunkingStrategy: "ast"},
			"tsx":        {Extensions: []string{".tsx", ".jsx"}, ChunkingStrategy: "ast"},
			"json":       {Extensions: []string{".json"}, ChunkingStrategy: "json_object"},
			"yaml":       {Extensions: []string{".yaml", ".yml"}, ChunkingStrategy: "yaml_document"},
			"markdown":   {Extensions: []string{".md", ".markdown"}, ChunkingStrategy: "markdown_section"},
		},
	}
}
