package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkers indicates a non-positive worker pool size.
	ErrInvalidWorkers = errors.New("invalid max_workers")

	// ErrInvalidHashAlgorithm indicates an unsupported hash_algorithm.
	ErrInvalidHashAlgorithm = errors.New("invalid hash_algorithm")

	// ErrInvalidChunkSize indicates invalid chunk size configuration.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidOverlap indicates invalid chunk_overlap configuration.
	ErrInvalidOverlap = errors.New("invalid chunk_overlap")

	// ErrEmptyBaseURL indicates a missing embedding base_url.
	ErrEmptyBaseURL = errors.New("empty embedding base_url")

	// ErrEmptyModel indicates a missing embedding model.
	ErrEmptyModel = errors.New("empty embedding model")

	// ErrInvalidBatchSize indicates a non-positive embedding batch_size.
	ErrInvalidBatchSize = errors.New("invalid embedding batch_size")

	// ErrInvalidChunkingStrategy indicates a languages.<lang>.chunking_strategy
	// outside the closed set spec.md §6 names.
	ErrInvalidChunkingStrategy = errors.New("invalid chunking_strategy")
)

var validStrategies = map[string]bool{
	"ast":              true,
	"sliding_window":   true,
	"json_object":      true,
	"yaml_document":    true,
	"markdown_section": true,
}

// Validate checks that cfg is complete and internally consistent.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateIndexer(&cfg.Indexer); err != nil {
		errs = append(errs, err)
	}
	if err := validateChunking(&cfg.Chunking); err != nil {
		errs = append(errs, err)
	}
	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}
	if err := validateLanguages(cfg.Languages); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateIndexer(cfg *IndexerConfig) error {
	var errs []error
	if cfg.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidWorkers, cfg.MaxWorkers))
	}
	alg := strings.ToLower(cfg.HashAlgorithm)
	if alg != "sha256" && alg != "xxhash" {
		errs = append(errs, fmt.Errorf("%w: must be 'sha256' or 'xxhash', got %q", ErrInvalidHashAlgorithm, cfg.HashAlgorithm))
	}
	return joinErrors(errs)
}

func validateChunking(cfg *ChunkingConfig) error {
	var errs []error
	if cfg.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_chunk_size must be positive, got %d", ErrInvalidChunkSize, cfg.MaxChunkSize))
	}
	if cfg.MinChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: min_chunk_size must be positive, got %d", ErrInvalidChunkSize, cfg.MinChunkSize))
	}
	if cfg.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("%w: cannot be negative, got %d", ErrInvalidOverlap, cfg.ChunkOverlap))
	}
	if cfg.MaxChunkSize > 0 && cfg.ChunkOverlap >= cfg.MaxChunkSize {
		errs = append(errs, fmt.Errorf("%w: overlap (%d) should be less than max_chunk_size (%d)", ErrInvalidOverlap, cfg.ChunkOverlap, cfg.MaxChunkSize))
	}
	return joinErrors(errs)
}

func validateEmbedding(cfg *EmbeddingConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("%w: base_url is required", ErrEmptyBaseURL))
	}
	if strings.TrimSpace(cfg.Model) == "" {
		errs = append(errs, fmt.Errorf("%w: model is required", ErrEmptyModel))
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidBatchSize, cfg.BatchSize))
	}
	return joinErrors(errs)
}

func validateLanguages(langs map[string]LanguageConfig) error {
	var errs []error
	for name, lc := range langs {
		if !validStrategies[lc.ChunkingStrategy] {
			errs = append(errs, fmt.Errorf("%w: languages.%s: %q", ErrInvalidChunkingStrategy, name, lc.ChunkingStrategy))
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
