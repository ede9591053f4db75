package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Indexer.MaxWorkers, cfg.Indexer.MaxWorkers)
	assert.Equal(t, Default().Embedding.Model, cfg.Embedding.Model)
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".code-indexer"), 0o755))
	yaml := []byte("indexer:\n  max_workers: 8\nembedding:\n  model: custom-model\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".code-indexer", "config.yml"), yaml, 0o644))

	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Indexer.MaxWorkers)
	assert.Equal(t, "custom-model", cfg.Embedding.Model)
}

func TestLoad_EnvVarOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".code-indexer"), 0o755))
	yaml := []byte("indexer:\n  max_workers: 8\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".code-indexer", "config.yml"), yaml, 0o644))

	t.Setenv("CODE_INDEXER_INDEXER_MAX_WORKERS", "16")

	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Indexer.MaxWorkers)
}

func TestValidate_RejectsInvalidHashAlgorithm(t *testing.T) {
	cfg := Default()
	cfg.Indexer.HashAlgorithm = "md5"
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidHashAlgorithm)
}

func TestValidate_RejectsOverlapNotLessThanMaxChunkSize(t *testing.T) {
	cfg := Default()
	cfg.Chunking.MaxChunkSize = 100
	cfg.Chunking.ChunkOverlap = 100
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOverlap)
}

func TestValidate_RejectsUnknownChunkingStrategy(t *testing.T) {
	cfg := Default()
	cfg.Languages["python"] = LanguageConfig{Extensions: []string{".py"}, ChunkingStrategy: "bogus"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidChunkingStrategy)
}
