package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads configuration from defaults, an optional file, and
// environment variables.
type Loader interface {
	// Load loads configuration with priority (highest to lowest):
	// environment variables → config file → defaults.
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a loader that looks for .code-indexer/config.yml under
// rootDir.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".code-indexer")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("CODE_INDEXER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("indexer.max_workers")
	v.BindEnv("indexer.polling_interval")
	v.BindEnv("indexer.hash_algorithm")
	v.BindEnv("indexer.debounce_delay")

	v.BindEnv("chunking.max_chunk_size")
	v.BindEnv("chunking.min_chunk_size")
	v.BindEnv("chunking.chunk_overlap")

	v.BindEnv("embedding.base_url")
	v.BindEnv("embedding.model")
	v.BindEnv("embedding.batch_size")
	v.BindEnv("embedding.max_in_flight")
	v.BindEnv("embedding.request_timeout")
	v.BindEnv("embedding.retry.max_attempts")
}

// setDefaults seeds viper with Default()'s values so a partial config file
// (or none at all) still produces a complete, valid Config.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("indexer.max_workers", d.Indexer.MaxWorkers)
	v.SetDefault("indexer.polling_interval", d.Indexer.PollingInterval)
	v.SetDefault("indexer.hash_algorithm", d.Indexer.HashAlgorithm)
	v.SetDefault("indexer.ignore_patterns", d.Indexer.IgnorePatterns)
	v.SetDefault("indexer.debounce_delay", d.Indexer.DebounceDelay)

	v.SetDefault("chunking.max_chunk_size", d.Chunking.MaxChunkSize)
	v.SetDefault("chunking.min_chunk_size", d.Chunking.MinChunkSize)
	v.SetDefault("chunking.chunk_overlap", d.Chunking.ChunkOverlap)

	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.max_in_flight", d.Embedding.MaxInFlight)
	v.SetDefault("embedding.request_timeout", d.Embedding.RequestTimeout)
	v.SetDefault("embedding.retry.max_attempts", d.Embedding.Retry.MaxAttempts)

	v.SetDefault("languages", toViperLanguages(d.Languages))
}

// toViperLanguages flattens LanguageConfig into the map[string]any shape
// viper.SetDefault expects for a nested mapstructure map.
func toViperLanguages(langs map[string]LanguageConfig) map[string]any {
	out := make(map[string]any, len(langs))
	for name, lc := range langs {
		out[name] = map[string]any{
			"extensions":        lc.Extensions,
			"chunking_strategy": lc.ChunkingStrategy,
		}
	}
	return out
}

// LoadConfig loads configuration using the current working directory as
// the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: getwd: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration rooted at a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
