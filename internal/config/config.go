// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is treated as an
// immutable snapshot: loaded once at startup and passed by pointer into the
// pipeline, never mutated afterwards.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for documents, the index artifact, and the audit database.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	IndexPath    string `yaml:"index_path"`
	DatabasePath string `yaml:"database_path"`
}

// ChunkingConfig holds text chunking settings. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedder settings.
// Provider selects the implementation: "ollama", "onnx", or "mock".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// GenerationConfig holds generator client and gate settings.
type GenerationConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	QueueCapacity  int     `yaml:"queue_capacity"`
	MaxNewTokens   int     `yaml:"max_new_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	TokenBudget    int     `yaml:"prompt_token_budget"`
}

// Timeout returns the per-generation timeout as a duration.
func (g *GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// WatchConfig holds corpus-directory watch settings.
type WatchConfig struct {
	Enabled         bool `yaml:"enabled"`
	DebounceSeconds int  `yaml:"debounce_seconds"`
}

// Load reads and parses the config file at path, applies defaults, expands
// relative paths against the config directory, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that would otherwise fail deep inside the
// pipeline. Returns the first violation found.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking: chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap <= 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking: chunk_overlap must be in (0, chunk_size), got %d with chunk_size %d",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval: top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Generation.QueueCapacity < 1 {
		return fmt.Errorf("generation: queue_capacity must be >= 1, got %d", c.Generation.QueueCapacity)
	}
	if c.Generation.TimeoutSeconds <= 0 {
		return fmt.Errorf("generation: timeout_seconds must be positive, got %d", c.Generation.TimeoutSeconds)
	}
	if c.Generation.TokenBudget <= 0 {
		return fmt.Errorf("generation: prompt_token_budget must be positive, got %d", c.Generation.TokenBudget)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding: model must be set")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
