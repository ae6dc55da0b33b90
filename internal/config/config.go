// Package config loads and persists the memory store configuration.
// The config file lives at <global root>/config.yaml (~/.memory by
// default) and every field has a working default, so a missing file is
// never an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all memory store configuration.
type Config struct {
	// Default scope for operations that do not specify one.
	// Empty or invalid values fall through to context-based selection.
	DefaultScope string `yaml:"default_scope"`

	// Enterprise scope opt-in.
	Enterprise EnterpriseConfig `yaml:"enterprise"`

	// Embedding engine for semantic search.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Search tuning.
	Search SearchConfig `yaml:"search"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// EnterpriseConfig configures the organization-managed scope.
// Both Enabled and a resolvable directory (MEMORY_ENTERPRISE_DIR) are
// required before the enterprise scope may be used.
type EnterpriseConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is normally supplied via MEMORY_ENTERPRISE_DIR; a value here
	// acts as a fallback when the environment variable is unset.
	Dir string `yaml:"dir"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"` // Default: "gemini-embedding-001"

	// Fallbacks lists providers to try when the primary is unreachable.
	Fallbacks []string `yaml:"fallbacks"`

	// Timeout bounds every embedding call.
	Timeout string `yaml:"timeout"` // Default: "10s"

	// CacheDir overrides where per-scope embedding caches are written.
	// Empty means alongside each scope's index.json.
	CacheDir string `yaml:"cache_dir"`
}

// SearchConfig tunes the search layer.
type SearchConfig struct {
	// MinSimilarity is the exploratory semantic-search cutoff.
	MinSimilarity float64 `yaml:"min_similarity"` // Default: 0.35

	// MaxResults caps result lists.
	MaxResults int `yaml:"max_results"` // Default: 20
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultScope: "",
		Enterprise: EnterpriseConfig{
			Enabled: false,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Timeout:        "10s",
		},
		Search: SearchConfig{
			MinSimilarity: 0.35,
			MaxResults:    20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".memory", "config.yaml")
	}
	return filepath.Join(home, ".memory", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file returns
// defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("MEMORY_ENTERPRISE_DIR"); dir != "" {
		c.Enterprise.Dir = dir
	}
	if s := os.Getenv("MEMORY_DEFAULT_SCOPE"); s != "" {
		c.DefaultScope = s
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}
}

// EmbedTimeout returns the embedding call timeout as a duration.
func (c *Config) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
