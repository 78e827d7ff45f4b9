package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the priorart tool.
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig describes where source documents are read from.
type CorpusConfig struct {
	Dir      string   `yaml:"dir"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// ChunkingConfig holds the window parameters. Size and overlap are in
// characters and are part of the index fingerprint.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // "openai", "gemini", "ollama", "mock"
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string  `yaml:"base_url"`    // Used by the ollama provider
	Dimension         int     `yaml:"dimension"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	MaxRetries        int     `yaml:"max_retries"`
}

// RetrieveConfig holds query-time configuration.
type RetrieveConfig struct {
	TopK int `yaml:"top_k"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RequestTimeout returns the per-call embedding timeout.
func (e EmbeddingConfig) RequestTimeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Dir:      "corpus",
			Includes: []string{"**/*.json"},
			Excludes: []string{"**/.*/**"},
		},
		Chunking: ChunkingConfig{
			Size:    400,
			Overlap: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			APIKeyEnv:         "OPENAI_API_KEY",
			Dimension:         1536,
			TimeoutSeconds:    60,
			Concurrency:       4,
			RequestsPerSecond: 0,
			MaxRetries:        3,
		},
		Retrieve: RetrieveConfig{
			TopK: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for
// priorart.yaml, then .priorart/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "priorart.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".priorart", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".priorart", "index.db")
}

// EnsureStateDir ensures the .priorart directory exists.
func EnsureStateDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".priorart"), 0755)
}
