// Package config provides configuration management for recall.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/internal/retriever"
	"github.com/marulab/recall/pkg/models"
)

const (
	// DefaultHTTPAddr is the listen address for the HTTP adapter.
	DefaultHTTPAddr = "127.0.0.1:7432"
	// DefaultDimension matches the common small embedding size.
	DefaultDimension = 768
	// DefaultTokenBudget bounds assembled contexts when the caller gives none.
	DefaultTokenBudget = 2000
)

// EmbeddingConfig locates the external embedding service.
type EmbeddingConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
}

// ContextConfig tunes the assembler defaults.
type ContextConfig struct {
	// TokenBudget is the default budget when a request omits one.
	TokenBudget int `yaml:"token_budget"`
	// BudgetRatio scales a caller-supplied model window into a budget.
	BudgetRatio float64 `yaml:"budget_ratio"`
	// Compression is the default per-chunk compression level.
	Compression models.CompressionLevel `yaml:"compression"`
}

// Config is the full engine configuration.
type Config struct {
	// DataDir holds the index snapshot and backups.
	DataDir string `yaml:"data_dir"`
	// HTTPAddr is the HTTP adapter listen address.
	HTTPAddr string `yaml:"http_addr"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	Index     index.Config     `yaml:"index"`
	Retriever retriever.Config `yaml:"retriever"`
	Context   ContextConfig    `yaml:"context"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
}

// Default returns the standard configuration rooted under the user's home
// directory.
func Default() Config {
	return Config{
		DataDir:   filepath.Join(homeDir(), ".recall"),
		HTTPAddr:  DefaultHTTPAddr,
		LogLevel:  "info",
		Index:     index.DefaultConfig(DefaultDimension),
		Retriever: retriever.DefaultConfig(),
		Context: ContextConfig{
			TokenBudget: DefaultTokenBudget,
			BudgetRatio: 0.25,
			Compression: models.CompressionNone,
		},
		Embedding: EmbeddingConfig{
			Endpoint:  "http://127.0.0.1:11434/api/embed",
			Model:     "nomic-embed-text",
			BatchSize: 32,
			Workers:   4,
		},
	}
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// IndexDir is the snapshot directory inside DataDir.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "index")
}

// EnsureDataDir creates DataDir and the snapshot directory.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.IndexDir(), 0o755)
}

// Validate checks the composite configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if c.Context.TokenBudget <= 0 {
		return fmt.Errorf("context token_budget must be positive, got %d", c.Context.TokenBudget)
	}
	if c.Context.BudgetRatio <= 0 || c.Context.BudgetRatio > 1 {
		return fmt.Errorf("context budget_ratio must be in (0, 1], got %v", c.Context.BudgetRatio)
	}
	if c.Context.Compression != "" && !c.Context.Compression.Valid() {
		return fmt.Errorf("unknown compression level %q", c.Context.Compression)
	}
	return nil
}

// Load reads the YAML file at path over the defaults.
// If the file does not exist, Load returns the defaults (not an error).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
