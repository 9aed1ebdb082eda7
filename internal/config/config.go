// Package config handles service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultConfigFile      = "thesisrec.yml"
	DefaultDatabasePath    = "data/thesisrec.db"
	DefaultModelDir        = "models_semantic"
	DefaultServerAddr      = ":8000"
	DefaultBatchSize       = 32
	DefaultRefreshInterval = "6h"
)

// Source describes one remote repository to harvest.
type Source struct {
	Name       string `yaml:"name"`
	BaseURL    string `yaml:"base_url"`
	University string `yaml:"university"`
}

// Embedding configures the embedding provider.
type Embedding struct {
	Provider   string `yaml:"provider"`   // "ollama" or "openai"
	Model      string `yaml:"model"`      // model identifier
	Dimensions int    `yaml:"dimensions"` // expected vector width
	OllamaURL  string `yaml:"ollama_url"` // ollama only
	BatchSize  int    `yaml:"batch_size"` // items embedded per batch
}

// Config is the service configuration loaded from thesisrec.yml.
type Config struct {
	DatabasePath    string    `yaml:"database_path"`
	ModelDir        string    `yaml:"model_dir"`
	ServerAddr      string    `yaml:"server_addr"`
	RefreshInterval string    `yaml:"refresh_interval"` // Go duration string, e.g. "6h"
	Embedding       Embedding `yaml:"embedding"`
	Sources         []Source  `yaml:"sources"`
}

// RefreshEvery returns the parsed refresh interval.
// Validate guarantees the value parses; a zero config falls back to the default.
func (c *Config) RefreshEvery() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultRefreshInterval)
	}
	return d
}

// Load reads and validates configuration from the given path.
// A missing file yields the defaults (environment overrides still apply),
// so the CLI works out of the box against a local Ollama.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DatabasePath:    DefaultDatabasePath,
		ModelDir:        DefaultModelDir,
		ServerAddr:      DefaultServerAddr,
		RefreshInterval: DefaultRefreshInterval,
		Embedding: Embedding{
			Provider:  "ollama",
			BatchSize: DefaultBatchSize,
		},
	}
}

// applyEnv overlays environment variables onto the config.
// Environment wins over file values so deployments can override
// paths and endpoints without editing the YAML.
func applyEnv(cfg *Config) {
	if v := os.Getenv("THESISREC_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		cfg.ModelDir = v
	}
	if v := os.Getenv("THESISREC_ADDR"); v != "" {
		cfg.ServerAddr = v
	}
	if v := os.Getenv("EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Embedding.OllamaURL = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("model_dir is required")
	}

	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be \"ollama\" or \"openai\", got %q", c.Embedding.Provider)
	}

	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if d, err := time.ParseDuration(c.RefreshInterval); err != nil {
		return fmt.Errorf("refresh_interval: %w", err)
	} else if d < time.Minute {
		return fmt.Errorf("refresh_interval must be at least 1m, got %s", c.RefreshInterval)
	}

	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d must have a name", i+1)
		}
		if src.BaseURL == "" {
			return fmt.Errorf("source %q must have a base_url", src.Name)
		}
		if src.University == "" {
			return fmt.Errorf("source %q must have a university", src.Name)
		}
	}

	return nil
}
