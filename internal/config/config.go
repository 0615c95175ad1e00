// Package config loads tool configuration from a TOML file with sensible
// defaults for every field.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is looked up in the project root when no --config flag is
// given.
const DefaultFileName = ".lodestone.toml"

// Config is the full tool configuration.
type Config struct {
	DBPath    string   `toml:"db_path"`
	ProjectID string   `toml:"project_id"`
	Skip      []string `toml:"skip_patterns"`

	Embedder EmbedderConfig `toml:"embedder"`
	Watcher  WatcherConfig  `toml:"watcher"`
	Search   SearchConfig   `toml:"search"`
}

// EmbedderConfig selects and tunes the embedding backend.
type EmbedderConfig struct {
	// Backend is "hash" (deterministic, offline) or "ollama".
	Backend   string `toml:"backend"`
	Dimension int    `toml:"dimension"`
	CacheSize int    `toml:"cache_size"`
	OllamaURL string `toml:"ollama_url"`
	Model     string `toml:"model"`
}

// WatcherConfig tunes watch-mode behavior.
type WatcherConfig struct {
	DebounceMS int `toml:"debounce_ms"`
	PollMS     int `toml:"poll_ms"`
}

// SearchConfig tunes query behavior.
type SearchConfig struct {
	Limit      int     `toml:"limit"`
	Threshold  float64 `toml:"threshold"`
	CacheTTLMS int     `toml:"cache_ttl_ms"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DBPath:    filepath.Join(".lodestone", "index.db"),
		ProjectID: "default",
		Embedder: EmbedderConfig{
			Backend:   "hash",
			Dimension: 384,
			CacheSize: 4096,
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
		},
		Watcher: WatcherConfig{
			DebounceMS: 500,
			PollMS:     100,
		},
		Search: SearchConfig{
			Limit:     10,
			Threshold: 0.5,
		},
	}
}

// Load reads the file at path, layering it over defaults. A missing file is
// not an error; the defaults are returned. Unknown keys are rejected so
// typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Embedder.Backend {
	case "hash", "ollama":
	default:
		return fmt.Errorf("embedder.backend must be \"hash\" or \"ollama\", got %q", c.Embedder.Backend)
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder.dimension must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Watcher.DebounceMS < 0 || c.Watcher.PollMS < 0 {
		return fmt.Errorf("watcher intervals must be non-negative")
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be in [0, 1], got %g", c.Search.Threshold)
	}
	return nil
}
