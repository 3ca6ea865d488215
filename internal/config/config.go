// Package config provides configuration loading and structs for the keeper assistant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Memory    MemoryConfig    `yaml:"memory"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RetrievalConfig holds corpus and vector index settings. TopK is fixed here
// rather than caller-supplied so prompt size stays bounded.
type RetrievalConfig struct {
	CorpusPath   string `yaml:"corpus_path"`
	CorpusSource string `yaml:"corpus_source"`
	IndexDir     string `yaml:"index_dir"`
	IndexName    string `yaml:"index_name"`
	ChunkSize    int    `yaml:"chunk_size"`
	TopK         int    `yaml:"top_k"`
}

// MemoryConfig holds session-memory storage settings.
type MemoryConfig struct {
	Dir string `yaml:"dir"`
}

// EmbeddingConfig holds settings for the OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// LLMConfig holds settings for the OpenAI-compatible chat completions endpoint.
// Temperature and token limits differ per call class: chat turns, summaries,
// and long-form stories.
type LLMConfig struct {
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	Model              string  `yaml:"model"`
	ChatTemperature    float64 `yaml:"chat_temperature"`
	ChatMaxTokens      int64   `yaml:"chat_max_tokens"`
	SummaryTemperature float64 `yaml:"summary_temperature"`
	SummaryMaxTokens   int64   `yaml:"summary_max_tokens"`
	StoryTemperature   float64 `yaml:"story_temperature"`
	StoryMaxTokens     int64   `yaml:"story_max_tokens"`
}

// NarrativeConfig holds story composition settings. Style is an enumerated
// register for composed stories: republican, archaic, modern, eerie, or auto
// (infer from script keywords).
type NarrativeConfig struct {
	Style string `yaml:"style"`
}

// WatchConfig controls the corpus file watcher.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands relative paths. Returns an error if the file cannot be read or parsed.
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
	cfg.Retrieval.CorpusPath = expandPath(cfg.Retrieval.CorpusPath, configDir)
	cfg.Retrieval.IndexDir = expandPath(cfg.Retrieval.IndexDir, configDir)
	cfg.Memory.Dir = expandPath(cfg.Memory.Dir, configDir)

	return &cfg, nil
}

// EmbeddingAPIKey returns the embedding credential from the configured env var.
func (c *Config) EmbeddingAPIKey() string {
	return os.Getenv(c.Embedding.APIKeyEnv)
}

// LLMAPIKey returns the generation credential from the configured env var.
func (c *Config) LLMAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home directory.
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
