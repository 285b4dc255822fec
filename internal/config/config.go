// Package config loads the codeindex configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvRoot          = "CODEINDEX_ROOT"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" toml:"debug"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	ANN       ANNConfig       `yaml:"ann" toml:"ann"`
	Scanner   ScannerConfig   `yaml:"scanner" toml:"scanner"`
	Keyword   KeywordConfig   `yaml:"keyword" toml:"keyword"`
	Retrieval RetrievalConfig `yaml:"retrieval" toml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Watch     WatchConfig     `yaml:"watch" toml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver       string `yaml:"driver" toml:"driver"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`
}

// EmbeddingConfig selects and tunes the embedder.
type EmbeddingConfig struct {
	// Provider is one of hash, command, openai, onnx.
	Provider   string   `yaml:"provider" toml:"provider"`
	Dimensions int      `yaml:"dimensions" toml:"dimensions"`
	Command    string   `yaml:"command" toml:"command"`
	Args       []string `yaml:"args" toml:"args"`
	Model      string   `yaml:"model" toml:"model"`
	APIKey     string   `yaml:"api_key" toml:"api_key"`
	BaseURL    string   `yaml:"base_url" toml:"base_url"`
	ModelPath  string   `yaml:"model_path" toml:"model_path"`
	MaxTokens  int      `yaml:"max_tokens" toml:"max_tokens"`
	CacheSize  int      `yaml:"cache_size" toml:"cache_size"`
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit      float64 `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst      int     `yaml:"rate_burst" toml:"rate_burst"`
	TimeoutSeconds int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// ANNConfig configures the in-memory index and its snapshot policy.
type ANNConfig struct {
	Strategy           string `yaml:"strategy" toml:"strategy"`
	PersistPath        string `yaml:"persist_path" toml:"persist_path"`
	AutoLoad           bool   `yaml:"auto_load" toml:"auto_load"`
	AutoPersist        bool   `yaml:"auto_persist" toml:"auto_persist"`
	MinPersistSize     int    `yaml:"min_persist_size" toml:"min_persist_size"`
	RebuildPageSize    int    `yaml:"rebuild_page_size" toml:"rebuild_page_size"`
	M                  int    `yaml:"m" toml:"m"`
	EfConstruction     int    `yaml:"ef_construction" toml:"ef_construction"`
	EfSearch           int    `yaml:"ef_search" toml:"ef_search"`
	MaxItems           int    `yaml:"max_items" toml:"max_items"`
	LockTimeoutSeconds int    `yaml:"lock_timeout_seconds" toml:"lock_timeout_seconds"`
}

// ScannerConfig controls file discovery and chunking.
type ScannerConfig struct {
	Root             string   `yaml:"root" toml:"root"`
	ApplicationID    string   `yaml:"application_id" toml:"application_id"`
	Extensions       []string `yaml:"extensions" toml:"extensions"`
	ChunkSize        int      `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap" toml:"chunk_overlap"`
	PollIntervalMs   int      `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	RebuildAfterScan bool     `yaml:"rebuild_after_scan" toml:"rebuild_after_scan"`
}

// KeywordConfig controls the bleve chunk index.
type KeywordConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	IndexPath string `yaml:"index_path" toml:"index_path"`
}

// RetrievalConfig tunes top-K retrieval.
type RetrievalConfig struct {
	DefaultK       int     `yaml:"default_k" toml:"default_k"`
	MaxK           int     `yaml:"max_k" toml:"max_k"`
	Hybrid         bool    `yaml:"hybrid" toml:"hybrid"`
	SemanticWeight float64 `yaml:"semantic_weight" toml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight" toml:"keyword_weight"`
}

// LLMConfig selects the answering model.
type LLMConfig struct {
	// Provider is one of ollama, openai, none.
	Provider       string `yaml:"provider" toml:"provider"`
	Command        string `yaml:"command" toml:"command"`
	Model          string `yaml:"model" toml:"model"`
	APIKey         string `yaml:"api_key" toml:"api_key"`
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
	// SkipClassify makes POST queries always fetch snippets instead of
	// asking the model whether the question is about code.
	SkipClassify bool `yaml:"skip_classify" toml:"skip_classify"`
}

// WatchConfig enables incremental reindexing of the scanner root.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms" toml:"debounce_ms"`
}

// Load reads the config file at path (YAML, or TOML when the name ends in
// .toml), loads an optional .env next to it, applies defaults and
// environment overrides, expands paths and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadEnv(configDir); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	applyEnv(&cfg)
	expandPaths(&cfg, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnv(cfg)
		return cfg, nil
	}
	return Load(path)
}

// Save writes the config to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads dir/.env into the process environment if it exists.
// Variables already set are not overwritten.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// DefaultPath returns ~/.codeindex/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".codeindex", "config.yaml")
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		cfg.Embedding.APIKey = v
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvRoot); v != "" {
		cfg.Scanner.Root = v
	}
}

func expandPaths(cfg *Config, configDir string) {
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.ANN.PersistPath = expandPath(cfg.ANN.PersistPath, configDir)
	cfg.Keyword.IndexPath = expandPath(cfg.Keyword.IndexPath, configDir)
	cfg.Scanner.Root = expandPath(cfg.Scanner.Root, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
}

// expandPath converts a path to absolute. "." and paths starting with "./"
// are relative to configDir; "~/" and other relative paths are relative to
// the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
