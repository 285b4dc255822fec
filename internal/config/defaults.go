package config

import (
	"fmt"
	"strings"

	"github.com/hyperjump/codeindex/internal/storage"
	"github.com/hyperjump/codeindex/internal/vector"
)

// DefaultExtensions is the scanner allow-list when none is configured.
var DefaultExtensions = []string{
	".java", ".js", ".ts", ".jsx", ".tsx", ".py", ".go", ".rb", ".php",
	".html", ".htm", ".css", ".scss", ".json", ".xml", ".md", ".properties",
}

// Embedding and LLM providers.
const (
	ProviderHash    = "hash"
	ProviderCommand = "command"
	ProviderOpenAI  = "openai"
	ProviderONNX    = "onnx"
	ProviderOllama  = "ollama"
	ProviderNone    = "none"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = storage.DriverSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/codeindex.db"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHash
	}
	if cfg.Embedding.Command == "" {
		cfg.Embedding.Command = "ollama"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case ProviderOpenAI:
			cfg.Embedding.Model = "text-embedding-3-small"
		default:
			cfg.Embedding.Model = "nomic-embed-text"
		}
	}
	if cfg.Embedding.Args == nil && cfg.Embedding.Provider == ProviderCommand {
		cfg.Embedding.Args = []string{"embed", cfg.Embedding.Model}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case ProviderONNX:
			cfg.Embedding.Dimensions = 384
		case ProviderHash:
			cfg.Embedding.Dimensions = 64
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.RateBurst == 0 {
		cfg.Embedding.RateBurst = 1
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 60
	}

	if cfg.ANN.Strategy == "" {
		cfg.ANN.Strategy = string(vector.StrategyExact)
	}
	if cfg.ANN.PersistPath == "" {
		cfg.ANN.PersistPath = "./data/ann-index.idx"
	}
	if cfg.ANN.RebuildPageSize == 0 {
		cfg.ANN.RebuildPageSize = vector.DefaultRebuildPageSize
	}
	if cfg.ANN.M == 0 {
		cfg.ANN.M = vector.DefaultM
	}
	if cfg.ANN.EfConstruction == 0 {
		cfg.ANN.EfConstruction = vector.DefaultEfConstruction
	}
	if cfg.ANN.EfSearch == 0 {
		cfg.ANN.EfSearch = vector.DefaultEfSearch
	}
	if cfg.ANN.MaxItems == 0 {
		cfg.ANN.MaxItems = vector.DefaultMaxItems
	}
	if cfg.ANN.LockTimeoutSeconds == 0 {
		cfg.ANN.LockTimeoutSeconds = int(vector.DefaultLockTimeout.Seconds())
	}

	if cfg.Scanner.Root == "" {
		cfg.Scanner.Root = "."
	}
	if cfg.Scanner.ApplicationID == "" {
		cfg.Scanner.ApplicationID = "default-app"
	}
	if cfg.Scanner.Extensions == nil {
		cfg.Scanner.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Scanner.ChunkSize == 0 {
		cfg.Scanner.ChunkSize = 800
	}
	if cfg.Scanner.ChunkOverlap == 0 {
		cfg.Scanner.ChunkOverlap = 200
	}
	if cfg.Scanner.PollIntervalMs == 0 {
		cfg.Scanner.PollIntervalMs = 200
	}

	if cfg.Keyword.IndexPath == "" {
		cfg.Keyword.IndexPath = "./data/keyword.bleve"
	}

	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 3
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 50
	}
	if cfg.Retrieval.SemanticWeight == 0 && cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.SemanticWeight = 0.7
		cfg.Retrieval.KeywordWeight = 0.3
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOllama
	}
	if cfg.LLM.Command == "" {
		cfg.LLM.Command = "ollama"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case ProviderOpenAI:
			cfg.LLM.Model = "gpt-4o-mini"
		default:
			cfg.LLM.Model = "codellama:13b-instruct"
		}
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 180
	}

	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverBolt:
	default:
		problems = append(problems, fmt.Sprintf("storage.driver must be sqlite or bolt, got %q", c.Storage.Driver))
	}
	switch c.Embedding.Provider {
	case ProviderHash, ProviderCommand, ProviderOpenAI, ProviderONNX:
	default:
		problems = append(problems, fmt.Sprintf("embedding.provider must be hash, command, openai or onnx, got %q", c.Embedding.Provider))
	}
	if c.Embedding.RateLimit < 0 {
		problems = append(problems, "embedding.rate_limit must not be negative")
	}
	if _, err := vector.ParseStrategy(c.ANN.Strategy); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.ANN.Params().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.ANN.MinPersistSize < 0 {
		problems = append(problems, "ann.min_persist_size must not be negative")
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderNone:
	default:
		problems = append(problems, fmt.Sprintf("llm.provider must be ollama, openai or none, got %q", c.LLM.Provider))
	}
	if c.Retrieval.MaxK < c.Retrieval.DefaultK {
		problems = append(problems, "retrieval.max_k must be at least retrieval.default_k")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Params returns the graph parameters of the ANN config.
func (a ANNConfig) Params() vector.Params {
	return vector.Params{
		M:              a.M,
		EfConstruction: a.EfConstruction,
		EfSearch:       a.EfSearch,
		MaxItems:       a.MaxItems,
	}
}
