// Package app wires the codeindex components together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/answer"
	"github.com/hyperjump/codeindex/internal/config"
	"github.com/hyperjump/codeindex/internal/embedding"
	"github.com/hyperjump/codeindex/internal/extract"
	"github.com/hyperjump/codeindex/internal/indexer"
	"github.com/hyperjump/codeindex/internal/jobs"
	"github.com/hyperjump/codeindex/internal/keyword"
	"github.com/hyperjump/codeindex/internal/process"
	"github.com/hyperjump/codeindex/internal/retrieval"
	"github.com/hyperjump/codeindex/internal/storage"
	"github.com/hyperjump/codeindex/internal/vector"
	"github.com/hyperjump/codeindex/internal/watcher"
)

// SamplePath is the path used by InsertSample.
const SamplePath = "sample/auto.txt"

const stopTimeout = 10 * time.Second

// App holds every constructed component. Fields are nil when disabled.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     storage.RecordStore
	Embedder  embedding.Embedder
	Index     *vector.Index
	Keywords  *keyword.BleveIndex
	Spell     *keyword.SpellChecker
	Scanner   *indexer.Scanner
	Pipeline  *indexer.Pipeline
	Retrieval *retrieval.Engine
	Answer    *answer.Service
	Jobs      *jobs.Controller
	Watcher   *watcher.Watcher
}

// Open constructs all components from cfg. Nothing is loaded or started;
// call Start for that.
func Open(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.open(); err != nil {
		return nil, multierr.Append(err, a.closeComponents())
	}
	return a, nil
}

func (a *App) open() error {
	cfg := a.Config
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Store = store

	emb, err := newEmbedder(cfg.Embedding, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.Embedder = emb

	idx, err := vector.New(cfg.ANN.Strategy,
		vector.WithStore(store),
		vector.WithPageSize(cfg.ANN.RebuildPageSize),
		vector.WithParams(cfg.ANN.Params()),
		vector.WithLockTimeout(time.Duration(cfg.ANN.LockTimeoutSeconds)*time.Second),
		vector.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	a.Index = idx

	if cfg.Keyword.Enabled {
		kw, err := keyword.NewBleveIndex(cfg.Keyword.IndexPath)
		if err != nil {
			return fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		a.Keywords = kw
		a.Spell = keyword.NewSpellChecker(kw, keyword.WithTranspositions())
	}

	a.Scanner = indexer.NewScanner(cfg.Scanner.Root, cfg.Scanner.ApplicationID, cfg.Scanner.Extensions)
	pipelineOpts := []indexer.PipelineOption{
		indexer.WithLogger(a.Logger),
		indexer.WithExtractor(extract.NewExtractor(0)),
		indexer.WithChunker(indexer.NewChunker(cfg.Scanner.ChunkSize, cfg.Scanner.ChunkOverlap)),
	}
	retrievalOpts := []retrieval.Option{
		retrieval.WithLogger(a.Logger),
	}
	if a.Keywords != nil {
		pipelineOpts = append(pipelineOpts, indexer.WithKeywordIndex(a.Keywords))
		retrievalOpts = append(retrievalOpts,
			retrieval.WithKeywordIndex(a.Keywords, &keyword.SearchOptions{PathBoost: 2, PhraseBoost: 1.5}),
			retrieval.WithSpellChecker(a.Spell),
		)
		if cfg.Retrieval.Hybrid {
			retrievalOpts = append(retrievalOpts,
				retrieval.WithHybrid(cfg.Retrieval.SemanticWeight, cfg.Retrieval.KeywordWeight))
		}
	}
	a.Pipeline = indexer.NewPipeline(a.Scanner, store, emb, idx, pipelineOpts...)
	a.Retrieval = retrieval.NewEngine(store, emb, idx, retrievalOpts...)

	client, err := newLLMClient(cfg.LLM, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize language model: %w", err)
	}
	a.Answer = answer.NewService(client, a.Logger)

	a.Jobs = jobs.NewController(a.Scanner, a.Pipeline,
		jobs.WithPollInterval(time.Duration(cfg.Scanner.PollIntervalMs)*time.Millisecond),
		jobs.WithLogger(a.Logger),
		jobs.WithOnFinish(a.onScanFinished),
	)

	if cfg.Watch.Enabled {
		a.Watcher = watcher.NewWatcher(a.Scanner, a.Pipeline,
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
			watcher.WithLogger(a.Logger),
		)
	}
	return nil
}

func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var (
		base embedding.Embedder
		err  error
	)
	switch cfg.Provider {
	case config.ProviderCommand:
		runner := process.NewExecRunner(time.Duration(cfg.TimeoutSeconds) * time.Second)
		base = embedding.NewCommandEmbedder(runner, cfg.Command, cfg.Args, logger)
	case config.ProviderOpenAI:
		base, err = embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case config.ProviderONNX:
		base, err = embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	default:
		base = embedding.NewHashEmbedder(cfg.Dimensions)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.ProviderHash {
		return base, nil
	}
	if cfg.RateLimit > 0 {
		base = embedding.NewRateLimitedEmbedder(base, cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.CacheSize > 0 {
		base = embedding.NewCachedEmbedder(base, cfg.CacheSize)
	}
	return base, nil
}

func newLLMClient(cfg config.LLMConfig, logger *zap.Logger) (answer.Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Provider {
	case config.ProviderOllama:
		return answer.NewOllamaClient(process.NewExecRunner(0), cfg.Command, cfg.Model, timeout, logger), nil
	case config.ProviderOpenAI:
		c, err := answer.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, nil
}

// Start loads the snapshot when auto_load is set and starts the watcher when
// enabled. A missing snapshot is logged and ignored.
func (a *App) Start(ctx context.Context) error {
	if a.Config.ANN.AutoLoad {
		path := a.Config.ANN.PersistPath
		if err := a.Index.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				a.Logger.Info("No index snapshot to load", zap.String("path", path))
			} else {
				a.Logger.Warn("Index snapshot not loaded; rebuild from the store",
					zap.String("path", path), zap.Error(err))
			}
		}
	}
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}
	return nil
}

// Close stops background work, persists the index when auto_persist is set
// and it holds at least min_persist_size entries, then closes every component.
func (a *App) Close() error {
	var err error
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.Jobs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		err = multierr.Append(err, a.Jobs.Stop(ctx))
		cancel()
	}
	if a.Index != nil && a.Config.ANN.AutoPersist {
		if size := a.Index.Size(); size >= a.Config.ANN.MinPersistSize {
			err = multierr.Append(err, a.Index.Persist(a.Config.ANN.PersistPath))
		} else {
			a.Logger.Info("Skipping index persist below minimum size",
				zap.Int("size", size), zap.Int("min_persist_size", a.Config.ANN.MinPersistSize))
		}
	}
	return multierr.Append(err, a.closeComponents())
}

func (a *App) closeComponents() error {
	var err error
	if a.Keywords != nil {
		err = multierr.Append(err, a.Keywords.Close())
	}
	if a.Embedder != nil {
		err = multierr.Append(err, a.Embedder.Close())
	}
	if a.Store != nil {
		err = multierr.Append(err, a.Store.Close())
	}
	return err
}

// SnapshotPath returns path, or the configured persist path when path is empty.
func (a *App) SnapshotPath(path string) string {
	if path == "" {
		return a.Config.ANN.PersistPath
	}
	return path
}

// Persist writes the index snapshot and returns the path written.
func (a *App) Persist(path string) (string, error) {
	path = a.SnapshotPath(path)
	return path, a.Index.Persist(path)
}

// Load replaces the index with the snapshot and returns the path read.
func (a *App) Load(path string) (string, error) {
	path = a.SnapshotPath(path)
	return path, a.Index.Load(path)
}

// ScanAll indexes every file under the root synchronously and returns the
// number of files processed. Per-file failures are logged.
func (a *App) ScanAll(ctx context.Context) (int, error) {
	files, err := a.Scanner.ListFiles()
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}
	processed := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := a.Pipeline.ProcessFile(ctx, rel); err != nil {
			a.Logger.Warn("Failed to index file", zap.String("path", rel), zap.Error(err))
		}
		processed++
	}
	a.invalidateVocabulary()
	return processed, nil
}

// RebuildAll scans the root, rebuilds the index from the store and persists it.
// A scan failure is logged; rebuild and persist failures are returned.
func (a *App) RebuildAll(ctx context.Context) (*vector.RebuildStats, error) {
	a.Logger.Info("Full rebuild started")
	if n, err := a.ScanAll(ctx); err != nil {
		a.Logger.Error("Scan failed", zap.Error(err))
	} else {
		a.Logger.Info("Scan completed", zap.Int("files", n))
	}
	stats, err := a.Index.RebuildFromStore(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := a.Persist(""); err != nil {
		return stats, err
	}
	a.Logger.Info("Full rebuild finished", zap.Int("size", a.Index.Size()))
	return stats, nil
}

// InsertSample upserts a timestamped sample chunk for the configured
// application and returns the number of stored records.
func (a *App) InsertSample(ctx context.Context) (int64, error) {
	content := fmt.Sprintf("// sample code snippet created at %d", time.Now().UnixMilli())
	if err := a.Pipeline.UpsertContent(ctx, a.Scanner.ApplicationID(), SamplePath, content); err != nil {
		return 0, err
	}
	a.invalidateVocabulary()
	return a.Store.Count(ctx)
}

// DiskUsage returns the bytes used by the store, keyword index and snapshot.
func (a *App) DiskUsage() (int64, error) {
	paths := []string{a.Config.Storage.DatabasePath, a.Config.ANN.PersistPath}
	if a.Keywords != nil {
		paths = append(paths, a.Config.Keyword.IndexPath)
	}
	return storage.DiskUsageBytes(paths...)
}

func (a *App) onScanFinished(st jobs.Status) {
	a.invalidateVocabulary()
	if !a.Config.Scanner.RebuildAfterScan || st.Cancelled {
		return
	}
	ctx := context.Background()
	if _, err := a.Index.RebuildFromStore(ctx); err != nil {
		a.Logger.Error("Rebuild after scan failed", zap.Error(err))
		return
	}
	if _, err := a.Persist(""); err != nil {
		a.Logger.Error("Persist after scan failed", zap.Error(err))
	}
}

func (a *App) invalidateVocabulary() {
	if a.Spell != nil {
		a.Spell.Invalidate()
	}
}
