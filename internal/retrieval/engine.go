// Package retrieval finds the chunks most relevant to a question.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/embedding"
	"github.com/hyperjump/codeindex/internal/keyword"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/storage"
	"github.com/hyperjump/codeindex/internal/vector"
)

// Snippet sources.
const (
	SourceSemantic = "semantic"
	SourceKeyword  = "keyword"
	SourceHybrid   = "hybrid"
	SourceScan     = "scan"
)

// RecordReader is the subset of storage.RecordStore retrieval reads from.
type RecordReader interface {
	Get(ctx context.Context, id string) (*models.ChunkRecord, error)
	ScanByOwner(ctx context.Context, owner string) ([]*models.ChunkRecord, error)
}

// VectorSearcher is the subset of vector.AnnIndex retrieval queries.
type VectorSearcher interface {
	Query(ctx context.Context, vec []float32, k int) ([]*vector.VectorResult, error)
	Size() int
}

// KeywordSearcher is the subset of keyword.Index retrieval queries.
type KeywordSearcher interface {
	Search(ctx context.Context, owner, query string, limit int, opts *keyword.SearchOptions) ([]*keyword.Result, error)
}

// Engine answers top-K snippet queries for one owner at a time.
type Engine struct {
	store          RecordReader
	embedder       embedding.Embedder
	index          VectorSearcher
	keywords       KeywordSearcher
	keywordOpts    *keyword.SearchOptions
	spell          *keyword.SpellChecker
	hybrid         bool
	semanticWeight float64
	keywordWeight  float64
	overfetch      int
	logger         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithKeywordIndex enables keyword search, used when the question cannot be embedded.
func WithKeywordIndex(k KeywordSearcher, opts *keyword.SearchOptions) Option {
	return func(e *Engine) {
		e.keywords = k
		e.keywordOpts = opts
	}
}

// WithSpellChecker retries a keyword search that found nothing with a corrected query.
func WithSpellChecker(s *keyword.SpellChecker) Option {
	return func(e *Engine) { e.spell = s }
}

// WithHybrid fuses keyword and semantic scores with the given weights.
func WithHybrid(semanticWeight, keywordWeight float64) Option {
	return func(e *Engine) {
		if semanticWeight < 0 || keywordWeight < 0 || semanticWeight+keywordWeight == 0 {
			return
		}
		e.hybrid = true
		e.semanticWeight = semanticWeight
		e.keywordWeight = keywordWeight
	}
}

// WithOverfetch sets how many index hits are requested per wanted snippet, to
// leave room for hits that belong to other owners.
func WithOverfetch(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.overfetch = n
		}
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(store RecordReader, embedder embedding.Embedder, index VectorSearcher, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		embedder:  embedder,
		index:     index,
		overfetch: 4,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve wraps TopK with timing for API responses.
func (e *Engine) Retrieve(ctx context.Context, owner, question string, k int) (*models.RetrieveResponse, error) {
	start := time.Now()
	snippets, err := e.TopK(ctx, owner, question, k)
	if err != nil {
		return nil, err
	}
	if snippets == nil {
		snippets = []*models.CodeSnippet{}
	}
	return &models.RetrieveResponse{
		Question:  question,
		Snippets:  snippets,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// TopK returns up to k snippets of owner's chunks ranked by relevance to question.
//
// The question is embedded and searched in the vector index. An empty index
// falls back to scoring every stored chunk of the owner. When no embedding is
// available the keyword index is used instead.
func (e *Engine) TopK(ctx context.Context, owner, question string, k int) ([]*models.CodeSnippet, error) {
	if k <= 0 || question == "" {
		return nil, nil
	}
	qv := embedding.Try(ctx, e.embedder, question, e.logger)
	if qv == nil {
		e.logger.Debug("No query embedding, using keyword search", zap.String("owner", owner))
		return e.keywordTopK(ctx, owner, question, k)
	}

	var semantic []*vector.VectorResult
	source := SourceSemantic
	if e.index == nil || e.index.Size() == 0 {
		scanned, err := e.scanOwner(ctx, owner, qv, k*e.overfetch)
		if err != nil {
			return nil, err
		}
		semantic, source = scanned, SourceScan
	} else {
		hits, err := e.index.Query(ctx, qv, k*e.overfetch)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		semantic = hits
	}

	if e.hybrid && e.keywords != nil {
		kw, err := e.keywords.Search(ctx, owner, question, k*e.overfetch, e.keywordOpts)
		if err != nil {
			e.logger.Warn("Keyword search failed, using semantic results only", zap.Error(err))
		} else {
			fused := Fuse(NormalizeKeywordScores(kw), NormalizeSemanticScores(semantic), e.keywordWeight, e.semanticWeight)
			ranked := make([]*vector.VectorResult, len(fused))
			for i, f := range fused {
				ranked[i] = &vector.VectorResult{ID: f.ID, Score: f.Score}
			}
			semantic, source = ranked, SourceHybrid
		}
	}

	snippets, err := e.load(ctx, owner, semantic, k, source)
	if err != nil {
		return nil, err
	}
	if len(snippets) == 0 && source == SourceSemantic {
		// every hit belonged to another owner
		scanned, err := e.scanOwner(ctx, owner, qv, k)
		if err != nil {
			return nil, err
		}
		return e.load(ctx, owner, scanned, k, SourceScan)
	}
	return snippets, nil
}

func (e *Engine) keywordTopK(ctx context.Context, owner, question string, k int) ([]*models.CodeSnippet, error) {
	if e.keywords == nil {
		return nil, nil
	}
	hits, err := e.keywords.Search(ctx, owner, question, k, e.keywordOpts)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	if len(hits) == 0 && e.spell != nil {
		if corrected := e.spell.SuggestedQuery(question); corrected != question {
			e.logger.Debug("Retrying keyword search with corrected query", zap.String("query", corrected))
			hits, err = e.keywords.Search(ctx, owner, corrected, k, e.keywordOpts)
			if err != nil {
				return nil, fmt.Errorf("keyword search failed: %w", err)
			}
		}
	}
	ranked := make([]*vector.VectorResult, len(hits))
	for i, h := range hits {
		ranked[i] = &vector.VectorResult{ID: h.ID, Score: h.Score}
	}
	return e.load(ctx, owner, ranked, k, SourceKeyword)
}

// scanOwner scores every stored chunk of owner against qv. Records whose
// payload cannot be decoded are skipped.
func (e *Engine) scanOwner(ctx context.Context, owner string, qv []float32, k int) ([]*vector.VectorResult, error) {
	records, err := e.store.ScanByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("scan records of %s: %w", owner, err)
	}
	results := make([]*vector.VectorResult, 0, len(records))
	for _, rec := range records {
		vec, err := storage.DecodeRecordVector(rec)
		if err != nil {
			e.logger.Warn("Failed to decode vector", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		results = append(results, &vector.VectorResult{ID: rec.ID, Score: vector.Cosine(qv, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// load resolves ranked ids into snippets of owner, stopping at k. Ids that
// are missing from the store or belong to another owner are skipped.
func (e *Engine) load(ctx context.Context, owner string, ranked []*vector.VectorResult, k int, source string) ([]*models.CodeSnippet, error) {
	out := make([]*models.CodeSnippet, 0, min(k, len(ranked)))
	for _, r := range ranked {
		if len(out) == k {
			break
		}
		rec, err := e.store.Get(ctx, r.ID)
		if err != nil {
			e.logger.Debug("Skipping hit without record", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		if owner != "" && rec.ApplicationID != owner {
			continue
		}
		out = append(out, &models.CodeSnippet{
			ID:      rec.ID,
			Path:    rec.Path,
			Content: rec.Content,
			Score:   r.Score,
			Source:  source,
		})
	}
	return out, nil
}
