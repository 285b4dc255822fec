package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/embedding"
	"github.com/hyperjump/codeindex/internal/extract"
	"github.com/hyperjump/codeindex/internal/fileid"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/storage"
	"github.com/hyperjump/codeindex/pkg/utils"
)

// ErrNoEmbedding is returned by Upsert when no vector could be produced for a chunk.
var ErrNoEmbedding = errors.New("no embedding available")

// RecordStore is the subset of storage.RecordStore the pipeline writes to.
type RecordStore interface {
	Get(ctx context.Context, id string) (*models.ChunkRecord, error)
	Put(ctx context.Context, rec *models.ChunkRecord) error
}

// VectorSink receives embeddings for the in-memory index.
type VectorSink interface {
	Add(ctx context.Context, id string, vec []float32) error
}

// KeywordSink receives chunk records for full-text search.
type KeywordSink interface {
	IndexChunk(ctx context.Context, rec *models.ChunkRecord) error
}

// Pipeline chunks files, embeds changed chunks and writes them to the store,
// the vector index and the keyword index.
type Pipeline struct {
	scanner   *Scanner
	store     RecordStore
	embedder  embedding.Embedder
	vectors   VectorSink
	keywords  KeywordSink
	chunker   *Chunker
	extractor *extract.Extractor
	now       func() time.Time
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithKeywordIndex adds a keyword sink that receives every written chunk.
func WithKeywordIndex(k KeywordSink) PipelineOption {
	return func(p *Pipeline) { p.keywords = k }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) PipelineOption {
	return func(p *Pipeline) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithChunker replaces the default 800/200 chunker.
func WithChunker(c *Chunker) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline creates a pipeline. vectors may be nil when no in-memory index is kept.
func NewPipeline(scanner *Scanner, store RecordStore, embedder embedding.Embedder, vectors VectorSink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		scanner:   scanner,
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		chunker:   NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		extractor: extract.NewExtractor(0),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scanner returns the scanner the pipeline reads files through.
func (p *Pipeline) Scanner() *Scanner { return p.scanner }

// Upsert stores one chunk. A chunk whose checksum matches the stored record is
// left alone and the embedder is not called.
func (p *Pipeline) Upsert(ctx context.Context, owner, path, text string, chunkIndex, start, end int) error {
	_, err := p.upsert(ctx, owner, path, text, chunkIndex, start, end)
	return err
}

// UpsertContent stores content as a single chunk with index 0.
func (p *Pipeline) UpsertContent(ctx context.Context, owner, path, content string) error {
	return p.Upsert(ctx, owner, path, content, 0, 0, utils.RuneLen(content))
}

func (p *Pipeline) upsert(ctx context.Context, owner, path, text string, chunkIndex, start, end int) (bool, error) {
	id := fileid.ChunkID(owner, path, chunkIndex)
	checksum := fileid.Checksum(text)

	existing, err := p.store.Get(ctx, id)
	switch {
	case err == nil:
		if existing.Checksum == checksum {
			p.logger.Debug("Chunk unchanged", zap.String("id", id))
			return false, nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return false, fmt.Errorf("lookup %s: %w", id, err)
	}

	vec := embedding.Try(ctx, p.embedder, text, p.logger)
	if vec == nil {
		p.logger.Warn("Skipping chunk without embedding", zap.String("id", id))
		return false, fmt.Errorf("%w: %s", ErrNoEmbedding, id)
	}
	blob, err := storage.EncodeVectorBlob(vec)
	if err != nil {
		return false, fmt.Errorf("encode vector for %s: %w", id, err)
	}
	vecJSON, err := storage.EncodeVectorJSON(vec)
	if err != nil {
		return false, fmt.Errorf("encode vector for %s: %w", id, err)
	}
	rec := &models.ChunkRecord{
		ID:            id,
		ApplicationID: owner,
		Path:          path,
		ChunkIndex:    chunkIndex,
		StartOffset:   start,
		EndOffset:     end,
		Content:       text,
		VectorBlob:    blob,
		VectorJSON:    vecJSON,
		Checksum:      checksum,
		CreatedAt:     p.now().UnixMilli(),
	}
	if err := p.store.Put(ctx, rec); err != nil {
		return false, fmt.Errorf("store %s: %w", id, err)
	}

	if p.vectors != nil {
		if err := p.vectors.Add(ctx, id, vec); err != nil {
			p.logger.Warn("Vector index update failed", zap.String("id", id), zap.Error(err))
		}
	}
	if p.keywords != nil {
		if err := p.keywords.IndexChunk(ctx, rec); err != nil {
			p.logger.Warn("Keyword index update failed", zap.String("id", id), zap.Error(err))
		}
	}
	return true, nil
}

// IndexFile extracts, chunks and upserts the file at rel (relative to the
// scanner root). It returns the number of chunks written; unchanged chunks are
// not counted and a failing chunk does not stop the rest of the file.
func (p *Pipeline) IndexFile(ctx context.Context, rel string) (int, error) {
	if p.scanner == nil {
		return 0, fmt.Errorf("pipeline has no scanner")
	}
	abs, err := p.scanner.Resolve(rel)
	if err != nil {
		return 0, err
	}
	text, err := p.extractor.Extract(abs)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", rel, err)
	}
	owner := p.scanner.ApplicationID()
	chunks := p.chunker.Split(text)

	written := 0
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		ok, err := p.upsert(ctx, owner, rel, c.Text, c.Index, c.Start, c.End)
		if err != nil {
			p.logger.Warn("Chunk upsert failed",
				zap.String("path", rel),
				zap.Int("chunk", c.Index),
				zap.Error(err))
			continue
		}
		if ok {
			written++
		}
	}
	p.logger.Debug("File indexed",
		zap.String("path", rel),
		zap.Int("chunks", len(chunks)),
		zap.Int("written", written))
	return written, nil
}

// ProcessFile indexes rel and discards the chunk count.
func (p *Pipeline) ProcessFile(ctx context.Context, rel string) error {
	_, err := p.IndexFile(ctx, rel)
	return err
}
