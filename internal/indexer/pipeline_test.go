package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/codeindex/internal/embedding"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/storage"
	"github.com/hyperjump/codeindex/internal/vector"
)

type countingEmbedder struct {
	next  embedding.Embedder
	calls atomic.Int32
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("embedder down")
	}
	return c.next.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.next.Dimensions() }
func (c *countingEmbedder) Close() error    { return nil }

type recordingKeywords struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingKeywords) IndexChunk(ctx context.Context, rec *models.ChunkRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, rec.ID)
	return r.err
}

type failingSink struct{}

func (failingSink) Add(ctx context.Context, id string, vec []float32) error {
	return errors.New("index full")
}

func newTestPipeline(t *testing.T, driver string, files map[string]string, opts ...PipelineOption) (*Pipeline, storage.RecordStore, *vector.Index, *countingEmbedder) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "shop")
	writeTree(t, root, files)
	store, err := storage.Open(driver, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	idx, err := vector.New("exact")
	require.NoError(t, err)
	emb := &countingEmbedder{next: embedding.NewHashEmbedder(16)}
	p := NewPipeline(NewScanner(root, "", nil), store, emb, idx, opts...)
	return p, store, idx, emb
}

func TestPipeline_UpsertIsIdempotent(t *testing.T) {
	for _, driver := range []string{storage.DriverSQLite, storage.DriverBolt} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			p, store, idx, emb := newTestPipeline(t, driver, nil)

			require.NoError(t, p.Upsert(ctx, "shop", "a.go", "package a", 0, 0, 9))
			assert.Equal(t, int32(1), emb.calls.Load())
			require.NoError(t, p.Upsert(ctx, "shop", "a.go", "package a", 0, 0, 9))
			assert.Equal(t, int32(1), emb.calls.Load(), "unchanged chunk must not be embedded again")

			rec, err := store.Get(ctx, "shop:a.go:0")
			require.NoError(t, err)
			assert.Equal(t, "package a", rec.Content)
			assert.Equal(t, "shop", rec.ApplicationID)
			assert.NotEmpty(t, rec.VectorBlob)
			assert.NotEmpty(t, rec.VectorJSON)
			assert.Equal(t, 1, idx.Size())

			require.NoError(t, p.Upsert(ctx, "shop", "a.go", "package a // changed", 0, 0, 20))
			assert.Equal(t, int32(2), emb.calls.Load())
			rec, err = store.Get(ctx, "shop:a.go:0")
			require.NoError(t, err)
			assert.Equal(t, "package a // changed", rec.Content)
			assert.Equal(t, 1, idx.Size())
		})
	}
}

func TestPipeline_UpsertRefreshesCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1700000000000)
	p, store, _, _ := newTestPipeline(t, storage.DriverSQLite, nil, WithClock(func() time.Time { return now }))

	require.NoError(t, p.Upsert(ctx, "shop", "a.go", "v1", 0, 0, 2))
	now = now.Add(time.Minute)
	require.NoError(t, p.Upsert(ctx, "shop", "a.go", "v2", 0, 0, 2))

	rec, err := store.Get(ctx, "shop:a.go:0")
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), rec.CreatedAt)
}

func TestPipeline_UpsertWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	p, store, idx, emb := newTestPipeline(t, storage.DriverSQLite, nil)
	emb.fail = true

	err := p.Upsert(ctx, "shop", "a.go", "package a", 0, 0, 9)
	require.ErrorIs(t, err, ErrNoEmbedding)
	_, err = store.Get(ctx, "shop:a.go:0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, idx.Size())
}

func TestPipeline_IndexPushesAreBestEffort(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := storage.Open(storage.DriverBolt, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer store.Close()
	kw := &recordingKeywords{err: errors.New("bleve closed")}
	p := NewPipeline(NewScanner(root, "", nil), store, embedding.NewHashEmbedder(8), failingSink{}, WithKeywordIndex(kw))

	require.NoError(t, p.Upsert(ctx, "app", "x.go", "package x", 0, 0, 9))
	_, err = store.Get(ctx, "app:x.go:0")
	require.NoError(t, err)
	assert.Equal(t, []string{"app:x.go:0"}, kw.ids)
}

func TestPipeline_UpsertContent(t *testing.T) {
	ctx := context.Background()
	p, store, _, _ := newTestPipeline(t, storage.DriverSQLite, nil)
	require.NoError(t, p.UpsertContent(ctx, "shop", "sample.md", "héllo wörld"))

	rec, err := store.Get(ctx, "shop:sample.md:0")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.StartOffset)
	assert.Equal(t, 11, rec.EndOffset)
}

func TestPipeline_IndexFile(t *testing.T) {
	ctx := context.Background()
	content := make([]byte, 1000)
	for i := range content {
		content[i] = 'a' + byte(i%26)
	}
	p, store, idx, emb := newTestPipeline(t, storage.DriverSQLite, map[string]string{
		"src/big.java": string(content),
	}, WithChunker(NewChunker(800, 200)))

	n, err := p.IndexFile(ctx, "src/big.java")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Size())

	first, err := store.Get(ctx, "shop:src/big.java:0")
	require.NoError(t, err)
	assert.Equal(t, 0, first.StartOffset)
	assert.Equal(t, 800, first.EndOffset)
	second, err := store.Get(ctx, "shop:src/big.java:1")
	require.NoError(t, err)
	assert.Equal(t, 600, second.StartOffset)
	assert.Equal(t, 1000, second.EndOffset)

	n, err = p.IndexFile(ctx, "src/big.java")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int32(2), emb.calls.Load())
}

func TestPipeline_IndexFileErrors(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline(t, storage.DriverSQLite, map[string]string{"a.go": "package a"})

	_, err := p.IndexFile(ctx, "../escape.go")
	assert.Error(t, err)
	_, err = p.IndexFile(ctx, "missing.go")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	n, err := p.IndexFile(cancelled, "a.go")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestPipeline_IndexFileOffsetsPointIntoSource(t *testing.T) {
	ctx := context.Background()
	raw := "héllo\r\nwörld\r\nfunc main() {}\r\n"
	p, store, _, _ := newTestPipeline(t, storage.DriverSQLite, map[string]string{"win.go": raw},
		WithChunker(NewChunker(8, 2)))

	n, err := p.IndexFile(ctx, "win.go")
	require.NoError(t, err)
	require.Greater(t, n, 1)

	runes := []rune(raw)
	for i := 0; i < n; i++ {
		rec, err := store.Get(ctx, fmt.Sprintf("shop:win.go:%d", i))
		require.NoError(t, err)
		assert.Equal(t, string(runes[rec.StartOffset:rec.EndOffset]), rec.Content, "chunk %d", i)
	}
	last, err := store.Get(ctx, fmt.Sprintf("shop:win.go:%d", n-1))
	require.NoError(t, err)
	assert.Equal(t, len(runes), last.EndOffset)
	assert.Contains(t, last.Content, "\r\n")
}
