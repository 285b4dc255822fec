package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/codeindex/internal/keyword"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/storage"
	"github.com/hyperjump/codeindex/internal/vector"
)

// tableEmbedder returns fixed vectors and fails for unknown text.
type tableEmbedder map[string][]float32

func (t tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := t[text]; ok {
		return v, nil
	}
	return nil, errors.New("embedder offline")
}

func (t tableEmbedder) Dimensions() int { return 3 }
func (t tableEmbedder) Close() error    { return nil }

type fixture struct {
	store    storage.RecordStore
	index    *vector.Index
	keywords *keyword.BleveIndex
}

func newFixture(t *testing.T, chunks []struct {
	owner, path, content string
	vec                  []float32
}) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	idx, err := vector.New("exact")
	require.NoError(t, err)
	kw, err := keyword.NewMemoryBleveIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	for _, c := range chunks {
		blob, err := storage.EncodeVectorBlob(c.vec)
		require.NoError(t, err)
		rec := &models.ChunkRecord{
			ID:            c.owner + ":" + c.path + ":0",
			ApplicationID: c.owner,
			Path:          c.path,
			Content:       c.content,
			VectorBlob:    blob,
		}
		require.NoError(t, store.Put(ctx, rec))
		require.NoError(t, idx.Add(ctx, rec.ID, c.vec))
		require.NoError(t, kw.IndexChunk(ctx, rec))
	}
	return &fixture{store: store, index: idx, keywords: kw}
}

var corpus = []struct {
	owner, path, content string
	vec                  []float32
}{
	{"shop", "cart.go", "func Checkout(cart Cart) error", []float32{1, 0, 0}},
	{"shop", "user.go", "type User struct { Email string }", []float32{0, 1, 0}},
	{"shop", "order.go", "func PlaceOrder(cart Cart) Order", []float32{0.9, 0.1, 0}},
	{"blog", "post.go", "func Checkout(post Post)", []float32{1, 0, 0}},
}

func TestEngine_TopKSemantic(t *testing.T) {
	f := newFixture(t, corpus)
	e := NewEngine(f.store, tableEmbedder{"how does checkout work": {1, 0, 0}}, f.index)

	snippets, err := e.TopK(context.Background(), "shop", "how does checkout work", 2)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "cart.go", snippets[0].Path)
	assert.Equal(t, "order.go", snippets[1].Path)
	assert.Equal(t, SourceSemantic, snippets[0].Source)
	assert.InDelta(t, 1.0, snippets[0].Score, 1e-6)
	for _, s := range snippets {
		assert.NotContains(t, s.ID, "blog:")
	}
}

func TestEngine_TopKEmptyIndexScansOwner(t *testing.T) {
	f := newFixture(t, corpus)
	empty, err := vector.New("hnsw")
	require.NoError(t, err)
	e := NewEngine(f.store, tableEmbedder{"user email": {0, 1, 0}}, empty)

	snippets, err := e.TopK(context.Background(), "shop", "user email", 1)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "user.go", snippets[0].Path)
	assert.Equal(t, SourceScan, snippets[0].Source)

	snippets, err = NewEngine(f.store, tableEmbedder{"q": {1, 0, 0}}, nil).TopK(context.Background(), "blog", "q", 5)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "post.go", snippets[0].Path)
}

func TestEngine_TopKOtherOwnersOnlyFallsBackToScan(t *testing.T) {
	f := newFixture(t, corpus)
	// index holds only blog vectors; shop records exist only in the store
	idx, err := vector.New("exact")
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), "blog:post.go:0", []float32{1, 0, 0}))
	e := NewEngine(f.store, tableEmbedder{"checkout": {1, 0, 0}}, idx, WithOverfetch(1))

	snippets, err := e.TopK(context.Background(), "shop", "checkout", 1)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "cart.go", snippets[0].Path)
	assert.Equal(t, SourceScan, snippets[0].Source)
}

func TestEngine_TopKKeywordFallback(t *testing.T) {
	f := newFixture(t, corpus)
	e := NewEngine(f.store, tableEmbedder{}, f.index, WithKeywordIndex(f.keywords, nil))

	snippets, err := e.TopK(context.Background(), "shop", "Email", 3)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "user.go", snippets[0].Path)
	assert.Equal(t, SourceKeyword, snippets[0].Source)

	snippets, err = e.TopK(context.Background(), "blog", "Email", 3)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestEngine_TopKKeywordSpellCorrection(t *testing.T) {
	f := newFixture(t, corpus)
	e := NewEngine(f.store, tableEmbedder{}, f.index,
		WithKeywordIndex(f.keywords, nil),
		WithSpellChecker(keyword.NewSpellChecker(f.keywords)))

	snippets, err := e.TopK(context.Background(), "shop", "emial", 3)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "user.go", snippets[0].Path)
}

func TestEngine_TopKNoEmbeddingNoKeywords(t *testing.T) {
	f := newFixture(t, corpus)
	snippets, err := NewEngine(f.store, tableEmbedder{}, f.index).TopK(context.Background(), "shop", "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestEngine_TopKHybrid(t *testing.T) {
	f := newFixture(t, corpus)
	// the vector points at cart.go, the keywords only match order.go
	e := NewEngine(f.store, tableEmbedder{"PlaceOrder": {1, 0, 0}}, f.index,
		WithKeywordIndex(f.keywords, nil),
		WithHybrid(0.3, 0.7))

	snippets, err := e.TopK(context.Background(), "shop", "PlaceOrder", 3)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Equal(t, "order.go", snippets[0].Path)
	assert.Equal(t, SourceHybrid, snippets[0].Source)
}

func TestEngine_TopKInvalidInput(t *testing.T) {
	f := newFixture(t, corpus)
	e := NewEngine(f.store, tableEmbedder{"q": {1, 0, 0}}, f.index)
	got, err := e.TopK(context.Background(), "shop", "q", 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = e.TopK(context.Background(), "shop", "", 3)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEngine_Retrieve(t *testing.T) {
	f := newFixture(t, corpus)
	e := NewEngine(f.store, tableEmbedder{}, f.index)
	resp, err := e.Retrieve(context.Background(), "shop", "nothing", 3)
	require.NoError(t, err)
	assert.Equal(t, "nothing", resp.Question)
	assert.NotNil(t, resp.Snippets)
	assert.Empty(t, resp.Snippets)
}
