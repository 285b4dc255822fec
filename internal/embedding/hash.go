package embedding

import (
	"context"
	"unicode/utf16"
)

// DefaultHashDimensions is the vector length of a HashEmbedder built with 0.
const DefaultHashDimensions = 64

// HashEmbedder derives a deterministic pseudo-vector from the text hash. The
// same text always gets the same vector; it carries no semantics and is meant
// for tests and offline use.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns an embedder producing vectors of the given length.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns values in [-1, 1) derived from a rolling 32-bit hash.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		h = 31*h + int32(i)
		emb[i] = float32(h%1000-500) / 500
	}
	return emb, nil
}

// Dimensions returns the configured vector length.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}

// HashString is the 31-multiplier polynomial hash over UTF-16 code units,
// wrapping at 32 bits.
func HashString(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}
