// Package embedding turns text into vectors.
package embedding

import (
	"context"

	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions reports the vector length, or 0 until the first vector is seen.
	Dimensions() int
	Close() error
}

// Try embeds text and returns nil instead of an error. Failures and empty
// vectors are logged at warn.
func Try(ctx context.Context, e Embedder, text string, logger *zap.Logger) []float32 {
	if e == nil {
		return nil
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		if logger != nil {
			logger.Warn("Embedding failed", zap.Error(err), zap.Int("text_len", len(text)))
		}
		return nil
	}
	if len(vec) == 0 {
		if logger != nil {
			logger.Warn("Embedder returned an empty vector", zap.Int("text_len", len(text)))
		}
		return nil
	}
	return vec
}
