// Package vector provides the in-memory ANN index over chunk embeddings.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrUnavailableDependency is returned by RebuildFromStore when no record store is configured.
	ErrUnavailableDependency = errors.New("record store not available")
	// ErrMalformedPayload marks a vector payload or snapshot that cannot be decoded.
	ErrMalformedPayload = errors.New("malformed vector payload")
	// ErrDimensionMismatch is returned by Add when the vector length differs from the bound dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyVector is returned by Add for a nil or zero-length vector.
	ErrEmptyVector = errors.New("empty vector")
	// ErrCapacityExceeded is returned when an insert would exceed MaxItems.
	ErrCapacityExceeded = errors.New("index capacity exceeded")
	// ErrIO wraps file access failures during Persist and Load.
	ErrIO = errors.New("index file access failed")
)

// AnnIndex is the contract shared by every search strategy.
type AnnIndex interface {
	Add(ctx context.Context, id string, vec []float32) error
	// Remove deletes id if present. A missing id is not an error.
	Remove(ctx context.Context, id string) error
	// Query returns up to k hits by descending cosine similarity. Ties are ordered by id.
	Query(ctx context.Context, vec []float32, k int) ([]*VectorResult, error)
	// RebuildFromStore replaces the contents with every decodable vector in the record store.
	RebuildFromStore(ctx context.Context) (*RebuildStats, error)
	Size() int
	// Dimensions returns the bound dimension, or 0 while unbound.
	Dimensions() int
	Persist(path string) error
	Load(path string) error
	Params() Params
	// Reconfigure rebuilds the search structure with p, preserving all entries.
	Reconfigure(ctx context.Context, p Params) error
	Stats() Stats
}

// VectorResult is a single vector search hit (ID is a chunk record id).
type VectorResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"` // cosine similarity in [-1, 1]
}

// RebuildStats reports what a rebuild read from the store.
type RebuildStats struct {
	Pages   int `json:"pages"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// Stats is a point-in-time summary used by status and health reporting.
type Stats struct {
	Strategy   string `json:"strategy"`
	Size       int    `json:"size"`
	Dimensions int    `json:"dimensions"`
	Bound      bool   `json:"bound"`
	Params     Params `json:"params"`
}
