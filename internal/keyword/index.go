// Package keyword provides full-text search over chunk records.
package keyword

import (
	"context"

	"github.com/hyperjump/codeindex/internal/models"
)

// SearchOptions tunes keyword search. Nil means defaults.
type SearchOptions struct {
	// PathBoost multiplies the score contribution of matches in the file path.
	// Values > 1 rank path matches higher. Use 1.0 for no boost.
	PathBoost float64
	// PhraseBoost multiplies the score when the query terms appear as a phrase.
	PhraseBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default 2.
	Fuzziness int
}

// Index defines keyword indexing and search over chunks.
type Index interface {
	IndexChunk(ctx context.Context, rec *models.ChunkRecord) error
	// Search returns up to limit hits. A non-empty owner restricts hits to that application.
	Search(ctx context.Context, owner, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword hit; ID is the chunk record id.
type Result struct {
	ID    string
	Score float64
}

// TermDictionary provides the index vocabulary for spell checking.
type TermDictionary interface {
	GetAllTerms() ([]string, error)
	GetTermFrequency(term string) (int, error)
}
