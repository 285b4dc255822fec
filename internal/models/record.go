// Package models defines core data structures for chunk records, queries, and retrieval results.
package models

import "time"

// DefaultApplicationID is the owner id used when none is configured.
const DefaultApplicationID = "default-app"

// ChunkRecord is a stored chunk of a source file together with its embedding.
// ID has the form owner:path:chunk_index.
type ChunkRecord struct {
	ID            string `json:"id" db:"id"`
	ApplicationID string `json:"application_id" db:"application_id"`
	Path          string `json:"path" db:"path"`
	ChunkIndex    int    `json:"chunk_index" db:"chunk_index"`
	StartOffset   int    `json:"start_offset" db:"start_offset"`
	EndOffset     int    `json:"end_offset" db:"end_offset"`
	Content       string `json:"content" db:"content"`
	// VectorBlob is the gzip-compressed binary encoding of the embedding.
	VectorBlob []byte `json:"-" db:"vector_blob"`
	// VectorJSON is the human-readable encoding of the embedding.
	VectorJSON string `json:"vector_json,omitempty" db:"vector_json"`
	Checksum   string `json:"checksum" db:"checksum"`
	Metadata   string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  int64  `json:"created_at" db:"created_at"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (r *ChunkRecord) CreatedTime() time.Time {
	return time.UnixMilli(r.CreatedAt)
}
