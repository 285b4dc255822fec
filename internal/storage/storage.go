// Package storage defines the durable record store for chunk records and their vectors.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/codeindex/internal/models"
)

var (
	// ErrNotFound is returned by Get when no record has the given id.
	ErrNotFound = errors.New("record not found")
	// ErrMalformedPayload is returned when a record's vector payload cannot be decoded.
	ErrMalformedPayload = errors.New("malformed vector payload")
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Page is one page of a full scan ordered by record id.
type Page struct {
	Index   int
	Records []*models.ChunkRecord
	HasNext bool
}

// RecordStore is keyed storage of chunk records.
type RecordStore interface {
	// Get returns the record with id or ErrNotFound.
	Get(ctx context.Context, id string) (*models.ChunkRecord, error)
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec *models.ChunkRecord) error
	Count(ctx context.Context) (int64, error)
	// ScanPage returns page number page (0-based) of at most size records.
	ScanPage(ctx context.Context, page, size int) (*Page, error)
	// ScanByOwner returns every record of one application id.
	ScanByOwner(ctx context.Context, owner string) ([]*models.ChunkRecord, error)
	Close() error
}

// Open opens a record store using the named driver. An empty driver means sqlite.
func Open(driver, path string) (RecordStore, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteStore(path)
	case DriverBolt:
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: sqlite, bolt)", driver)
	}
}

func checkPage(page, size int) error {
	if page < 0 {
		return fmt.Errorf("page must be non-negative, got %d", page)
	}
	if size <= 0 {
		return fmt.Errorf("page size must be positive, got %d", size)
	}
	return nil
}
