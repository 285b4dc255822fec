package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hyperjump/codeindex/internal/models"
)

var bucketVectors = []byte("vectors")

// boltRecord is the JSON value stored per key; it carries the blob that
// models.ChunkRecord hides from JSON.
type boltRecord struct {
	models.ChunkRecord
	Blob []byte `json:"vector_blob,omitempty"`
}

// BoltStore implements RecordStore on a single bbolt file. Keys are record ids,
// so cursor order is id order.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func decodeBolt(data []byte) (*models.ChunkRecord, error) {
	var br boltRecord
	if err := json.Unmarshal(data, &br); err != nil {
		return nil, err
	}
	rec := br.ChunkRecord
	rec.VectorBlob = br.Blob
	return &rec, nil
}

// Get returns a record by id.
func (s *BoltStore) Get(ctx context.Context, id string) (*models.ChunkRecord, error) {
	var rec *models.ChunkRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketVectors).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var err error
		rec, err = decodeBolt(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put inserts or replaces a record.
func (s *BoltStore) Put(ctx context.Context, rec *models.ChunkRecord) error {
	data, err := json.Marshal(boltRecord{ChunkRecord: *rec, Blob: rec.VectorBlob})
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Put([]byte(rec.ID), data)
	})
}

// Count returns the number of keys in the vectors bucket.
func (s *BoltStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = int64(tx.Bucket(bucketVectors).Stats().KeyN)
		return nil
	})
	return n, err
}

// ScanPage walks the cursor past page*size keys and collects up to size records.
func (s *BoltStore) ScanPage(ctx context.Context, page, size int) (*Page, error) {
	if err := checkPage(page, size); err != nil {
		return nil, err
	}
	out := &Page{Index: page}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketVectors).Cursor()
		skip := page * size
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if skip > 0 {
				skip--
				continue
			}
			if len(out.Records) == size {
				out.HasNext = true
				return nil
			}
			rec, err := decodeBolt(v)
			if err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			out.Records = append(out.Records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScanByOwner seeks to the owner's key prefix. Ids start with "owner:".
func (s *BoltStore) ScanByOwner(ctx context.Context, owner string) ([]*models.ChunkRecord, error) {
	prefix := []byte(owner + ":")
	var recs []*models.ChunkRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketVectors).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := decodeBolt(v)
			if err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			if rec.ApplicationID == owner {
				recs = append(recs, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Path != recs[j].Path {
			return recs[i].Path < recs[j].Path
		}
		return recs[i].ChunkIndex < recs[j].ChunkIndex
	})
	return recs, nil
}

// Close closes the bolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
