package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/codeindex/internal/models"
)

const recordColumns = `id, application_id, COALESCE(path, ''), COALESCE(chunk_index, 0),
	COALESCE(start_offset, 0), COALESCE(end_offset, 0), COALESCE(content, ''), vector_blob,
	COALESCE(vector, ''), COALESCE(checksum, ''), COALESCE(metadata, ''), created_at`

// SQLiteStore implements RecordStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		path TEXT,
		chunk_index INTEGER,
		start_offset INTEGER,
		end_offset INTEGER,
		content TEXT,
		vector_blob BLOB,
		vector TEXT,
		checksum TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_app ON vectors(application_id);
	`
	_, err := db.Exec(schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ChunkRecord, error) {
	var rec models.ChunkRecord
	if err := row.Scan(&rec.ID, &rec.ApplicationID, &rec.Path, &rec.ChunkIndex,
		&rec.StartOffset, &rec.EndOffset, &rec.Content, &rec.VectorBlob,
		&rec.VectorJSON, &rec.Checksum, &rec.Metadata, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM vectors WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put inserts a record or replaces the record with the same id.
func (s *SQLiteStore) Put(ctx context.Context, rec *models.ChunkRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vectors (id, application_id, path, chunk_index, start_offset, end_offset,
			content, vector_blob, vector, checksum, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			application_id = excluded.application_id,
			path = excluded.path,
			chunk_index = excluded.chunk_index,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			content = excluded.content,
			vector_blob = excluded.vector_blob,
			vector = excluded.vector,
			checksum = excluded.checksum,
			metadata = excluded.metadata,
			created_at = excluded.created_at`,
		rec.ID, rec.ApplicationID, rec.Path, rec.ChunkIndex, rec.StartOffset, rec.EndOffset,
		rec.Content, rec.VectorBlob, rec.VectorJSON, rec.Checksum, rec.Metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return nil
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&count)
	return count, err
}

// ScanPage returns records ordered by id. One extra row is fetched to compute HasNext.
func (s *SQLiteStore) ScanPage(ctx context.Context, page, size int) (*Page, error) {
	if err := checkPage(page, size); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM vectors ORDER BY id LIMIT ? OFFSET ?`,
		size+1, page*size,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &Page{Index: page}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out.Records) > size {
		out.Records = out.Records[:size]
		out.HasNext = true
	}
	return out, nil
}

// ScanByOwner returns every record of owner ordered by path and chunk index.
func (s *SQLiteStore) ScanByOwner(ctx context.Context, owner string) ([]*models.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM vectors WHERE application_id = ? ORDER BY path, chunk_index`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.ChunkRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
