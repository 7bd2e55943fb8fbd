// Package sqlite persists artifact records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

// Config locates the database file.
type Config struct {
	Path string `mapstructure:"path"`
}

// RecordStore manages the records table of a SQLite database.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore opens or creates the database at cfg.Path and its schema.
func NewRecordStore(cfg Config) (*RecordStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage.sqlite.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &RecordStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			content_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			checksum TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			archived_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_archived_at ON records(archived_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// InsertRecord stores one record. archived_at is kept as Unix nanoseconds.
func (s *RecordStore) InsertRecord(ctx context.Context, r archive.ArtifactRecord) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, url, title, content_id, filename, checksum, size_bytes, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.URL, r.Title, r.ContentID, r.Filename, r.Checksum, r.SizeBytes, r.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return nil
}

// ListRecords returns up to limit records, newest first. limit <= 0 returns all.
func (s *RecordStore) ListRecords(ctx context.Context, limit int) ([]archive.ArtifactRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, content_id, filename, checksum, size_bytes, archived_at
		 FROM records ORDER BY archived_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []archive.ArtifactRecord
	for rows.Next() {
		var (
			r     archive.ArtifactRecord
			nanos int64
		)
		if err := rows.Scan(&r.ID, &r.URL, &r.Title, &r.ContentID, &r.Filename, &r.Checksum, &r.SizeBytes, &nanos); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Timestamp = time.Unix(0, nanos).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
