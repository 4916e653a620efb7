// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records completed downloads in a SQLite database so
// batch runs can skip papers that are already on disk.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-fetch/pkg/types"
)

// Store manages the download-history database. (source, paper_id) is the
// natural key: source tags never collide and IDs are source-native.
type Store struct {
	db *sql.DB
}

// Entry is one recorded download.
type Entry struct {
	Source       string
	PaperID      string
	Title        string
	Path         string
	DownloadedAt time.Time
}

// Open opens or creates the history database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		source TEXT NOT NULL,
		paper_id TEXT NOT NULL,
		title TEXT,
		path TEXT NOT NULL,
		downloaded_at TEXT NOT NULL,
		PRIMARY KEY (source, paper_id)
	)`)
	return err
}

// Record stores a completed download, replacing any previous entry for
// the same paper.
func (s *Store) Record(paper types.Paper, path string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO downloads (source, paper_id, title, path, downloaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		paper.Source, paper.ID, paper.Title, path, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording download %s: %w", paper.Key(), err)
	}
	return nil
}

// Contains reports whether a download is already recorded.
func (s *Store) Contains(source, paperID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT count(*) FROM downloads WHERE source = ? AND paper_id = ?`,
		source, paperID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("querying download history: %w", err)
	}
	return count > 0, nil
}

// List returns the recorded downloads for a source, newest first. An
// empty source returns everything.
func (s *Store) List(source string) ([]Entry, error) {
	query := `SELECT source, paper_id, title, path, downloaded_at FROM downloads`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY downloaded_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing download history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var downloadedAt string
		if err := rows.Scan(&e.Source, &e.PaperID, &e.Title, &e.Path, &downloadedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339, downloadedAt); parseErr == nil {
			e.DownloadedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
