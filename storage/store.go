// Package storage persists conversations and provider settings in a
// sqlite database under the data directory.
//
// Conversations are stored per document as a JSON array on the files
// table, mirroring how the rest of the application keys everything by
// (path, is_url, name). All conversation mutations are single-transaction
// read-modify-write so checkpoint writes for one document never
// interleave.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database holding files/conversations and
// provider settings.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) raider.db in dataDir.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "raider.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path TEXT NOT NULL,
		is_url INTEGER NOT NULL,
		name TEXT NOT NULL,
		conversations TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (path, is_url, name)
	);
	CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		settings TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
