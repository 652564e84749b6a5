// Package sqlite opens the relational backend on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"shieldcore/internal/infra/persistence/sqlstore"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "shieldcore.db"

// Store is the shared relational backend plus the file it lives in.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens or creates the database at path and keys rows by document.
func NewStore(ctx context.Context, path, document string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}
	// A single connection serialises writers; SQLite locks the whole file anyway.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	inner, err := sqlstore.Open(ctx, db, sqlstore.SQLite, document)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }
