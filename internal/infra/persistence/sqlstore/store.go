// Package sqlstore keeps the committed document and its pending change log in
// two relational tables. The sqlite and postgres backends share it and differ
// only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"shieldcore/pkg/domain"
)

var _ domain.Backend = (*Store)(nil)

// Dialect captures the SQL differences between drivers.
type Dialect struct {
	Name string
	// JSONType is the column type holding encoded documents and changes.
	JSONType string
	// Bind returns the placeholder for the n-th argument, starting at 1.
	Bind func(n int) string
}

var (
	SQLite = Dialect{
		Name:     "sqlite",
		JSONType: "BLOB",
		Bind:     func(int) string { return "?" },
	}
	Postgres = Dialect{
		Name:     "postgres",
		JSONType: "JSONB",
		Bind:     func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// Table names.
const (
	DocumentsTable = "shield_documents"
	PendingTable   = "shield_pending"
)

// Store is a domain.Backend over one document row and its ordered pending rows.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	document string
	mu       sync.Mutex
}

// Open creates the tables when missing and returns a store for the named
// document. The caller hands over ownership of db.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, document string) (*Store, error) {
	if document == "" {
		return nil, errors.New("sqlstore: document name required")
	}
	s := &Store{db: db, dialect: dialect, document: document}
	for _, stmt := range s.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s schema: %w", dialect.Name, err)
		}
	}
	return s, nil
}

func (s *Store) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + DocumentsTable + ` (
	name TEXT PRIMARY KEY,
	revision INTEGER NOT NULL,
	body ` + s.dialect.JSONType + ` NOT NULL,
	saved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS ` + PendingTable + ` (
	document TEXT NOT NULL,
	seq INTEGER NOT NULL,
	change_id TEXT NOT NULL,
	action TEXT NOT NULL,
	entity TEXT NOT NULL,
	body ` + s.dialect.JSONType + ` NOT NULL,
	PRIMARY KEY (document, seq)
)`,
	}
}

// bind replaces each ? in query with the dialect placeholder.
func (s *Store) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Bind(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Document is the name rows are keyed by.
func (s *Store) Document() string { return s.document }

// DB exposes the handle for driver specific hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) LoadDocument(ctx context.Context) (domain.Document, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT body FROM `+DocumentsTable+` WHERE name = ?`), s.document).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("select document %s: %w", s.document, err)
	}
	var doc domain.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.Document{}, false, fmt.Errorf("decode document %s: %w", s.document, err)
	}
	return doc, true, nil
}

// SaveDocument upserts the document row and bumps its revision.
func (s *Store) SaveDocument(ctx context.Context, doc domain.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", s.document, err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.bind(`INSERT INTO `+DocumentsTable+` (name, revision, body) VALUES (?, 1, ?)
ON CONFLICT (name) DO UPDATE SET revision = `+DocumentsTable+`.revision + 1, body = excluded.body, saved_at = CURRENT_TIMESTAMP`),
			s.document, body)
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", s.document, err)
		}
		return nil
	})
}

// Revision counts the saves of the document; zero means never saved.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT revision FROM `+DocumentsTable+` WHERE name = ?`), s.document).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select revision %s: %w", s.document, err)
	}
	return rev, nil
}

func (s *Store) LoadPending(ctx context.Context) ([]domain.PendingChange, error) {
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT body FROM `+PendingTable+` WHERE document = ? ORDER BY seq`), s.document)
	if err != nil {
		return nil, fmt.Errorf("select pending %s: %w", s.document, err)
	}
	defer func() { _ = rows.Close() }()

	var changes []domain.PendingChange
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		var c domain.PendingChange
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fmt.Errorf("decode pending change %d: %w", len(changes), err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return changes, nil
}

// SavePending replaces the stored log with changes, one row per change in
// log order.
func (s *Store) SavePending(ctx context.Context, changes []domain.PendingChange) error {
	bodies := make([][]byte, len(changes))
	for i, c := range changes {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode pending change %s: %w", c.ID, err)
		}
		bodies[i] = b
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM `+PendingTable+` WHERE document = ?`), s.document); err != nil {
			return fmt.Errorf("clear pending %s: %w", s.document, err)
		}
		insert := s.bind(`INSERT INTO ` + PendingTable + ` (document, seq, change_id, action, entity, body) VALUES (?, ?, ?, ?, ?, ?)`)
		for i, c := range changes {
			if _, err := tx.ExecContext(ctx, insert, s.document, i, c.ID, string(c.Action), string(c.Entity), bodies[i]); err != nil {
				return fmt.Errorf("insert pending change %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
