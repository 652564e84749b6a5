// Package file keeps the committed document and the pending change log as
// YAML files on local disk. The document file is the one handed to the
// external solver.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"shieldcore/pkg/domain"
)

var (
	_ domain.Backend         = (*Store)(nil)
	_ domain.DocumentLocator = (*Store)(nil)
)

// PendingPathFor derives the default change log path for a document path.
func PendingPathFor(docPath string) string {
	return docPath + ".pending.yaml"
}

// Store reads and writes the two YAML files. Writes go through a temp file
// in the same directory followed by a rename.
type Store struct {
	mu          sync.Mutex
	docPath     string
	pendingPath string
}

// NewStore returns a store for docPath; an empty pendingPath uses PendingPathFor.
func NewStore(docPath, pendingPath string) (*Store, error) {
	if docPath == "" {
		return nil, fmt.Errorf("document path required")
	}
	if pendingPath == "" {
		pendingPath = PendingPathFor(docPath)
	}
	for _, dir := range []string{filepath.Dir(docPath), filepath.Dir(pendingPath)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	return &Store{docPath: docPath, pendingPath: pendingPath}, nil
}

// DocumentPath returns the committed document file.
func (s *Store) DocumentPath() string { return s.docPath }

// PendingPath returns the change log file.
func (s *Store) PendingPath() string { return s.pendingPath }

// LoadDocument reads the document file; a missing file reports ok=false.
func (s *Store) LoadDocument(context.Context) (domain.Document, bool, error) {
	data, err := os.ReadFile(s.docPath)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("read document: %w", err)
	}
	var doc domain.Document
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.NewDocument(), true, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Document{}, false, fmt.Errorf("decode document %s: %w", s.docPath, err)
	}
	return doc, true, nil
}

// SaveDocument atomically replaces the document file.
func (s *Store) SaveDocument(_ context.Context, doc domain.Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.docPath, data)
}

// LoadPending reads the change log; a missing file is an empty log.
func (s *Store) LoadPending(context.Context) ([]domain.PendingChange, error) {
	data, err := os.ReadFile(s.pendingPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending log: %w", err)
	}
	var log struct {
		Changes []domain.PendingChange `yaml:"changes"`
	}
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode pending log %s: %w", s.pendingPath, err)
	}
	return log.Changes, nil
}

// SavePending atomically replaces the change log.
func (s *Store) SavePending(_ context.Context, changes []domain.PendingChange) error {
	if changes == nil {
		changes = []domain.PendingChange{}
	}
	data, err := yaml.Marshal(struct {
		Changes []domain.PendingChange `yaml:"changes"`
	}{Changes: changes})
	if err != nil {
		return fmt.Errorf("encode pending log: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.pendingPath, data)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
