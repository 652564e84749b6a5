package memory

import (
	"context"
	"sync"

	"shieldcore/pkg/domain"
)

var _ domain.Backend = (*Backend)(nil)

// Backend keeps the committed document and pending log in process memory.
// It backs tests and ephemeral sessions.
type Backend struct {
	mu      sync.Mutex
	doc     *domain.Document
	pending []domain.PendingChange
	saves   int
}

// NewBackend constructs an empty backend.
func NewBackend() *Backend {
	return &Backend{}
}

// LoadDocument returns the saved document, if any.
func (b *Backend) LoadDocument(context.Context) (domain.Document, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return domain.Document{}, false, nil
	}
	return b.doc.Clone(), true, nil
}

// SaveDocument replaces the saved document.
func (b *Backend) SaveDocument(_ context.Context, doc domain.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := doc.Clone()
	b.doc = &cp
	b.saves++
	return nil
}

// LoadPending returns a copy of the saved log.
func (b *Backend) LoadPending(context.Context) ([]domain.PendingChange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clonePending(b.pending), nil
}

// SavePending replaces the saved log.
func (b *Backend) SavePending(_ context.Context, changes []domain.PendingChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = clonePending(changes)
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// DocumentSaves counts SaveDocument calls.
func (b *Backend) DocumentSaves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func clonePending(in []domain.PendingChange) []domain.PendingChange {
	out := make([]domain.PendingChange, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
