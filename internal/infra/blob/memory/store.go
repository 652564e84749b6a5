// Package memory keeps snapshots in process memory. It backs tests and
// throwaway runs where backups need not survive the process.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shieldcore/internal/blob/core"
)

type snapshot struct {
	obj  core.Object
	data []byte
}

// Store is an in-memory core.Store.
type Store struct {
	mu    sync.RWMutex
	snaps map[string]snapshot
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{snaps: make(map[string]snapshot), now: time.Now}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Create(_ context.Context, key, document string, data []byte) (core.Object, error) {
	if err := core.CheckKey(key); err != nil {
		return core.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.snaps[key]; taken {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	}
	obj := core.Object{
		Key:      key,
		Document: document,
		Size:     int64(len(data)),
		Checksum: core.Checksum(data),
		Modified: s.now().UTC(),
	}
	s.snaps[key] = snapshot{obj: obj, data: append([]byte(nil), data...)}
	return obj, nil
}

func (s *Store) Load(_ context.Context, key string) (core.Object, []byte, error) {
	s.mu.RLock()
	snap, ok := s.snaps[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return snap.obj, append([]byte(nil), snap.data...), nil
}

func (s *Store) Stat(_ context.Context, key string) (core.Object, error) {
	s.mu.RLock()
	snap, ok := s.snaps[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return snap.obj, nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[key]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	delete(s.snaps, key)
	return nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Object
	for key, snap := range s.snaps {
		if strings.HasPrefix(key, prefix) {
			out = append(out, snap.obj)
		}
	}
	core.SortByKey(out)
	return out, nil
}
