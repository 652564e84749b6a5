// Package backup writes timestamped snapshots of the committed document to a
// blob store and prunes all but the newest N.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shieldcore/internal/blob"
)

// DefaultKeep is the number of backups retained per document.
const DefaultKeep = 10

// Prefix is the key prefix under which backups are stored.
const Prefix = "backups/"

const (
	stampLayout = "20060102T150405.000000000Z"
	// maxCollisions bounds the retries when several saves share a timestamp.
	maxCollisions = 1000
)

// Rotator owns the backups of one document.
type Rotator struct {
	store blob.Store
	base  string
	keep  int
	now   func() time.Time
}

// New returns a rotator for the document named by docPath. keep < 1 disables backups.
func New(store blob.Store, docPath string, keep int) *Rotator {
	base := filepath.Base(docPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "document"
	}
	return &Rotator{store: store, base: base, keep: keep, now: time.Now}
}

// WithClock overrides the timestamp source.
func (r *Rotator) WithClock(now func() time.Time) *Rotator {
	if now != nil {
		r.now = now
	}
	return r
}

// Enabled reports whether Save writes anything.
func (r *Rotator) Enabled() bool { return r != nil && r.store != nil && r.keep > 0 }

func (r *Rotator) prefix() string { return Prefix + r.base + "." }

// Save stores data as a new backup and prunes old ones. It returns the key
// written, or "" when backups are disabled.
func (r *Rotator) Save(ctx context.Context, data []byte) (string, error) {
	key, err := r.Write(ctx, data)
	if err != nil || key == "" {
		return key, err
	}
	if _, err := r.Prune(ctx); err != nil {
		return key, err
	}
	return key, nil
}

// Write stores data as a new backup without pruning. Keys sort
// chronologically; a write landing on a taken timestamp moves forward one
// nanosecond.
func (r *Rotator) Write(ctx context.Context, data []byte) (string, error) {
	if !r.Enabled() {
		return "", nil
	}
	ts := r.now().UTC()
	for attempt := 0; ; attempt++ {
		key := r.prefix() + ts.Format(stampLayout) + ".yaml"
		_, err := r.store.Create(ctx, key, r.base, data)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, blob.ErrExists) || attempt == maxCollisions {
			return "", fmt.Errorf("write backup %s: %w", key, err)
		}
		ts = ts.Add(time.Nanosecond)
	}
}

// Discard removes a backup written by Write. A missing key is not an error.
func (r *Rotator) Discard(ctx context.Context, key string) error {
	if !r.Enabled() || key == "" {
		return nil
	}
	if !strings.HasPrefix(key, r.prefix()) {
		return fmt.Errorf("discard backup %s: %w", key, blob.ErrNotFound)
	}
	if err := r.store.Remove(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("discard backup %s: %w", key, err)
	}
	return nil
}

// List returns this document's backups, newest first.
func (r *Rotator) List(ctx context.Context) ([]blob.Object, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	objs, err := r.store.List(ctx, r.prefix())
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := objs[:0]
	for _, obj := range objs {
		if path.Ext(obj.Key) == ".yaml" {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

// Prune deletes backups beyond the keep limit and returns the removed keys.
// Backups already gone are skipped.
func (r *Rotator) Prune(ctx context.Context) ([]string, error) {
	objs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(objs) <= r.keep {
		return nil, nil
	}
	var removed []string
	for _, obj := range objs[r.keep:] {
		err := r.store.Remove(ctx, obj.Key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("delete backup %s: %w", obj.Key, err)
		}
		removed = append(removed, obj.Key)
	}
	return removed, nil
}

// Read returns the content of a backup after checking it against the
// checksum recorded when it was written.
func (r *Rotator) Read(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, r.prefix()) {
		return nil, fmt.Errorf("read backup %s: %w", key, blob.ErrNotFound)
	}
	obj, data, err := r.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", key, err)
	}
	if err := blob.Verify(obj, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Latest returns the key and content of the newest backup.
func (r *Rotator) Latest(ctx context.Context) (string, []byte, error) {
	objs, err := r.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(objs) == 0 {
		return "", nil, fmt.Errorf("no backups of %s: %w", r.base, blob.ErrNotFound)
	}
	data, err := r.Read(ctx, objs[0].Key)
	if err != nil {
		return "", nil, err
	}
	return objs[0].Key, data, nil
}
