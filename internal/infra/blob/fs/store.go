// Package fs stores snapshots as plain files below a root directory.
//
// Snapshot bytes live at <root>/<key>. The attributes recorded on Create sit
// in a parallel tree under <root>/.attrs as YAML so a backup directory can be
// browsed, copied or restored with ordinary tools.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shieldcore/internal/blob/core"
)

const (
	attrsDir      = ".attrs"
	partialPrefix = ".partial-"
)

// Store is a filesystem core.Store.
type Store struct {
	root string
}

// New opens a store rooted at root, creating the directory when missing.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("fs snapshot store: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fs snapshot store: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

func (s *Store) dataPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) attrsPath(key string) string {
	return filepath.Join(s.root, attrsDir, filepath.FromSlash(key)+".yaml")
}

// Create writes data to a temporary file and hard-links it into place, so a
// concurrent Create of the same key fails instead of overwriting.
func (s *Store) Create(_ context.Context, key, document string, data []byte) (core.Object, error) {
	if err := core.CheckKey(key); err != nil {
		return core.Object{}, err
	}
	if strings.HasPrefix(key, attrsDir+"/") || key == attrsDir {
		return core.Object{}, fmt.Errorf("%w: %q is reserved", core.ErrInvalidKey, key)
	}
	target := s.dataPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return core.Object{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), partialPrefix+"*")
	if err != nil {
		return core.Object{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return core.Object{}, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return core.Object{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Object{}, err
	}
	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, key)
		}
		return core.Object{}, err
	}

	obj := core.Object{
		Key:      key,
		Document: document,
		Size:     int64(len(data)),
		Checksum: core.Checksum(data),
		Modified: time.Now().UTC(),
	}
	if err := s.writeAttrs(obj); err != nil {
		_ = os.Remove(target)
		return core.Object{}, fmt.Errorf("record attributes of %s: %w", key, err)
	}
	return obj, nil
}

func (s *Store) Load(ctx context.Context, key string) (core.Object, []byte, error) {
	if err := core.CheckKey(key); err != nil {
		return core.Object{}, nil, err
	}
	data, err := os.ReadFile(s.dataPath(key))
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Object{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if err != nil {
		return core.Object{}, nil, err
	}
	obj, err := s.Stat(ctx, key)
	if err != nil {
		return core.Object{}, nil, err
	}
	return obj, data, nil
}

// Stat prefers the recorded attributes and falls back to the file itself for
// snapshots placed in the directory by hand.
func (s *Store) Stat(_ context.Context, key string) (core.Object, error) {
	if err := core.CheckKey(key); err != nil {
		return core.Object{}, err
	}
	raw, err := os.ReadFile(s.attrsPath(key))
	switch {
	case err == nil:
		var obj core.Object
		if err := yaml.Unmarshal(raw, &obj); err != nil {
			return core.Object{}, fmt.Errorf("decode attributes of %s: %w", key, err)
		}
		obj.Key = key
		return obj, nil
	case !errors.Is(err, iofs.ErrNotExist):
		return core.Object{}, err
	}
	fi, err := os.Stat(s.dataPath(key))
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if err != nil {
		return core.Object{}, err
	}
	return core.Object{Key: key, Size: fi.Size(), Modified: fi.ModTime().UTC()}, nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	if err := core.CheckKey(key); err != nil {
		return err
	}
	err := os.Remove(s.dataPath(key))
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if err != nil {
		return err
	}
	if err := os.Remove(s.attrsPath(key)); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Object, error) {
	var out []core.Object
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.root && name == attrsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, partialPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		obj, err := s.Stat(ctx, key)
		if err != nil {
			return err
		}
		out = append(out, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	core.SortByKey(out)
	return out, nil
}

func (s *Store) writeAttrs(obj core.Object) error {
	path := s.attrsPath(obj.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := yaml.Marshal(obj)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
