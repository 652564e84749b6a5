// Package core defines the snapshot store contract shared by backup rotation
// and the concrete drivers.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Driver names a snapshot store backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var (
	// ErrNotFound is returned when no snapshot exists under a key.
	ErrNotFound = errors.New("snapshot not found")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("snapshot already exists")
	// ErrInvalidKey is returned for keys that cannot address a snapshot.
	ErrInvalidKey = errors.New("invalid snapshot key")
	// ErrCorrupt is returned when stored bytes no longer match their checksum.
	ErrCorrupt = errors.New("snapshot checksum mismatch")
)

// Object describes one stored snapshot.
type Object struct {
	Key      string    `json:"key" yaml:"key"`
	Document string    `json:"document,omitempty" yaml:"document,omitempty"`
	Size     int64     `json:"size" yaml:"size"`
	Checksum string    `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// Store keeps immutable snapshots under slash separated keys. Create never
// overwrites and List returns objects in ascending key order.
type Store interface {
	Driver() Driver
	Create(ctx context.Context, key, document string, data []byte) (Object, error)
	Load(ctx context.Context, key string) (Object, []byte, error)
	Stat(ctx context.Context, key string) (Object, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// CheckKey rejects empty and absolute keys as well as empty, "." or ".."
// path segments.
func CheckKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Checksum returns the hex encoded SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify checks data against the checksum recorded in obj. Objects without a
// recorded checksum always verify.
func Verify(obj Object, data []byte) error {
	if obj.Checksum == "" || obj.Checksum == Checksum(data) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCorrupt, obj.Key)
}

// SortByKey orders objs by key ascending.
func SortByKey(objs []Object) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
}
