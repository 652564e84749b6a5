// Package blob opens the snapshot store selected by configuration and
// re-exports the contract for callers outside the infra tree.
package blob

import (
	"context"
	"fmt"

	"shieldcore/internal/blob/core"
	"shieldcore/internal/infra/blob/fs"
	"shieldcore/internal/infra/blob/memory"
	"shieldcore/internal/infra/blob/s3"
)

type (
	Driver   = core.Driver
	Object   = core.Object
	Store    = core.Store
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
	ErrCorrupt    = core.ErrCorrupt
)

// Config selects a driver. FSRoot applies to fs and S3 to s3.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the configured store. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return memory.New() }

// NewFakeS3 returns the S3 driver wired to an in-process bucket.
func NewFakeS3() Store { return s3.NewFake() }

// Verify checks data against the checksum recorded in obj.
func Verify(obj Object, data []byte) error { return core.Verify(obj, data) }
