package core

import (
	"context"
	"fmt"

	"shieldcore/internal/backup"
	"shieldcore/internal/blob"
	"shieldcore/internal/infra/persistence/file"
	"shieldcore/internal/infra/persistence/memory"
	"shieldcore/internal/infra/persistence/postgres"
	"shieldcore/internal/infra/persistence/sqlite"
	"shieldcore/pkg/domain"
)

// OpenBackend selects the document and pending log backend named by
// cfg.StorageDriver. An empty driver means file.
func OpenBackend(ctx context.Context, cfg Config) (domain.Backend, error) {
	switch cfg.StorageDriver {
	case "", StorageFile:
		pending := cfg.PendingPath
		if pending == "" {
			pending = file.PendingPathFor(cfg.DocumentPath)
		}
		store, err := file.NewStore(cfg.DocumentPath, pending)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, cfg.DocumentName())
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, cfg.DocumentName())
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageMemory:
		return memory.NewBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver)
	}
}

// OpenBackups builds the backup rotator over the configured blob driver.
// A non-positive keep count disables backups and opens no blob store.
func OpenBackups(ctx context.Context, cfg Config) (*backup.Rotator, error) {
	if cfg.BackupKeep < 1 {
		return nil, nil
	}
	store, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return backup.New(store, cfg.DocumentPath, cfg.BackupKeep), nil
}
