package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldcore/internal/blob"
	"shieldcore/internal/infra/persistence/file"
	"shieldcore/internal/infra/persistence/memory"
	"shieldcore/internal/infra/persistence/sqlite"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "shieldcore.yaml", cfg.DocumentPath)
	assert.Equal(t, StorageFile, cfg.StorageDriver)
	assert.Equal(t, 10, cfg.BackupKeep)
	assert.Equal(t, 0.05, cfg.DaughterThreshold)
	assert.True(t, cfg.DaughterConfirm)
	assert.Equal(t, 1e-9, cfg.ContactTolerance)
	assert.Equal(t, 1e-6, cfg.OverlapTolerance)
	assert.Equal(t, 1.0, cfg.MinDetectorDistance)
	assert.Equal(t, "fs", cfg.BlobDriver)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("SHIELDCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("SHIELDCORE_BACKUP_KEEP", "3")
	t.Setenv("SHIELDCORE_DAUGHTER_CONFIRM", "false")
	t.Setenv("SHIELDCORE_OVERLAP_TOLERANCE", "0.5")
	t.Setenv("SHIELDCORE_S3_PATH_STYLE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.StorageDriver)
	assert.Equal(t, 3, cfg.BackupKeep)
	assert.False(t, cfg.DaughterConfirm)
	assert.Equal(t, 0.5, cfg.Tolerances().Overlap)
	assert.True(t, cfg.BlobConfig().S3.PathStyle)
	assert.Equal(t, "shieldcore.yaml", cfg.DocumentPath)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("SHIELDCORE_BACKUP_KEEP", "many")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestDocumentName(t *testing.T) {
	cfg := DefaultConfig()
	for path, want := range map[string]string{
		"shieldcore.yaml":        "shieldcore",
		"/work/plant/shield.yml": "shield",
		"noext":                  "noext",
		"":                       "document",
		"/":                      "document",
	} {
		cfg.DocumentPath = path
		assert.Equal(t, want, cfg.DocumentName(), path)
	}
}

func TestOpenBackendDrivers(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DocumentPath = dir + "/shield.yaml"
	cfg.SQLitePath = dir + "/shield.db"

	b, err := OpenBackend(ctx, cfg)
	require.NoError(t, err)
	fs, ok := b.(*file.Store)
	require.True(t, ok)
	assert.Equal(t, cfg.DocumentPath, fs.DocumentPath())
	require.NoError(t, b.Close())

	cfg.StorageDriver = StorageSQLite
	b, err = OpenBackend(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, b)
	require.NoError(t, b.Close())

	cfg.StorageDriver = StorageMemory
	b, err = OpenBackend(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	cfg.StorageDriver = "tape"
	_, err = OpenBackend(ctx, cfg)
	require.Error(t, err)
}

func TestOpenBackups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackupKeep = 0
	r, err := OpenBackups(t.Context(), cfg)
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	cfg.BackupKeep = 2
	cfg.BlobDriver = string(blob.DriverMemory)
	r, err = OpenBackups(t.Context(), cfg)
	require.NoError(t, err)
	assert.True(t, r.Enabled())
}
