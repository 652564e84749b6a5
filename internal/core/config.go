package core

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"shieldcore/internal/blob"
	"shieldcore/internal/collision"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "SHIELDCORE_"

// Storage drivers for the committed document and pending log.
const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is passed explicitly to the service and its collaborators.
type Config struct {
	DocumentPath string `env:"DOCUMENT_PATH" envDefault:"shieldcore.yaml"`
	// PendingPath defaults to the document path with a .pending.yaml suffix.
	PendingPath   string `env:"PENDING_PATH"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"file"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"shieldcore.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	BlobDriver  string `env:"BLOB_DRIVER" envDefault:"fs"`
	BlobRoot    string `env:"BLOB_ROOT" envDefault:"./shieldcore-blobs"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3PathStyle bool   `env:"S3_PATH_STYLE"`
	S3AccessKey string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `env:"S3_SECRET_ACCESS_KEY"`
	BackupKeep  int    `env:"BACKUP_KEEP" envDefault:"10"`

	NuclideDatabase   string  `env:"NUCLIDE_DATABASE"`
	DaughterThreshold float64 `env:"DAUGHTER_THRESHOLD" envDefault:"0.05"`
	DaughterConfirm   bool    `env:"DAUGHTER_CONFIRM" envDefault:"true"`

	ContactTolerance    float64 `env:"CONTACT_TOLERANCE" envDefault:"1e-9"`
	OverlapTolerance    float64 `env:"OVERLAP_TOLERANCE" envDefault:"1e-6"`
	MinDetectorDistance float64 `env:"MIN_DETECTOR_DISTANCE" envDefault:"1.0"`

	SolverBinary string `env:"SOLVER_BINARY" envDefault:"shield-solver"`
	LogMode      string `env:"LOG_MODE" envDefault:"dev"`
}

// DefaultConfig returns the documented defaults without reading the environment.
func DefaultConfig() Config {
	var cfg Config
	// Parsing against an empty environment only applies envDefault tags.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// LoadConfig reads SHIELDCORE_* variables over the defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DocumentName is the document path's base name without extension. The
// database backends key their rows by it.
func (c Config) DocumentName() string {
	base := filepath.Base(c.DocumentPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "document"
	}
	return name
}

// Tolerances returns the collision tolerances.
func (c Config) Tolerances() collision.Tolerances {
	return collision.Tolerances{Contact: c.ContactTolerance, Overlap: c.OverlapTolerance}
}

// BlobConfig returns the blob driver configuration for backups.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		FSRoot: c.BlobRoot,
		S3: blob.S3Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKey,
			SecretAccessKey: c.S3SecretKey,
			PathStyle:       c.S3PathStyle,
		},
	}
}
