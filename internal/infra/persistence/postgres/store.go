// Package postgres opens the relational backend on a Postgres server through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"shieldcore/internal/infra/persistence/sqlstore"
)

const (
	driverName = "pgx"
	// DefaultDSN targets a local server when none is configured.
	DefaultDSN = "postgres://localhost/shieldcore?sslmode=disable"
)

var (
	openMu sync.Mutex
	open   = sql.Open
)

// Store is the shared relational backend on Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore connects to dsn, verifies the connection and prepares the tables.
func NewStore(ctx context.Context, dsn, document string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := open(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := sqlstore.Open(ctx, db, sqlstore.Postgres, document)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// SwapOpen replaces the connection factory until the returned restore runs.
func SwapOpen(fn func(driverName, dsn string) (*sql.DB, error)) (restore func()) {
	openMu.Lock()
	prev := open
	open = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		open = prev
		openMu.Unlock()
	}
}
