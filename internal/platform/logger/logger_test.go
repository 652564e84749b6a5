package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesKeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewWithCore(core).With("component", "service")

	log.Info("apply finished", "applied", 3, "postgres_dsn", "postgres://u:p@h/db")
	log.Warn("backup failed", "error", "disk full")
	log.Error("boom")

	entries := logs.All()
	require.Len(t, entries, 3)
	first := entries[0].ContextMap()
	assert.Equal(t, "service", first["component"])
	assert.EqualValues(t, 3, first["applied"])
	assert.Equal(t, "[REDACTED]", first["postgres_dsn"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"prod", "dev"} {
		log, err := New(mode)
		require.NoError(t, err)
		log.Sync()
	}
}
