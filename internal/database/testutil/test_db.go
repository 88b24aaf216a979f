// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/database"
)

// Option adjusts how Open prepares the database.
type Option func(*options)

type options struct {
	skipMigrate bool
	onDisk      bool
}

// Unmigrated skips AutoMigrate and leaves the database without tables.
func Unmigrated() Option {
	return func(o *options) { o.skipMigrate = true }
}

// OnDisk backs the database with a file in t.TempDir, exercising the WAL settings and
// the single writer pool instead of shared memory.
func OnDisk() Option {
	return func(o *options) { o.onDisk = true }
}

// Open returns a migrated sqlite database private to t and closed on cleanup.
func Open(t testing.TB, opts ...Option) *gorm.DB {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := database.Config{Driver: "sqlite"}
	if o.onDisk {
		cfg.Path = filepath.Join(t.TempDir(), "taskpulse.db")
	} else {
		cfg.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	if !o.skipMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}
