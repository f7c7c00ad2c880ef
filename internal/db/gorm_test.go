package db

import (
	"path/filepath"
	"testing"

	"listsync/internal/config"
	"listsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGorm_SQLiteMigratesSchema(t *testing.T) {
	cfg := &config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "listsync.db"),
		LogLevel:   "info",
	}

	gdb, err := NewGorm(cfg)
	require.NoError(t, err)
	defer gdb.Close()

	for _, model := range []any{&models.List{}, &models.ListItem{}, &models.Session{}} {
		assert.True(t, gdb.Migrator().HasTable(model), "expected table for %T", model)
	}
	assert.True(t, gdb.Migrator().HasColumn(&models.ListItem{}, "sort_order"))
}
