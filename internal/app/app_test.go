package app

import (
	"path/filepath"
	"testing"

	"funda-finder/internal/config"
	"funda-finder/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireWithoutSearch(t *testing.T) {
	gdb, err := database.NewInMemory()
	require.NoError(t, err)
	defer gdb.Close()

	cfg := config.DefaultConfig()
	cfg.Cleanup.RetentionDays = 30

	a, err := Wire(cfg, gdb)
	require.NoError(t, err)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Analyzer)
	assert.Nil(t, a.Search)

	purge := a.PurgeDefaults()
	assert.Equal(t, 30, purge.RetentionDays)
	assert.True(t, purge.DryRun)
}

func TestWireRejectsUnknownSourceAndClosesDatabase(t *testing.T) {
	gdb, err := database.NewInMemory()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Scraping.Sources = []string{"ftp"}

	_, err = Wire(cfg, gdb)
	assert.Error(t, err)
	assert.Error(t, gdb.DB().Exec("SELECT 1").Error, "database should be closed")
}

func TestNewClosesDatabaseWhenWiringFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "funda.db")
	cfg.Scraping.Sources = []string{"ftp"}

	a, err := New(cfg)
	assert.Error(t, err)
	assert.Nil(t, a)
}
