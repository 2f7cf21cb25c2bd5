package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "data/funda.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 100, cfg.ETL.BatchSize)
	assert.Equal(t, 20, cfg.Analysis.MaxYearDiff)
	assert.Equal(t, 90, cfg.Analysis.PriceDropWindowDays)
	assert.Equal(t, []string{"amsterdam", "rotterdam", "den-haag", "utrecht"}, cfg.Scraping.Cities)
	assert.Equal(t, 3*time.Second, cfg.Scraping.GetRequestInterval())
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
database:
  type: postgres
  postgres:
    host: db
    port: 5433
scraping:
  cities: [utrecht]
  listing_types: [buy, rent]
  retry:
    max_attempts: 5
    base_delay_seconds: 0.5
etl:
  batch_size: 25
scheduling:
  enabled: true
  cron: "*/30 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db", cfg.Database.Postgres.Host)
	assert.Equal(t, 5433, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode, "unset keys keep defaults")
	assert.Equal(t, []string{"utrecht"}, cfg.Scraping.Cities)
	assert.Equal(t, []string{"buy", "rent"}, cfg.Scraping.ListingTypes)
	assert.Equal(t, 5, cfg.Scraping.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraping.Retry.GetBaseDelay())
	assert.Equal(t, 25, cfg.ETL.BatchSize)
	assert.True(t, cfg.Scheduling.Enabled)
	assert.Equal(t, "*/30 * * * *", cfg.Scheduling.Cron)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("etl: [not a map"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FUNDA_DB_PATH", "/tmp/test.db")
	t.Setenv("FUNDA_RATE_LIMIT", "1.5")
	t.Setenv("FUNDA_DEFAULT_CITIES", " groningen , ,leiden")
	t.Setenv("FUNDA_PORT", "9090")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "/tmp/test.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scraping.GetRequestInterval())
	assert.Equal(t, []string{"groningen", "leiden"}, cfg.Scraping.Cities)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("FUNDA_PORT", "eighty")

	cfg := DefaultConfig()
	assert.Error(t, cfg.ApplyEnv())
}
