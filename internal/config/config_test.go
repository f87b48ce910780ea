package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "PORT", "PUBLIC_BASE_URL", "DATABASE_URL",
		"DB_MAX_CONNS", "DB_TIMEOUT_SECONDS",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db.local:5432/draft")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.DBMaxConns)
	assert.Equal(t, 10*time.Second, cfg.ActionDeadline())
	assert.Equal(t, 10*time.Second, cfg.DBRequestTimeout())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"9090\"\ndatabase_url: postgres://u:p@db.local:5432/draft\ndb_max_conns: 25\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 25, cfg.DBMaxConns)
}

func TestEnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"9090\"\ndatabase_url: postgres://u:p@db.local:5432/draft\n"), 0o600))
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
}

func TestMissingFileIsSkipped(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db.local:5432/draft")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestProductionHardensDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://u:p@db.local:5432/draft?sslmode=disable")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseURL, "db.local:6543")
	assert.Contains(t, cfg.DatabaseURL, "sslmode=require")
}

func TestProductionKeepsStrictSSLMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://u:p@db.local:5432/draft?sslmode=verify-full")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseURL, "sslmode=verify-full")
}

func TestDevelopmentLeavesDSNAlone(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/draft?sslmode=disable")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/draft?sslmode=disable", cfg.DatabaseURL)
}
