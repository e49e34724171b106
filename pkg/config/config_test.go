package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.ProfilePackCacheMinutes)
	assert.Equal(t, 1, cfg.MaxSQLRevisions)
	assert.Equal(t, 1, cfg.MaxModelRevisions)
	assert.Equal(t, 1000, cfg.MaxSQLRows)
	assert.Equal(t, 90, cfg.DefaultMerchantWindowDays)
	assert.Equal(t, 10000, cfg.NumSimulations)
	assert.False(t, cfg.MemoryEnabled)
	assert.Equal(t, 280, cfg.LLMTimeoutSeconds)
	assert.Equal(t, 1, cfg.DBMinConns)
	assert.Equal(t, 10, cfg.DBMaxConns)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_SQL_ROWS", "250")
	t.Setenv("MEMORY_ENABLED", "true")
	t.Setenv("PROFILE_PACK_CACHE_MINUTES", "15")
	t.Setenv("LLM_TIMEOUT_SECONDS", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.MaxSQLRows)
	assert.True(t, cfg.MemoryEnabled)
	assert.Equal(t, 15, cfg.ProfilePackCacheMinutes)
	assert.Equal(t, 60, cfg.LLMTimeoutSeconds)
}

func TestApplyFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_sql_rows: 500\nlisten_addr: \":9090\"\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyFile(path))

	assert.Equal(t, 500, cfg.MaxSQLRows)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	// Keys absent from the file keep their defaults
	assert.Equal(t, 60, cfg.ProfilePackCacheMinutes)
}

func TestApplyFile_MissingFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.ApplyFile(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestValidate(t *testing.T) {
	cfg := &Config{LLMAPIKey: "k", MaxSQLRows: 1000, DBMinConns: 1, DBMaxConns: 10}
	assert.NoError(t, cfg.Validate())

	cfg.LLMAPIKey = ""
	assert.Error(t, cfg.Validate())

	cfg.LLMAPIKey = "k"
	cfg.MaxSQLRows = 0
	assert.Error(t, cfg.Validate())

	cfg.MaxSQLRows = 1000
	cfg.DBMaxConns = 0
	assert.Error(t, cfg.Validate())
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBUser: "svc", DBPassword: "pw", DBHost: "db.internal",
		DBPort: 5432, DBName: "finsight", DBSSLMode: "require",
	}
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/finsight?sslmode=require", cfg.DatabaseURL())
}
