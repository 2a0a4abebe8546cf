package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "./fifo.db", cfg.Store.SQLitePath)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, "escalate", cfg.FIFO.OversoldPolicy)
	assert.Equal(t, 500, cfg.FIFO.BatchSize)
	assert.InDelta(t, 1e-4, cfg.Diff.Tolerance, 1e-12)
	assert.False(t, cfg.DB.ForceIPv4)
}

func TestLoad_EnvTienePrioridad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("FIFO_BATCH_SIZE", "50")
	t.Setenv("FIFO_OVERSOLD_POLICY", "backfill")
	t.Setenv("DIFF_TOLERANCE", "0.01")
	t.Setenv("REDIS_LOCK_TTL", "10")
	t.Setenv("DB_FORCE_IPV4", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Lock.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 50, cfg.FIFO.BatchSize)
	assert.Equal(t, "backfill", cfg.FIFO.OversoldPolicy)
	assert.InDelta(t, 0.01, cfg.Diff.Tolerance, 1e-12)
	assert.True(t, cfg.DB.ForceIPv4)
}

func TestLoad_ArchivoYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "fifo.yaml")
	require.NoError(t, os.WriteFile(file, []byte("STORE_DRIVER: postgres\nLOCK_BACKEND: postgres\nFIFO_WORKERS: 8\n"), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres", cfg.Lock.Backend)
	assert.Equal(t, 8, cfg.FIFO.Workers)
}

func TestLoad_Invalida(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOCK_BACKEND", "postgres")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("LOCK_BACKEND", "memory")
	t.Setenv("STORE_DRIVER", "mysql")
	_, err = Load("")
	assert.Error(t, err)
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "fifo", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/fifo?sslmode=disable", c.DSN())
	c.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", c.ConnectionString())
}

func TestLoad_AdvisoryRequierePoolSuficiente(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("LOCK_BACKEND", "postgres")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("FIFO_WORKERS", "4")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_CONNS")

	t.Setenv("DB_MAX_CONNS", "8")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.DB.MaxConns)

	// el locker en memoria no retiene conexiones
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("LOCK_BACKEND", "memory")
	_, err = Load("")
	assert.NoError(t, err)
}
