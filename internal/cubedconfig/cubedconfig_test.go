package cubedconfig_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedlayer/cubed/internal/cubedconfig"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := cubedconfig.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./schema", cfg.SchemaDir)
	assert.Equal(t, "mysql", cfg.Backend)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 3600*time.Second, cfg.CacheTTL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cubed.yaml")
	body := "schema_dir: ./cubes\nbackend: dolt\ncache_backend: redis\ncache_address: localhost:6379\ncache_ttl_seconds: 120\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := cubedconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./cubes", cfg.SchemaDir)
	assert.Equal(t, "dolt", cfg.Backend)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, "localhost:6379", cfg.CacheAddress)
	assert.Equal(t, 120*time.Second, cfg.CacheTTL)
}

func TestWriteSnapshotRoundTrips(t *testing.T) {
	cfg := &cubedconfig.Config{SchemaDir: "./cubes", Backend: "dolt", CacheTTL: 30 * time.Second}
	path := filepath.Join(t.TempDir(), "snapshot.toml")
	require.NoError(t, cubedconfig.WriteSnapshot(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema_dir")
}
