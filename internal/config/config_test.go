package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, "config.yaml", "database:\n  path: "+filepath.Join(dir, "db", "s.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Locks.Backend)
	assert.Equal(t, 366, cfg.Generation.MaxRangeDays)
	assert.Equal(t, 90, cfg.API.MaxRangeDays)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 30*time.Second, cfg.LockTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SALON_REDIS_ADDR", "localhost:6379")
	t.Setenv("SALON_TZ", "Europe/Berlin")
	dir := t.TempDir()
	path := writeFile(t, "config.yaml", `
database:
  path: `+filepath.Join(dir, "s.db")+`
redis:
  address: ${SALON_REDIS_ADDR}
timezone: ${SALON_TZ}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "failover", cfg.Locks.Backend, "redis address switches the default lock backend")
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	db := "database:\n  path: " + filepath.Join(dir, "s.db") + "\n"

	tests := []struct {
		name string
		body string
		want string
	}{
		{"redis backend without address", db + "locks:\n  backend: redis\n", "requires redis.address"},
		{"unknown backend", db + "locks:\n  backend: etcd\n", "unknown backend"},
		{"bad timezone", db + "timezone: Mars/Olympus\n", "timezone"},
		{"bad log format", db + "logging:\n  format: xml\n", "logging.format"},
		{"sheets without credentials", db + "sheets:\n  enabled: true\n  spreadsheet_id: abc\n", "credentials_file"},
		{"horizon past generation limit", db + "generation:\n  horizon_days: 400\n  max_range_days: 90\n", "exceeds generation.max_range_days"},
		{"horizon past default limit", db + "generation:\n  horizon_days: 367\n", "exceeds generation.max_range_days (366)"},
		{"negative horizon", db + "generation:\n  horizon_days: -1\n", "horizon_days cannot be negative"},
		{"broken yaml", "server: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
