package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "clover", cfg.AppName)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "data/clover.db", cfg.StorePath)
	assert.Equal(t, "data/cache", cfg.CacheDir)
	assert.Equal(t, "data/clover.lock", cfg.LockPath())
	assert.Equal(t, []string{"esb_id", "gsis_id", "cfbref_id", "pfr_id", "draft_id"}, cfg.KeyFields)
	assert.Equal(t, []string{"draft", "roster", "player", "map"}, cfg.Sources)
	assert.Equal(t, 2002, cfg.FirstSeason)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOVER_STORE_DRIVER", "file")
	t.Setenv("CLOVER_DATA_DIR", "/tmp/clover")
	t.Setenv("CLOVER_KEY_FIELDS", "gsis_id,pfr_id")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.StoreDriver)
	assert.Equal(t, "/tmp/clover/clover.snapshot.zst", cfg.StorePath)
	assert.Equal(t, []string{"gsis_id", "pfr_id"}, cfg.KeyFields)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "clover.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nfirst_season: 2010\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2010, cfg.FirstSeason)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"CLOVER_STORE_DRIVER": "mongo"}},
		{name: "postgres without dsn", env: map[string]string{"CLOVER_STORE_DRIVER": "postgres"}},
		{name: "duplicate keys", env: map[string]string{"CLOVER_KEY_FIELDS": "gsis_id,gsis_id"}},
		{name: "unknown source", env: map[string]string{"CLOVER_SOURCES": "pbp"}},
		{name: "bad log level", env: map[string]string{"CLOVER_LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Equal(t, 400, httperror.GetStatusCode(err))
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.Equal(t, 400, httperror.GetStatusCode(err))
}

func TestWriteSample(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "nested", "clover.yaml")
	require.NoError(t, WriteSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "store_driver: sqlite")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 2002, cfg.FirstSeason)
	assert.Equal(t, []string{"esb_id", "gsis_id", "cfbref_id", "pfr_id", "draft_id"}, cfg.KeyFields)
}
