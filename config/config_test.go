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
	t.Setenv(EnvHost, "")
	t.Setenv(EnvDownloadDir, "")
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	want := &Config{
		Host:           "bridge.lan:8080",
		DownloadDir:    "/tmp/pb",
		LogPath:        "/tmp/pblogs",
		RequestTimeout: "2s",
	}
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 2*time.Second, got.Timeout())
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download_dir: /data\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.4.1", cfg.Host)
	assert.Equal(t, "/data", cfg.DownloadDir)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: from-file\n"), 0644))

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv(EnvHost, "from-env")
		t.Setenv(EnvDownloadDir, "/env/dl")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Host)
		assert.Equal(t, "/env/dl", cfg.DownloadDir)
	})

	t.Run("empty env leaves file value", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Host)
	})
}

func TestInvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("host: [unclosed\n"), 0644))
	_, err := Load(bad)
	assert.Error(t, err)

	timeout := filepath.Join(dir, "timeout.yaml")
	require.NoError(t, os.WriteFile(timeout, []byte("request_timeout: soon\n"), 0644))
	_, err = Load(timeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestDefaultPathEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/pbterm.yaml")
	assert.Equal(t, "/etc/pbterm.yaml", DefaultPath())
}
