package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minirel.yaml")
	content := `
app_name: demo
storage:
  dir: /tmp/demo_data
  pool_frames: 512
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.AppName)
	require.Equal(t, "/tmp/demo_data", cfg.Storage.Dir)
	require.Equal(t, 512, cfg.Storage.PoolFrames)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minirel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: partial\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "partial", cfg.AppName)
	require.Equal(t, "minirel_data", cfg.Storage.Dir)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
