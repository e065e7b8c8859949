package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/killallgit/strand/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	cfg := config.Get()
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8315", cfg.Relay.Listen)
	assert.Equal(t, 5*time.Minute, cfg.Relay.Timeout)
	assert.Equal(t, 33*time.Millisecond, cfg.Render.Interval)
	assert.False(t, cfg.Render.Instant)
	assert.Equal(t, 2*time.Second, cfg.Persist.Debounce)
	assert.NotEmpty(t, cfg.Persist.Path)
	assert.NotEmpty(t, cfg.Blob.Directory)
}

func TestLoadFromFile(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")
	content := []byte(`
logging:
  level: debug
relay:
  listen: ":9000"
render:
  interval: 50ms
persist:
  debounce: 750ms
`)
	require.NoError(t, os.WriteFile(cfgPath, content, 0644))
	require.NoError(t, config.Load(cfgPath))

	cfg := config.Get()
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9000", cfg.Relay.Listen)
	assert.Equal(t, 50*time.Millisecond, cfg.Render.Interval)
	assert.Equal(t, 750*time.Millisecond, cfg.Persist.Debounce)

	// Untouched keys keep their defaults
	assert.Equal(t, "http://localhost:11434", cfg.Upstream.URL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	require.NoError(t, config.Load(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, "info", config.Get().Logging.Level)
}

func TestBuildSettingsPath(t *testing.T) {
	p := config.BuildSettingsPath("strand.log")
	assert.Equal(t, "strand.log", filepath.Base(p))
	assert.Contains(t, p, ".strand")
}
