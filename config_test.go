package lumen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
window_width = 800
window_title = "demo"
debug = true
clear_color = [0.0, 0.0, 0.0, 1.0]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.WindowWidth)
	assert.Equal(t, 720, cfg.WindowHeight, "unset fields keep defaults")
	assert.Equal(t, "demo", cfg.WindowTitle)
	assert.True(t, cfg.Debug)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, cfg.ClearColor)
}

func TestLoadConfig_RejectsBadWindowSize(t *testing.T) {
	path := writeConfig(t, `window_width = -1`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadConfig_BadToml(t *testing.T) {
	path := writeConfig(t, `window_width = `)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1280, cfg.WindowWidth)
	assert.Equal(t, 720, cfg.WindowHeight)
	assert.True(t, cfg.VSync)
}
