package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.VideoPort)
	assert.Equal(t, 9998, cfg.CommandPort)
	assert.Equal(t, 9997, cfg.DiscoveryPort)
	assert.Equal(t, 50, cfg.JPEGQuality)
	assert.Equal(t, 10*time.Millisecond, cfg.FrameInterval())
	assert.Equal(t, 3*time.Second, cfg.ScanDuration())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"width": 1280, "jpeg_quality": 70, "name": "office"}`), 0600))

	t.Setenv("LANSHARE_JPEG_QUALITY", "85")
	t.Setenv("LANSHARE_COMMAND_PORT", "7000")
	t.Setenv("SS_INPUT_DEBUG", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 85, cfg.JPEGQuality)
	assert.Equal(t, 7000, cfg.CommandPort)
	assert.Equal(t, 8192, cfg.ChunkSize)
	assert.True(t, cfg.InputDebug)
	assert.Equal(t, "office", cfg.DisplayName())
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"jpeg_quality": 101}`), 0600))
	_, err := Load(bad)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0600))
	_, err = Load(broken)
	assert.Error(t, err)

	t.Setenv("LANSHARE_VIDEO_PORT", "many")
	_, err = Load(filepath.Join(dir, "none.json"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.Monitor = 1
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, back.Monitor)
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Default().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { reloaded <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	cfg := Default()
	cfg.JPEGQuality = 33
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-reloaded:
		assert.Equal(t, 33, c.JPEGQuality)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	assert.NoError(t, <-done)
}
