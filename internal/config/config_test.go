package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Scrape.MaxPages)
	assert.InDelta(t, 1.5, cfg.Scrape.MinDelaySeconds, 0.001)
	assert.InDelta(t, 3.5, cfg.Scrape.MaxDelaySeconds, 0.001)
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 1200*time.Millisecond, cfg.HTTP.BackoffBase())
	assert.Equal(t, 30*time.Second, cfg.HTTP.RetryAfterFallback())
	assert.Equal(t, "avis", cfg.DocStore.Table)
	assert.Equal(t, 1000, cfg.DocStore.ChunkSize)
	assert.Equal(t, "avis", cfg.Search.Index)
	assert.Equal(t, 500, cfg.Search.ChunkSize)
	assert.Equal(t, "data/raw", cfg.Data.RawDir)
	assert.Equal(t, "data/clean", cfg.Data.CleanDir)
}

func TestLoadFromFile(t *testing.T) {
	content := `
scrape:
  base_url: https://example.com/review/acme
  max_pages: 3
docstore:
  dsn: postgres://localhost/avis
search:
  addresses:
    - http://localhost:9200
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/review/acme", cfg.Scrape.BaseURL)
	assert.Equal(t, 3, cfg.Scrape.MaxPages)
	assert.Equal(t, "postgres://localhost/avis", cfg.DocStore.DSN)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Search.Addresses)
	// Unset keys keep their defaults.
	assert.Equal(t, 1000, cfg.DocStore.ChunkSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Scrape.MaxPages = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Scrape.MinDelaySeconds = 5
	bad.Scrape.MaxDelaySeconds = 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.HTTP.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.DocStore.ChunkSize = 0
	assert.Error(t, bad.Validate())
}

func TestDelayWindow(t *testing.T) {
	cfg := ScrapeConfig{MinDelaySeconds: 1.5, MaxDelaySeconds: 3.5}
	minDelay, maxDelay := cfg.DelayWindow()
	assert.Equal(t, 1500*time.Millisecond, minDelay)
	assert.Equal(t, 3500*time.Millisecond, maxDelay)
}
