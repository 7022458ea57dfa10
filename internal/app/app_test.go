// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholar-cites/internal/app"
	"github.com/JakeFAU/scholar-cites/internal/config"
	"github.com/JakeFAU/scholar-cites/internal/logging"
)

func TestMain(m *testing.M) {
	logging.InitLogger()
	m.Run()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	pubs := filepath.Join(dir, "publications.yaml")
	pubsYAML := `
- key: k1
  title: Paper one
  authors: ["A Author"]
`
	require.NoError(t, os.WriteFile(pubs, []byte(pubsYAML), 0o600))

	return config.Config{
		Scholar: config.ScholarConfig{
			Active:             false,
			FetchTimeout:       168 * time.Hour,
			MaxEntriesPerBatch: 10,
			RequestTimeout:     30 * time.Second,
			UserAgent:          "test-agent",
		},
		Cache:        config.CacheConfig{Path: filepath.Join(dir, "google_scholar_cache.yaml")},
		Bibliography: config.BibliographyConfig{Path: pubs},
		Server:       config.ServerConfig{Host: "127.0.0.1", Port: 8077},
	}
}

// TestBuildWiresServices builds the container once for the whole package;
// the Prometheus progress sink registers on the default registry and would
// collide on a second Build in the same process.
func TestBuildWiresServices(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := app.Build(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.NotNil(t, a.GetLogger())
	assert.NotNil(t, a.GetStore())
	assert.NotNil(t, a.GetSource())
	assert.Equal(t, cfg.Cache.Path, a.GetConfig().Cache.Path)

	summary, err := a.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Disabled)
	assert.Zero(t, summary.Queries)

	// The inactive run still persists the cache file.
	_, statErr := os.Stat(cfg.Cache.Path)
	assert.NoError(t, statErr)

	cc, err := a.GetStore().Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, cc.Len())

	require.NoError(t, a.Close(ctx))
}

func TestBuildFailsOnMissingCachePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Path = ""

	_, err := app.Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache store init failed")
}

func TestBuildFailsOnMissingBibliographyPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bibliography.Path = ""

	_, err := app.Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bibliography source init failed")
}

func TestBuildFailsOnBadProxyURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Proxy.Enabled = true
	cfg.Proxy.URLs = []string{"ftp://proxy.example:21"}

	_, err := app.Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "egress rotator init failed")
}
