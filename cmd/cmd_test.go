package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synthsite/cache"
	"synthsite/config"
)

func TestStarfieldCommandWritesSVG(t *testing.T) {
	output := filepath.Join(t.TempDir(), "stars.svg")
	err := RootApp().Run([]string{"synthsite", "starfield", "--seed", "3", "--frames", "10", "-o", output})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<svg"))
	assert.Contains(t, string(data), "<circle")
}

func TestMigrateAndTidyCommands(t *testing.T) {
	database := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, RootApp().Run([]string{"synthsite", "migrate", "-d", database}))
	require.NoError(t, RootApp().Run([]string{"synthsite", "tidy", "-d", database, "--retention", "1h"}))
	assert.FileExists(t, database)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Cache.Backend = config.BackendMemory
	memory, err := openBackend(cfg)
	require.NoError(t, err)
	assert.Nil(t, memory.run)
	assert.IsType(t, &cache.Memory{}, memory.store)

	cfg.Cache.Backend = config.BackendSqlite
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	sqlite, err := openBackend(cfg)
	require.NoError(t, err)
	defer sqlite.close()
	require.NotNil(t, sqlite.run)

	_, err = sqlite.store.Get(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestControllerSettings(t *testing.T) {
	cfg := config.Default()
	settings := controllerSettings(cfg)

	assert.Equal(t, "iamb_youtube_feed_cache_v1", settings.YouTubeCacheKey)
	assert.Equal(t, "iamb_instagram_feed_cache_v1", settings.InstagramCacheKey)
	assert.Len(t, settings.YouTubeSources, len(cfg.YouTube.Mirrors))
	assert.Equal(t, cfg.YouTubeFeedURL(), settings.YouTubeSources[len(settings.YouTubeSources)-1])
	assert.Equal(t, "assets/social-feed.json", settings.LocalPath)
}
