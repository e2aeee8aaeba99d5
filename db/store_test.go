package db_test

import (
	"bytes"
	"context"
	"path/filepath"
	"synthsite/cache"
	"synthsite/db"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*db.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrMiss)

	value := bytes.Repeat([]byte("<entry>video</entry>"), 200)
	require.NoError(t, store.Set(ctx, "iamb_youtube_feed_cache_v1", value))

	got, err := store.Get(ctx, "iamb_youtube_feed_cache_v1")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	// replace keeps one row per key
	require.NoError(t, store.Set(ctx, "iamb_youtube_feed_cache_v1", []byte("new")))
	got, err = store.Get(ctx, "iamb_youtube_feed_cache_v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"iamb_youtube_feed_cache_v1"}, keys)
}

func TestStoreBacksFeedCache(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	c := cache.NewFeedCache(store, cache.DefaultTTL)
	c.SaveText(ctx, "yt", "<feed/>", "xml")

	text, format, ok := c.LoadText(ctx, "yt")
	require.True(t, ok)
	assert.Equal(t, "<feed/>", text)
	assert.Equal(t, "xml", format)
}

func TestTidyRemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	store, path := openStore(t)

	require.NoError(t, store.Set(ctx, "fresh", []byte("x")))

	removed, err := store.Tidy(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	// a negative retention puts the cutoff in the future
	require.NoError(t, db.Tidy(path, -time.Hour))
	_, err = store.Get(ctx, "fresh")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestMigrateIsIdempotent(t *testing.T) {
	_, path := openStore(t)
	assert.NoError(t, db.Migrate(path))
}

func TestWriterFlushesQueue(t *testing.T) {
	store, _ := openStore(t)
	writer := db.NewWriter(store, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		writer.Subscribe(ctx)
		close(done)
	}()

	require.NoError(t, writer.Set(context.Background(), "ig", []byte("[]")))

	assert.Eventually(t, func() bool {
		got, err := writer.Get(context.Background(), "ig")
		return err == nil && string(got) == "[]"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
