package aggregator_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"synthsite/aggregator"
	"synthsite/cache"
	"synthsite/fetch"
	"synthsite/models"
	"synthsite/youtube"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jinaFeed = "yt:video:AAAAAAAAAAA AAAAAAAAAAA UCVV-a7quRaRVbh6bfrUVx4A Studio Session\n" +
	"yt:video:BBBBBBBBBBB BBBBBBBBBBB UCVV-a7quRaRVbh6bfrUVx4A Live Set\n"

// stubFetcher answers Resolve by the first source of the list
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	block     chan struct{}
	calls     int
}

func (s *stubFetcher) Resolve(ctx context.Context, sources []string, match fetch.Matcher) (*fetch.Result, bool) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	if len(sources) == 0 {
		return nil, false
	}
	body, ok := s.responses[sources[0]]
	if !ok {
		return nil, false
	}
	format, ok := match([]byte(body))
	if !ok {
		return nil, false
	}
	return &fetch.Result{Body: []byte(body), Format: format, Source: sources[0]}, true
}

func (s *stubFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	body, ok := s.responses[source]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(body), nil
}

type recorder struct {
	mu    sync.Mutex
	views []aggregator.View
}

func (r *recorder) Render(view aggregator.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, view)
}

func (r *recorder) phases() []aggregator.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := make([]aggregator.Phase, len(r.views))
	for i, v := range r.views {
		phases[i] = v.Phase
	}
	return phases
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func writeLocal(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "social-feed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func settings(local string) aggregator.Settings {
	return aggregator.Settings{
		YouTubeSources:    []string{"yt-direct", "yt-mirror"},
		InstagramSources:  []string{"ig-profile"},
		LocalPath:         local,
		YouTubeCacheKey:   "test_youtube_feed_cache_v1",
		InstagramCacheKey: "test_instagram_feed_cache_v1",
	}
}

func TestNoContentOfferRetry(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{responses: map[string]string{"ig-profile": ""}}
	rec := &recorder{}
	feedCache := cache.NewFeedCache(cache.NewMemory(), cache.DefaultTTL)

	c := aggregator.NewController(fetcher, nil, feedCache, rec, settings(writeLocal(t, "[]")))
	require.NoError(t, c.Load(ctx, aggregator.LoadOptions{}))

	assert.Equal(t, []aggregator.Phase{aggregator.PhaseSkeleton, aggregator.PhaseLive}, rec.phases())

	view := c.View()
	assert.Equal(t, aggregator.StatusNoContent, view.StatusKind)
	assert.NotEmpty(t, view.StatusText)
	assert.True(t, view.Retry)
	assert.Nil(t, view.Latest)
	assert.Empty(t, view.Grid)

	before := c.Cycles()
	require.NoError(t, c.Retry(ctx))
	assert.Equal(t, before+1, c.Cycles())
}

func TestCachedFeedSurvivesNetworkFailure(t *testing.T) {
	ctx := context.Background()
	feedCache := cache.NewFeedCache(cache.NewMemory(), cache.DefaultTTL)
	feedCache.SaveText(ctx, "test_youtube_feed_cache_v1", jinaFeed, youtube.FormatJina)

	rec := &recorder{}
	c := aggregator.NewController(&stubFetcher{}, nil, feedCache, rec, settings(""))
	require.NoError(t, c.Load(ctx, aggregator.LoadOptions{}))

	// cache render replaces the skeleton
	assert.Equal(t, []aggregator.Phase{aggregator.PhaseCache, aggregator.PhaseLive}, rec.phases())

	view := c.View()
	assert.Equal(t, aggregator.StatusNone, view.StatusKind)
	assert.False(t, view.Retry)
	require.NotNil(t, view.Latest)
	assert.Equal(t, youtube.WatchURL("AAAAAAAAAAA"), view.Latest.Url)
	assert.Len(t, view.Grid, 2)
}

func TestLiveLoadMergesAndPersists(t *testing.T) {
	ctx := context.Background()
	profile := `{"data":{"user":{"edge_owner_to_timeline_media":{"edges":[
		{"node":{"shortcode":"IG1","taken_at_timestamp":1700000000}}
	]}}}}`
	fetcher := &stubFetcher{responses: map[string]string{
		"yt-direct":  jinaFeed,
		"ig-profile": profile,
	}}
	local := writeLocal(t, `{"tiktok":[{"url":"https://www.tiktok.com/@x/video/1","thumbnail":"t.jpg","published":1800000000000}]}`)

	store := cache.NewMemory()
	feedCache := cache.NewFeedCache(store, cache.DefaultTTL)
	c := aggregator.NewController(fetcher, nil, feedCache, &recorder{}, settings(local))
	require.NoError(t, c.Load(ctx, aggregator.LoadOptions{}))

	items := c.Items()
	require.Len(t, items, 4)
	assert.Equal(t, models.SourceTikTok, items[0].Source)
	assert.Equal(t, models.SourceInstagram, items[1].Source)
	assert.Equal(t, models.SourceYouTube, items[2].Source)

	text, format, ok := feedCache.LoadText(ctx, "test_youtube_feed_cache_v1")
	assert.True(t, ok)
	assert.Equal(t, jinaFeed, text)
	assert.Equal(t, youtube.FormatJina, format)

	cached, ok := feedCache.LoadItems(ctx, "test_instagram_feed_cache_v1")
	assert.True(t, ok)
	assert.Len(t, cached, 1)
}

func TestToggleRendersFromMemory(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{responses: map[string]string{"yt-direct": jinaFeed}}
	rec := &recorder{}
	c := aggregator.NewController(fetcher, nil, nil, rec, settings(""))
	require.NoError(t, c.Load(ctx, aggregator.LoadOptions{}))
	calls := fetcher.calls

	view := c.Toggle(models.SourceYouTube)
	assert.Equal(t, aggregator.StatusNoMatches, view.StatusKind)
	assert.Empty(t, view.Grid)
	// latest ignores the filters
	assert.NotNil(t, view.Latest)

	view = c.SetFilters()
	assert.Equal(t, aggregator.StatusNoFilters, view.StatusKind)

	view = c.Toggle(models.SourceYouTube)
	assert.Equal(t, aggregator.StatusNone, view.StatusKind)
	assert.Len(t, view.Grid, 2)

	assert.Equal(t, calls, fetcher.calls)
	assert.Equal(t, c.View(), rec.views[len(rec.views)-1])
}

func TestConcurrentLoadIsRejected(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{block: make(chan struct{})}
	rec := &recorder{}
	c := aggregator.NewController(fetcher, nil, nil, rec, settings(""))

	done := make(chan error)
	go func() { done <- c.Load(ctx, aggregator.LoadOptions{}) }()

	require.Eventually(t, c.Loading, time.Second, time.Millisecond)
	renders := rec.count()

	assert.ErrorIs(t, c.Load(ctx, aggregator.LoadOptions{}), aggregator.ErrLoadInProgress)
	assert.Equal(t, int64(1), c.Cycles())
	assert.Equal(t, renders, rec.count())

	close(fetcher.block)
	require.NoError(t, <-done)
	assert.False(t, c.Loading())
}
