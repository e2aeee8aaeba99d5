// Package aggregator merges the platform feeds into one recency ordered list
// and drives the progressive render of a load cycle: cache, skeleton, live.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"synthsite/cache"
	"synthsite/fetch"
	"synthsite/instagram"
	"synthsite/localfeed"
	"synthsite/models"
	"synthsite/youtube"
)

// ErrLoadInProgress is returned when Load is called while a cycle is running
var ErrLoadInProgress = errors.New("load already in progress")

var (
	loadCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthsite_load_cycles_total",
		Help: "Load cycles by outcome",
	}, []string{"outcome"})

	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synthsite_load_duration_seconds",
		Help:    "Duration of a complete load cycle",
		Buckets: prometheus.DefBuckets,
	})

	platformItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "synthsite_platform_items",
		Help: "Items contributed by each platform in the last load cycle",
	}, []string{"platform"})
)

// Fetcher is the network capability a load cycle needs
type Fetcher interface {
	Resolve(ctx context.Context, sources []string, match fetch.Matcher) (*fetch.Result, bool)
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Hydrator fills in missing thumbnails and drops what it cannot fill
type Hydrator interface {
	Hydrate(ctx context.Context, posts []models.MediaItem) []models.MediaItem
}

// Renderer receives every view the controller produces
type Renderer interface {
	Render(view View)
}

// Settings name the sources and cache slots of a load cycle
type Settings struct {
	YouTubeSources   []string
	InstagramSources []string
	// LocalPath takes precedence over LocalURL
	LocalPath string
	LocalURL  string

	YouTubeCacheKey   string
	InstagramCacheKey string
}

// LoadOptions tune a single cycle
type LoadOptions struct {
	// BypassCache skips the optimistic render from cache
	BypassCache bool
}

type state int

const (
	stateIdle state = iota
	stateLoading
)

// Controller owns the merged items, the active filters and the load guard
type Controller struct {
	fetcher  Fetcher
	hydrator Hydrator
	cache    *cache.FeedCache
	renderer Renderer
	settings Settings

	mu       sync.Mutex
	state    state
	items    []models.MediaItem
	filters  FilterSet
	rendered bool
	cycles   int64
	view     View
}

func NewController(fetcher Fetcher, hydrator Hydrator, feedCache *cache.FeedCache, renderer Renderer, settings Settings) *Controller {
	c := &Controller{
		fetcher:  fetcher,
		hydrator: hydrator,
		cache:    feedCache,
		renderer: renderer,
		settings: settings,
		filters:  AllFilters(),
	}
	c.view = buildView(PhaseIdle, nil, c.filters, 0)
	return c
}

// Load runs one cycle. A call while another cycle runs returns
// ErrLoadInProgress and has no other effect.
func (c *Controller) Load(ctx context.Context, opts LoadOptions) error {
	c.mu.Lock()
	if c.state == stateLoading {
		c.mu.Unlock()
		loadCycles.WithLabelValues("rejected").Inc()
		return ErrLoadInProgress
	}
	c.state = stateLoading
	c.cycles++
	cycle := c.cycles
	c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.mu.Lock()
		c.state = stateIdle
		c.mu.Unlock()
		loadDuration.Observe(time.Since(start).Seconds())
	}()

	logger := log.WithFields(log.Fields{
		"cycle":  cycle,
		"bypass": opts.BypassCache,
	})
	logger.Info("Starting load cycle")

	cachedYouTube := c.cachedYouTube(ctx)
	cachedInstagram, _ := c.cache.LoadItems(ctx, c.settings.InstagramCacheKey)

	if !opts.BypassCache {
		if cached := Merge(cachedYouTube, cachedInstagram); len(cached) > 0 {
			c.publish(PhaseCache, cached)
		}
	}

	c.mu.Lock()
	showSkeleton := !c.rendered
	c.mu.Unlock()
	if showSkeleton {
		c.publish(PhaseSkeleton, nil)
	}

	var youTubeItems, localItems, instagramItems []models.MediaItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		youTubeItems = c.loadYouTube(gctx, cachedYouTube)
		return nil
	})
	g.Go(func() error {
		localItems = c.loadLocal(gctx)
		return nil
	})
	g.Go(func() error {
		instagramItems = c.loadInstagram(gctx, cachedInstagram)
		return nil
	})
	_ = g.Wait()

	platformItems.WithLabelValues(string(models.SourceYouTube)).Set(float64(len(youTubeItems)))
	platformItems.WithLabelValues("local").Set(float64(len(localItems)))
	platformItems.WithLabelValues(string(models.SourceInstagram)).Set(float64(len(instagramItems)))

	merged := Merge(youTubeItems, localItems, instagramItems)
	c.publish(PhaseLive, merged)

	outcome := "ok"
	if len(merged) == 0 {
		outcome = "empty"
	}
	loadCycles.WithLabelValues(outcome).Inc()
	logger.WithFields(log.Fields{
		"youtube":   len(youTubeItems),
		"local":     len(localItems),
		"instagram": len(instagramItems),
		"merged":    len(merged),
		"duration":  time.Since(start),
	}).Info("Load cycle finished")

	return nil
}

// Retry runs a full cycle without the optimistic cache render
func (c *Controller) Retry(ctx context.Context) error {
	return c.Load(ctx, LoadOptions{BypassCache: true})
}

// Toggle flips a source filter and re-renders from the items in memory
func (c *Controller) Toggle(source models.Source) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filters.Toggle(source)
	phase := c.view.Phase
	if phase == PhaseIdle {
		phase = PhaseLive
	}
	return c.renderLocked(phase)
}

// SetFilters replaces the active filter set and re-renders
func (c *Controller) SetFilters(sources ...models.Source) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filters = NewFilterSet(sources...)
	phase := c.view.Phase
	if phase == PhaseIdle {
		phase = PhaseLive
	}
	return c.renderLocked(phase)
}

// View returns the last rendered snapshot
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Items returns the merged items of the last cycle
func (c *Controller) Items() []models.MediaItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.MediaItem(nil), c.items...)
}

// Cycles counts the load cycles started so far
func (c *Controller) Cycles() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// Loading reports whether a cycle is running
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateLoading
}

func (c *Controller) publish(phase Phase, items []models.MediaItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if phase != PhaseSkeleton {
		c.items = items
		c.rendered = len(items) > 0
	}
	c.renderLocked(phase)
}

// renderLocked must be called with c.mu held
func (c *Controller) renderLocked(phase Phase) View {
	c.view = buildView(phase, c.items, c.filters.clone(), c.cycles)
	if c.renderer != nil {
		c.renderer.Render(c.view)
	}
	return c.view
}

func (c *Controller) cachedYouTube(ctx context.Context) []models.MediaItem {
	text, format, ok := c.cache.LoadText(ctx, c.settings.YouTubeCacheKey)
	if !ok {
		return nil
	}
	items, err := youtube.Parse(text, format)
	if err != nil {
		log.WithError(err).Debug("Ignoring unreadable cached YouTube feed")
		return nil
	}
	return items
}

// loadYouTube races the feed mirrors and falls back to the cached feed
func (c *Controller) loadYouTube(ctx context.Context, cached []models.MediaItem) []models.MediaItem {
	if len(c.settings.YouTubeSources) == 0 {
		return cached
	}

	result, ok := c.fetcher.Resolve(ctx, c.settings.YouTubeSources, youtube.Match)
	if !ok {
		log.WithField("cached", len(cached)).Warn("YouTube feed unavailable, using cache")
		return cached
	}

	items, err := youtube.Parse(string(result.Body), result.Format)
	if err != nil || len(items) == 0 {
		log.WithFields(log.Fields{
			"source": result.Source,
			"error":  err,
		}).Warn("YouTube feed had no usable entries, using cache")
		return cached
	}

	c.cache.SaveText(ctx, c.settings.YouTubeCacheKey, string(result.Body), result.Format)
	return items
}

// loadInstagram fetches the profile document, hydrates thumbnails and falls back to cache
func (c *Controller) loadInstagram(ctx context.Context, cached []models.MediaItem) []models.MediaItem {
	if len(c.settings.InstagramSources) == 0 {
		return cached
	}

	result, ok := c.fetcher.Resolve(ctx, c.settings.InstagramSources, instagram.Match)
	if !ok {
		log.WithField("cached", len(cached)).Warn("Instagram profile unavailable, using cache")
		return cached
	}

	posts, err := instagram.ParseProfile(result.Body)
	if err != nil {
		log.WithError(err).Warn("Instagram profile unreadable, using cache")
		return cached
	}

	if c.hydrator != nil {
		posts = c.hydrator.Hydrate(ctx, posts)
	} else {
		posts = withThumbnails(posts)
	}
	if len(posts) == 0 {
		return cached
	}

	c.cache.SaveItems(ctx, c.settings.InstagramCacheKey, posts)
	return posts
}

// loadLocal reads the static feed document from disk or from its URL
func (c *Controller) loadLocal(ctx context.Context) []models.MediaItem {
	body, err := c.readLocal(ctx)
	if err != nil {
		log.WithError(err).Warn("Local feed unavailable")
		return nil
	}
	if body == nil {
		return nil
	}

	items, err := localfeed.Parse(body)
	if err != nil {
		log.WithError(err).Warn("Local feed unreadable")
		return nil
	}
	return items
}

func (c *Controller) readLocal(ctx context.Context) ([]byte, error) {
	switch {
	case c.settings.LocalPath != "":
		body, err := os.ReadFile(c.settings.LocalPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read local feed: %w", err)
		}
		return body, nil
	case c.settings.LocalURL != "":
		return c.fetcher.Fetch(ctx, c.settings.LocalURL)
	default:
		return nil, nil
	}
}

func withThumbnails(items []models.MediaItem) []models.MediaItem {
	kept := items[:0:0]
	for _, item := range items {
		if item.HasThumbnail() {
			kept = append(kept, item)
		}
	}
	return kept
}
