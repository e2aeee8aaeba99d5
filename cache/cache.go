// Package cache persists raw feed payloads between load cycles. Caching is
// best effort: every storage or decoding failure reads as a miss and is never
// returned to the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"synthsite/models"
)

const (
	DefaultTTL = 6 * time.Hour

	// FormatItems tags payloads holding already parsed media items
	FormatItems = "items"
)

// ErrMiss is returned by stores when a key is absent
var ErrMiss = errors.New("cache miss")

// KeyValueStore is the storage capability the cache is built on
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Envelope is the persisted shape of a cache slot
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Format    string          `json:"format"`
	Timestamp int64           `json:"timestamp"`
}

var (
	cacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthsite_cache_reads_total",
		Help: "Cache reads by outcome",
	}, []string{"outcome"})

	cacheWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthsite_cache_write_errors_total",
		Help: "Cache writes that failed and were ignored",
	})
)

// FeedCache stores one envelope per platform key
type FeedCache struct {
	store KeyValueStore
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*FeedCache)

// WithClock replaces time.Now, used by tests
func WithClock(now func() time.Time) Option {
	return func(c *FeedCache) { c.now = now }
}

func NewFeedCache(store KeyValueStore, ttl time.Duration, opts ...Option) *FeedCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &FeedCache{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// load returns a fresh, structurally valid envelope or false
func (c *FeedCache) load(ctx context.Context, key string) (Envelope, bool) {
	if c == nil || c.store == nil {
		return Envelope{}, false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.WithFields(log.Fields{
				"key":   key,
				"error": err,
			}).Debug("Cache read failed")
		}
		cacheReads.WithLabelValues("miss").Inc()
		return Envelope{}, false
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		cacheReads.WithLabelValues("corrupt").Inc()
		return Envelope{}, false
	}
	if len(env.Payload) == 0 || env.Format == "" || env.Timestamp <= 0 {
		cacheReads.WithLabelValues("corrupt").Inc()
		return Envelope{}, false
	}

	age := c.now().Sub(time.UnixMilli(env.Timestamp))
	if age > c.ttl {
		cacheReads.WithLabelValues("stale").Inc()
		return Envelope{}, false
	}

	cacheReads.WithLabelValues("hit").Inc()
	return env, true
}

func (c *FeedCache) save(ctx context.Context, key string, payload any, format string) {
	if c == nil || c.store == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		cacheWriteErrors.Inc()
		return
	}
	data, err := json.Marshal(Envelope{
		Payload:   raw,
		Format:    format,
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		cacheWriteErrors.Inc()
		return
	}

	if err := c.store.Set(ctx, key, data); err != nil {
		cacheWriteErrors.Inc()
		log.WithFields(log.Fields{
			"key":   key,
			"error": err,
		}).Debug("Cache write failed")
	}
}

// LoadText returns a cached raw text payload and its format tag
func (c *FeedCache) LoadText(ctx context.Context, key string) (text string, format string, ok bool) {
	env, ok := c.load(ctx, key)
	if !ok {
		return "", "", false
	}
	if err := json.Unmarshal(env.Payload, &text); err != nil || text == "" {
		return "", "", false
	}
	return text, env.Format, true
}

// SaveText stores a raw text payload
func (c *FeedCache) SaveText(ctx context.Context, key, text, format string) {
	c.save(ctx, key, text, format)
}

// LoadItems returns cached parsed items
func (c *FeedCache) LoadItems(ctx context.Context, key string) ([]models.MediaItem, bool) {
	env, ok := c.load(ctx, key)
	if !ok || env.Format != FormatItems {
		return nil, false
	}
	var items []models.MediaItem
	if err := json.Unmarshal(env.Payload, &items); err != nil {
		return nil, false
	}
	return items, true
}

// SaveItems stores parsed items
func (c *FeedCache) SaveItems(ctx context.Context, key string, items []models.MediaItem) {
	c.save(ctx, key, items, FormatItems)
}
