package instagram

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"synthsite/config"
	"synthsite/fetch"
	"synthsite/models"
)

// maxConcurrentHydrations bounds the oEmbed lookups in flight
const maxConcurrentHydrations = 4

// Resolver returns the first accepted payload out of a list of sources
type Resolver interface {
	Resolve(ctx context.Context, sources []string, match fetch.Matcher) (*fetch.Result, bool)
}

// Hydrator fills in missing thumbnails from the embed metadata endpoint
type Hydrator struct {
	resolver Resolver
	// endpoint references {url}, the escaped post URL
	endpoint string
	mirrors  []string
}

func NewHydrator(resolver Resolver, endpoint string, mirrors []string) *Hydrator {
	return &Hydrator{resolver: resolver, endpoint: endpoint, mirrors: mirrors}
}

type oembed struct {
	ThumbnailURL string `json:"thumbnail_url"`
}

func matchOEmbed(body []byte) (string, bool) {
	var doc oembed
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false
	}
	return "oembed", strings.TrimSpace(doc.ThumbnailURL) != ""
}

func (h *Hydrator) sources(postURL string) []string {
	target := strings.ReplaceAll(h.endpoint, "{url}", url.QueryEscape(postURL))
	sources := config.ExpandMirrors(h.mirrors, target)
	return append(sources, target)
}

// Hydrate returns a copy of posts where missing thumbnails were looked up.
// Posts that still lack a thumbnail are excluded from the result.
func (h *Hydrator) Hydrate(ctx context.Context, posts []models.MediaItem) []models.MediaItem {
	hydrated := make([]models.MediaItem, len(posts))
	copy(hydrated, posts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentHydrations)

	for i := range hydrated {
		if hydrated[i].HasThumbnail() {
			continue
		}
		g.Go(func() error {
			result, ok := h.resolver.Resolve(gctx, h.sources(hydrated[i].Url), matchOEmbed)
			if !ok {
				log.WithFields(log.Fields{
					"url": hydrated[i].Url,
				}).Debug("No thumbnail found for post")
				return nil
			}
			var doc oembed
			if err := json.Unmarshal(result.Body, &doc); err == nil {
				hydrated[i].Thumbnail = strings.TrimSpace(doc.ThumbnailURL)
			}
			return nil
		})
	}
	_ = g.Wait()

	return lo.Filter(hydrated, func(item models.MediaItem, _ int) bool {
		return item.HasThumbnail()
	})
}
