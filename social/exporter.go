package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"synthsite/instagram"
	"synthsite/localfeed"
	"synthsite/models"
)

type Settings struct {
	InstagramUser       string
	InstagramUserID     string
	InstagramAppID      string
	InstagramProfileURL string
	InstagramFeedURL    string
	TikTokUser          string
	TikTokProfileURL    string

	// MaxItems limits each platform, 0 means unlimited
	MaxItems int
	// Output is the feed document that is read and rewritten
	Output string

	InstagramCovers string
	TikTokCovers    string

	// Workers download covers in parallel
	Workers int
}

// Exporter refreshes the platform sections of the static feed document
type Exporter struct {
	settings Settings
	client   *Client
}

func NewExporter(settings Settings, client *Client) *Exporter {
	if settings.InstagramProfileURL == "" {
		settings.InstagramProfileURL = DefaultInstagramProfileURL
	}
	if settings.InstagramFeedURL == "" {
		settings.InstagramFeedURL = DefaultInstagramFeedURL
	}
	if settings.TikTokProfileURL == "" {
		settings.TikTokProfileURL = DefaultTikTokProfileURL
	}
	if settings.Workers <= 0 {
		settings.Workers = 4
	}
	if client == nil {
		client = NewClient(nil, "", 0, 2)
	}
	return &Exporter{settings: settings, client: client}
}

func (c *Exporter) limitReached(n int) bool {
	return c.settings.MaxItems > 0 && n >= c.settings.MaxItems
}

// coverPath is the site relative thumbnail path of a cover file
func coverPath(dir, name string) string {
	return path.Join(filepath.ToSlash(dir), name)
}

// Run exports both platforms and writes the document. Hand maintained
// entries in the existing document are kept: "items" untouched, TikTok
// entries merged behind the scraped ones, Instagram entries as fallback.
func (c *Exporter) Run(ctx context.Context) (*localfeed.Document, error) {
	existing := LoadDocument(c.settings.Output)

	var instagramEntries []map[string]any
	posts, err := c.fetchInstagram(ctx)
	if err != nil {
		log.WithError(err).Warn("Instagram export failed, keeping previous entries")
		instagramEntries = existing.Instagram
		if len(instagramEntries) == 0 {
			instagramEntries = coverEntries(c.settings.InstagramCovers)
		}
	} else {
		instagramEntries = entries(c.downloadCovers(ctx, posts, c.settings.InstagramCovers))
		log.WithField("count", len(instagramEntries)).Info("Exported Instagram posts")
	}

	var tiktokEntries []map[string]any
	videos, err := c.fetchTikTok(ctx)
	if err != nil {
		log.WithError(err).Warn("TikTok export failed")
	} else {
		tiktokEntries = entries(c.downloadCovers(ctx, videos, c.settings.TikTokCovers))
	}
	log.WithField("count", len(tiktokEntries)).Info("Exported TikTok videos")

	doc := &localfeed.Document{
		TikTok:    MergeEntries(tiktokEntries, existing.TikTok),
		Instagram: MergeEntries(instagramEntries, nil),
		Items:     existing.Items,
	}
	if err := WriteDocument(c.settings.Output, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadDocument reads the document at path. Missing or malformed files yield an empty document.
func LoadDocument(path string) *localfeed.Document {
	doc := &localfeed.Document{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Warn("Failed to read feed document")
		}
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		log.WithError(err).Warn("Ignoring malformed feed document")
		return &localfeed.Document{}
	}
	return doc
}

// WriteDocument writes doc as indented JSON. Absent sections are written as empty arrays.
func WriteDocument(path string, doc *localfeed.Document) error {
	out := *doc
	out.TikTok = nonNil(out.TikTok)
	out.Instagram = nonNil(out.Instagram)
	out.Items = nonNil(out.Items)

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode feed document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// MergeEntries concatenates both lists keeping the first entry for each url.
// Entries without a url are dropped.
func MergeEntries(primary, secondary []map[string]any) []map[string]any {
	withURL := lo.Filter(lo.Flatten([][]map[string]any{primary, secondary}), func(entry map[string]any, _ int) bool {
		return entryURL(entry) != ""
	})
	return lo.UniqBy(withURL, entryURL)
}

func entryURL(entry map[string]any) string {
	u, _ := entry["url"].(string)
	return u
}

// coverEntries rebuilds Instagram entries from previously downloaded covers
func coverEntries(dir string) []map[string]any {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	var result []map[string]any
	for _, match := range matches {
		name := filepath.Base(match)
		shortcode := strings.TrimSuffix(name, ".jpg")
		if shortcode == "" {
			continue
		}
		result = append(result, entry(models.MediaItem{
			Title:     "Instagram Post",
			Url:       instagram.PostURL(shortcode),
			Thumbnail: coverPath(dir, name),
			Source:    models.SourceInstagram,
		}))
	}
	return result
}

func entries(items []models.MediaItem) []map[string]any {
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		result = append(result, entry(item))
	}
	return result
}

func entry(item models.MediaItem) map[string]any {
	return map[string]any{
		"source":      string(item.Source),
		"url":         item.Url,
		"thumbnail":   item.Thumbnail,
		"title":       item.Title,
		"description": item.Description,
		"published":   item.Published,
	}
}

func nonNil(entries []map[string]any) []map[string]any {
	if entries == nil {
		return []map[string]any{}
	}
	return entries
}
