// Package localfeed reads the static social feed document shipped with the
// site. The document is either a flat array of entries or an object with one
// array per platform plus a generic "items" array.
package localfeed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"synthsite/models"
	"synthsite/youtube"
)

// RawItem is an undecoded entry tagged with the platform it came from
type RawItem struct {
	Source models.Source
	Fields map[string]any
}

// Document is the keyed form of the feed, as written by the exporter.
// Entries are kept as generic maps so hand-maintained fields survive a rewrite.
type Document struct {
	TikTok    []map[string]any `json:"tiktok"`
	Instagram []map[string]any `json:"instagram"`
	YouTube   []map[string]any `json:"youtube,omitempty"`
	Items     []map[string]any `json:"items"`
}

// Decode splits a payload into tagged raw items, in document order:
// items, youtube, instagram, tiktok. Entries that are not objects are
// skipped; only a payload that is not JSON at all is an error.
func Decode(body []byte) ([]RawItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, fmt.Errorf("decode feed array: %w", err)
		}
		return tagEntries(decodeElements(elements, "array"), ""), nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode feed document: %w", err)
	}

	var raws []RawItem
	raws = append(raws, tagEntries(doc.Items, "")...)
	raws = append(raws, tagEntries(doc.YouTube, models.SourceYouTube)...)
	raws = append(raws, tagEntries(doc.Instagram, models.SourceInstagram)...)
	raws = append(raws, tagEntries(doc.TikTok, models.SourceTikTok)...)
	return raws, nil
}

// UnmarshalJSON reads every section on its own. A section that is not an
// array is treated as empty and entries that are not objects are dropped.
func (d *Document) UnmarshalJSON(data []byte) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return err
	}

	d.TikTok = decodeSection(sections, "tiktok")
	d.Instagram = decodeSection(sections, "instagram")
	d.YouTube = decodeSection(sections, "youtube")
	d.Items = decodeSection(sections, "items")
	return nil
}

func decodeSection(sections map[string]json.RawMessage, name string) []map[string]any {
	data, ok := sections[name]
	if !ok {
		return nil
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		log.WithFields(log.Fields{
			"section": name,
			"error":   err,
		}).Debug("Skipping malformed feed section")
		return nil
	}
	return decodeElements(elements, name)
}

func decodeElements(elements []json.RawMessage, section string) []map[string]any {
	entries := make([]map[string]any, 0, len(elements))
	for i, element := range elements {
		var entry map[string]any
		if err := json.Unmarshal(element, &entry); err != nil {
			log.WithFields(log.Fields{
				"section": section,
				"index":   i,
				"error":   err,
			}).Debug("Skipping malformed feed entry")
			continue
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

// tagEntries tags each entry with source, or with its own "source" field when source is empty
func tagEntries(entries []map[string]any, source models.Source) []RawItem {
	raws := make([]RawItem, 0, len(entries))
	for _, fields := range entries {
		if fields == nil {
			continue
		}
		tag := source
		if tag == "" {
			tag = models.ParseSource(stringField(fields, "source"))
		}
		raws = append(raws, RawItem{Source: tag, Fields: fields})
	}
	return raws
}

// Parse decodes and normalizes a payload. Invalid entries are dropped.
func Parse(body []byte) ([]models.MediaItem, error) {
	raws, err := Decode(body)
	if err != nil {
		return nil, err
	}

	items := make([]models.MediaItem, 0, len(raws))
	for _, raw := range raws {
		if item, ok := Normalize(raw); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

type normalizer func(common) (models.MediaItem, bool)

var normalizers = map[models.Source]normalizer{
	models.SourceYouTube:   normalizeYouTube,
	models.SourceInstagram: withDefaultTitle("Instagram Post"),
	models.SourceTikTok:    withDefaultTitle("TikTok Video"),
	models.SourceOther:     withDefaultTitle(""),
}

// Normalize dispatches on the raw item's source tag
func Normalize(raw RawItem) (models.MediaItem, bool) {
	normalize, ok := normalizers[raw.Source]
	if !ok {
		normalize = normalizers[models.SourceOther]
	}
	return normalize(readCommon(raw))
}

// common holds the attributes shared by every source, after alias resolution
type common struct {
	source    models.Source
	url       string
	thumbnail string
	title     string
	caption   string
	published int64
}

func readCommon(raw RawItem) common {
	return common{
		source:    raw.Source,
		url:       stringField(raw.Fields, "url", "link"),
		thumbnail: stringField(raw.Fields, "thumbnail", "cover"),
		title:     models.NormalizeText(stringField(raw.Fields, "title")),
		caption:   models.NormalizeText(stringField(raw.Fields, "description", "caption")),
		published: publishedField(raw.Fields["published"]),
	}
}

func (c common) item(title string) models.MediaItem {
	return models.MediaItem{
		Title:       title,
		Description: c.caption,
		Url:         c.url,
		Thumbnail:   c.thumbnail,
		Source:      c.source,
		Published:   c.published,
	}
}

func withDefaultTitle(fallback string) normalizer {
	return func(c common) (models.MediaItem, bool) {
		if c.url == "" || c.thumbnail == "" {
			return models.MediaItem{}, false
		}
		title := c.title
		if title == "" && c.caption != "" {
			title = models.Truncate(c.caption, 60)
		}
		if title == "" {
			title = fallback
		}
		return c.item(title), true
	}
}

// normalizeYouTube derives the thumbnail from the watch URL when it is missing
func normalizeYouTube(c common) (models.MediaItem, bool) {
	if c.url != "" && c.thumbnail == "" {
		if videoID := videoIDFromURL(c.url); videoID != "" {
			c.thumbnail = youtube.ThumbnailURL(videoID)
		}
	}
	return withDefaultTitle("YouTube Video")(c)
}

func videoIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if id := u.Query().Get("v"); id != "" {
		return id
	}
	if strings.HasSuffix(u.Host, "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	return ""
}

// stringField returns the first non-empty string value among the aliases
func stringField(fields map[string]any, aliases ...string) string {
	for _, alias := range aliases {
		if value, ok := fields[alias].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

// publishedField accepts epoch millis as number or numeric string, or an RFC 3339 timestamp
func publishedField(value any) int64 {
	switch v := value.(type) {
	case float64:
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int64(v)
	case string:
		v = strings.TrimSpace(v)
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
