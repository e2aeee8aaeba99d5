// Package youtube turns a channel feed payload into media items. Two payload
// formats are understood: the Atom document served by YouTube and the plain
// text rendering some relays return instead.
package youtube

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/samber/lo"

	"synthsite/models"
)

const (
	FormatXML  = "xml"
	FormatJina = "jina"

	defaultTitle = "Neues Video"
)

var jinaPattern = regexp.MustCompile(`yt:video:([A-Za-z0-9_-]{11})\s+[A-Za-z0-9_-]{11}\s+UC[\w-]{22}\s+([^\n]+)`)

// Match recognizes a feed payload. It is used as the race matcher.
func Match(body []byte) (string, bool) {
	if bytes.Contains(body, []byte("<feed")) {
		return FormatXML, true
	}
	if bytes.Contains(body, []byte("yt:video:")) {
		return FormatJina, true
	}
	return "", false
}

// Parse dispatches on the payload format
func Parse(text string, format string) ([]models.MediaItem, error) {
	switch format {
	case FormatXML:
		return ParseAtom(text)
	case FormatJina:
		return ParseJina(text), nil
	default:
		return nil, fmt.Errorf("unknown feed format %q", format)
	}
}

// WatchURL is the canonical URL for a video id
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ThumbnailURL is the high quality default thumbnail for a video id
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
}

// ParseAtom parses the channel Atom feed. Entries without a resolvable URL
// are skipped; duplicates by URL keep the first entry.
func ParseAtom(text string) ([]models.MediaItem, error) {
	feed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}

	videos := make([]models.MediaItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}

		videoID := extensionValue(entry.Extensions, "yt", "videoId")
		if videoID == "" {
			videoID = strings.TrimPrefix(entry.GUID, "yt:video:")
			if videoID == entry.GUID {
				videoID = ""
			}
		}

		url := entry.Link
		if url == "" && videoID != "" {
			url = WatchURL(videoID)
		}
		if url == "" {
			continue
		}

		title := models.NormalizeText(entry.Title)
		if title == "" {
			title = defaultTitle
		}

		description := models.NormalizeText(mediaGroupValue(entry.Extensions, "description"))
		if description == "" {
			description = models.NormalizeText(entry.Description)
		}

		thumbnail := mediaGroupAttr(entry.Extensions, "thumbnail", "url")
		if thumbnail == "" && videoID != "" {
			thumbnail = ThumbnailURL(videoID)
		}

		var published int64
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UnixMilli()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UnixMilli()
		}

		videos = append(videos, models.MediaItem{
			Title:       title,
			Description: description,
			Url:         url,
			Thumbnail:   thumbnail,
			Source:      models.SourceYouTube,
			Published:   published,
		})
	}

	return lo.UniqBy(videos, func(v models.MediaItem) string { return v.Url }), nil
}

// ParseJina extracts videos from the plain text rendering of the feed.
// Publish times are not part of this format and stay 0.
func ParseJina(text string) []models.MediaItem {
	matches := jinaPattern.FindAllStringSubmatch(text, -1)
	videos := make([]models.MediaItem, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))

	for _, match := range matches {
		videoID := match[1]
		if _, ok := seen[videoID]; ok {
			continue
		}
		seen[videoID] = struct{}{}

		title := models.NormalizeText(strings.ReplaceAll(match[2], `"`, ""))
		if title == "" {
			title = defaultTitle
		}
		videos = append(videos, models.MediaItem{
			Title:     title,
			Url:       WatchURL(videoID),
			Thumbnail: ThumbnailURL(videoID),
			Source:    models.SourceYouTube,
		})
	}

	return videos
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	values := exts[prefix][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// mediaGroupChild finds a media:* element either inside media:group or at entry level
func mediaGroupChild(exts ext.Extensions, name string) (ext.Extension, bool) {
	media := exts["media"]
	for _, group := range media["group"] {
		if children := group.Children[name]; len(children) > 0 {
			return children[0], true
		}
	}
	if direct := media[name]; len(direct) > 0 {
		return direct[0], true
	}
	return ext.Extension{}, false
}

func mediaGroupValue(exts ext.Extensions, name string) string {
	child, ok := mediaGroupChild(exts, name)
	if !ok {
		return ""
	}
	return child.Value
}

func mediaGroupAttr(exts ext.Extensions, name, attr string) string {
	child, ok := mediaGroupChild(exts, name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(child.Attrs[attr])
}
