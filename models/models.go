package models

import (
	"fmt"
	"strings"
)

// Source identifies the platform a media item was published on
type Source string

const (
	SourceYouTube   Source = "youtube"
	SourceInstagram Source = "instagram"
	SourceTikTok    Source = "tiktok"
	SourceOther     Source = "other"
)

// AllSources lists the sources in display order
var AllSources = []Source{SourceYouTube, SourceInstagram, SourceTikTok, SourceOther}

// ParseSource maps a free-form source tag to a known Source.
// Unknown tags map to SourceOther.
func ParseSource(tag string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(tag))) {
	case SourceYouTube:
		return SourceYouTube
	case SourceInstagram:
		return SourceInstagram
	case SourceTikTok:
		return SourceTikTok
	default:
		return SourceOther
	}
}

// Label is the human readable platform name
func (s Source) Label() string {
	switch s {
	case SourceYouTube:
		return "YouTube"
	case SourceInstagram:
		return "Instagram"
	case SourceTikTok:
		return "TikTok"
	default:
		return "Web"
	}
}

// MediaItem is the normalized shape every platform parser produces.
// Url is the dedup key across all sources.
type MediaItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Url         string `json:"url"`
	Thumbnail   string `json:"thumbnail"`
	Source      Source `json:"source"`
	// Published is an epoch-millis timestamp, 0 if unknown
	Published int64 `json:"published"`
}

func (m MediaItem) String() string {
	return fmt.Sprintf("%s %s (%s)", m.Source, m.Url, m.Title)
}

// HasThumbnail reports whether the item can be rendered as a card
func (m MediaItem) HasThumbnail() bool {
	return strings.TrimSpace(m.Thumbnail) != ""
}
