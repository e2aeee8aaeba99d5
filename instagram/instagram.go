// Package instagram parses the public profile metadata document and fills in
// missing post thumbnails from the oEmbed endpoint.
package instagram

import (
	"encoding/json"
	"fmt"
	"strings"

	"synthsite/models"
)

const (
	titleLength  = 60
	defaultTitle = "Instagram Post"
)

type profileDocument struct {
	Data    *profileRoot `json:"data"`
	Graphql *profileRoot `json:"graphql"`
}

type profileRoot struct {
	User *profileUser `json:"user"`
}

type profileUser struct {
	Timeline struct {
		Edges []struct {
			Node *postNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_owner_to_timeline_media"`
}

type postNode struct {
	Shortcode    string `json:"shortcode"`
	Permalink    string `json:"permalink"`
	DisplayURL   string `json:"display_url"`
	ThumbnailSrc string `json:"thumbnail_src"`
	ThumbnailURL string `json:"thumbnail_url"`
	TakenAt      int64  `json:"taken_at_timestamp"`
	Caption      struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
}

// PostURL is the canonical URL of a post
func PostURL(shortcode string) string {
	return fmt.Sprintf("https://www.instagram.com/p/%s/", shortcode)
}

// MediaURL fetches the post image directly, large size
func MediaURL(shortcode string) string {
	return fmt.Sprintf("https://www.instagram.com/p/%s/media/?size=l", shortcode)
}

// Match accepts payloads that decode into a profile document with a user
func Match(body []byte) (string, bool) {
	var doc profileDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false
	}
	if doc.user() == nil {
		return "", false
	}
	return "json", true
}

func (d profileDocument) user() *profileUser {
	if d.Data != nil && d.Data.User != nil {
		return d.Data.User
	}
	if d.Graphql != nil && d.Graphql.User != nil {
		return d.Graphql.User
	}
	return nil
}

// ParseProfile extracts posts from the profile document. Posts without a
// resolvable URL are dropped; posts with a URL but no thumbnail are kept for
// hydration.
func ParseProfile(body []byte) ([]models.MediaItem, error) {
	var doc profileDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	user := doc.user()
	if user == nil {
		return nil, fmt.Errorf("profile document has no user")
	}

	posts := make([]models.MediaItem, 0, len(user.Timeline.Edges))
	seen := make(map[string]struct{})
	for _, edge := range user.Timeline.Edges {
		post, ok := normalizePost(edge.Node)
		if !ok {
			continue
		}
		if _, dup := seen[post.Url]; dup {
			continue
		}
		seen[post.Url] = struct{}{}
		posts = append(posts, post)
	}
	return posts, nil
}

func normalizePost(node *postNode) (models.MediaItem, bool) {
	if node == nil {
		return models.MediaItem{}, false
	}

	shortcode := strings.TrimSpace(node.Shortcode)
	url := strings.TrimSpace(node.Permalink)
	thumbnail := ""
	if shortcode != "" {
		url = PostURL(shortcode)
		thumbnail = MediaURL(shortcode)
	}
	if thumbnail == "" {
		thumbnail = firstNonEmpty(node.DisplayURL, node.ThumbnailSrc, node.ThumbnailURL)
	}
	if url == "" {
		return models.MediaItem{}, false
	}

	caption := ""
	if len(node.Caption.Edges) > 0 {
		caption = models.NormalizeText(node.Caption.Edges[0].Node.Text)
	}
	title := defaultTitle
	if caption != "" {
		title = models.Truncate(caption, titleLength)
	}

	var published int64
	if node.TakenAt > 0 {
		published = node.TakenAt * 1000
	}

	return models.MediaItem{
		Title:       title,
		Description: caption,
		Url:         url,
		Thumbnail:   thumbnail,
		Source:      models.SourceInstagram,
		Published:   published,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
