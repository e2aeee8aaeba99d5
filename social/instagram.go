package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"synthsite/instagram"
	"synthsite/models"
)

const (
	DefaultInstagramProfileURL = "https://www.instagram.com/api/v1/users/web_profile_info/?username={username}"
	DefaultInstagramFeedURL    = "https://www.instagram.com/api/v1/feed/user/{id}/?count=50"

	carouselMediaType = 8
	titleLength       = 60
)

// pending is an exported item waiting for its cover image
type pending struct {
	item     models.MediaItem
	coverURL string
	// name of the local cover file
	name    string
	referer string
}

type igProfile struct {
	Data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"data"`
}

type igFeedPage struct {
	Items         []json.RawMessage `json:"items"`
	MoreAvailable bool              `json:"more_available"`
	NextMaxID     string            `json:"next_max_id"`
}

type igCandidates struct {
	Candidates []struct {
		URL string `json:"url"`
	} `json:"candidates"`
}

type igCaption struct {
	Text string `json:"text"`
}

type igMedia struct {
	Code          string        `json:"code"`
	Shortcode     string        `json:"shortcode"`
	MediaType     int           `json:"media_type"`
	TakenAt       int64         `json:"taken_at"`
	TakenAtStamp  int64         `json:"taken_at_timestamp"`
	Caption       *igCaption    `json:"caption"`
	ThumbnailURL  string        `json:"thumbnail_url"`
	Carousel      []igMedia     `json:"carousel_media"`
	ImageVersions *igCandidates `json:"image_versions2"`
}

func (c *Exporter) instagramHeaders() map[string]string {
	return map[string]string{
		"X-IG-App-ID": c.settings.InstagramAppID,
		"Referer":     fmt.Sprintf("https://www.instagram.com/%s/", c.settings.InstagramUser),
	}
}

// instagramUserID resolves the numeric user id from the profile endpoint
func (c *Exporter) instagramUserID(ctx context.Context) (string, error) {
	if c.settings.InstagramUserID != "" {
		return c.settings.InstagramUserID, nil
	}

	endpoint := strings.ReplaceAll(c.settings.InstagramProfileURL, "{username}", url.QueryEscape(c.settings.InstagramUser))
	var profile igProfile
	if err := c.client.getJSON(ctx, endpoint, c.instagramHeaders(), &profile); err != nil {
		return "", fmt.Errorf("resolve instagram user id: %w", err)
	}
	if profile.Data.User.ID == "" {
		return "", fmt.Errorf("instagram profile for %s has no user id", c.settings.InstagramUser)
	}
	return profile.Data.User.ID, nil
}

// fetchInstagram pages through the user feed. It fails only when not a single
// page could be read; later page failures keep what was collected.
func (c *Exporter) fetchInstagram(ctx context.Context) ([]pending, error) {
	userID, err := c.instagramUserID(ctx)
	if err != nil {
		return nil, err
	}

	feedURL := strings.ReplaceAll(c.settings.InstagramFeedURL, "{id}", url.PathEscape(userID))
	var posts []pending
	seen := make(map[string]struct{})
	maxID := ""

	for {
		pageURL := feedURL
		if maxID != "" {
			pageURL += "&max_id=" + url.QueryEscape(maxID)
		}

		var page igFeedPage
		if err := c.client.getJSON(ctx, pageURL, c.instagramHeaders(), &page); err != nil {
			if len(posts) == 0 {
				return nil, fmt.Errorf("fetch instagram feed: %w", err)
			}
			log.WithError(err).Warn("Instagram pagination stopped early")
			return posts, nil
		}

		for _, raw := range page.Items {
			var media igMedia
			if err := json.Unmarshal(raw, &media); err != nil {
				continue
			}
			post, ok := normalizeInstagram(media, c.settings.InstagramCovers)
			if !ok {
				continue
			}
			if _, dup := seen[post.item.Url]; dup {
				continue
			}
			seen[post.item.Url] = struct{}{}
			posts = append(posts, post)
			if c.limitReached(len(posts)) {
				return posts, nil
			}
		}

		if !page.MoreAvailable || page.NextMaxID == "" {
			return posts, nil
		}
		maxID = page.NextMaxID
	}
}

func normalizeInstagram(media igMedia, coverDir string) (pending, bool) {
	shortcode := strings.TrimSpace(media.Code)
	if shortcode == "" {
		shortcode = strings.TrimSpace(media.Shortcode)
	}
	if shortcode == "" {
		return pending{}, false
	}

	coverURL := ""
	if media.MediaType == carouselMediaType && len(media.Carousel) > 0 {
		coverURL = instagramCover(media.Carousel[0])
	}
	if coverURL == "" {
		coverURL = instagramCover(media)
	}
	if coverURL == "" {
		return pending{}, false
	}

	caption := ""
	if media.Caption != nil {
		caption = models.NormalizeText(media.Caption.Text)
	}
	title := "Instagram Post"
	if caption != "" {
		title = models.Truncate(caption, titleLength)
	}

	published := media.TakenAt
	if published == 0 {
		published = media.TakenAtStamp
	}

	name := shortcode + ".jpg"
	return pending{
		item: models.MediaItem{
			Title:       title,
			Description: caption,
			Url:         instagram.PostURL(shortcode),
			Thumbnail:   coverPath(coverDir, name),
			Source:      models.SourceInstagram,
			Published:   published * 1000,
		},
		coverURL: coverURL,
		name:     name,
		referer:  "https://www.instagram.com/",
	}, true
}

func instagramCover(media igMedia) string {
	if media.ImageVersions != nil && len(media.ImageVersions.Candidates) > 0 {
		if u := strings.TrimSpace(media.ImageVersions.Candidates[0].URL); u != "" {
			return u
		}
	}
	return strings.TrimSpace(media.ThumbnailURL)
}
