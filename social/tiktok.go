package social

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"synthsite/models"
)

const DefaultTikTokProfileURL = "https://www.tiktok.com/@{user}"

// stateScripts hold the hydration state of a TikTok profile page
var stateScripts = map[string]bool{
	"SIGI_STATE":                         true,
	"__UNIVERSAL_DATA_FOR_REHYDRATION__": true,
}

// TikTokItem is a video found in a profile page
type TikTokItem struct {
	ID          string
	Description string
	CoverURL    string
	URL         string
	// Published is in seconds
	Published int64
}

// ExtractTikTokItems reads the videos of user out of a profile page. Videos
// by other authors are skipped; videos without an author are kept.
func ExtractTikTokItems(page string, user string) []TikTokItem {
	var items []TikTokItem
	for _, payload := range stateScriptPayloads(page) {
		var state any
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			continue
		}
		for _, module := range collectItemModules(state) {
			for _, entry := range module {
				if item, ok := normalizeTikTok(entry, user); ok {
					items = append(items, item)
				}
			}
		}
	}
	return items
}

func stateScriptPayloads(page string) []string {
	var payloads []string
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	inState := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return payloads
		case html.StartTagToken:
			token := tokenizer.Token()
			inState = false
			if token.Data != "script" {
				continue
			}
			for _, attr := range token.Attr {
				if attr.Key == "id" && stateScripts[attr.Val] {
					inState = true
				}
			}
		case html.TextToken:
			if inState {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					payloads = append(payloads, text)
				}
			}
		case html.EndTagToken:
			inState = false
		}
	}
}

// collectItemModules finds every ItemModule map, at any depth
func collectItemModules(node any) []map[string]any {
	var modules []map[string]any
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			if module, ok := value.(map[string]any); ok && (key == "ItemModule" || key == "itemModule") {
				modules = append(modules, module)
				continue
			}
			modules = append(modules, collectItemModules(value)...)
		}
	case []any:
		for _, entry := range v {
			modules = append(modules, collectItemModules(entry)...)
		}
	}
	return modules
}

func normalizeTikTok(entry any, user string) (TikTokItem, bool) {
	data, ok := entry.(map[string]any)
	if !ok {
		return TikTokItem{}, false
	}
	if inner, ok := data["itemStruct"].(map[string]any); ok {
		data = inner
	}

	author := firstString(data, "authorUniqueId", "authorName")
	if author == "" {
		switch a := data["author"].(type) {
		case map[string]any:
			author = firstString(a, "uniqueId")
		case string:
			author = strings.TrimSpace(a)
		}
	}
	if author != "" && !strings.EqualFold(author, user) {
		return TikTokItem{}, false
	}

	id := firstString(data, "id", "itemId")
	coverURL := ""
	if video, ok := data["video"].(map[string]any); ok {
		coverURL = firstString(video, "cover", "originCover", "dynamicCover")
	}
	if strings.HasPrefix(coverURL, "//") {
		coverURL = "https:" + coverURL
	}

	videoURL := firstString(data, "shareUrl")
	if videoURL == "" && id != "" {
		videoURL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", firstNonEmpty(author, user), id)
	}
	if videoURL == "" || coverURL == "" {
		return TikTokItem{}, false
	}

	return TikTokItem{
		ID:          id,
		Description: firstString(data, "desc"),
		CoverURL:    coverURL,
		URL:         videoURL,
		Published:   int64Value(data["createTime"]),
	}, true
}

// fetchTikTok scrapes the profile page and prepares the cover downloads
func (c *Exporter) fetchTikTok(ctx context.Context) ([]pending, error) {
	profileURL := strings.ReplaceAll(c.settings.TikTokProfileURL, "{user}", c.settings.TikTokUser)
	page, err := c.client.getText(ctx, profileURL, map[string]string{"Referer": "https://www.tiktok.com/"})
	if err != nil {
		return nil, fmt.Errorf("fetch tiktok profile: %w", err)
	}

	raw := ExtractTikTokItems(page, c.settings.TikTokUser)
	if c.settings.MaxItems > 0 && len(raw) > c.settings.MaxItems {
		raw = raw[:c.settings.MaxItems]
	}

	var videos []pending
	seen := make(map[string]struct{})
	for _, item := range raw {
		if _, dup := seen[item.URL]; dup {
			continue
		}
		seen[item.URL] = struct{}{}

		id := firstNonEmpty(item.ID, strconv.Itoa(len(seen)))
		description := models.NormalizeText(item.Description)
		title := "TikTok Video"
		if description != "" {
			title = models.Truncate(description, titleLength)
		}

		name := id + ".jpg"
		videos = append(videos, pending{
			item: models.MediaItem{
				Title:       title,
				Description: description,
				Url:         item.URL,
				Thumbnail:   coverPath(c.settings.TikTokCovers, name),
				Source:      models.SourceTikTok,
				Published:   item.Published * 1000,
			},
			coverURL: item.CoverURL,
			name:     name,
			referer:  profileURL,
		})
	}
	return videos, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func int64Value(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}
