package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlSite holds page level settings
type TomlSite struct {
	// Namespace prefixes every cache key
	Namespace string `toml:"namespace"`
	// TitlePrefix is a regular expression stripped from the start of video titles
	TitlePrefix string `toml:"title_prefix"`
	// Language is used for the html lang attribute
	Language string `toml:"language"`
	Title    string `toml:"title"`
}

// TomlYouTube configures the channel feed and its mirrors
type TomlYouTube struct {
	ChannelID string `toml:"channel_id"`
	// FeedURL may reference {channel}
	FeedURL string `toml:"feed_url"`
	// Mirrors are relay templates. {url} is replaced by the query-escaped feed URL,
	// {raw} by the feed URL as is. The direct feed URL is not added implicitly.
	Mirrors []string `toml:"mirrors"`
}

// TomlInstagram configures the profile source
type TomlInstagram struct {
	Username string `toml:"username"`
	// ProfileURL may reference {username}
	ProfileURL string   `toml:"profile_url"`
	Mirrors    []string `toml:"mirrors"`
	// OEmbedURL may reference {url} (escaped post URL)
	OEmbedURL string `toml:"oembed_url"`
}

// TomlLocal points at the generic local feed document
type TomlLocal struct {
	// Path of the JSON document on disk. Takes precedence over URL.
	Path string `toml:"path"`
	URL  string `toml:"url"`
}

// TomlFetch tunes the race fetcher
type TomlFetch struct {
	Timeout time.Duration `toml:"timeout"`
	// Strategy is "race" or "sequential"
	Strategy  string `toml:"strategy"`
	UserAgent string `toml:"user_agent"`
}

// TomlCache selects the key value backend for feed caching
type TomlCache struct {
	// Backend is "sqlite", "redis" or "memory"
	Backend   string        `toml:"backend"`
	Path      string        `toml:"path"`
	RedisAddr string        `toml:"redis_addr"`
	TTL       time.Duration `toml:"ttl"`
}

// TomlExporter configures the build-time social feed exporter
type TomlExporter struct {
	InstagramUser   string        `toml:"instagram_user"`
	InstagramUserID string        `toml:"instagram_user_id"`
	InstagramAppID  string        `toml:"instagram_app_id"`
	TikTokUser      string        `toml:"tiktok_user"`
	MaxItems        int           `toml:"max_items"`
	Timeout         time.Duration `toml:"timeout"`
	Output          string        `toml:"output"`
	InstagramCovers string        `toml:"instagram_covers"`
	TikTokCovers    string        `toml:"tiktok_covers"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Site      TomlSite      `toml:"site"`
	YouTube   TomlYouTube   `toml:"youtube"`
	Instagram TomlInstagram `toml:"instagram"`
	Local     TomlLocal     `toml:"local"`
	Fetch     TomlFetch     `toml:"fetch"`
	Cache     TomlCache     `toml:"cache"`
	Exporter  TomlExporter  `toml:"exporter"`
}

const (
	StrategyRace       = "race"
	StrategySequential = "sequential"

	BackendSqlite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns the configuration used when no file is given
func Default() *TomlConfig {
	return &TomlConfig{
		Site: TomlSite{
			Namespace:   "iamb",
			TitlePrefix: `(?i)^iamb\s*synthmusic\s*[-–—:]\s*`,
			Language:    "de",
			Title:       "IAMB Synthmusic",
		},
		YouTube: TomlYouTube{
			ChannelID: "UCVV-a7quRaRVbh6bfrUVx4A",
			FeedURL:   "https://www.youtube.com/feeds/videos.xml?channel_id={channel}",
			Mirrors: []string{
				"https://api.allorigins.win/raw?url={url}",
				"https://cors.isomorphic-git.org/{raw}",
				"https://corsproxy.io/?{url}",
				"https://r.jina.ai/{raw}",
				"{raw}",
			},
		},
		Instagram: TomlInstagram{
			Username:   "iamb.synthmusic",
			ProfileURL: "https://www.instagram.com/api/v1/users/web_profile_info/?username={username}",
			Mirrors: []string{
				"https://api.allorigins.win/raw?url={url}",
				"https://corsproxy.io/?{url}",
			},
			OEmbedURL: "https://api.instagram.com/oembed/?url={url}",
		},
		Local: TomlLocal{
			Path: "assets/social-feed.json",
		},
		Fetch: TomlFetch{
			Timeout:   4500 * time.Millisecond,
			Strategy:  StrategyRace,
			UserAgent: "synthsite/1.0",
		},
		Cache: TomlCache{
			Backend:   BackendSqlite,
			Path:      "cache.db",
			RedisAddr: "localhost:6379",
			TTL:       6 * time.Hour,
		},
		Exporter: TomlExporter{
			InstagramUser:   "iamb.synthmusic",
			InstagramAppID:  "936619743392459",
			TikTokUser:      "iamb.synthmusic",
			Timeout:         20 * time.Second,
			Output:          "assets/social-feed.json",
			InstagramCovers: "assets/ig-covers",
			TikTokCovers:    "assets/tiktok-covers",
		},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// Validate checks the values that cannot be defaulted
func (c *TomlConfig) Validate() error {
	var errs []error
	if c.Site.Namespace == "" {
		errs = append(errs, errors.New("site.namespace must not be empty"))
	}
	if c.YouTube.ChannelID == "" {
		errs = append(errs, errors.New("youtube.channel_id must not be empty"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.Strategy != StrategyRace && c.Fetch.Strategy != StrategySequential {
		errs = append(errs, fmt.Errorf("fetch.strategy %q is not one of race, sequential", c.Fetch.Strategy))
	}
	switch c.Cache.Backend {
	case BackendSqlite, BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of sqlite, redis, memory", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	return errors.Join(errs...)
}

// Write encodes the configuration as TOML to path
func (c *TomlConfig) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// YouTubeFeedURL is the direct channel feed URL
func (c *TomlConfig) YouTubeFeedURL() string {
	return strings.ReplaceAll(c.YouTube.FeedURL, "{channel}", url.QueryEscape(c.YouTube.ChannelID))
}

// YouTubeSources expands the mirror templates for the channel feed, in order
func (c *TomlConfig) YouTubeSources() []string {
	return ExpandMirrors(c.YouTube.Mirrors, c.YouTubeFeedURL())
}

// InstagramProfileURL is the direct profile metadata URL
func (c *TomlConfig) InstagramProfileURL() string {
	return strings.ReplaceAll(c.Instagram.ProfileURL, "{username}", url.QueryEscape(c.Instagram.Username))
}

// InstagramSources expands the mirror templates for the profile endpoint
func (c *TomlConfig) InstagramSources() []string {
	return ExpandMirrors(c.Instagram.Mirrors, c.InstagramProfileURL())
}

// CacheKey namespaces a per-platform cache slot
func (c *TomlConfig) CacheKey(platform string) string {
	return fmt.Sprintf("%s_%s_feed_cache_v1", c.Site.Namespace, platform)
}

// ExpandMirrors substitutes target into every template. Empty templates are skipped.
func ExpandMirrors(templates []string, target string) []string {
	replacer := strings.NewReplacer("{url}", url.QueryEscape(target), "{raw}", target)
	sources := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		if strings.TrimSpace(tmpl) == "" {
			continue
		}
		sources = append(sources, replacer.Replace(tmpl))
	}
	return sources
}
