/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"synthsite/aggregator"
	"synthsite/cache"
	"synthsite/config"
	"synthsite/db"
	"synthsite/fetch"
	"synthsite/instagram"
	"synthsite/redisstore"
)

// loadConfig reads the file named by the global --config flag, or the defaults
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	path := ctx.String("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"config":  path,
		"backend": cfg.Cache.Backend,
	}).Debug("Configuration loaded")
	return cfg, nil
}

// backend is an opened cache store and how to release it
type backend struct {
	store cache.KeyValueStore
	// run processes queued writes until ctx is done, when the store needs it
	run   func(ctx context.Context)
	close func() error
}

func openBackend(cfg *config.TomlConfig) (*backend, error) {
	switch cfg.Cache.Backend {
	case config.BackendSqlite:
		store, err := db.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open cache database: %w", err)
		}
		writer := db.NewWriter(store, cfg.Cache.TTL)
		return &backend{store: writer, run: writer.Subscribe, close: store.Close}, nil

	case config.BackendRedis:
		store := redisstore.New(cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err := store.Ping(context.Background()); err != nil {
			// The feed cache treats a broken store as a miss, so serving can go on
			log.WithError(err).Warn("Redis is unreachable, feed cache will miss")
		}
		return &backend{store: store, close: store.Close}, nil

	default:
		return &backend{store: cache.NewMemory(), close: func() error { return nil }}, nil
	}
}

func newFetchClient(cfg *config.TomlConfig) *fetch.Client {
	return fetch.NewClient(cfg.Fetch.Timeout,
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithStrategy(fetch.StrategyByName(cfg.Fetch.Strategy)),
	)
}

// newHydrator is nil when no embed endpoint is configured, leaving only posts with thumbnails
func newHydrator(cfg *config.TomlConfig, client *fetch.Client) aggregator.Hydrator {
	if cfg.Instagram.OEmbedURL == "" {
		return nil
	}
	return instagram.NewHydrator(client, cfg.Instagram.OEmbedURL, cfg.Instagram.Mirrors)
}

func controllerSettings(cfg *config.TomlConfig) aggregator.Settings {
	return aggregator.Settings{
		YouTubeSources:    cfg.YouTubeSources(),
		InstagramSources:  cfg.InstagramSources(),
		LocalPath:         cfg.Local.Path,
		LocalURL:          cfg.Local.URL,
		YouTubeCacheKey:   cfg.CacheKey("youtube"),
		InstagramCacheKey: cfg.CacheKey("instagram"),
	}
}
