/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"synthsite/aggregator"
	"synthsite/cache"
	"synthsite/models"
	"synthsite/render"
)

// fetchCmd runs a single load cycle and prints the result
func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Run one load cycle and print the merged items",
		Description: `Fetches every platform once, exactly like the server does at startup,
and prints the merged items.

Returns each item as a JSON object on a single line. Use a tool like jq to process
the output.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Only print items of these platforms (youtube, instagram, tiktok, other)",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Neither read nor write the feed cache",
			},
			&cli.StringFlag{
				Name:  "html",
				Usage: "Also write the rendered page to this file",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the items
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			var feedCache *cache.FeedCache
			if !ctx.Bool("no-cache") {
				store, err := openBackend(cfg)
				if err != nil {
					return err
				}
				defer store.close()
				if store.run != nil {
					// Writes are flushed when the command returns
					runCtx, cancel := context.WithCancel(ctx.Context)
					done := make(chan struct{})
					go func() {
						store.run(runCtx)
						close(done)
					}()
					defer func() {
						cancel()
						<-done
					}()
				}
				feedCache = cache.NewFeedCache(store.store, cfg.Cache.TTL)
			}

			var renderer aggregator.Renderer = render.Func(func(aggregator.View) {})
			var page *render.HTML
			if ctx.String("html") != "" {
				titles, err := models.NewTitleFormatter(cfg.Site.TitlePrefix)
				if err != nil {
					return fmt.Errorf("invalid title prefix: %w", err)
				}
				if page, err = render.NewHTML(titles, cfg.Site.Language, cfg.Site.Title); err != nil {
					return err
				}
				renderer = page
			}

			client := newFetchClient(cfg)
			controller := aggregator.NewController(client, newHydrator(cfg, client), feedCache, renderer, controllerSettings(cfg))
			if err := controller.Load(ctx.Context, aggregator.LoadOptions{BypassCache: true}); err != nil {
				return err
			}

			if sources := ctx.StringSlice("source"); len(sources) > 0 {
				controller.SetFilters(lo.Map(sources, func(tag string, _ int) models.Source {
					return models.ParseSource(strings.TrimSpace(tag))
				})...)
			}

			view := controller.View()
			for _, item := range view.Grid {
				printStdout(&item)
			}
			log.WithFields(log.Fields{
				"items":  len(controller.Items()),
				"shown":  len(view.Grid),
				"status": view.StatusKind,
			}).Info("Load cycle finished")

			if page != nil {
				if err := os.WriteFile(ctx.String("html"), page.Page(), 0o644); err != nil {
					return fmt.Errorf("write page: %w", err)
				}
			}
			return nil
		},
	}
}

func printStdout(item *models.MediaItem) {
	// Print as single JSON string on a single line
	itemJson, err := json.Marshal(item)
	if err == nil {
		fmt.Println(string(itemJson))
	}
}
