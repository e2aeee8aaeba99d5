/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"synthsite/social"
)

// updateCmd refreshes the social feed document
func updateCmd() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Export Instagram and TikTok into the social feed document",
		Description: `Refreshes the social feed document shipped with the site.

Reads the Instagram user feed and the TikTok profile page, downloads every
cover next to the document and rewrites the "instagram" and "tiktok" sections.
Entries maintained by hand are kept: the "items" section is never touched,
manual TikTok entries are merged behind the exported ones and previous
Instagram entries are kept when Instagram cannot be reached.

Meant to run on a schedule before the site is built.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Feed document to rewrite, defaults to exporter.output",
				EnvVars: []string{"SYNTHSITE_OUTPUT"},
			},
			&cli.IntFlag{
				Name:    "max-items",
				Usage:   "Items per platform, 0 means no limit. Defaults to exporter.max_items",
				EnvVars: []string{"SOCIAL_FEED_MAX_ITEMS"},
				Value:   -1,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel cover downloads",
				Value: 4,
			},
			&cli.Uint64Flag{
				Name:  "retries",
				Usage: "Retries per request on server errors",
				Value: 2,
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			exp := cfg.Exporter
			if output := ctx.String("output"); output != "" {
				exp.Output = output
			}
			if maxItems := ctx.Int("max-items"); maxItems >= 0 {
				exp.MaxItems = maxItems
			}

			client := social.NewClient(nil, "", exp.Timeout, ctx.Uint64("retries"))
			exporter := social.NewExporter(social.Settings{
				InstagramUser:   exp.InstagramUser,
				InstagramUserID: exp.InstagramUserID,
				InstagramAppID:  exp.InstagramAppID,
				TikTokUser:      exp.TikTokUser,
				MaxItems:        exp.MaxItems,
				Output:          exp.Output,
				InstagramCovers: exp.InstagramCovers,
				TikTokCovers:    exp.TikTokCovers,
				Workers:         ctx.Int("workers"),
			}, client)

			doc, err := exporter.Run(ctx.Context)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"output":    exp.Output,
				"instagram": len(doc.Instagram),
				"tiktok":    len(doc.TikTok),
				"items":     len(doc.Items),
			}).Info("Social feed updated")
			return nil
		},
	}
}
