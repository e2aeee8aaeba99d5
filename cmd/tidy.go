/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"synthsite/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the cache database",
		Description: `Tidy up the cache database by removing entries that are old.

		Entries older than the retention are never served, since the feed cache
		treats them as misses, so they only take up space.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:  "retention",
				Usage: "Keep entries written within this window, defaults to cache.ttl",
			},
		},
		Action: func(ctx *cli.Context) error {
			database, err := databasePath(ctx)
			if err != nil {
				return err
			}

			retention := ctx.Duration("retention")
			if retention <= 0 {
				cfg, err := loadConfig(ctx)
				if err != nil {
					return err
				}
				retention = cfg.Cache.TTL
			}

			fmt.Println("Database configured: ", database)
			return db.Tidy(database, retention)
		},
	}
}
