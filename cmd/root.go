/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "synthsite",
		Usage: "The IAMB Synthmusic page with its aggregated social feed",
		Description: `Serves the IAMB Synthmusic page: a starfield background behind a
		media grid that merges the YouTube channel, the Instagram profile and the
		social feed document shipped with the site.

		Feeds are fetched by racing a list of relays, cached for six hours and
		rendered with platform filters. The update command refreshes the feed
		document at build time.

		Flags can generally be set via environment variables, e.g.:

		--config => SYNTHSITE_CONFIG=site.toml
		--port => SYNTHSITE_PORT=3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the site configuration file",
				EnvVars: []string{"SYNTHSITE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level: debug, info, warn, error",
				EnvVars: []string{"SYNTHSITE_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			fetchCmd(),
			updateCmd(),
			starfieldCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			initCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
