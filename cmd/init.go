/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"synthsite/config"
)

// initCmd writes a configuration file from a few questions
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create a site configuration file",
		Description: `Asks for the channel, the profiles and the cache backend and writes
a configuration file with every other value set to its default.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "site.toml",
				Usage:   "Path of the configuration file to create",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(ctx *cli.Context) error {
			output := ctx.String("output")
			if _, err := os.Stat(output); err == nil && !ctx.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite it", output)
			}

			cfg := config.Default()

			channel, err := prompt.New().Ask("YouTube channel id:").Input(cfg.YouTube.ChannelID)
			if err != nil {
				return err
			}
			instagramUser, err := prompt.New().Ask("Instagram username:").Input(cfg.Instagram.Username)
			if err != nil {
				return err
			}
			tiktokUser, err := prompt.New().Ask("TikTok username:").Input(cfg.Exporter.TikTokUser)
			if err != nil {
				return err
			}
			cacheBackend, err := prompt.New().Ask("Cache backend:").Choose([]string{
				config.BackendSqlite,
				config.BackendRedis,
				config.BackendMemory,
			})
			if err != nil {
				return err
			}

			if channel == "" {
				return errors.New("a YouTube channel id is required")
			}
			cfg.YouTube.ChannelID = channel
			cfg.Instagram.Username = instagramUser
			cfg.Exporter.InstagramUser = instagramUser
			cfg.Exporter.TikTokUser = tiktokUser
			cfg.Cache.Backend = cacheBackend

			if cacheBackend == config.BackendRedis {
				addr, err := prompt.New().Ask("Redis address:").Input(cfg.Cache.RedisAddr)
				if err != nil {
					return err
				}
				cfg.Cache.RedisAddr = addr
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Write(output); err != nil {
				return err
			}
			fmt.Println("Configuration written to", output)
			return nil
		},
	}
}
