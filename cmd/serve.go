/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"synthsite/aggregator"
	"synthsite/cache"
	"synthsite/models"
	"synthsite/render"
	"synthsite/server"
	"synthsite/starfield"
)

// serveCmd represents the serve command
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the page and its feed API",
		Description: `Starts the HTTP server.

Runs a load cycle at startup and then on the refresh interval. Every rendered
view is pushed to connected browsers over server-sent events. A live starfield
is animated while at least one browser is connected.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname to listen on",
				EnvVars: []string{"SYNTHSITE_HOSTNAME"},
				Value:   "0.0.0.0",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "The port to listen on",
				EnvVars: []string{"SYNTHSITE_PORT"},
				Value:   3000,
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Usage:   "Comma separated CORS origins for the API",
				EnvVars: []string{"SYNTHSITE_ALLOW_ORIGINS"},
			},
			&cli.DurationFlag{
				Name:    "refresh",
				Usage:   "Interval between load cycles, 0 disables refreshing",
				EnvVars: []string{"SYNTHSITE_REFRESH"},
				Value:   30 * time.Minute,
			},
			&cli.StringFlag{
				Name:    "assets",
				Usage:   "Directory served under /assets",
				EnvVars: []string{"SYNTHSITE_ASSETS"},
				Value:   "assets",
			},
			&cli.IntFlag{
				Name:    "starfield-fps",
				Usage:   "Frame rate of the live starfield, 0 disables it",
				EnvVars: []string{"SYNTHSITE_STARFIELD_FPS"},
				Value:   30,
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			titles, err := models.NewTitleFormatter(cfg.Site.TitlePrefix)
			if err != nil {
				return fmt.Errorf("invalid title prefix: %w", err)
			}
			page, err := render.NewHTML(titles, cfg.Site.Language, cfg.Site.Title)
			if err != nil {
				return err
			}

			store, err := openBackend(cfg)
			if err != nil {
				return err
			}
			defer store.close()

			runCtx, cancel := context.WithCancel(ctx.Context)
			defer cancel()
			var wg sync.WaitGroup

			if store.run != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					store.run(runCtx)
				}()
			}

			client := newFetchClient(cfg)
			broadcaster := server.NewBroadcaster(page)
			controller := aggregator.NewController(
				client,
				newHydrator(cfg, client),
				cache.NewFeedCache(store.store, cfg.Cache.TTL),
				render.Multi{page, broadcaster},
				controllerSettings(cfg),
			)

			var surface *starfield.SVG
			if fps := ctx.Int("starfield-fps"); fps > 0 {
				surface = starfield.NewSVG()
				scheduler := starfield.NewLoopScheduler(time.Second / time.Duration(fps))
				defer scheduler.Close()

				field := starfield.NewField(surface, scheduler)
				field.Resize(1280, 720, 1)
				field.SetVisible(false)
				field.Start()
				defer field.Stop()

				// Only animate for an audience
				broadcaster.OnClientCount(func(count int) {
					field.SetVisible(count > 0)
				})
			}

			app := server.Server(&server.ServerConfig{
				Feed:         controller,
				Page:         page,
				Broadcaster:  broadcaster,
				Starfield:    surface,
				Assets:       os.DirFS(ctx.String("assets")),
				AllowOrigins: ctx.String("allow-origins"),
			})

			wg.Add(1)
			go func() {
				defer wg.Done()
				refresh(runCtx, controller, ctx.Duration("refresh"))
			}()

			// Graceful shutdown
			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-signals
				log.Info("Gracefully shutting down...")
				cancel()
				broadcaster.Shutdown()
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.WithError(err).Error("Error shutting down server")
				}
			}()

			addr := fmt.Sprintf("%s:%d", ctx.String("hostname"), ctx.Int("port"))
			log.WithField("addr", addr).Info("Starting server")
			err = app.Listen(addr)

			cancel()
			wg.Wait()
			log.Info("Done!")
			return err
		},
	}
}

// refresh runs a load cycle now and then on every tick until ctx is done
func refresh(ctx context.Context, controller *aggregator.Controller, interval time.Duration) {
	load := func(opts aggregator.LoadOptions) {
		err := controller.Load(ctx, opts)
		switch {
		case err == nil:
		case errors.Is(err, aggregator.ErrLoadInProgress):
			log.Debug("Skipping refresh, a load cycle is running")
		default:
			log.WithError(err).Error("Load cycle failed")
		}
	}

	load(aggregator.LoadOptions{})
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The page already shows the previous cycle, no need to repaint from cache
			load(aggregator.LoadOptions{BypassCache: true})
		}
	}
}
