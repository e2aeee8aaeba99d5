package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"synthsite/aggregator"
	"synthsite/models"
	"synthsite/starfield"
)

// Feed is what the HTTP layer needs from the aggregator
type Feed interface {
	View() aggregator.View
	Items() []models.MediaItem
	Toggle(source models.Source) aggregator.View
	Retry(ctx context.Context) error
}

// Page serves the last rendered page
type Page interface {
	Render(view aggregator.View)
	Page() []byte
}

type ServerConfig struct {
	Feed Feed
	Page Page

	// Broadcast channel to pass views to SSE clients
	Broadcaster *Broadcaster

	// Starfield is the live animated surface. Without it /starfield.svg renders snapshots.
	Starfield *starfield.SVG

	// Assets are served under /assets when set
	Assets fs.FS

	AllowOrigins string
	// RetryTimeout bounds a load cycle started over HTTP
	RetryTimeout time.Duration
}

const (
	maxSnapshotWidth  = 3840
	maxSnapshotHeight = 2160
	maxSnapshotFrames = 600
)

// Server returns the fiber app serving the page, its API and the event stream
func Server(config *ServerConfig) *fiber.App {
	bc := config.Broadcaster
	retryTimeout := lo.Ternary(config.RetryTimeout > 0, config.RetryTimeout, 30*time.Second)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Debug("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/events"
		},
	}))

	if config.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: config.AllowOrigins,
			AllowHeaders: "Cache-Control",
		}))
	}

	// Snapshots are deterministic per query string
	app.Use(cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodGet || c.Path() != "/starfield.svg" || len(c.Request().URI().QueryString()) == 0
		},
		Expiration: 10 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Request().URI().String()
		},
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		page := config.Page.Page()
		if len(page) == 0 {
			config.Page.Render(config.Feed.View())
			page = config.Page.Page()
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(page)
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/api/view", func(c *fiber.Ctx) error {
		return c.JSON(config.Feed.View())
	})

	app.Get("/api/items", func(c *fiber.Ctx) error {
		items := config.Feed.Items()
		if raw := c.Query("source"); raw != "" {
			sources := lo.Map(strings.Split(raw, ","), func(tag string, _ int) models.Source {
				return models.ParseSource(tag)
			})
			items = aggregator.Filter(items, aggregator.NewFilterSet(sources...))
		}
		return c.JSON(fiber.Map{
			"count": len(items),
			"items": items,
		})
	})

	app.Post("/api/filters/:source/toggle", func(c *fiber.Ctx) error {
		tag := c.Params("source")
		source := models.ParseSource(tag)
		if string(source) != strings.ToLower(tag) {
			return c.Status(fiber.StatusBadRequest).SendString("Unknown source")
		}
		view := config.Feed.Toggle(source)
		return respond(c, view)
	})

	app.Post("/api/retry", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(context.Background(), retryTimeout)
		defer cancel()

		if err := config.Feed.Retry(ctx); err != nil {
			if errors.Is(err, aggregator.ErrLoadInProgress) {
				return c.Status(fiber.StatusConflict).SendString(err.Error())
			}
			log.WithError(err).Error("Retry failed")
			return c.Status(fiber.StatusInternalServerError).SendString("Retry failed")
		}
		return respond(c, config.Feed.View())
	})

	app.Get("/starfield.svg", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "image/svg+xml")
		c.Set(fiber.HeaderCacheControl, "no-cache")

		surface := config.Starfield
		if surface == nil || len(c.Request().URI().QueryString()) > 0 {
			surface = starfield.Snapshot(starfield.SnapshotOptions{
				Width:   float64(clampInt(c.QueryInt("w", 1280), 1, maxSnapshotWidth)),
				Height:  float64(clampInt(c.QueryInt("h", 720), 1, maxSnapshotHeight)),
				DPR:     clampFloat(c.QueryFloat("dpr", 1), 0.5, 3),
				Seed:    uint64(c.QueryInt("seed", 1)),
				Frames:  clampInt(c.QueryInt("frames", 1), 1, maxSnapshotFrames),
				Reduced: c.QueryBool("reduced", false),
			})
		}

		_, err := surface.WriteTo(c)
		return err
	})

	app.Delete("/api/events", func(c *fiber.Ctx) error {
		bc.RemoveClient(c.Query("key", ""))
		return c.SendString("OK")
	})

	app.Get("/api/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := make(chan Event, 10)
		alive := time.NewTicker(15 * time.Second)

		bc.AddClient(key, events)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer alive.Stop()
			defer bc.RemoveClient(key)

			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.WithError(err).Warn("Failed to send init event")
				return
			}

			for {
				select {
				case <-alive.C:
					if _, err := fmt.Fprint(w, "event: ping\ndata: \n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						log.WithField("client", key).Debug("Client went away")
						return
					}

				case event, ok := <-events:
					if !ok {
						return
					}
					if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, event.Data); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						log.WithField("client", key).Debug("Client went away")
						return
					}
				}
			}
		}))

		return nil
	})

	if config.Assets != nil {
		app.Use("/assets", filesystem.New(filesystem.Config{
			Browse: false,
			Root:   http.FS(config.Assets),
		}))
	}

	return app
}

// respond sends JSON to API clients and sends form posts back to the page
func respond(c *fiber.Ctx, view aggregator.View) error {
	if strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.JSON(view)
}

func clampInt(v, low, high int) int {
	return max(low, min(v, high))
}

func clampFloat(v, low, high float64) float64 {
	return max(low, min(v, high))
}
