package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"synthsite/models"
)

var errNotImage = errors.New("response is not an image")

type coverJob struct {
	index int
	post  pending
}

// downloadCovers fetches the cover of every pending item into dir with a
// fixed pool of workers. Covers already on disk are not fetched again. Items
// whose cover is unavailable are dropped; the order of the rest is kept.
func (c *Exporter) downloadCovers(ctx context.Context, posts []pending, dir string) []models.MediaItem {
	if len(posts) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).WithField("dir", dir).Error("Failed to create cover directory")
		return nil
	}

	jobs := make(chan coverJob)
	ready := make([]bool, len(posts))
	var wg sync.WaitGroup

	for i := 0; i < min(c.settings.Workers, len(posts)); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				target := filepath.Join(dir, job.post.name)
				err := c.downloadCover(ctx, job.post, target)
				if err != nil {
					log.WithFields(log.Fields{
						"worker": id,
						"url":    job.post.item.Url,
						"error":  err,
					}).Warn("Skipping item without cover")
					continue
				}
				ready[job.index] = true
			}
		}(i)
	}

feed:
	for i, post := range posts {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- coverJob{index: i, post: post}:
		}
	}
	close(jobs)
	wg.Wait()

	items := make([]models.MediaItem, 0, len(posts))
	for i, post := range posts {
		if ready[i] {
			items = append(items, post.item)
		}
	}
	return items
}

// downloadCover writes the image at post.coverURL to target through a
// temporary file, so a failed download never leaves a partial cover behind
func (c *Exporter) downloadCover(ctx context.Context, post pending, target string) error {
	if _, err := os.Stat(target); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if post.coverURL == "" {
		return errors.New("no cover url")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".cover-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = c.client.get(ctx, post.coverURL, map[string]string{"Referer": post.referer}, func(resp *http.Response) error {
		if !strings.Contains(resp.Header.Get("Content-Type"), "image") {
			return backoff.Permanent(errNotImage)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := tmp.Truncate(0); err != nil {
			return err
		}
		_, err := io.Copy(tmp, resp.Body)
		return err
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download cover: %w", err)
	}
	return os.Rename(tmp.Name(), target)
}
