// Package social exports the Instagram and TikTok timelines into the static
// feed document the site ships with. It runs at build time, where the
// platform APIs can be called without a relay.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	maxPageSize = 16 << 20
)

// errStatus marks a response with an unexpected status code
type errStatus struct {
	code int
}

func (e errStatus) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Client performs the exporter's HTTP requests with retries
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	retries   uint64
}

func NewClient(hc *http.Client, userAgent string, timeout time.Duration, retries uint64) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{http: hc, userAgent: userAgent, timeout: timeout, retries: retries}
}

// get fetches url and hands the open response to read. Server errors and
// transport failures are retried with exponential backoff; client errors are not.
func (c *Client) get(ctx context.Context, url string, headers map[string]string, read func(*http.Response) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.Multiplier = 1.5

	attempt := 0
	operation := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := errStatus{code: resp.StatusCode}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return backoff.Permanent(err)
		}
		return read(resp)
	}

	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"url":     url,
			"attempt": attempt,
			"wait":    wait,
			"error":   err,
		}).Debug("Retrying request")
	}

	policyCtx := backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx)
	return backoff.RetryNotify(operation, policyCtx, notify)
}

// getJSON decodes a JSON response into v. Decoding errors are not retried.
func (c *Client) getJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	return c.get(ctx, url, headers, func(resp *http.Response) error {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageSize)).Decode(v); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", url, err))
		}
		return nil
	})
}

// getText returns a response body as a string
func (c *Client) getText(ctx context.Context, url string, headers map[string]string) (string, error) {
	var text string
	err := c.get(ctx, url, headers, func(resp *http.Response) error {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
		if err != nil {
			return err
		}
		text = string(body)
		return nil
	})
	return text, err
}

// IsStatus reports whether err carries the given HTTP status
func IsStatus(err error, code int) bool {
	var status errStatus
	return errors.As(err, &status) && status.code == code
}
