// Package fetch retrieves feed payloads from a list of interchangeable
// sources (a direct URL plus relay mirrors) and keeps the first valid one.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultTimeout = 4500 * time.Millisecond
	// maxBodySize bounds how much of a response is read into memory
	maxBodySize = 8 << 20
)

// Matcher inspects a response body and reports the payload format it
// recognized. ok=false rejects the body and lets the next source win.
type Matcher func(body []byte) (format string, ok bool)

// Result is a payload accepted by a Matcher
type Result struct {
	Body   []byte
	Format string
	Source string
}

// Strategy resolves a list of sources to at most one result
type Strategy func(ctx context.Context, c *Client, sources []string, match Matcher) (*Result, bool)

// Client fetches sources with a per-request timeout
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	strategy  Strategy
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header on every request
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithStrategy selects how Resolve walks the sources
func WithStrategy(s Strategy) Option {
	return func(c *Client) { c.strategy = s }
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		http:     &http.Client{},
		timeout:  timeout,
		strategy: Race,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StrategyByName maps a configured strategy name to its implementation
func StrategyByName(name string) Strategy {
	if name == "sequential" {
		return Sequential
	}
	return Race
}

// Resolve runs the configured strategy
func (c *Client) Resolve(ctx context.Context, sources []string, match Matcher) (*Result, bool) {
	return c.strategy(ctx, c, sources, match)
}

var errRejected = errors.New("payload rejected")

// try performs a single bounded request. The timeout aborts the request in flight.
func (c *Client) try(ctx context.Context, source string, match Matcher) (*Result, error) {
	fetchAttempts.Inc()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.get(ctx, source)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fetchFailures.WithLabelValues("transport").Inc()
		return nil, err
	}

	format, ok := match(body)
	if !ok {
		fetchFailures.WithLabelValues("unrecognized").Inc()
		return nil, errRejected
	}

	return &Result{Body: body, Format: format, Source: source}, nil
}

// Fetch performs a single bounded GET and returns the body of an HTTP-ok response
func (c *Client) Fetch(ctx context.Context, source string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.get(ctx, source)
}

func (c *Client) get(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, source)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Race fetches every source concurrently and returns the first result the
// matcher accepts. Losing requests are not cancelled; their results are
// dropped. Returns ok=false when every source fails.
func Race(ctx context.Context, c *Client, sources []string, match Matcher) (*Result, bool) {
	if len(sources) == 0 {
		return nil, false
	}

	// Buffered so abandoned goroutines never block on send
	results := make(chan *Result, len(sources))
	for _, source := range sources {
		go func(source string) {
			result, err := c.try(ctx, source, match)
			if err != nil {
				log.WithFields(log.Fields{
					"source": source,
					"error":  err,
				}).Debug("Source failed")
				results <- nil
				return
			}
			results <- result
		}(source)
	}

	for range sources {
		select {
		case <-ctx.Done():
			return nil, false
		case result := <-results:
			if result != nil {
				raceWins.WithLabelValues(result.Format).Inc()
				return result, true
			}
		}
	}

	raceExhausted.Inc()
	return nil, false
}

// Sequential tries the sources in order and returns the first accepted result
func Sequential(ctx context.Context, c *Client, sources []string, match Matcher) (*Result, bool) {
	for _, source := range sources {
		if ctx.Err() != nil {
			return nil, false
		}
		result, err := c.try(ctx, source, match)
		if err != nil {
			log.WithFields(log.Fields{
				"source": source,
				"error":  err,
			}).Debug("Source failed, trying next")
			continue
		}
		raceWins.WithLabelValues(result.Format).Inc()
		return result, true
	}

	raceExhausted.Inc()
	return nil, false
}
