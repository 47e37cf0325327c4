// Package fetcher retrieves storefront pages over HTTP, applying the
// run's user agent, timeout, and inter-request rate limit. Retry is not
// built in: callers wrap Fetch with the retry package so each call site
// owns its own budget.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/deckcheck/inventory-scraper/extractor"
	"github.com/gocolly/colly/v2"
)

// Options configures the shared collector behind a Client.
type Options struct {
	// UserAgent is sent on every request. Empty keeps colly's default.
	UserAgent string
	// Timeout bounds a single request; 0 keeps colly's default.
	Timeout time.Duration
	// Delay is the minimum pause between requests, enforced globally
	// across all goroutines using this client.
	Delay time.Duration
	// Parallelism caps concurrent in-flight requests. Values below 1
	// mean strictly sequential.
	Parallelism int
	// Transport overrides the HTTP transport, used by tests to serve
	// canned responses.
	Transport http.RoundTripper
}

// Client fetches one page at a time through a rate-limited collector.
// A Client is safe for concurrent use; the rate limit spans all callers.
type Client struct {
	collector *colly.Collector
}

// New builds a client from opts.
func New(opts Options) (*Client, error) {
	collectorOpts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(collectorOpts...)

	if opts.Timeout > 0 {
		collector.SetRequestTimeout(opts.Timeout)
	}

	if opts.Transport != nil {
		collector.WithTransport(opts.Transport)
	} else {
		dialTimeout := opts.Timeout
		if dialTimeout <= 0 {
			dialTimeout = 10 * time.Second
		}
		collector.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       opts.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Client{collector: collector}, nil
}

// Fetch retrieves pageURL once and returns the response body. Errors are
// classified into the package's taxonomy; HTTP error statuses surface as
// ErrForbidden, ErrNotFound, or ErrRateLimited where they match.
func (c *Client) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		body     []byte
		fetchErr error
	)
	// Clones share the backend (transport, timeout, rate limit) but get
	// their own callbacks, so concurrent fetches cannot cross wires.
	page := c.collector.Clone()
	page.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	page.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = classify(err, statusCode)
	})

	slog.Debug("fetching page", slog.String("url", pageURL))
	visitErr := page.Visit(pageURL)
	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, classify(visitErr, 0)
	}
	if body == nil {
		return nil, ErrConnection{Err: errors.New("no response received")}
	}
	return body, nil
}

// HasCards fetches pageURL once, with no retry, and reports whether the
// page lists any card containers. Any failure reads as "no cards": the
// pre-check can only skip a collection, never fail the run.
func (c *Client) HasCards(ctx context.Context, pageURL string) bool {
	body, err := c.Fetch(ctx, pageURL)
	if err != nil {
		slog.Debug("card pre-check failed",
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return false
	}
	return extractor.ContainsCards(body)
}
