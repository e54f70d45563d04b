// Package crawl implements the bounded same-origin site crawl that feeds the
// audit pipeline: breadth-first link discovery, metadata extraction, and a
// sanitized text snapshot per page.
package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/siteaudit/audit"
)

// Config configures the crawler.
type Config struct {
	Timeout  time.Duration // per-request HTTP timeout. Default: 15s.
	MaxBytes int64         // max response body size. Default: 5MB.
	// UserAgent sent with requests and matched against robots.txt groups.
	UserAgent string
	// RequestsPerSecond bounds the fetch rate against the target site.
	// Default: 4.
	RequestsPerSecond float64
	// IgnoreRobots skips robots.txt entirely. Off by default.
	IgnoreRobots bool
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024 // 5MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "siteaudit/1.0"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
}

// Crawler fetches same-origin pages breadth-first up to a depth and page cap.
type Crawler struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Crawler.
func New(cfg Config, logger *slog.Logger) *Crawler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

type queued struct {
	url   string
	depth int
}

// Crawl walks the target site breadth-first. The target page itself is depth
// 0; only links on the target's origin are followed. A failure to fetch the
// target is an error; failures on discovered pages are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, target string, opts audit.CrawlOptions) ([]*audit.PageRun, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 25
	}
	origin := audit.Origin(target)

	robots := c.loadRobots(ctx, origin)

	var pages []*audit.PageRun
	seen := map[string]bool{}
	queue := []queued{{url: audit.NormalizePageURL(target), depth: 0}}
	seen[queue[0].url] = true

	for len(queue) > 0 && len(pages) < opts.MaxPages {
		item := queue[0]
		queue = queue[1:]

		if !robots.allowed(c.config.UserAgent, item.url) {
			c.logger.Debug("crawl: blocked by robots.txt", "url", item.url)
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return pages, err
		}

		body, err := c.fetch(ctx, item.url)
		if err != nil {
			if item.depth == 0 {
				return nil, fmt.Errorf("fetch target: %w", err)
			}
			c.logger.Warn("crawl: page skipped", "url", item.url, "error", err)
			continue
		}

		page := extractPage(item.url, body)
		page.Snapshot = snapshot(body)
		page.RawHTML = body
		pages = append(pages, page)

		if item.depth >= opts.MaxDepth {
			continue
		}
		for _, link := range page.Links {
			if audit.Origin(link) != origin || seen[link] {
				continue
			}
			seen[link] = true
			queue = append(queue, queued{url: link, depth: item.depth + 1})
		}
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages fetched from %s", target)
	}
	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("not html: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
