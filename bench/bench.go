// Package bench fetches competitor homepage snapshots for side-by-side
// display in reports. Benchmarks are display-only evidence and never feed
// issue scoring.
package bench

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/siteaudit/audit"
	"github.com/hazyhaar/siteaudit/crawl"
)

// Comparer fetches one page per competitor using the same fetcher stack as
// the site crawl, so robots.txt and rate limits apply to competitors too.
type Comparer struct {
	crawler *crawl.Crawler
	logger  *slog.Logger
}

// New creates a Comparer.
func New(crawler *crawl.Crawler, logger *slog.Logger) *Comparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparer{crawler: crawler, logger: logger}
}

// Compare snapshots each competitor's homepage. Unreachable or invalid
// competitors are skipped with a log line; the stage only fails when the
// context dies.
func (c *Comparer) Compare(ctx context.Context, competitors []string) ([]*audit.Benchmark, error) {
	out := make([]*audit.Benchmark, 0, len(competitors))
	for _, raw := range competitors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, err := audit.NormalizeTargetURL(raw)
		if err != nil {
			c.logger.Warn("bench: competitor skipped", "url", raw, "error", err)
			continue
		}
		pages, err := c.crawler.Crawl(ctx, target, audit.CrawlOptions{MaxDepth: 1, MaxPages: 1})
		if err != nil {
			c.logger.Warn("bench: competitor unreachable", "url", target, "error", err)
			continue
		}
		out = append(out, &audit.Benchmark{
			URL:    target,
			Origin: audit.Origin(target),
			Page:   pages[0],
		})
	}
	return out, nil
}
