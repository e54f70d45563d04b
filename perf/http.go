// Package perf measures page performance for the audit pipeline. Two
// implementations exist: HTTPAuditor times plain HTTP fetches and yields the
// network-bound metrics; BrowserAuditor drives headless Chrome and adds
// rendering metrics plus rendered-metadata fallbacks for client-side pages.
package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/hazyhaar/siteaudit/audit"
)

// HTTPAuditor measures load-delay (full response time) and interaction-delay
// (time to first byte) with plain HTTP. It never reports layout-shift; that
// metric only exists in a rendering engine.
type HTTPAuditor struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTTPAuditor creates an HTTPAuditor.
func NewHTTPAuditor(timeout time.Duration, userAgent string, logger *slog.Logger) *HTTPAuditor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if userAgent == "" {
		userAgent = "siteaudit/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAuditor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Audit times a GET of every page and attaches the metrics in place. Pages
// that fail to fetch keep no metrics; the stage itself only fails when the
// context dies.
func (a *HTTPAuditor) Audit(ctx context.Context, pages []*audit.PageRun) (map[string]audit.PageMeta, error) {
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics, err := a.measure(ctx, page.URL)
		if err != nil {
			a.logger.Warn("perf: measurement failed", "url", page.URL, "error", err)
			continue
		}
		page.PerformanceAudit = metrics
	}
	// Plain HTTP sees the same markup the crawler saw; no rendered fallback.
	return nil, nil
}

func (a *HTTPAuditor) measure(ctx context.Context, url string) (map[string]float64, error) {
	var firstByte time.Duration
	start := time.Now()

	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = time.Since(start) },
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	total := time.Since(start)

	return map[string]float64{
		audit.MetricLoadDelay:        float64(total.Milliseconds()),
		audit.MetricInteractionDelay: float64(firstByte.Milliseconds()),
	}, nil
}
