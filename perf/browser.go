package perf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/siteaudit/audit"
	"github.com/hazyhaar/siteaudit/browser"
)

// BrowserAuditor loads each page in headless Chrome and reads the navigation
// timing and layout-shift entries. It also captures rendered title/h1/meta
// description as a fallback for pages whose static markup was empty, which is
// what client-side rendered sites look like to the crawler.
type BrowserAuditor struct {
	mgr    *browser.Manager
	logger *slog.Logger
}

// NewBrowserAuditor creates a BrowserAuditor over a shared browser manager.
func NewBrowserAuditor(mgr *browser.Manager, logger *slog.Logger) *BrowserAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserAuditor{mgr: mgr, logger: logger}
}

// collectJS reads navigation timing, cumulative layout shift, and rendered
// document metadata in one eval. Layout-shift entries are buffered by the
// observer so late shifts during load are included.
const collectJS = `() => {
	const nav = performance.getEntriesByType('navigation')[0] || {};
	let cls = 0;
	for (const e of performance.getEntriesByType('layout-shift')) {
		if (!e.hadRecentInput) cls += e.value;
	}
	const h1 = document.querySelector('h1');
	const desc = document.querySelector('meta[name="description" i]');
	return JSON.stringify({
		load_event_end: nav.loadEventEnd || 0,
		response_start: nav.responseStart || 0,
		dom_interactive: nav.domInteractive || 0,
		cumulative_layout_shift: cls,
		title: document.title || '',
		h1: h1 ? h1.textContent : '',
		description: desc ? (desc.getAttribute('content') || '') : ''
	});
}`

type pageSample struct {
	LoadEventEnd          float64 `json:"load_event_end"`
	ResponseStart         float64 `json:"response_start"`
	DOMInteractive        float64 `json:"dom_interactive"`
	CumulativeLayoutShift float64 `json:"cumulative_layout_shift"`
	Title                 string  `json:"title"`
	H1                    string  `json:"h1"`
	Description           string  `json:"description"`
}

// Audit renders every page, attaches metrics in place, and returns rendered
// metadata keyed by page URL. Pages that fail to render are skipped with a
// log line.
func (a *BrowserAuditor) Audit(ctx context.Context, pages []*audit.PageRun) (map[string]audit.PageMeta, error) {
	rendered := make(map[string]audit.PageMeta, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample, err := a.samplePage(ctx, page.URL)
		if err != nil {
			a.logger.Warn("perf: render failed", "url", page.URL, "error", err)
			continue
		}
		page.PerformanceAudit = metricsFromSample(sample)
		rendered[page.URL] = audit.PageMeta{
			Title:       strings.TrimSpace(sample.Title),
			H1:          strings.TrimSpace(sample.H1),
			Description: strings.TrimSpace(sample.Description),
		}
	}
	return rendered, nil
}

func (a *BrowserAuditor) samplePage(ctx context.Context, pageURL string) (*pageSample, error) {
	page, err := a.mgr.NewPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	res, err := page.Context(ctx).Eval(collectJS)
	if err != nil {
		return nil, fmt.Errorf("collect timing: %w", err)
	}
	return parseSample([]byte(res.Value.Str()))
}

func parseSample(raw []byte) (*pageSample, error) {
	var s pageSample
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse timing: %w", err)
	}
	return &s, nil
}

// metricsFromSample converts a navigation-timing sample to the audit metric
// set. Layout shift is scaled by 100 so the whole set reads in comparable
// integer ranges (CLS 0.25 reports as 25).
func metricsFromSample(s *pageSample) map[string]float64 {
	out := map[string]float64{
		audit.MetricLayoutShift: s.CumulativeLayoutShift * 100,
	}
	if s.LoadEventEnd > 0 {
		out[audit.MetricLoadDelay] = s.LoadEventEnd
	}
	if s.DOMInteractive > 0 && s.ResponseStart > 0 {
		out[audit.MetricInteractionDelay] = s.DOMInteractive - s.ResponseStart
	}
	return out
}
