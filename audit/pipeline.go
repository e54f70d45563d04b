package audit

import (
	"context"
	"fmt"
)

// CrawlOptions bounds the crawl collaborator for one job.
type CrawlOptions struct {
	MaxDepth int
	MaxPages int
}

// Crawler fetches same-origin pages for a target site. It is the only
// collaborator whose failure is fatal to a job.
type Crawler interface {
	Crawl(ctx context.Context, target string, opts CrawlOptions) ([]*PageRun, error)
}

// PerfAuditor attaches performance metrics to pages in place. It may return
// browser-rendered metadata keyed by page URL for pages whose static
// extraction came up empty; the orchestrator merges those fields before
// scoring runs.
type PerfAuditor interface {
	Audit(ctx context.Context, pages []*PageRun) (map[string]PageMeta, error)
}

// AccessibilityChecker attaches accessibility violations to pages in place.
type AccessibilityChecker interface {
	Check(ctx context.Context, pages []*PageRun) error
}

// JourneyRunner executes scripted user flows against the target site.
type JourneyRunner interface {
	Run(ctx context.Context, target string) ([]*Journey, error)
}

// Benchmarker fetches competitor homepage snapshots for comparison display.
type Benchmarker interface {
	Compare(ctx context.Context, competitors []string) ([]*Benchmark, error)
}

// Progress checkpoints set when a stage begins. Coarse by design: observable
// stage boundaries, not a precision guarantee.
var stageProgress = map[string]int{
	StageCrawl:     1,
	StagePerf:      25,
	StageA11y:      45,
	StageBench:     65,
	StageJourneys:  70,
	StageSynthesis: 85,
}

// runPipeline drives one job through its stages sequentially. Stage N's
// evidence is fully populated before stage N+1 reads it. Only the crawl stage
// can fail the job; optional collaborators that are missing or erroring yield
// empty evidence and the job continues.
func (s *Service) runPipeline(job *Job) {
	// Jobs run to completion or error; there is no cancellation contract.
	// Collaborators carry their own bounded timeouts.
	ctx := context.Background()
	log := s.logger.With("job_id", job.ID, "url", job.URL)

	// crawl — required.
	s.setStage(job, StageCrawl)
	pages, err := s.crawler.Crawl(ctx, job.URL, CrawlOptions{
		MaxDepth: job.Options.MaxDepth,
		MaxPages: job.Options.MaxPages,
	})
	if err != nil {
		log.Error("pipeline: crawl failed", "error", err)
		s.failJob(job, fmt.Errorf("%w: %v", ErrCrawlFailed, err))
		return
	}
	s.attachPages(job, pages)
	log.Info("pipeline: crawl done", "pages", len(pages))

	// perf — optional. May also return rendered metadata to merge later.
	var rendered map[string]PageMeta
	s.setStage(job, StagePerf)
	if job.Options.Perf && s.perf != nil {
		meta, err := s.perf.Audit(ctx, pages)
		if err != nil {
			log.Warn("pipeline: perf stage skipped", "error", err)
		} else {
			rendered = meta
		}
	}

	// a11y — optional.
	s.setStage(job, StageA11y)
	if job.Options.A11y && s.a11y != nil {
		if err := s.a11y.Check(ctx, pages); err != nil {
			log.Warn("pipeline: a11y stage skipped", "error", err)
		}
	}

	// bench — optional.
	s.setStage(job, StageBench)
	if len(job.Options.Competitors) > 0 && s.bench != nil {
		benchs, err := s.bench.Compare(ctx, job.Options.Competitors)
		if err != nil {
			log.Warn("pipeline: bench stage skipped", "error", err)
		} else {
			s.attachBenchmarks(job, benchs)
		}
	}

	// journeys — optional.
	s.setStage(job, StageJourneys)
	if job.Options.Journeys && s.journeys != nil {
		journeys, err := s.journeys.Run(ctx, job.URL)
		if err != nil {
			log.Warn("pipeline: journeys stage skipped", "error", err)
		} else {
			s.attachJourneys(job, journeys)
		}
	}

	// synthesis — merge late enrichment, then score.
	s.setStage(job, StageSynthesis)
	mergeRenderedMeta(pages, rendered)
	issues := Score(job.Pages, job.Journeys)
	s.completeJob(job, issues)
	log.Info("pipeline: done", "issues", len(issues))

	// History recording is best-effort: a persistence failure must never
	// surface to the job or its caller.
	if err := s.recordRun(ctx, job); err != nil {
		log.Warn("pipeline: record run failed", "error", err)
	}
}

// mergeRenderedMeta fills empty metadata fields from browser-rendered
// fallbacks. Fields the static crawl already populated are never overwritten.
func mergeRenderedMeta(pages []*PageRun, rendered map[string]PageMeta) {
	if len(rendered) == 0 {
		return
	}
	for _, page := range pages {
		meta, ok := rendered[page.URL]
		if !ok {
			continue
		}
		if page.Meta.Title == "" {
			page.Meta.Title = meta.Title
		}
		if page.Meta.H1 == "" {
			page.Meta.H1 = meta.H1
		}
		if page.Meta.Description == "" {
			page.Meta.Description = meta.Description
		}
	}
}
