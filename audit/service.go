package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/siteaudit/audit/internal/store"
)

// Service owns the job registry, the pipeline orchestrator, and the run
// history + triage index.
type Service struct {
	store    *store.Store
	logger   *slog.Logger
	config   *Config
	newID    func() string
	crawler  Crawler
	perf     PerfAuditor
	a11y     AccessibilityChecker
	journeys JourneyRunner
	bench    Benchmarker

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates an audit Service over an open database. The crawl collaborator
// is required; all others are optional and configured via options.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, crawler Crawler, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if crawler == nil {
		return nil, fmt.Errorf("audit: crawler is required")
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}

	svc := &Service{
		store:   store.NewStore(db),
		logger:  logger,
		config:  cfg,
		newID:   uuid.NewString,
		crawler: crawler,
		jobs:    make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithPerfAuditor sets the optional performance collaborator.
func WithPerfAuditor(p PerfAuditor) ServiceOption {
	return func(svc *Service) { svc.perf = p }
}

// WithAccessibilityChecker sets the optional accessibility collaborator.
func WithAccessibilityChecker(a AccessibilityChecker) ServiceOption {
	return func(svc *Service) { svc.a11y = a }
}

// WithJourneyRunner sets the optional journey collaborator.
func WithJourneyRunner(j JourneyRunner) ServiceOption {
	return func(svc *Service) { svc.journeys = j }
}

// WithBenchmarker sets the optional competitor-benchmark collaborator.
func WithBenchmarker(b Benchmarker) ServiceOption {
	return func(svc *Service) { svc.bench = b }
}

// --- Jobs ---

// StartAudit validates the target, registers a queued job, and begins
// asynchronous execution. It returns a snapshot of the queued job
// immediately; progress is observed via Job.
func (s *Service) StartAudit(target string, options JobOptions) (*Job, error) {
	normalized, err := NormalizeTargetURL(target)
	if err != nil {
		return nil, err
	}
	if options.MaxDepth <= 0 {
		options.MaxDepth = s.config.Crawl.MaxDepth
	}
	if options.MaxPages <= 0 {
		options.MaxPages = s.config.Crawl.MaxPages
	}

	job := &Job{
		ID:        s.newID(),
		URL:       normalized,
		Options:   options,
		Status:    StatusQueued,
		CreatedAt: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("audit: job queued", "job_id", job.ID, "url", normalized)
	go s.runPipeline(job)

	return s.snapshot(job), nil
}

// Job returns a snapshot of a job's observable state.
func (s *Service) Job(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return s.snapshotLocked(job), nil
}

// Issues returns the ranked backlog of a completed job.
func (s *Service) Issues(id string) ([]Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := make([]Issue, len(job.Issues))
	copy(out, job.Issues)
	return out, nil
}

func (s *Service) snapshot(job *Job) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(job)
}

// snapshotLocked copies the mutable orchestration fields. Evidence slices are
// shared and read-only once their stage completes.
func (s *Service) snapshotLocked(job *Job) *Job {
	cp := *job
	cp.Issues = append([]Issue(nil), job.Issues...)
	return &cp
}

// setStage advances a job into a stage. Progress never decreases.
func (s *Service) setStage(job *Job, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = StatusRunning
	job.Stage = stage
	if p := stageProgress[stage]; p > job.Progress {
		job.Progress = p
	}
}

func (s *Service) attachPages(job *Job, pages []*PageRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Pages = pages
}

func (s *Service) attachJourneys(job *Job, journeys []*Journey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Journeys = journeys
}

func (s *Service) attachBenchmarks(job *Job, benchs []*Benchmark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Benchs = benchs
}

// failJob moves a job to terminal error state. Evidence gathered before the
// failing stage is preserved but not further processed.
func (s *Service) failJob(job *Job, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = StatusError
	job.Error = err.Error()
}

func (s *Service) completeJob(job *Job, issues []Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Issues = issues
	job.Status = StatusDone
	job.Stage = ""
	job.Progress = 100
}

// --- Run history ---

// recordRun appends a RunMeta for a completed job, replacing any previous
// record with the same job id.
func (s *Service) recordRun(ctx context.Context, job *Job) error {
	s.mu.RLock()
	run := &store.Run{
		ID:        job.ID,
		URL:       job.URL,
		Origin:    Origin(job.URL),
		Status:    string(job.Status),
		Pages:     len(job.Pages),
		Journeys:  len(job.Journeys),
		Issues:    len(job.Issues),
		Digests:   DigestsFor(job.Issues),
		CreatedAt: job.CreatedAt,
	}
	s.mu.RUnlock()
	return s.store.UpsertRun(ctx, run)
}

// ListRuns returns recorded runs newest first, optionally filtered to one
// origin.
func (s *Service) ListRuns(ctx context.Context, origin string) ([]*RunMeta, error) {
	runs, err := s.store.ListRuns(ctx, origin)
	if err != nil {
		return nil, err
	}
	out := make([]*RunMeta, len(runs))
	for i, r := range runs {
		out[i] = runMetaFromStore(r)
	}
	return out, nil
}

// DiffRuns classifies the digests of two runs into added/removed/unchanged.
// Unknown run ids yield empty sets, never an error: diffing is advisory.
func (s *Service) DiffRuns(ctx context.Context, idA, idB string) (*DiffResult, error) {
	result := &DiffResult{
		RunA:      idA,
		RunB:      idB,
		Added:     []string{},
		Removed:   []string{},
		Unchanged: []string{},
	}

	runA, err := s.store.GetRun(ctx, idA)
	if err != nil {
		return nil, err
	}
	runB, err := s.store.GetRun(ctx, idB)
	if err != nil {
		return nil, err
	}
	if runA == nil || runB == nil {
		return result, nil
	}

	inA := make(map[string]bool, len(runA.Digests))
	for _, d := range runA.Digests {
		inA[d] = true
	}
	inB := make(map[string]bool, len(runB.Digests))
	for _, d := range runB.Digests {
		inB[d] = true
	}

	for _, d := range runB.Digests {
		if inA[d] {
			result.Unchanged = append(result.Unchanged, d)
		} else {
			result.Added = append(result.Added, d)
		}
	}
	for _, d := range runA.Digests {
		if !inB[d] {
			result.Removed = append(result.Removed, d)
		}
	}
	return result, nil
}

func runMetaFromStore(r *store.Run) *RunMeta {
	digests := r.Digests
	if digests == nil {
		digests = []string{}
	}
	return &RunMeta{
		ID:        r.ID,
		URL:       r.URL,
		Origin:    r.Origin,
		Status:    JobStatus(r.Status),
		Pages:     r.Pages,
		Journeys:  r.Journeys,
		Issues:    r.Issues,
		Digests:   digests,
		CreatedAt: r.CreatedAt,
	}
}

// --- Triage ---

// SetTriageState sets or clears the disposition for a digest. A nil state
// clears without deleting other metadata fields.
func (s *Service) SetTriageState(ctx context.Context, digest string, state *TriageState) error {
	if digest == "" {
		return fmt.Errorf("%w: empty digest", ErrInvalidInput)
	}
	value := ""
	if state != nil {
		if !ValidTriageState(*state) {
			return fmt.Errorf("%w: unknown triage state %q", ErrInvalidInput, *state)
		}
		value = string(*state)
	}
	return s.store.SetState(ctx, digest, value)
}

// SetTriageMeta merges a partial update into a digest's triage record. Only
// provided fields overwrite.
func (s *Service) SetTriageMeta(ctx context.Context, digest string, update TriageUpdate) error {
	if digest == "" {
		return fmt.Errorf("%w: empty digest", ErrInvalidInput)
	}
	return s.store.MergeMeta(ctx, digest, update.Owner, update.EstimateHours, update.Notes)
}

// GetTriageStates returns the disposition per digest. Digests with no triage
// record (or a cleared state) are absent from the result.
func (s *Service) GetTriageStates(ctx context.Context, digests []string) (map[string]TriageState, error) {
	records, err := s.store.GetTriage(ctx, digests)
	if err != nil {
		return nil, err
	}
	out := make(map[string]TriageState, len(records))
	for d, t := range records {
		if t.State != "" {
			out[d] = TriageState(t.State)
		}
	}
	return out, nil
}

// GetTriageMeta returns full triage records for the given digests. Unknown
// digests are simply absent — never an error.
func (s *Service) GetTriageMeta(ctx context.Context, digests []string) (map[string]*TriageMeta, error) {
	records, err := s.store.GetTriage(ctx, digests)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*TriageMeta, len(records))
	for d, t := range records {
		meta := &TriageMeta{
			Digest:    t.Digest,
			State:     TriageState(t.State),
			Owner:     t.Owner,
			Notes:     t.Notes,
			UpdatedAt: t.UpdatedAt,
		}
		if t.EstimateHours != nil {
			meta.EstimateHours = *t.EstimateHours
		}
		out[d] = meta
	}
	return out, nil
}
