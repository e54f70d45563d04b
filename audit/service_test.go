package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/siteaudit/dbopen"
	_ "modernc.org/sqlite"
)

// --- fakes ---

type fakeCrawler struct {
	pages []*PageRun
	err   error
}

func (f *fakeCrawler) Crawl(ctx context.Context, target string, opts CrawlOptions) ([]*PageRun, error) {
	return f.pages, f.err
}

type fakePerf struct {
	metrics  map[string]float64
	rendered map[string]PageMeta
	err      error
}

func (f *fakePerf) Audit(ctx context.Context, pages []*PageRun) (map[string]PageMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range pages {
		p.PerformanceAudit = f.metrics
	}
	return f.rendered, nil
}

type fakeA11y struct {
	violations []AccessibilityViolation
	err        error
}

func (f *fakeA11y) Check(ctx context.Context, pages []*PageRun) error {
	if f.err != nil {
		return f.err
	}
	for _, p := range pages {
		p.Violations = f.violations
	}
	return nil
}

type fakeJourneys struct {
	journeys []*Journey
	err      error
}

func (f *fakeJourneys) Run(ctx context.Context, target string) ([]*Journey, error) {
	return f.journeys, f.err
}

func setupService(t *testing.T, crawler Crawler, opts ...ServiceOption) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	svc, err := New(db, nil, nil, crawler, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func waitForJob(t *testing.T, svc *Service, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Job(id)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if job.Status == StatusDone || job.Status == StatusError {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

// waitForRun polls the run history until a record appears. Recording happens
// after the job status flips to done, so asserting right after waitForJob
// would race the pipeline goroutine.
func waitForRun(t *testing.T, svc *Service, origin string) []*RunMeta {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := svc.ListRuns(context.Background(), origin)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) > 0 {
			return runs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run was not recorded")
	return nil
}

func cleanPage(url string) *PageRun {
	return &PageRun{
		URL: url,
		Meta: PageMeta{
			Title:       fmt.Sprintf("Clean page at %s!!", url)[:20],
			H1:          "Heading",
			Description: "A perfectly reasonable description of this page.",
		},
	}
}

// --- tests ---

func TestStartAudit_CompletesAndRecordsRun(t *testing.T) {
	// WHAT: A full pipeline run reaches done with progress 100 and appends a RunMeta.
	// WHY: Completion and best-effort history recording are the orchestrator's core contract.
	svc := setupService(t, &fakeCrawler{pages: []*PageRun{cleanPage("https://example.com")}})

	job, err := svc.StartAudit("https://example.com", JobOptions{})
	if err != nil {
		t.Fatalf("StartAudit: %v", err)
	}
	done := waitForJob(t, svc, job.ID)
	if done.Status != StatusDone || done.Progress != 100 {
		t.Errorf("status=%s progress=%d", done.Status, done.Progress)
	}

	runs := waitForRun(t, svc, "https://example.com")
	if len(runs) != 1 || runs[0].ID != job.ID {
		t.Fatalf("expected 1 run for origin, got %+v", runs)
	}
	if runs[0].Pages != 1 {
		t.Errorf("run pages = %d", runs[0].Pages)
	}
}

func TestStartAudit_InvalidTarget(t *testing.T) {
	// WHAT: StartAudit rejects non-HTTP targets before any pipeline work.
	// WHY: Validation failures should be synchronous, not buried in a failed job.
	svc := setupService(t, &fakeCrawler{})
	if _, err := svc.StartAudit("ftp://example.com", JobOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPipeline_CrawlFailureIsFatal(t *testing.T) {
	// WHAT: A crawl error moves the job to terminal error with a captured message.
	// WHY: Crawl is the only intrinsically required stage; without pages there is nothing to audit.
	svc := setupService(t, &fakeCrawler{err: errors.New("dns lookup failed")})

	job, err := svc.StartAudit("https://example.com", JobOptions{})
	if err != nil {
		t.Fatalf("StartAudit: %v", err)
	}
	done := waitForJob(t, svc, job.ID)
	if done.Status != StatusError {
		t.Fatalf("status = %s, want error", done.Status)
	}
	if done.Error == "" {
		t.Error("error message not captured")
	}
}

func TestPipeline_OptionalStageFailureIsSkipped(t *testing.T) {
	// WHAT: An erroring optional collaborator yields empty evidence; the job still completes.
	// WHY: Failure isolation — a broken auditor must not cost the user the whole report.
	svc := setupService(t,
		&fakeCrawler{pages: []*PageRun{cleanPage("https://example.com")}},
		WithPerfAuditor(&fakePerf{err: errors.New("browser unavailable")}),
		WithAccessibilityChecker(&fakeA11y{violations: []AccessibilityViolation{
			{RuleID: "image-alt", Impact: "critical", TargetSelector: "img"},
		}}),
	)

	job, _ := svc.StartAudit("https://example.com", JobOptions{Perf: true, A11y: true})
	done := waitForJob(t, svc, job.ID)
	if done.Status != StatusDone {
		t.Fatalf("status = %s, want done (error: %s)", done.Status, done.Error)
	}

	issues, err := svc.Issues(job.ID)
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	// The a11y stage still ran: exactly one accessibility issue, no perf issues.
	if len(issues) != 1 || issues[0].Category != CategoryAccessibility {
		t.Errorf("unexpected issues: %+v", issues)
	}
}

func TestPipeline_RenderedMetaMergedBeforeScoring(t *testing.T) {
	// WHAT: A browser-rendered title fallback fills an empty static title before scoring.
	// WHY: SPAs often have empty server-rendered titles; scoring must see the merged view.
	page := &PageRun{
		URL:  "https://example.com",
		Meta: PageMeta{H1: "Heading", Description: "A perfectly reasonable description."},
	}
	svc := setupService(t,
		&fakeCrawler{pages: []*PageRun{page}},
		WithPerfAuditor(&fakePerf{rendered: map[string]PageMeta{
			"https://example.com": {Title: "Rendered title here!"},
		}}),
	)

	job, _ := svc.StartAudit("https://example.com", JobOptions{Perf: true})
	done := waitForJob(t, svc, job.ID)
	if done.Status != StatusDone {
		t.Fatalf("status = %s", done.Status)
	}
	issues, _ := svc.Issues(job.ID)
	for _, is := range issues {
		if is.Title == "Missing page title" {
			t.Error("missing-title issue emitted despite rendered fallback")
		}
	}
}

func TestPipeline_ProgressMonotonic(t *testing.T) {
	// WHAT: Observed progress values never decrease over the life of a job.
	// WHY: Progress is the only externally observable signal while running.
	crawler := &fakeCrawler{pages: []*PageRun{cleanPage("https://example.com")}}
	svc := setupService(t, crawler)

	job, _ := svc.StartAudit("https://example.com", JobOptions{})
	last := -1
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := svc.Job(job.ID)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if snap.Progress < last {
			t.Fatalf("progress went backwards: %d -> %d", last, snap.Progress)
		}
		last = snap.Progress
		if snap.Status == StatusDone {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestDiffRuns_Classification(t *testing.T) {
	// WHAT: diff(A,B) with digests {x,y} and {y,z} yields added {z}, removed {x}, unchanged {y}.
	// WHY: Diff completeness: added∪unchanged = B, removed∪unchanged = A.
	svc := setupService(t, &fakeCrawler{})
	ctx := context.Background()

	// Two runs with controlled issue sets, recorded through the public path.
	jobA := &Job{ID: "run-a", URL: "https://example.com", Status: StatusDone, CreatedAt: 1,
		Issues: []Issue{
			{Category: CategorySEO, PageURL: "https://example.com/x", Title: "Missing page title"},
			{Category: CategorySEO, PageURL: "https://example.com/y", Title: "Missing page title"},
		}}
	jobB := &Job{ID: "run-b", URL: "https://example.com", Status: StatusDone, CreatedAt: 2,
		Issues: []Issue{
			{Category: CategorySEO, PageURL: "https://example.com/y", Title: "Missing page title"},
			{Category: CategorySEO, PageURL: "https://example.com/z", Title: "Missing page title"},
		}}
	if err := svc.recordRun(ctx, jobA); err != nil {
		t.Fatalf("record A: %v", err)
	}
	if err := svc.recordRun(ctx, jobB); err != nil {
		t.Fatalf("record B: %v", err)
	}

	diff, err := svc.DiffRuns(ctx, "run-a", "run-b")
	if err != nil {
		t.Fatalf("DiffRuns: %v", err)
	}
	x := Digest(jobA.Issues[0])
	y := Digest(jobA.Issues[1])
	z := Digest(jobB.Issues[1])
	if len(diff.Added) != 1 || diff.Added[0] != z {
		t.Errorf("added = %v, want [%s]", diff.Added, z)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != x {
		t.Errorf("removed = %v, want [%s]", diff.Removed, x)
	}
	if len(diff.Unchanged) != 1 || diff.Unchanged[0] != y {
		t.Errorf("unchanged = %v, want [%s]", diff.Unchanged, y)
	}
}

func TestDiffRuns_UnknownRunIsLenient(t *testing.T) {
	// WHAT: Diffing an unknown run id returns empty sets, not an error.
	// WHY: Diffing is advisory; a stale id must never break a report.
	svc := setupService(t, &fakeCrawler{})
	diff, err := svc.DiffRuns(context.Background(), "nope-a", "nope-b")
	if err != nil {
		t.Fatalf("DiffRuns: %v", err)
	}
	if len(diff.Added) != 0 || len(diff.Removed) != 0 || len(diff.Unchanged) != 0 {
		t.Errorf("expected empty sets, got %+v", diff)
	}
}

func TestTriage_SurvivesNewRun(t *testing.T) {
	// WHAT: A triage state set for a digest persists when a later run reproduces the issue.
	// WHY: Triage is keyed purely by digest — re-discovery must not reset human decisions.
	svc := setupService(t, &fakeCrawler{})
	ctx := context.Background()

	issue := Issue{Category: CategorySEO, PageURL: "https://example.com/x", Title: "Missing page title"}
	digest := Digest(issue)

	state := TriageWontFix
	if err := svc.SetTriageState(ctx, digest, &state); err != nil {
		t.Fatalf("SetTriageState: %v", err)
	}

	// A brand-new run re-discovers the same issue.
	job := &Job{ID: "run-later", URL: "https://example.com", Status: StatusDone, Issues: []Issue{issue}}
	if err := svc.recordRun(ctx, job); err != nil {
		t.Fatalf("recordRun: %v", err)
	}

	states, err := svc.GetTriageStates(ctx, []string{digest})
	if err != nil {
		t.Fatalf("GetTriageStates: %v", err)
	}
	if states[digest] != TriageWontFix {
		t.Errorf("state = %q, want wont-fix", states[digest])
	}
}

func TestTriage_ClearStateKeepsMeta(t *testing.T) {
	// WHAT: Clearing the state (nil) leaves owner/notes intact.
	// WHY: State-clear is an explicit action on the disposition only, not a record delete.
	svc := setupService(t, &fakeCrawler{})
	ctx := context.Background()
	digest := "abcd1234abcd1234"

	state := TriagePlanned
	if err := svc.SetTriageState(ctx, digest, &state); err != nil {
		t.Fatalf("SetTriageState: %v", err)
	}
	owner := "dev-team"
	hours := 4.5
	if err := svc.SetTriageMeta(ctx, digest, TriageUpdate{Owner: &owner, EstimateHours: &hours}); err != nil {
		t.Fatalf("SetTriageMeta: %v", err)
	}
	if err := svc.SetTriageState(ctx, digest, nil); err != nil {
		t.Fatalf("clear state: %v", err)
	}

	meta, err := svc.GetTriageMeta(ctx, []string{digest})
	if err != nil {
		t.Fatalf("GetTriageMeta: %v", err)
	}
	m := meta[digest]
	if m == nil {
		t.Fatal("record deleted by state clear")
	}
	if m.State != "" || m.Owner != "dev-team" || m.EstimateHours != 4.5 {
		t.Errorf("unexpected record: %+v", m)
	}

	// Cleared state is absent from the states view.
	states, _ := svc.GetTriageStates(ctx, []string{digest})
	if _, ok := states[digest]; ok {
		t.Error("cleared state still reported")
	}
}

func TestTriage_MergeOnlyProvidedFields(t *testing.T) {
	// WHAT: A partial update overwrites only the fields it carries.
	// WHY: Merge semantics let independent tools update owner and estimate separately.
	svc := setupService(t, &fakeCrawler{})
	ctx := context.Background()
	digest := "feedbeeffeedbeef"

	owner := "alex"
	notes := "needs a design pass"
	if err := svc.SetTriageMeta(ctx, digest, TriageUpdate{Owner: &owner, Notes: &notes}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	hours := 8.0
	if err := svc.SetTriageMeta(ctx, digest, TriageUpdate{EstimateHours: &hours}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	meta, _ := svc.GetTriageMeta(ctx, []string{digest})
	m := meta[digest]
	if m == nil || m.Owner != "alex" || m.Notes != "needs a design pass" || m.EstimateHours != 8.0 {
		t.Errorf("merge lost fields: %+v", m)
	}
}

func TestSetTriageState_RejectsUnknownState(t *testing.T) {
	// WHAT: States outside the closed enum are rejected.
	// WHY: Downstream reporting switches on the closed set.
	svc := setupService(t, &fakeCrawler{})
	bogus := TriageState("someday-maybe")
	if err := svc.SetTriageState(context.Background(), "abcd", &bogus); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestJourneyStage_FeedsScoring(t *testing.T) {
	// WHAT: Journey failures reported by the collaborator end up in the backlog.
	// WHY: The journeys stage result must reach synthesis unmodified.
	svc := setupService(t,
		&fakeCrawler{pages: []*PageRun{cleanPage("https://example.com")}},
		WithJourneyRunner(&fakeJourneys{journeys: []*Journey{{
			Name:       "checkout",
			Steps:      []JourneyStep{{Action: "click", Target: "#buy", Outcome: "failed", FailReason: "timeout"}},
			FailedStep: intPtr(0),
		}}}),
	)
	job, _ := svc.StartAudit("https://example.com", JobOptions{Journeys: true})
	done := waitForJob(t, svc, job.ID)
	if done.Status != StatusDone {
		t.Fatalf("status = %s", done.Status)
	}
	issues, _ := svc.Issues(job.ID)
	if len(issues) != 1 || issues[0].Category != CategoryJourney {
		t.Errorf("unexpected issues: %+v", issues)
	}
}
