// Package audit turns raw website-audit evidence (crawl metadata, performance
// metrics, accessibility violations, user-journey outcomes) into a ranked,
// deduplicated backlog of issues, and preserves that backlog's identity across
// repeated scans of the same site.
package audit

import "time"

// Category classifies an issue by the evidence that produced it.
type Category string

const (
	CategoryPerformance   Category = "performance"
	CategoryAccessibility Category = "accessibility"
	CategorySEO           Category = "seo"
	CategoryJourney       Category = "journey"
)

// Performance metric names attached to PageRun.PerformanceAudit.
const (
	MetricLoadDelay        = "load-delay"
	MetricInteractionDelay = "interaction-delay"
	MetricLayoutShift      = "layout-shift"
)

// PageMeta holds document metadata extracted from a crawled page.
// All fields are optional — absence is itself evidence for SEO checks.
type PageMeta struct {
	Title       string `json:"title,omitempty"`
	H1          string `json:"h1,omitempty"`
	Description string `json:"description,omitempty"`
}

// AccessibilityViolation is one rule violation instance found on a page.
type AccessibilityViolation struct {
	RuleID         string `json:"rule_id"`
	Impact         string `json:"impact"` // critical | serious | moderate | minor
	Description    string `json:"description"`
	TargetSelector string `json:"target_selector"`
	WCAGRef        string `json:"wcag_ref,omitempty"`
}

// PageRun is one crawled page and everything measured about it.
// Collaborators attach PerformanceAudit and AccessibilityViolations in place
// during their pipeline stages; the core treats the record as immutable
// afterwards.
type PageRun struct {
	URL              string                   `json:"url"`
	Links            []string                 `json:"links,omitempty"`
	Meta             PageMeta                 `json:"meta"`
	Snapshot         string                   `json:"snapshot,omitempty"` // sanitized text capture
	RawHTML          []byte                   `json:"-"`                  // in-flight evidence for later stages
	PerformanceAudit map[string]float64       `json:"performance_audit,omitempty"`
	Violations       []AccessibilityViolation `json:"accessibility_violations,omitempty"`
}

// JourneyStep is one action within a scripted user flow.
type JourneyStep struct {
	Action       string        `json:"action"`
	Target       string        `json:"target,omitempty"`
	Outcome      string        `json:"outcome"` // passed | failed | skipped
	Elapsed      time.Duration `json:"elapsed_ms"`
	FailReason   string        `json:"fail_reason,omitempty"`
	EvidencePath string        `json:"evidence_path,omitempty"`
}

// Journey is one scripted user-flow execution. FailedStep is nil when every
// step passed.
type Journey struct {
	Name       string        `json:"name"`
	Steps      []JourneyStep `json:"steps"`
	FailedStep *int          `json:"failed_step_index,omitempty"`
}

// Issue is the unit of the backlog. IDs are run-local; only the digest and
// score of an issue survive across runs.
type Issue struct {
	ID               string   `json:"id"`
	Category         Category `json:"category"`
	PageURL          string   `json:"page_url,omitempty"` // empty for whole-journey issues
	Title            string   `json:"title"`
	EvidenceText     string   `json:"evidence_text"`
	RuleID           string   `json:"rule_id,omitempty"`
	WCAGRef          string   `json:"wcag_ref,omitempty"`
	MetricName       string   `json:"metric_name,omitempty"`
	Severity         int      `json:"severity"`        // 1-5
	BusinessImpact   int      `json:"business_impact"` // 1-5
	Effort           int      `json:"effort"`          // 1-5
	Score            int      `json:"score"`           // severity*businessImpact - effort
	RemediationSteps []string `json:"remediation_steps,omitempty"`
}

// JobStatus is the lifecycle state of an audit job.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusError   JobStatus = "error"
)

// Pipeline stage labels, in execution order.
const (
	StageCrawl     = "crawl"
	StagePerf      = "perf"
	StageA11y      = "a11y"
	StageBench     = "bench"
	StageJourneys  = "journeys"
	StageSynthesis = "synthesis"
)

// JobOptions selects which optional engines run and how deep the crawl goes.
type JobOptions struct {
	MaxDepth    int      `json:"max_depth,omitempty"`
	MaxPages    int      `json:"max_pages,omitempty"`
	Perf        bool     `json:"perf"`
	A11y        bool     `json:"a11y"`
	Journeys    bool     `json:"journeys"`
	Competitors []string `json:"competitors,omitempty"`
}

// Benchmark is a competitor homepage snapshot for comparison display.
// Consumed by report rendering only, never by scoring.
type Benchmark struct {
	URL    string   `json:"url"`
	Origin string   `json:"origin"`
	Page   *PageRun `json:"page,omitempty"`
}

// Job is the orchestration state of one analysis request. It is mutated only
// by the orchestrator; everything else reads snapshots obtained through
// Service.Job.
type Job struct {
	ID        string       `json:"id"`
	URL       string       `json:"url"`
	Options   JobOptions   `json:"options"`
	Status    JobStatus    `json:"status"`
	Stage     string       `json:"stage,omitempty"`
	Progress  int          `json:"progress"` // 0-100, monotonically non-decreasing
	Error     string       `json:"error,omitempty"`
	CreatedAt int64        `json:"created_at"` // unix millis
	Pages     []*PageRun   `json:"-"`
	Journeys  []*Journey   `json:"-"`
	Benchs    []*Benchmark `json:"-"`
	Issues    []Issue      `json:"-"`
}

// RunMeta is the durable, compact summary of one completed job. Created once
// at job completion and never amended; recording the same job id again
// replaces the whole record.
type RunMeta struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Origin    string    `json:"origin"` // scheme+host grouping key
	Status    JobStatus `json:"status"`
	Pages     int       `json:"pages"`
	Journeys  int       `json:"journeys"`
	Issues    int       `json:"issues"`
	Digests   []string  `json:"digests"`
	CreatedAt int64     `json:"created_at"` // unix millis
}

// DiffResult classifies the digests of two runs.
type DiffResult struct {
	RunA      string   `json:"run_a"`
	RunB      string   `json:"run_b"`
	Added     []string `json:"added"`     // in B, not in A
	Removed   []string `json:"removed"`   // in A, not in B
	Unchanged []string `json:"unchanged"` // in both
}

// TriageState is the closed set of human dispositions on an issue digest.
type TriageState string

const (
	TriageAccepted    TriageState = "accepted"
	TriageWontFix     TriageState = "wont-fix"
	TriageNeedsDesign TriageState = "needs-design"
	TriagePlanned     TriageState = "planned"
	TriageInProgress  TriageState = "in-progress"
	TriageDone        TriageState = "done"
)

// ValidTriageState reports whether s is a member of the closed state set.
func ValidTriageState(s TriageState) bool {
	switch s {
	case TriageAccepted, TriageWontFix, TriageNeedsDesign,
		TriagePlanned, TriageInProgress, TriageDone:
		return true
	}
	return false
}

// TriageMeta is the per-digest, cross-run mutable triage record. An empty
// State means "no disposition".
type TriageMeta struct {
	Digest        string      `json:"digest"`
	State         TriageState `json:"state,omitempty"`
	Owner         string      `json:"owner,omitempty"`
	EstimateHours float64     `json:"estimate_hours,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	UpdatedAt     int64       `json:"updated_at"` // unix millis
}

// TriageUpdate carries a partial triage mutation. Only non-nil fields
// overwrite the stored record.
type TriageUpdate struct {
	Owner         *string  `json:"owner,omitempty"`
	EstimateHours *float64 `json:"estimate_hours,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}
