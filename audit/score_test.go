package audit

import (
	"strings"
	"testing"
)

func intPtr(i int) *int { return &i }

func TestScore_CleanPage_NoIssues(t *testing.T) {
	// WHAT: A page with healthy title/h1/description and fast load yields zero issues.
	// WHY: The backlog must not contain noise for pages that pass every check.
	pages := []*PageRun{{
		URL: "https://example.com",
		Meta: PageMeta{
			Title:       "Twenty char title ok",  // 20 chars
			H1:          "Welcome",
			Description: makeString(140),
		},
		PerformanceAudit: map[string]float64{MetricLoadDelay: 1800},
	}}
	issues := Score(pages, nil)
	if len(issues) != 0 {
		t.Fatalf("expected 0 issues, got %d: %+v", len(issues), issues)
	}
}

func TestScore_SlowHero(t *testing.T) {
	// WHAT: load-delay of 4200 yields exactly one performance issue with score 23.
	// WHY: The severity-5 threshold for load-delay sits at 4000; impact 5, effort 2.
	pages := []*PageRun{{
		URL: "https://example.com",
		Meta: PageMeta{
			Title:       "Twenty char title ok",
			H1:          "Welcome",
			Description: makeString(140),
		},
		PerformanceAudit: map[string]float64{MetricLoadDelay: 4200},
	}}
	issues := Score(pages, nil)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	is := issues[0]
	if is.Category != CategoryPerformance || is.MetricName != MetricLoadDelay {
		t.Errorf("wrong issue identity: %+v", is)
	}
	if is.Severity != 5 || is.BusinessImpact != 5 || is.Effort != 2 || is.Score != 23 {
		t.Errorf("wrong constants: severity=%d impact=%d effort=%d score=%d",
			is.Severity, is.BusinessImpact, is.Effort, is.Score)
	}
}

func TestScore_DuplicateTitles(t *testing.T) {
	// WHAT: Two pages sharing one non-empty title yield two duplicate-title issues, one per page.
	// WHY: Each affected page needs its own backlog entry; scoring never merges within a run.
	meta := PageMeta{Title: "Shared product title!", H1: "H", Description: makeString(100)}
	pages := []*PageRun{
		{URL: "https://example.com/a", Meta: meta},
		{URL: "https://example.com/b", Meta: meta},
	}
	issues := Score(pages, nil)

	var dups []Issue
	for _, is := range issues {
		if is.Title == "Duplicate page title" {
			dups = append(dups, is)
		}
	}
	if len(dups) != 2 {
		t.Fatalf("expected 2 duplicate-title issues, got %d", len(dups))
	}
	seen := map[string]bool{}
	for _, is := range dups {
		seen[is.PageURL] = true
		if is.Severity != 3 || is.BusinessImpact != 3 || is.Effort != 2 || is.Score != 7 {
			t.Errorf("wrong constants: %+v", is)
		}
	}
	if !seen["https://example.com/a"] || !seen["https://example.com/b"] {
		t.Error("duplicate-title issues do not cover both pages")
	}
}

func TestScore_MissingAndDuplicateAreSeparate(t *testing.T) {
	// WHAT: A page can carry several independent SEO issues in one run.
	// WHY: Dedup by digest happens only across runs, never inside the scoring pass.
	meta := PageMeta{Title: "Shared product title!"} // missing h1 + description, duplicate title
	pages := []*PageRun{
		{URL: "https://example.com/a", Meta: meta},
		{URL: "https://example.com/b", Meta: meta},
	}
	issues := Score(pages, nil)
	// Per page: h1-missing, description-missing, duplicate-title = 3 issues.
	if len(issues) != 6 {
		t.Fatalf("expected 6 issues, got %d", len(issues))
	}
}

func TestScore_JourneyFailure(t *testing.T) {
	// WHAT: A journey with failed step index 1 yields one issue with score 22, referencing step 1.
	// WHY: Broken user flows are the highest-signal finding; constants are 5/5/3.
	journeys := []*Journey{{
		Name: "checkout",
		Steps: []JourneyStep{
			{Action: "navigate", Target: "/", Outcome: "passed"},
			{Action: "click", Target: "#buy", Outcome: "failed", FailReason: "element not found", EvidencePath: "evidence/checkout-1.png"},
		},
		FailedStep: intPtr(1),
	}}
	issues := Score(nil, journeys)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	is := issues[0]
	if is.Severity != 5 || is.BusinessImpact != 5 || is.Effort != 3 || is.Score != 22 {
		t.Errorf("wrong constants: %+v", is)
	}
	if is.Category != CategoryJourney || is.PageURL != "" {
		t.Errorf("journey issue must be whole-journey scoped: %+v", is)
	}
	want := "failed at step 1"
	if !strings.Contains(is.EvidenceText, want) || !strings.Contains(is.EvidenceText, "evidence/checkout-1.png") {
		t.Errorf("evidence text missing step reference: %q", is.EvidenceText)
	}
}

func TestScore_PassingJourney_NoIssue(t *testing.T) {
	// WHAT: Journeys whose every step passed contribute nothing.
	// WHY: Only failures belong in the backlog.
	journeys := []*Journey{{Name: "login", Steps: []JourneyStep{{Action: "navigate", Outcome: "passed"}}}}
	if issues := Score(nil, journeys); len(issues) != 0 {
		t.Errorf("expected 0 issues, got %d", len(issues))
	}
}

func TestScore_SortedDescending(t *testing.T) {
	// WHAT: The returned backlog is always sorted by non-increasing score.
	// WHY: Descending score is the single ranking guarantee of the engine.
	pages := []*PageRun{{
		URL:  "https://example.com/a",
		Meta: PageMeta{}, // title, h1, description all missing
		PerformanceAudit: map[string]float64{
			MetricLoadDelay:        4200,
			MetricInteractionDelay: 450,
			MetricLayoutShift:      30,
		},
		Violations: []AccessibilityViolation{
			{RuleID: "image-alt", Impact: "critical", TargetSelector: "img"},
			{RuleID: "html-has-lang", Impact: "serious", TargetSelector: "html"},
		},
	}}
	journeys := []*Journey{{Name: "signup", Steps: []JourneyStep{{Outcome: "failed"}}, FailedStep: intPtr(0)}}

	issues := Score(pages, journeys)
	if len(issues) == 0 {
		t.Fatal("expected issues")
	}
	for i := 1; i < len(issues); i++ {
		if issues[i].Score > issues[i-1].Score {
			t.Fatalf("not sorted at %d: %d > %d", i, issues[i].Score, issues[i-1].Score)
		}
	}
	// Run-local ids assigned in rank order.
	if issues[0].ID != "ISS-001" {
		t.Errorf("first id = %q", issues[0].ID)
	}
}

func TestScore_Deterministic(t *testing.T) {
	// WHAT: Identical inputs produce identical output, including tie order.
	// WHY: Determinism is part of the scoring contract; ties keep encounter order.
	pages := []*PageRun{
		{URL: "https://example.com/a", Meta: PageMeta{}},
		{URL: "https://example.com/b", Meta: PageMeta{}},
	}
	first := Score(pages, nil)
	second := Score(pages, nil)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].PageURL != second[i].PageURL || first[i].Title != second[i].Title {
			t.Fatalf("order differs at %d", i)
		}
	}
}

func TestScore_MetricBelowFloor_NotEmitted(t *testing.T) {
	// WHAT: Metrics at or below the severity-3 cut produce no issue.
	// WHY: The reporting floor keeps marginal measurements out of the backlog.
	pages := []*PageRun{{
		URL:  "https://example.com",
		Meta: PageMeta{Title: "Twenty char title ok", H1: "H", Description: makeString(50)},
		PerformanceAudit: map[string]float64{
			MetricLoadDelay:        2000,
			MetricInteractionDelay: 150,
			MetricLayoutShift:      5,
		},
	}}
	if issues := Score(pages, nil); len(issues) != 0 {
		t.Errorf("expected 0 issues, got %d", len(issues))
	}
}

func TestScore_AccessibilityImpactMapping(t *testing.T) {
	// WHAT: critical→5, serious→4, anything else→3, always impact 4 effort 2.
	// WHY: Severity is the only field derived from the checker's impact class.
	pages := []*PageRun{{
		URL:  "https://example.com",
		Meta: PageMeta{Title: "Twenty char title ok", H1: "H", Description: makeString(50)},
		Violations: []AccessibilityViolation{
			{RuleID: "button-name", Impact: "critical"},
			{RuleID: "link-name", Impact: "serious"},
			{RuleID: "empty-heading", Impact: "moderate"},
		},
	}}
	issues := Score(pages, nil)
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	bySeverity := map[string]int{}
	for _, is := range issues {
		bySeverity[is.RuleID] = is.Severity
		if is.BusinessImpact != 4 || is.Effort != 2 {
			t.Errorf("wrong constants for %s: %+v", is.RuleID, is)
		}
	}
	if bySeverity["button-name"] != 5 || bySeverity["link-name"] != 4 || bySeverity["empty-heading"] != 3 {
		t.Errorf("wrong severity mapping: %v", bySeverity)
	}
}

func TestScore_TitleLengthCountsCharacters(t *testing.T) {
	// WHAT: Title length bounds apply to character counts, not UTF-8 byte counts.
	// WHY: A 28-character Japanese title is 84 bytes; byte counting would flag
	// it out of range and let a 5-character title slip under the minimum.
	pages := []*PageRun{{
		URL:  "https://example.jp",
		Meta: PageMeta{Title: strings.Repeat("日", 28), H1: "H", Description: makeString(100)},
	}}
	if issues := Score(pages, nil); len(issues) != 0 {
		t.Fatalf("expected 0 issues for 28-character title, got %+v", issues)
	}

	pages[0].Meta.Title = strings.Repeat("日", 5) // 15 bytes, 5 characters
	issues := Score(pages, nil)
	if len(issues) != 1 || issues[0].Title != "Page title length out of range" {
		t.Fatalf("expected a length issue for 5-character title, got %+v", issues)
	}
	if !strings.Contains(issues[0].EvidenceText, "Title is 5 characters") {
		t.Errorf("evidence counts bytes, not characters: %q", issues[0].EvidenceText)
	}
}

func TestScore_DescriptionLengthCountsCharacters(t *testing.T) {
	// WHAT: The description cap applies to characters, not bytes.
	// WHY: 150 multibyte characters are 450 bytes; only counts above 180
	// characters are too long.
	pages := []*PageRun{{
		URL:  "https://example.jp",
		Meta: PageMeta{Title: "Twenty char title ok", H1: "H", Description: strings.Repeat("情", 150)},
	}}
	if issues := Score(pages, nil); len(issues) != 0 {
		t.Fatalf("expected 0 issues for 150-character description, got %+v", issues)
	}
}

func makeString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
