package audit

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Severity thresholds per performance metric: value > cut[i] maps to
// severity 3+i. Values at or below the severity-3 cut are below the reporting
// floor and produce no issue.
var perfThresholds = map[string][3]float64{
	MetricLoadDelay:        {2000, 2500, 4000},
	MetricInteractionDelay: {200, 400, 600},
	MetricLayoutShift:      {10, 25, 50},
}

// Fixed business impact per performance metric.
var perfImpact = map[string]int{
	MetricLoadDelay:        5,
	MetricInteractionDelay: 4,
	MetricLayoutShift:      3,
}

// perfMetricOrder fixes encounter order so ties sort deterministically.
var perfMetricOrder = []string{MetricLoadDelay, MetricInteractionDelay, MetricLayoutShift}

var perfRemediation = map[string][]string{
	MetricLoadDelay: {
		"Compress and lazy-load above-the-fold images",
		"Enable HTTP caching and a CDN for static assets",
		"Defer non-critical scripts",
	},
	MetricInteractionDelay: {
		"Break up long main-thread tasks",
		"Reduce JavaScript shipped on initial load",
	},
	MetricLayoutShift: {
		"Reserve dimensions for images and embeds",
		"Avoid inserting content above existing content",
	},
}

// SEO constants: severity, business impact, effort per check. Length bounds
// are in characters, not bytes.
const (
	seoEffort = 2

	titleMinLen = 15
	titleMaxLen = 65
	descMaxLen  = 180
)

// Score converts crawl, performance, accessibility, and journey evidence into
// a ranked issue backlog. Pure and deterministic: identical inputs produce
// identical output, sorted by descending score with ties keeping encounter
// order. Run-local IDs are assigned after sorting.
func Score(pages []*PageRun, journeys []*Journey) []Issue {
	var issues []Issue
	issues = append(issues, performanceIssues(pages)...)
	issues = append(issues, accessibilityIssues(pages)...)
	issues = append(issues, seoIssues(pages)...)
	issues = append(issues, journeyIssues(journeys)...)

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Score > issues[j].Score
	})
	for i := range issues {
		issues[i].ID = fmt.Sprintf("ISS-%03d", i+1)
	}
	return issues
}

// finish computes the uniform score. Single formula for every category — no
// category-specific weighting beyond the fixed constants.
func finish(issue Issue) Issue {
	issue.Score = issue.Severity*issue.BusinessImpact - issue.Effort
	return issue
}

func performanceIssues(pages []*PageRun) []Issue {
	var issues []Issue
	for _, page := range pages {
		if len(page.PerformanceAudit) == 0 {
			continue
		}
		for _, metric := range perfMetricOrder {
			value, ok := page.PerformanceAudit[metric]
			if !ok {
				continue
			}
			cuts := perfThresholds[metric]
			severity := 0
			switch {
			case value > cuts[2]:
				severity = 5
			case value > cuts[1]:
				severity = 4
			case value > cuts[0]:
				severity = 3
			default:
				continue // below reporting floor
			}
			issues = append(issues, finish(Issue{
				Category:         CategoryPerformance,
				PageURL:          page.URL,
				Title:            fmt.Sprintf("High %s on page", metric),
				EvidenceText:     fmt.Sprintf("%s measured at %.0f (severity-%d threshold: %.0f)", metric, value, severity, cuts[severity-3]),
				MetricName:       metric,
				Severity:         severity,
				BusinessImpact:   perfImpact[metric],
				Effort:           2,
				RemediationSteps: perfRemediation[metric],
			}))
		}
	}
	return issues
}

func accessibilityIssues(pages []*PageRun) []Issue {
	var issues []Issue
	for _, page := range pages {
		for _, v := range page.Violations {
			severity := 3
			switch v.Impact {
			case "critical":
				severity = 5
			case "serious":
				severity = 4
			}
			issues = append(issues, finish(Issue{
				Category:         CategoryAccessibility,
				PageURL:          page.URL,
				Title:            fmt.Sprintf("Accessibility: %s", v.RuleID),
				EvidenceText:     fmt.Sprintf("%s (selector: %s)", v.Description, v.TargetSelector),
				RuleID:           v.RuleID,
				WCAGRef:          v.WCAGRef,
				Severity:         severity,
				BusinessImpact:   4,
				Effort:           2,
				RemediationSteps: []string{
					fmt.Sprintf("Fix the %s violation at %s", v.RuleID, v.TargetSelector),
					"Re-run the accessibility audit to confirm",
				},
			}))
		}
	}
	return issues
}

func seoIssues(pages []*PageRun) []Issue {
	var issues []Issue

	// Per-page checks, each independent: a page with both a missing title and
	// a duplicate title produces two separate issues.
	for _, page := range pages {
		meta := page.Meta
		titleLen := utf8.RuneCountInString(meta.Title)
		switch {
		case meta.Title == "":
			issues = append(issues, seoIssue(page.URL, 4, 3,
				"Missing page title",
				"No <title> element was found",
				"Add a unique, descriptive <title> of 15-65 characters"))
		case titleLen < titleMinLen || titleLen > titleMaxLen:
			issues = append(issues, seoIssue(page.URL, 3, 3,
				"Page title length out of range",
				fmt.Sprintf("Title is %d characters; the recommended range is %d-%d", titleLen, titleMinLen, titleMaxLen),
				"Rewrite the title to fit the recommended length"))
		}

		if meta.H1 == "" {
			issues = append(issues, seoIssue(page.URL, 3, 2,
				"Missing H1 heading",
				"No <h1> element was found",
				"Add a single <h1> describing the page's main content"))
		}

		descLen := utf8.RuneCountInString(meta.Description)
		switch {
		case meta.Description == "":
			issues = append(issues, seoIssue(page.URL, 3, 3,
				"Missing meta description",
				"No meta description was found",
				"Add a meta description summarizing the page"))
		case descLen > descMaxLen:
			issues = append(issues, seoIssue(page.URL, 2, 2,
				"Meta description too long",
				fmt.Sprintf("Description is %d characters; search engines truncate after %d", descLen, descMaxLen),
				"Shorten the description"))
		}
	}

	// Cross-page check: exact-duplicate non-empty titles shared by >=2 pages
	// yield one issue per affected page.
	titleCount := make(map[string]int)
	for _, page := range pages {
		if page.Meta.Title != "" {
			titleCount[page.Meta.Title]++
		}
	}
	for _, page := range pages {
		if page.Meta.Title != "" && titleCount[page.Meta.Title] >= 2 {
			issues = append(issues, seoIssue(page.URL, 3, 3,
				"Duplicate page title",
				fmt.Sprintf("Title %q is shared by %d pages", page.Meta.Title, titleCount[page.Meta.Title]),
				"Give each page a unique title"))
		}
	}

	return issues
}

func seoIssue(pageURL string, severity, impact int, title, evidence, remediation string) Issue {
	return finish(Issue{
		Category:         CategorySEO,
		PageURL:          pageURL,
		Title:            title,
		EvidenceText:     evidence,
		Severity:         severity,
		BusinessImpact:   impact,
		Effort:           seoEffort,
		RemediationSteps: []string{remediation},
	})
}

func journeyIssues(journeys []*Journey) []Issue {
	var issues []Issue
	for _, j := range journeys {
		if j.FailedStep == nil {
			continue
		}
		idx := *j.FailedStep
		evidence := fmt.Sprintf("Journey %q failed at step %d", j.Name, idx)
		var evidencePath string
		if idx >= 0 && idx < len(j.Steps) {
			step := j.Steps[idx]
			evidence = fmt.Sprintf("Journey %q failed at step %d (%s %s): %s",
				j.Name, idx, step.Action, step.Target, step.FailReason)
			evidencePath = step.EvidencePath
		}
		if evidencePath != "" {
			evidence += ", evidence: " + evidencePath
		}
		issues = append(issues, finish(Issue{
			Category:         CategoryJourney,
			Title:            fmt.Sprintf("User journey failed: %s", j.Name),
			EvidenceText:     evidence,
			Severity:         5,
			BusinessImpact:   5,
			Effort:           3,
			RemediationSteps: []string{
				fmt.Sprintf("Reproduce step %d of journey %q manually", idx, j.Name),
				"Fix the failing interaction and re-run the journey",
			},
		}))
	}
	return issues
}
