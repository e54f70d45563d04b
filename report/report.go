// Package report renders a completed audit as a markdown document or a CSV
// backlog export. Triage records, when supplied, are merged in by digest so
// dispositions from earlier runs annotate re-discovered issues.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/siteaudit/audit"
)

// WriteMarkdown renders the full audit report. A job that ended in error
// still renders: the banner states the failure and whatever evidence was
// gathered before it is shown.
func WriteMarkdown(w io.Writer, job *audit.Job, triage map[string]*audit.TriageMeta) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Site audit: %s\n\n", job.URL)
	fmt.Fprintf(&b, "Generated %s. Status: %s.\n\n",
		time.UnixMilli(job.CreatedAt).UTC().Format("2006-01-02 15:04 UTC"), job.Status)

	if job.Status == audit.StatusError {
		fmt.Fprintf(&b, "> **Audit incomplete:** %s\n\n", job.Error)
	}

	fmt.Fprintf(&b, "Pages crawled: %d. Journeys run: %d. Issues found: %d.\n\n",
		len(job.Pages), len(job.Journeys), len(job.Issues))

	if len(job.Issues) > 0 {
		b.WriteString("## Backlog\n\n")
		b.WriteString("| # | ID | Category | Score | Sev | Impact | Effort | Issue | Page | Triage |\n")
		b.WriteString("|---|----|----------|-------|-----|--------|--------|-------|------|--------|\n")
		for i, issue := range job.Issues {
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %d | %d | %d | %s | %s | %s |\n",
				i+1, issue.ID, issue.Category, issue.Score,
				issue.Severity, issue.BusinessImpact, issue.Effort,
				cell(issue.Title), cell(issue.PageURL), triageCell(triage, issue))
		}
		b.WriteString("\n")

		b.WriteString("## Details\n\n")
		for _, issue := range job.Issues {
			fmt.Fprintf(&b, "### %s: %s\n\n", issue.ID, issue.Title)
			fmt.Fprintf(&b, "- Digest: `%s`\n", audit.Digest(issue))
			if issue.PageURL != "" {
				fmt.Fprintf(&b, "- Page: %s\n", issue.PageURL)
			}
			if issue.WCAGRef != "" {
				fmt.Fprintf(&b, "- WCAG: %s\n", issue.WCAGRef)
			}
			if issue.EvidenceText != "" {
				fmt.Fprintf(&b, "- Evidence: %s\n", issue.EvidenceText)
			}
			if t := lookupTriage(triage, issue); t != nil {
				fmt.Fprintf(&b, "- Triage: %s", t.State)
				if t.Owner != "" {
					fmt.Fprintf(&b, ", owner %s", t.Owner)
				}
				if t.EstimateHours > 0 {
					fmt.Fprintf(&b, ", estimate %gh", t.EstimateHours)
				}
				b.WriteString("\n")
				if t.Notes != "" {
					fmt.Fprintf(&b, "- Notes: %s\n", t.Notes)
				}
			}
			if len(issue.RemediationSteps) > 0 {
				b.WriteString("\nRemediation:\n\n")
				for _, step := range issue.RemediationSteps {
					fmt.Fprintf(&b, "1. %s\n", step)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(job.Journeys) > 0 {
		b.WriteString("## Journeys\n\n")
		for _, j := range job.Journeys {
			status := "passed"
			if j.FailedStep != nil {
				status = fmt.Sprintf("failed at step %d", *j.FailedStep)
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", j.Name, status)
			for i, step := range j.Steps {
				fmt.Fprintf(&b, "  %d. %s %s: %s", i, step.Action, step.Target, step.Outcome)
				if step.FailReason != "" {
					fmt.Fprintf(&b, " (%s)", step.FailReason)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	if len(job.Benchs) > 0 {
		b.WriteString("## Competitor benchmarks\n\n")
		for _, bm := range job.Benchs {
			title := ""
			if bm.Page != nil {
				title = bm.Page.Meta.Title
			}
			fmt.Fprintf(&b, "- %s: %s\n", bm.URL, cell(title))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCSV exports the backlog, one issue per row, with triage columns.
func WriteCSV(w io.Writer, issues []audit.Issue, triage map[string]*audit.TriageMeta) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "digest", "category", "score", "severity", "business_impact",
		"effort", "title", "page_url", "evidence", "triage_state", "owner",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, issue := range issues {
		digest := audit.Digest(issue)
		state, owner := "", ""
		if t := triage[digest]; t != nil {
			state = string(t.State)
			owner = t.Owner
		}
		row := []string{
			issue.ID, digest, string(issue.Category),
			strconv.Itoa(issue.Score), strconv.Itoa(issue.Severity),
			strconv.Itoa(issue.BusinessImpact), strconv.Itoa(issue.Effort),
			issue.Title, issue.PageURL, issue.EvidenceText, state, owner,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func lookupTriage(triage map[string]*audit.TriageMeta, issue audit.Issue) *audit.TriageMeta {
	if triage == nil {
		return nil
	}
	return triage[audit.Digest(issue)]
}

func triageCell(triage map[string]*audit.TriageMeta, issue audit.Issue) string {
	t := lookupTriage(triage, issue)
	if t == nil || t.State == "" {
		return ""
	}
	return string(t.State)
}

// cell escapes pipes so free text cannot break the table layout.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
