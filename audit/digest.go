package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// digestLen is the number of hex characters kept from the SHA-256 sum.
// 64 bits of digest is far below any realistic collision probability at
// backlog scale, and short enough to read in a diff.
const digestLen = 16

// titleFragLen bounds the title discriminator for seo/journey issues so that
// trailing evidence detail doesn't change identity. Measured in characters;
// the hashed fragment is always valid UTF-8.
const titleFragLen = 48

// Digest derives the stable cross-run identity of an issue from its category,
// normalized page URL, and category-specific discriminator. Severity, score,
// and evidence text never influence the digest — they legitimately vary from
// run to run.
func Digest(issue Issue) string {
	disc := discriminator(issue)
	sum := sha256.Sum256([]byte(string(issue.Category) + "|" + NormalizePageURL(issue.PageURL) + "|" + disc))
	return hex.EncodeToString(sum[:])[:digestLen]
}

func discriminator(issue Issue) string {
	switch issue.Category {
	case CategoryAccessibility:
		return issue.RuleID
	case CategoryPerformance:
		return issue.MetricName
	default: // seo, journey
		title := strings.ToLower(issue.Title)
		if utf8.RuneCountInString(title) > titleFragLen {
			title = string([]rune(title)[:titleFragLen])
		}
		return title
	}
}

// DigestsFor computes the deduplicated digest set of a run's issues,
// preserving first-seen order.
func DigestsFor(issues []Issue) []string {
	seen := make(map[string]bool, len(issues))
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		d := Digest(issue)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
