// Package a11y runs static accessibility checks over crawled page markup.
// The rules are the statically decidable subset of WCAG 2.1 A/AA: missing
// text alternatives, missing accessible names, and missing document metadata.
// Anything requiring computed styles or runtime state is out of scope here.
package a11y

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/siteaudit/audit"
)

// Checker attaches accessibility violations to pages.
type Checker struct {
	logger *slog.Logger
}

// New creates a Checker.
func New(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger}
}

// Check parses each page's captured markup and records rule violations in
// place. Pages without captured markup are skipped. A page that fails to
// parse is skipped with a log line; one bad page must not void the stage.
func (c *Checker) Check(ctx context.Context, pages []*audit.PageRun) error {
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(page.RawHTML) == 0 {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.RawHTML))
		if err != nil {
			c.logger.Warn("a11y: page unparseable", "url", page.URL, "error", err)
			continue
		}
		page.Violations = checkDocument(doc)
	}
	return nil
}

func checkDocument(doc *goquery.Document) []audit.AccessibilityViolation {
	var out []audit.AccessibilityViolation
	out = append(out, checkHTMLLang(doc)...)
	out = append(out, checkDocumentTitle(doc)...)
	out = append(out, checkImageAlt(doc)...)
	out = append(out, checkLinkName(doc)...)
	out = append(out, checkButtonName(doc)...)
	out = append(out, checkFrameTitle(doc)...)
	out = append(out, checkEmptyHeading(doc)...)
	return out
}

func checkHTMLLang(doc *goquery.Document) []audit.AccessibilityViolation {
	lang, _ := doc.Find("html").First().Attr("lang")
	if strings.TrimSpace(lang) != "" {
		return nil
	}
	return []audit.AccessibilityViolation{{
		RuleID:         "html-has-lang",
		Impact:         "serious",
		Description:    "The <html> element has no lang attribute, so screen readers cannot pick a pronunciation language",
		TargetSelector: "html",
		WCAGRef:        "3.1.1",
	}}
}

func checkDocumentTitle(doc *goquery.Document) []audit.AccessibilityViolation {
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	if title != "" {
		return nil
	}
	return []audit.AccessibilityViolation{{
		RuleID:         "document-title",
		Impact:         "serious",
		Description:    "The document has no <title>, leaving tabs and history entries unlabeled",
		TargetSelector: "head",
		WCAGRef:        "2.4.2",
	}}
}

func checkImageAlt(doc *goquery.Document) []audit.AccessibilityViolation {
	var out []audit.AccessibilityViolation
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if _, ok := sel.Attr("alt"); ok {
			return
		}
		if role, _ := sel.Attr("role"); role == "presentation" || role == "none" {
			return
		}
		out = append(out, audit.AccessibilityViolation{
			RuleID:         "image-alt",
			Impact:         "critical",
			Description:    "Image has no alt attribute",
			TargetSelector: selectorFor(sel, "img"),
			WCAGRef:        "1.1.1",
		})
	})
	return out
}

func checkLinkName(doc *goquery.Document) []audit.AccessibilityViolation {
	var out []audit.AccessibilityViolation
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if hasAccessibleName(sel) {
			return
		}
		out = append(out, audit.AccessibilityViolation{
			RuleID:         "link-name",
			Impact:         "serious",
			Description:    "Link has no discernible text",
			TargetSelector: selectorFor(sel, "a"),
			WCAGRef:        "2.4.4",
		})
	})
	return out
}

func checkButtonName(doc *goquery.Document) []audit.AccessibilityViolation {
	var out []audit.AccessibilityViolation
	doc.Find("button").Each(func(_ int, sel *goquery.Selection) {
		if hasAccessibleName(sel) {
			return
		}
		out = append(out, audit.AccessibilityViolation{
			RuleID:         "button-name",
			Impact:         "critical",
			Description:    "Button has no discernible text",
			TargetSelector: selectorFor(sel, "button"),
			WCAGRef:        "4.1.2",
		})
	})
	return out
}

func checkFrameTitle(doc *goquery.Document) []audit.AccessibilityViolation {
	var out []audit.AccessibilityViolation
	doc.Find("iframe, frame").Each(func(_ int, sel *goquery.Selection) {
		if title, _ := sel.Attr("title"); strings.TrimSpace(title) != "" {
			return
		}
		out = append(out, audit.AccessibilityViolation{
			RuleID:         "frame-title",
			Impact:         "serious",
			Description:    "Frame has no title attribute describing its content",
			TargetSelector: selectorFor(sel, goquery.NodeName(sel)),
			WCAGRef:        "4.1.2",
		})
	})
	return out
}

func checkEmptyHeading(doc *goquery.Document) []audit.AccessibilityViolation {
	var out []audit.AccessibilityViolation
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		if strings.TrimSpace(sel.Text()) != "" {
			return
		}
		if strings.TrimSpace(sel.Find("img[alt]").AttrOr("alt", "")) != "" {
			return
		}
		out = append(out, audit.AccessibilityViolation{
			RuleID:         "empty-heading",
			Impact:         "moderate",
			Description:    "Heading element contains no text",
			TargetSelector: selectorFor(sel, goquery.NodeName(sel)),
			WCAGRef:        "1.3.1",
		})
	})
	return out
}

// hasAccessibleName approximates the accessible-name computation: visible
// text, aria-label, aria-labelledby, a contained image alt, or a title
// attribute all count.
func hasAccessibleName(sel *goquery.Selection) bool {
	if strings.TrimSpace(sel.Text()) != "" {
		return true
	}
	for _, attr := range []string{"aria-label", "aria-labelledby", "title"} {
		if v, _ := sel.Attr(attr); strings.TrimSpace(v) != "" {
			return true
		}
	}
	if alt := sel.Find("img").AttrOr("alt", ""); strings.TrimSpace(alt) != "" {
		return true
	}
	return false
}

// selectorFor produces a short selector pointing at the offending element:
// id when present, otherwise tag plus the first class.
func selectorFor(sel *goquery.Selection, tag string) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		return fmt.Sprintf("%s#%s", tag, id)
	}
	if class, ok := sel.Attr("class"); ok && class != "" {
		first := strings.Fields(class)
		if len(first) > 0 {
			return fmt.Sprintf("%s.%s", tag, first[0])
		}
	}
	return tag
}
