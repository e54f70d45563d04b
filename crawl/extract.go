package crawl

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/siteaudit/audit"
)

// extractPage parses an HTML document into a PageRun: title, first h1, meta
// description, and the normalized absolute form of every same-document link.
// Parse failures yield a PageRun with whatever was recovered; net/html is
// tolerant by design.
func extractPage(pageURL string, body []byte) *audit.PageRun {
	page := &audit.PageRun{URL: pageURL}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return page
	}
	base, _ := url.Parse(pageURL)

	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.Meta.Title == "" {
					page.Meta.Title = strings.TrimSpace(textContent(n))
				}
			case "h1":
				if page.Meta.H1 == "" {
					page.Meta.H1 = strings.TrimSpace(textContent(n))
				}
			case "meta":
				if strings.EqualFold(attr(n, "name"), "description") && page.Meta.Description == "" {
					page.Meta.Description = strings.TrimSpace(attr(n, "content"))
				}
			case "a":
				if link := resolveLink(base, attr(n, "href")); link != "" && !seen[link] {
					seen[link] = true
					page.Links = append(page.Links, link)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return page
}

// resolveLink turns an href into a normalized absolute URL, or "" for
// anchors, non-HTTP schemes, and unparseable values.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	var abs *url.URL
	if base != nil {
		abs = base.ResolveReference(ref)
	} else {
		abs = ref
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return audit.NormalizePageURL(abs.String())
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}
