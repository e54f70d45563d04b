package crawl

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

// snapshotMaxLen caps the stored text capture per page.
const snapshotMaxLen = 16 * 1024

var snapshotPolicy = bluemonday.UGCPolicy()

// snapshot produces the stored text capture of a page: scripts, styles, and
// unsafe markup stripped, then converted to markdown so headings and links
// survive into reports.
func snapshot(body []byte) string {
	clean := snapshotPolicy.SanitizeBytes(body)
	md, err := htmltomarkdown.ConvertString(string(clean))
	if err != nil {
		md = string(clean)
	}
	if len(md) > snapshotMaxLen {
		md = md[:snapshotMaxLen]
	}
	return md
}
