package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

// robotsRules wraps a parsed robots.txt. A nil inner value means no usable
// robots.txt was found, which allows everything.
type robotsRules struct {
	data *robotstxt.RobotsData
}

func (r robotsRules) allowed(userAgent, pageURL string) bool {
	if r.data == nil {
		return true
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return r.data.FindGroup(userAgent).Test(path)
}

// loadRobots fetches and parses <origin>/robots.txt. Any failure degrades to
// allow-all: an unreachable robots.txt must not block an audit the user
// explicitly requested.
func (c *Crawler) loadRobots(ctx context.Context, origin string) robotsRules {
	if c.config.IgnoreRobots {
		return robotsRules{}
	}
	body, err := c.fetchRobots(ctx, origin+"/robots.txt")
	if err != nil {
		c.logger.Debug("crawl: no robots.txt", "origin", origin, "error", err)
		return robotsRules{}
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		c.logger.Debug("crawl: robots.txt unparseable", "origin", origin, "error", err)
		return robotsRules{}
	}
	return robotsRules{data: data}
}

// fetchRobots is a plain GET without the HTML content-type requirement that
// page fetches enforce.
func (c *Crawler) fetchRobots(ctx context.Context, robotsURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}
