package audit

import "time"

// CrawlConfig bounds default crawl behaviour for jobs that don't set their
// own limits.
type CrawlConfig struct {
	MaxDepth int           `yaml:"max_depth"`
	MaxPages int           `yaml:"max_pages"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Config configures the audit service.
type Config struct {
	Crawl CrawlConfig `yaml:"crawl"`
}

func (c *Config) defaults() {
	if c.Crawl.MaxDepth <= 0 {
		c.Crawl.MaxDepth = 2
	}
	if c.Crawl.MaxPages <= 0 {
		c.Crawl.MaxPages = 25
	}
	if c.Crawl.Timeout <= 0 {
		c.Crawl.Timeout = 30 * time.Second
	}
}

func defaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth: 2,
			MaxPages: 25,
			Timeout:  30 * time.Second,
		},
	}
}
