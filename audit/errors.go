package audit

import "errors"

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("audit: invalid input")

// ErrJobNotFound is returned when no job exists for the given id.
var ErrJobNotFound = errors.New("audit: job not found")

// ErrCrawlFailed wraps a fatal crawl-stage failure.
var ErrCrawlFailed = errors.New("audit: crawl failed")
