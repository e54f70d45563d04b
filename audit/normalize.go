package audit

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeTargetURL validates and canonicalizes the target URL of an audit
// request: lowercases scheme and host, removes the fragment, strips the
// trailing slash (except root). Only http/https targets are accepted.
func NormalizeTargetURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidInput)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	return parsed.String(), nil
}

// NormalizePageURL canonicalizes a page URL for fingerprinting: lowercases
// scheme and host, strips fragment AND query string, trims the trailing slash.
// Idempotent — normalizing twice yields the same result as normalizing once.
// Unparseable input is returned unchanged: the digest must still be computable
// for whatever URL the evidence carried.
func NormalizePageURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawQuery = ""
	parsed.RawFragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String()
}

// Origin returns the scheme+host grouping key for a site's run history.
// Falls back to the raw input when it cannot be parsed.
func Origin(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
}
