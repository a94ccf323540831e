// Package origin decides which browser origins may make credentialed cross-origin requests.
package origin

import (
	"net/url"
	"strings"
)

// Wildcard allows every origin when present in the allow-list.
const Wildcard = "*"

// Matcher holds a normalized, immutable allow-list of origin patterns.
//
// Patterns may be a full origin (https://app.example.com), a hostname
// (app.example.com), a dot-prefixed suffix (.example.com) or the wildcard.
// A bare domain also admits its subdomains.
type Matcher struct {
	patterns []string
	wildcard bool
}

// NewMatcher builds a Matcher from the given patterns. Blank entries are dropped.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = normalize(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if p == Wildcard {
			m.wildcard = true
		}
		m.patterns = append(m.patterns, p)
	}
	return m
}

// ParseAllowList splits a comma separated list of origin patterns.
func ParseAllowList(csv string) []string {
	var patterns []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// Patterns returns a copy of the normalized allow-list.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Allow reports whether origin may receive credentialed responses.
// An empty origin is a non-browser caller and is always allowed.
func (m *Matcher) Allow(origin string) bool {
	if origin == "" {
		return true
	}

	origin = normalize(origin)

	if m.wildcard {
		return true
	}

	for _, p := range m.patterns {
		if p == origin {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "" {
		return false
	}

	for _, p := range m.patterns {
		if matchHost(host, p) {
			return true
		}
	}

	return false
}

func matchHost(host, pattern string) bool {
	switch {
	case host == pattern:
		return true
	case strings.HasPrefix(pattern, "."):
		return strings.HasSuffix(host, pattern)
	case strings.Contains(pattern, "://"):
		// full origins only match exactly
		return false
	default:
		return strings.HasSuffix(host, "."+pattern)
	}
}

func normalize(s string) string {
	return strings.TrimSuffix(s, "/")
}
