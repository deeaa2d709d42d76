// Package origin implements the wildcard allow-list that gates which
// navigation targets a view may load in-component.
//
// Patterns are scheme+host globs ("https://*", "https://*.example.com",
// "git://internal.*"). A "*" wildcard matches any character sequence,
// including separators, so the single pattern "*" admits every origin.
// That is the required configuration for loading inline markup, whose
// synthetic origin would never match a scheme-qualified pattern.
package origin

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns gate navigation when the embedder configures nothing:
// plain web origins load in-component, everything else is external.
var DefaultPatterns = []string{"http://*", "https://*"}

// AllowList is an ordered, compiled set of origin patterns.
type AllowList struct {
	raw       []string
	compiled  []glob.Glob
	universal bool
}

// Default returns the allow-list for DefaultPatterns.
func Default() *AllowList {
	l, err := Compile(DefaultPatterns)
	if err != nil {
		// Static patterns; cannot fail.
		panic(fmt.Sprintf("origin: default patterns invalid: %v", err))
	}
	return l
}

// Compile builds an allow-list from pattern strings. An empty or nil set
// falls back to DefaultPatterns. Pattern order is preserved; the first
// match wins, though matching is order-insensitive in effect.
func Compile(patterns []string) (*AllowList, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	l := &AllowList{
		raw:      make([]string, 0, len(patterns)),
		compiled: make([]glob.Glob, 0, len(patterns)),
	}

	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid origin pattern %q: %w", p, err)
		}
		l.raw = append(l.raw, p)
		l.compiled = append(l.compiled, g)
		if p == "*" {
			l.universal = true
		}
	}

	return l, nil
}

// Allows reports whether the URL's origin matches any pattern.
func (l *AllowList) Allows(rawURL string) bool {
	o := Origin(rawURL)
	for _, g := range l.compiled {
		if g.Match(o) {
			return true
		}
	}
	return false
}

// AllowsInline reports whether the list carries the universal "*" pattern,
// the precondition for rendering inline markup.
func (l *AllowList) AllowsInline() bool {
	return l.universal
}

// Patterns returns the configured pattern strings in order.
func (l *AllowList) Patterns() []string {
	out := make([]string, len(l.raw))
	copy(out, l.raw)
	return out
}

// Origin reduces a URL to the form matched against patterns:
// scheme://host[:port] for authority URLs, scheme:opaque for the rest
// (about:blank, mailto:user@host, data:). Lowercased; path, query and
// fragment are never part of an origin.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return strings.ToLower(rawURL)
	}

	if u.Host != "" {
		return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	}

	opaque := u.Opaque
	if opaque == "" {
		opaque = u.Path
	}
	if i := strings.IndexByte(opaque, '/'); i >= 0 {
		opaque = opaque[:i]
	}
	return strings.ToLower(u.Scheme) + ":" + strings.ToLower(opaque)
}
