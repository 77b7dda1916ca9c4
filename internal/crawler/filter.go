package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AcceptFilter reports whether an in-scope address may be accepted.
type AcceptFilter func(address string) bool

// NewPathFilter builds an AcceptFilter from glob patterns matched against the
// URL path. Patterns use doublestar syntax ("/blog/**", "*.pdf"). A pattern
// without a slash is also matched against the last path element.
//
// An address matching any ignore pattern is rejected. If follow is non-empty,
// an address must match one of its patterns. NewPathFilter returns a nil
// filter when both lists are empty.
func NewPathFilter(ignore, follow []string) (AcceptFilter, error) {
	ignore = compactPatterns(ignore)
	follow = compactPatterns(follow)

	for _, p := range append(append([]string{}, ignore...), follow...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, p)
		}
	}
	if len(ignore) == 0 && len(follow) == 0 {
		return nil, nil
	}

	return func(address string) bool {
		p := addressPath(address)
		if matchAny(ignore, p) {
			return false
		}
		if len(follow) == 0 {
			return true
		}
		return matchAny(follow, p)
	}, nil
}

func compactPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func addressPath(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func matchAny(patterns []string, p string) bool {
	base := path.Base(p)
	for _, pattern := range patterns {
		// Patterns were validated up front, so Match cannot fail here.
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}
