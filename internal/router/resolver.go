// Package router maps request paths onto pages using the page path patterns.
//
// A pattern is a "/"-separated list of segments; "%" matches any single
// segment. A page may list several alternative patterns separated by ";".
// Literal matches weigh more than wildcards, so the most specific page wins.
package router

import (
	"strings"

	"uho/internal/models"
)

const (
	// Wildcard matches exactly one path segment.
	Wildcard = "%"
	// HomeSegment replaces an empty request path.
	HomeSegment = "home"

	literalScore  = 10
	wildcardScore = 3
)

// Match describes the winning pattern for a request.
type Match struct {
	Page    models.Page
	Pattern string
	Score   int
	// Params holds the request segments matched by wildcards, in order.
	Params []string
}

// Normalize splits a request path into segments. Surrounding slashes are
// ignored and an empty path becomes the home segment.
func Normalize(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return []string{HomeSegment}
	}
	return strings.Split(path, "/")
}

// Patterns returns the non-empty alternatives of a page path.
func Patterns(path string) []string {
	parts := strings.Split(path, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(strings.TrimSpace(p), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Score rates pattern against the request segments. It returns false when the
// segment counts differ or a literal segment does not match.
func Score(pattern string, segments []string) (int, bool) {
	parts := strings.Split(pattern, "/")
	if len(parts) != len(segments) {
		return 0, false
	}
	score := 0
	for i, p := range parts {
		switch {
		case p == Wildcard:
			score += wildcardScore
		case p == segments[i]:
			score += literalScore
		default:
			return 0, false
		}
	}
	return score, true
}

// Resolve picks the best page for path. Among equal scores the alternative
// that appears last in candidate order wins.
func Resolve(path string, pages []models.Page) (Match, bool) {
	return ResolveSegments(Normalize(path), pages)
}

// ResolveSegments is Resolve for an already normalized path.
func ResolveSegments(segments []string, pages []models.Page) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, page := range pages {
		for _, pattern := range Patterns(page.Path) {
			score, ok := Score(pattern, segments)
			if !ok {
				continue
			}
			if found && score < best.Score {
				continue
			}
			best = Match{Page: page, Pattern: pattern, Score: score}
			found = true
		}
	}
	if !found {
		return Match{}, false
	}
	best.Params = wildcardParams(best.Pattern, segments)
	return best, true
}

func wildcardParams(pattern string, segments []string) []string {
	var params []string
	for i, p := range strings.Split(pattern, "/") {
		if p == Wildcard {
			params = append(params, segments[i])
		}
	}
	return params
}
