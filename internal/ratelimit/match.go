package ratelimit

import "strings"

// MatchPath reports whether pattern covers path. A pattern is either an
// exact path or ends in "*", which matches everything sharing the text
// before the star ("/api/*" covers "/api/orders/42").
func MatchPath(pattern, path string) bool {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return strings.HasPrefix(path, pattern[:i])
	}
	return pattern == path
}
