package domain

import "strings"

// MatchWildcard reports whether s matches pattern as a whole. A '*' matches any
// run of characters (including none); every other character matches itself.
func MatchWildcard(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	rest := s[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	return strings.HasSuffix(rest, last)
}

// MatchAny reports whether s matches any of the patterns.
func MatchAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if MatchWildcard(s, p) {
			return true
		}
	}
	return false
}
