package cache

import "strings"

// MatchPattern reports whether key matches the glob pattern. '*' matches any
// run of characters (including none) and '?' matches exactly one byte. All
// other bytes match themselves.
func MatchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return key == pattern
	}

	// Iterative matcher with single-star backtracking.
	var (
		k, p         int
		starP, starK = -1, 0
	)
	for k < len(key) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == key[k]) && pattern[p] != '*':
			k++
			p++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starK = k
			p++
		case starP >= 0:
			starK++
			k = starK
			p = starP + 1
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// redisGlob converts a pattern into Redis MATCH syntax. Redis also treats
// brackets and backslashes as special, so those are escaped.
func redisGlob(pattern string) string {
	if !strings.ContainsAny(pattern, `[]\`) {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
