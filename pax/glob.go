package pax

import "github.com/bmatcuk/doublestar/v4"

// globMatch reports whether key matches the doublestar-syntax pattern
// pat. An invalid pattern never matches rather than panicking.
func globMatch(pat, key string) bool {
	ok, err := doublestar.Match(pat, key)
	if err != nil {
		return false
	}
	return ok
}
