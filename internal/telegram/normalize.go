package telegram

import (
	"strconv"
	"strings"
)

// NormalizeChannel canonicalizes a channel reference for use as a table key:
// surrounding whitespace and a leading @ are removed. Case is preserved.
func NormalizeChannel(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	return strings.TrimSpace(s)
}

// NumericID extracts a bare channel id from a numeric channel reference.
// Accepts the -100 prefixed chat form and plain ids; returns false for
// usernames.
func NumericID(name string) (int64, bool) {
	s := strings.TrimSpace(name)
	if strings.HasPrefix(s, "-100") {
		s = s[4:]
	} else {
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
