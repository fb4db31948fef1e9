package userutil

import (
	"regexp"
	"strings"
)

var unsafeNameRunes = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeUsername normalizes a username for embedding in endpoint names:
// the activation pipe, its unix socket counterpart and the single-instance
// mutex all carry a per-user suffix. Anything outside [a-zA-Z0-9._-]
// becomes an underscore; blank input yields "unknown".
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return unsafeNameRunes.ReplaceAllString(value, "_")
}
