package ingest

import (
	"regexp"
	"strings"
)

var nonAlphanumericRun = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeTitle lowercases s, collapses runs of non-alphanumeric
// characters to a single space, and trims the result. Used both for
// matching and for trigram-index-friendly storage.
func NormalizeTitle(s string) string {
	lower := strings.ToLower(s)
	collapsed := nonAlphanumericRun.ReplaceAllString(lower, " ")
	return strings.TrimSpace(collapsed)
}
