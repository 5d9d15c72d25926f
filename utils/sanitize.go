package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// SanitizeText strips all markup from user supplied text and trims it.
func SanitizeText(input string) string {
	// StrictPolicy escapes entities; notes are plain text so undo that
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}

// TruncateRunes limits s to max runes.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max])
}
