package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// User text is stored as plain text: markup is stripped, entities are decoded.
var sanitizer = bluemonday.StrictPolicy()

// maxCleanPasses bounds re-sanitising of markup that only appears after entity decoding.
const maxCleanPasses = 3

// Sanitize strips every HTML element from input. The result is HTML-escaped.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// CleanText trims input and strips markup, returning unescaped plain text.
// Characters such as ' & < survive unchanged, so length limits apply to what the user typed.
func CleanText(input string) string {
	out := strings.TrimSpace(input)
	for i := 0; i < maxCleanPasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(Sanitize(out)))
		if next == out {
			return out
		}
		out = next
	}
	// Still changing: drop anything the decoder could turn back into a tag.
	return strings.NewReplacer("<", "", ">", "").Replace(out)
}
