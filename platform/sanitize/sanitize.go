// Package sanitize cleans customer-supplied text before it reaches outbound
// mail. This is part of the platform layer and contains no business logic.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// maxHeaderRunes bounds a single header value such as a subject line.
const maxHeaderRunes = 200

var (
	// htmlTagRegex matches HTML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	spaceRegex   = regexp.MustCompile(`\s+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips HTML and collapses runs of whitespace to single spaces. Used for
// names and invoice numbers placed in the plain-text part of a reminder.
func Text(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(StripHTML(s), " "))
}

// HeaderValue makes s safe for a single mail header line: control characters
// (CR and LF included) become spaces and the result is capped in length.
func HeaderValue(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, Text(s))

	runes := []rune(mapped)
	if len(runes) > maxHeaderRunes {
		runes = runes[:maxHeaderRunes]
	}
	return strings.TrimSpace(string(runes))
}
