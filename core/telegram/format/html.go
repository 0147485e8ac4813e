// Package format holds text helpers for Telegram HTML messages.
package format

import (
	"html"
	"regexp"
	"strings"
)

// LineBreak is the explicit line marker used in message templates and backend
// notifications. Literal newlines in a template are layout only.
const LineBreak = "/n"

var (
	multiSpace  = regexp.MustCompile(` {2,}`)
	indentedEOL = regexp.MustCompile(`\n\s*`)
)

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// Compact collapses runs of spaces, drops literal newlines together with the
// indentation that follows them, then turns every "/n" marker into a newline.
func Compact(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	s = indentedEOL.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, LineBreak, "\n")
}
