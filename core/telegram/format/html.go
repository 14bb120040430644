// Package format prepares user-provided text for HTML parse mode.
package format

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes text so it can be embedded in an HTML-mode message.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

// Truncate clips text to max runes, appending an ellipsis when clipped.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
