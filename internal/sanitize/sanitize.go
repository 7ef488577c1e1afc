// Package sanitize strips markdown markers from generated text before it is
// stored or returned to clients.
package sanitize

import (
	"strings"

	"github.com/kalambet/parley/internal/chat"
)

// Markdown removes heading markers ("#") and bold markers ("**").
// Headings go first so that "*#*" cannot collapse into a fresh "**".
func Markdown(text string) string {
	text = strings.ReplaceAll(text, "#", "")
	return strings.ReplaceAll(text, "**", "")
}

// Bullets rewrites every "- " to "• ". This is a plain substring replace,
// so hyphenated phrases followed by a space are rewritten too.
func Bullets(text string) string {
	return strings.ReplaceAll(text, "- ", "• ")
}

// ForMode applies the sanitization rules of mode. Bullet normalization runs
// after markdown stripping.
func ForMode(mode chat.Mode, text string) string {
	text = Markdown(text)
	if mode == chat.ModeProject {
		text = Bullets(text)
	}
	return text
}
