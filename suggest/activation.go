package suggest

import (
	"strings"

	inkling "github.com/Paranoid-AF/inkling"
)

// Activate reports whether an automatic trigger may fire for a cursor in
// text. Every rule is independently toggleable; manual triggers skip them.
func Activate(rules inkling.ActivationConfig, text string, cursor int) bool {
	cursor = min(max(cursor, 0), len(text))
	lineStart := strings.LastIndexByte(text[:cursor], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[cursor:], '\n'); i >= 0 {
		lineEnd = cursor + i
	}

	if rules.RequireCursorNotAtStart && cursor == lineStart {
		return false
	}
	if rules.RequireNonEmptyLine && strings.TrimSpace(text[lineStart:lineEnd]) == "" {
		return false
	}
	if rules.RequireSpaceBeforeCursor {
		if cursor == 0 || !strings.ContainsAny(text[cursor-1:cursor], " \t\n") {
			return false
		}
	}
	if rules.SuppressWhenTextAfterCursor && strings.TrimSpace(text[cursor:lineEnd]) != "" {
		return false
	}
	return true
}
