package generate

import (
	"context"
	"strings"
)

// CursorMarker marks the cursor position in the user prompt.
const CursorMarker = "█"

// minEchoLen is the shortest typed line worth checking for an echo.
const minEchoLen = 4

// Clean normalizes a cumulative model output against the text already
// before the cursor:
//   - an echoed copy of the current line is stripped, and output that is
//     still a prefix of that line yields "" until it diverges;
//   - a leading space is dropped when the text already ends in whitespace;
//   - an echoed cursor marker is removed.
//
// Clean is monotonic: if a extends b, Clean(before, a) extends Clean(before, b)
// or the latter is empty.
func Clean(before, content string) string {
	content = strings.ReplaceAll(content, CursorMarker, "")

	line := before[strings.LastIndexByte(before, '\n')+1:]
	if echo := strings.TrimLeft(line, " \t"); len(echo) >= minEchoLen {
		trimmed := strings.TrimLeft(content, " \t")
		switch {
		case strings.HasPrefix(trimmed, echo):
			content = trimmed[len(echo):]
		case strings.HasPrefix(echo, trimmed):
			return ""
		}
	}

	if before == "" || strings.ContainsAny(before[len(before)-1:], " \t\n") {
		content = strings.TrimLeft(content, " \t")
	}
	return content
}

type cleaned struct {
	Provider
}

// Cleaned wraps p so every yielded value has passed through Clean.
func Cleaned(p Provider) Provider {
	return cleaned{Provider: p}
}

func (c cleaned) Generate(ctx context.Context, req *Request) Stream {
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		_, err := forward(c.Provider.Generate(ctx, req), emit, func(v string) string {
			return Clean(req.Before, v)
		})
		return err
	})
}
