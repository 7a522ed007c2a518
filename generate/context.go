package generate

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Paranoid-AF/inkling/index"
)

// relatedTimeout bounds the embedding lookup for related passages.
const relatedTimeout = 2 * time.Second

// Gatherer collects the context for a generation request.
type Gatherer struct {
	indexer      *index.Indexer
	contextChars int
	related      int
}

// NewGatherer creates a context gatherer. indexer may be nil to disable
// related passages.
func NewGatherer(indexer *index.Indexer, contextChars, related int) *Gatherer {
	if contextChars <= 0 {
		contextChars = 2000
	}
	return &Gatherer{indexer: indexer, contextChars: contextChars, related: related}
}

// Gather builds a request for a cursor in text. The text before the cursor
// gets the full context window and the text after it a quarter.
func (g *Gatherer) Gather(ctx context.Context, path, text string, cursor int) *Request {
	cursor = min(max(cursor, 0), len(text))
	req := &Request{
		Path:   path,
		Before: tail(text[:cursor], g.contextChars),
		After:  head(text[cursor:], g.contextChars/4),
		Cursor: cursor,
	}

	if g.indexer == nil || !g.indexer.Enabled() || g.related <= 0 {
		return req
	}

	// Everything but the paragraph being edited is stable enough to index.
	paraStart, paraEnd := paragraphBounds(text, cursor)
	g.indexer.Enqueue(path, text[:paraStart]+text[paraEnd:])

	query := strings.TrimSpace(text[paraStart:paraEnd])
	if query == "" {
		return req
	}
	window := req.Before + req.After

	searchCtx, cancel := context.WithTimeout(ctx, relatedTimeout)
	defer cancel()
	passages, err := g.indexer.Search(searchCtx, query, g.related, func(p index.Passage) bool {
		return strings.Contains(window, p.Text)
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("related passage search failed", "error", err)
		}
		return req
	}
	for _, p := range passages {
		req.Related = append(req.Related, p.Text)
	}
	return req
}

// Close releases resources held by the gatherer.
func (g *Gatherer) Close() {
	if g.indexer != nil {
		g.indexer.Close()
	}
}

// paragraphBounds returns the byte range of the blank-line separated
// paragraph containing pos.
func paragraphBounds(text string, pos int) (int, int) {
	start := strings.LastIndex(text[:pos], "\n\n")
	if start < 0 {
		start = 0
	} else {
		start += 2
	}
	end := strings.Index(text[pos:], "\n\n")
	if end < 0 {
		end = len(text)
	} else {
		end += pos
	}
	return start, end
}

// tail returns at most n bytes from the end of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// head returns at most n bytes from the start of s, ending on a rune boundary.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
