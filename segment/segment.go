// Package segment splits a suggestion into the part one accept keystroke
// consumes and the part left for later.
package segment

import (
	"regexp"
	"strings"
)

// Strategy decides how much suggestion text a single accept consumes.
type Strategy string

const (
	Word      Strategy = "word"
	Sentence  Strategy = "sentence"
	Paragraph Strategy = "paragraph"
	Full      Strategy = "full"
)

// Strategies lists every supported strategy in config order.
var Strategies = []Strategy{Word, Sentence, Paragraph, Full}

// Result is one split of a suggestion. Accepted+Remaining always equals the input.
type Result struct {
	Accepted  string
	Remaining string
}

var reSentenceEnd = regexp.MustCompile(`[.!?]\s`)

// ParseStrategy maps a configured name to a Strategy.
// Unknown names fall back to Word and report ok=false.
func ParseStrategy(name string) (s Strategy, ok bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case Word:
		return Word, true
	case Sentence:
		return Sentence, true
	case Paragraph:
		return Paragraph, true
	case Full:
		return Full, true
	}
	return Word, false
}

// Segment splits text under the given strategy. It never fails; an unknown
// strategy behaves like Word.
func Segment(strategy Strategy, text string) Result {
	if text == "" {
		return Result{}
	}

	end := len(text)
	switch strategy {
	case Full:
	case Sentence:
		// Only the terminator is accepted; the whitespace after it stays.
		if loc := reSentenceEnd.FindStringIndex(text); loc != nil {
			end = loc[0] + 1
		}
	case Paragraph:
		if i := strings.Index(text, "\n\n"); i >= 0 {
			end = i + 2
		}
	default:
		if i := strings.IndexByte(text, ' '); i >= 0 {
			end = i + 1
		}
	}

	return Result{Accepted: text[:end], Remaining: text[end:]}
}
