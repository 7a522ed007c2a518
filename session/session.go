// Package session models one editor view's pending suggestion and the pure
// transitions that move it between Empty and Active.
//
// A Session is a value. Every transition returns a new Session and leaves the
// receiver untouched; a transition whose precondition fails returns the
// receiver unchanged. Owners replace their session wholesale, never field by
// field, so readers cannot observe a half-applied update.
package session

// Session tracks zero or one pending suggestion. The zero value is Empty.
type Session struct {
	fullText  string
	remaining string
	baseline  *Snapshot
	anchor    int
	active    bool
}

// Empty returns a session with no suggestion.
func Empty() Session { return Session{} }

// Active reports whether a suggestion is currently shown.
func (s Session) Active() bool { return s.active }

// Remaining returns the unconsumed tail. ok is false when no suggestion is active.
func (s Session) Remaining() (text string, ok bool) {
	if !s.active {
		return "", false
	}
	return s.remaining, true
}

// Anchor returns the document offset where the remaining text begins.
func (s Session) Anchor() (pos int, ok bool) {
	if !s.active {
		return 0, false
	}
	return s.anchor, true
}

// FullText returns the suggestion as first produced (or last extended).
// It survives Invalidate for diagnostics.
func (s Session) FullText() string { return s.fullText }

// Baseline returns the snapshot the suggestion was generated against.
func (s Session) Baseline() (Snapshot, bool) {
	if s.baseline == nil {
		return Snapshot{}, false
	}
	return *s.baseline, true
}

// Consumed returns how many bytes of the suggestion have been accepted or typed.
func (s Session) Consumed() int {
	if !s.active {
		return 0
	}
	return len(s.fullText) - len(s.remaining)
}

// Reset clears everything. Calling it twice is the same as calling it once.
func (s Session) Reset() Session { return Session{} }

// Populate starts showing content at anchor.
func (s Session) Populate(content string, baseline Snapshot, anchor int) Session {
	if content == "" || anchor < 0 || anchor > len(baseline.Text) {
		return s
	}
	b := baseline
	return Session{
		fullText:  content,
		remaining: content,
		baseline:  &b,
		anchor:    anchor,
		active:    true,
	}
}

// Advance consumes n bytes from the front of the remaining text and moves the
// anchor forward by n. Consuming everything yields Empty.
func (s Session) Advance(n int) Session {
	if !s.active || n <= 0 || n > len(s.remaining) {
		return s
	}
	if n == len(s.remaining) {
		return Session{}
	}
	next := s
	next.remaining = s.remaining[n:]
	next.anchor = s.anchor + n
	return next
}

// Extend replaces the suggestion with a longer cumulative version of itself,
// keeping what has already been consumed.
func (s Session) Extend(content string) Session {
	if !s.active || len(content) <= len(s.fullText) || content[:len(s.fullText)] != s.fullText {
		return s
	}
	next := s
	next.fullText = content
	next.remaining = content[s.Consumed():]
	return next
}

// Invalidate hides the suggestion. The full text and baseline are kept for
// diagnostics only; observers see the result as Empty.
func (s Session) Invalidate() Session {
	if !s.active {
		return s
	}
	return Session{
		fullText: s.fullText,
		baseline: s.baseline,
	}
}
