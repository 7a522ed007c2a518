// Package document is an in-memory text buffer with a cursor that reports
// every mutation as a session.Transaction. Hosts that keep their own buffer
// can mirror it here; the repl edits it directly.
package document

import (
	"fmt"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/Paranoid-AF/inkling/session"
)

// Buffer is a versioned text buffer with a single cursor.
// Offsets are UTF-8 byte offsets.
type Buffer struct {
	mu      sync.RWMutex
	text    string
	cursor  int
	version int
}

// NewBuffer creates a buffer holding text with the cursor at the end.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text, cursor: len(text)}
}

// Text returns the current content.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Len returns the content length in bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.text)
}

// Version increments on every content change.
func (b *Buffer) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Cursor returns the cursor byte offset.
func (b *Buffer) Cursor() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor
}

// Snapshot returns the current content and version together.
func (b *Buffer) Snapshot() session.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return session.Snapshot{Text: b.text, Version: b.version}
}

// Slice returns text[from:to], clamped to the buffer.
func (b *Buffer) Slice(from, to int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	from = clamp(from, 0, len(b.text))
	to = clamp(to, from, len(b.text))
	return b.text[from:to]
}

// Insert inserts text at pos as one atomic edit and moves the cursor just past it.
func (b *Buffer) Insert(pos int, text string) session.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos = clamp(pos, 0, len(b.text))
	if text == "" {
		return b.moveLocked(pos)
	}
	b.text = b.text[:pos] + text + b.text[pos:]
	b.cursor = pos + len(text)
	b.version++
	return session.Transaction{
		Edits:      []session.Edit{{From: pos, To: pos, Inserted: text}},
		Cursor:     b.cursor,
		DocChanged: true,
	}
}

// Type inserts text at the cursor.
func (b *Buffer) Type(text string) session.Transaction {
	return b.Insert(b.Cursor(), text)
}

// Delete removes text[from:to] and leaves the cursor at from.
func (b *Buffer) Delete(from, to int) session.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	from = clamp(from, 0, len(b.text))
	to = clamp(to, from, len(b.text))
	if from == to {
		return b.moveLocked(b.cursor)
	}
	b.text = b.text[:from] + b.text[to:]
	b.cursor = from
	b.version++
	return session.Transaction{
		Edits:      []session.Edit{{From: from, To: to}},
		Cursor:     from,
		DocChanged: true,
	}
}

// Backspace deletes the rune before the cursor.
func (b *Buffer) Backspace() session.Transaction {
	b.mu.RLock()
	pos := b.cursor
	_, size := prevRune(b.text, pos)
	b.mu.RUnlock()
	return b.Delete(pos-size, pos)
}

// DeleteForward deletes the rune after the cursor.
func (b *Buffer) DeleteForward() session.Transaction {
	b.mu.RLock()
	pos := b.cursor
	_, size := utf8.DecodeRuneInString(b.text[pos:])
	b.mu.RUnlock()
	return b.Delete(pos, pos+size)
}

// MoveCursor places the cursor at pos without changing content.
func (b *Buffer) MoveCursor(pos int) session.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(pos)
}

// Left moves the cursor one rune back.
func (b *Buffer) Left() session.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, size := prevRune(b.text, b.cursor)
	return b.moveLocked(b.cursor - size)
}

// Right moves the cursor one rune forward.
func (b *Buffer) Right() session.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, size := utf8.DecodeRuneInString(b.text[b.cursor:])
	return b.moveLocked(b.cursor + size)
}

// Replace swaps the whole content for text, deriving the edit ranges from a
// diff, and places the cursor at cursor.
func (b *Buffer) Replace(text string, cursor int) session.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	cursor = clamp(cursor, 0, len(text))
	edits := Diff(b.text, text)
	if len(edits) == 1 {
		edits[0] = alignInsertion(b.text, edits[0], cursor)
	}
	changed := len(edits) > 0
	b.text = text
	b.cursor = cursor
	if changed {
		b.version++
	}
	return session.Transaction{Edits: edits, Cursor: cursor, DocChanged: changed}
}

// Apply applies edits reported by an editor, all in pre-edit offsets, and
// places the cursor at cursor. Overlapping or out-of-range edits are
// rejected and leave the buffer untouched.
func (b *Buffer) Apply(edits []session.Edit, cursor int) (session.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var effective []session.Edit
	for _, e := range edits {
		if !e.IsNoop() {
			effective = append(effective, e)
		}
	}
	sorted := slices.Clone(effective)
	// Insertions at the same offset keep their reported order and come
	// before a range starting there.
	slices.SortStableFunc(sorted, func(x, y session.Edit) int {
		if x.From != y.From {
			return x.From - y.From
		}
		return x.To - y.To
	})
	prevEnd := 0
	for _, e := range sorted {
		if e.From < prevEnd || e.From < 0 || e.To < e.From || e.To > len(b.text) {
			return session.Transaction{}, fmt.Errorf("edit [%d,%d) out of range or overlapping", e.From, e.To)
		}
		prevEnd = e.To
	}
	if len(sorted) == 0 {
		return b.moveLocked(cursor), nil
	}

	text := b.text
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		text = text[:e.From] + e.Inserted + text[e.To:]
	}
	b.text = text
	b.cursor = clamp(cursor, 0, len(text))
	b.version++
	return session.Transaction{Edits: effective, Cursor: b.cursor, DocChanged: true}, nil
}

func (b *Buffer) moveLocked(pos int) session.Transaction {
	b.cursor = clamp(pos, 0, len(b.text))
	return session.Transaction{Cursor: b.cursor}
}

// prevRune returns the rune and byte size of the rune before pos.
func prevRune(s string, pos int) (rune, int) {
	if pos <= 0 {
		return 0, 0
	}
	return utf8.DecodeLastRuneInString(s[:pos])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
