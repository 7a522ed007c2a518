package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Paranoid-AF/inkling/document"
	"github.com/Paranoid-AF/inkling/session"
	"github.com/Paranoid-AF/inkling/suggest"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// screen paints the document with its ghost text below a status line.
type screen struct {
	mu     sync.Mutex
	out    io.Writer
	buf    *document.Buffer
	ghost  suggest.State
	status string

	ghostStyle  lipgloss.Style
	statusStyle lipgloss.Style
}

func newScreen(out io.Writer, buf *document.Buffer) *screen {
	return &screen{
		out:         out,
		buf:         buf,
		ghostStyle:  lipgloss.NewStyle().Faint(true),
		statusStyle: lipgloss.NewStyle().Reverse(true),
	}
}

// Render records the ghost text and repaints.
func (s *screen) Render(st suggest.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ghost = st
	s.drawLocked()
}

// SetStatus replaces the status line and repaints.
func (s *screen) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.drawLocked()
}

func (s *screen) Draw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawLocked()
}

func (s *screen) drawLocked() {
	io.WriteString(s.out, s.frame())
}

// frame builds the escape sequence that repaints the whole screen.
func (s *screen) frame() string {
	snap := s.buf.Snapshot()
	cursor := min(s.buf.Cursor(), len(snap.Text))
	before, after := snap.Text[:cursor], snap.Text[cursor:]

	ghost := ""
	if s.ghost.Visible && s.ghost.Anchor == cursor {
		ghost = s.ghost.Remaining
	}

	var sb strings.Builder
	sb.WriteString("\x1b[H\x1b[2J")
	sb.WriteString(s.statusStyle.Render(s.status))
	sb.WriteString("\r\n")
	sb.WriteString(crlf(before))
	for i, line := range strings.Split(ghost, "\n") {
		if i > 0 {
			sb.WriteString("\r\n")
		}
		if line != "" {
			sb.WriteString(s.ghostStyle.Render(line))
		}
	}
	sb.WriteString(crlf(after))

	// Status line is row 1.
	row := strings.Count(before, "\n") + 2
	col := lipgloss.Width(before[strings.LastIndexByte(before, '\n')+1:]) + 1
	fmt.Fprintf(&sb, "\x1b[%d;%dH", row, col)
	return sb.String()
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// transcriptEntry is one suggestion as it ended.
type transcriptEntry struct {
	Time       time.Time `toml:"time"`
	Path       string    `toml:"path,omitempty"`
	Anchor     int       `toml:"anchor"`
	Suggestion string    `toml:"suggestion"`
	Accepted   string    `toml:"accepted,omitempty"`
	// Outcome is "accepted" when the last segment was taken with the accept
	// key, "typed" when the user typed the rest of it, "partial" when only
	// some segments were accepted, else "dismissed".
	Outcome string `toml:"outcome"`
}

// transcript writes a TOML [[suggestion]] table for every suggestion that
// leaves the screen.
type transcript struct {
	mu   sync.Mutex
	w    io.Writer
	path string
	buf  *document.Buffer

	active   bool
	start    int
	full     string
	accepted strings.Builder
	inserted bool
}

func newTranscript(w io.Writer, path string, buf *document.Buffer) *transcript {
	return &transcript{w: w, path: path, buf: buf}
}

func (t *transcript) observe(st suggest.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() { t.inserted = false }()

	if st.Visible {
		if !t.active {
			t.active = true
			t.start = st.Anchor
			t.accepted.Reset()
		}
		t.full = t.buf.Slice(t.start, st.Anchor) + st.Remaining
		return
	}
	if !t.active {
		return
	}
	t.active = false

	outcome := "dismissed"
	switch {
	case t.inserted:
		outcome = "accepted"
		t.full = t.buf.Slice(t.start, t.buf.Cursor())
	case t.buf.Slice(t.start, t.start+len(t.full)) == t.full:
		outcome = "typed"
	case t.accepted.Len() > 0:
		outcome = "partial"
	}
	t.write(transcriptEntry{
		Time:       time.Now(),
		Path:       t.path,
		Anchor:     t.start,
		Suggestion: t.full,
		Accepted:   t.accepted.String(),
		Outcome:    outcome,
	})
}

func (t *transcript) insert(tx session.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range tx.Edits {
		t.accepted.WriteString(e.Inserted)
	}
	t.inserted = true
}

func (t *transcript) write(e transcriptEntry) {
	if t.w == nil {
		return
	}
	doc := struct {
		Suggestion []transcriptEntry `toml:"suggestion"`
	}{[]transcriptEntry{e}}
	if err := toml.NewEncoder(t.w).Encode(doc); err != nil {
		return
	}
	io.WriteString(t.w, "\n")
}

// renderer feeds the view's states to the screen and the transcript.
type renderer struct {
	screen     *screen
	transcript *transcript
}

func (r *renderer) Render(st suggest.State) {
	r.transcript.observe(st)
	r.screen.Render(st)
}

func (r *renderer) Inserted(tx session.Transaction) {
	r.transcript.insert(tx)
}
