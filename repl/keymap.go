package main

import (
	"strings"

	"github.com/Paranoid-AF/inkling/document"
	"github.com/Paranoid-AF/inkling/session"
)

// edit applies the default editing behavior of k to buf. It reports false
// for keys that do nothing to the document.
func edit(buf *document.Buffer, k Key) (session.Transaction, bool) {
	if k.Name == "" {
		if k.Text == "" {
			return session.Transaction{}, false
		}
		return buf.Type(k.Text), true
	}

	switch k.Name {
	case KeyEnter:
		return buf.Type("\n"), true
	case KeyTab:
		return buf.Type("\t"), true
	case KeyBackspace:
		return buf.Backspace(), true
	case KeyDelete:
		return buf.DeleteForward(), true
	case KeyLeft:
		return buf.Left(), true
	case KeyRight:
		return buf.Right(), true
	case KeyHome:
		text, cursor := buf.Text(), buf.Cursor()
		return buf.MoveCursor(strings.LastIndexByte(text[:cursor], '\n') + 1), true
	case KeyEnd:
		text, cursor := buf.Text(), buf.Cursor()
		end := len(text)
		if i := strings.IndexByte(text[cursor:], '\n'); i >= 0 {
			end = cursor + i
		}
		return buf.MoveCursor(end), true
	}
	return session.Transaction{}, false
}
