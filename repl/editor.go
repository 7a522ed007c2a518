package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

// Key is one decoded key press. Named keys have a Name; printable input
// has Text instead.
type Key struct {
	Name string
	Text string
}

// Key names. The accept key in the config is matched against these.
const (
	KeyTab       = "Tab"
	KeyEnter     = "Enter"
	KeyBackspace = "Backspace"
	KeyDelete    = "Delete"
	KeyLeft      = "Left"
	KeyRight     = "Right"
	KeyUp        = "Up"
	KeyDown      = "Down"
	KeyHome      = "Home"
	KeyEnd       = "End"
	KeyEscape    = "Escape"
	KeyCtrlSpace = "Ctrl-Space"
	KeyCtrlC     = "Ctrl-C"
	KeyCtrlD     = "Ctrl-D"
	KeyCtrlG     = "Ctrl-G"
	KeyCtrlS     = "Ctrl-S"
)

// Editor reads key presses from /dev/tty in raw mode, so it works even when
// stdout is redirected.
type Editor struct {
	tty      *os.File
	oldState *term.State
	keys     *keyReader
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &Editor{tty: tty, oldState: old, keys: newKeyReader(tty)}, nil
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the tty file for drawing.
func (e *Editor) Tty() *os.File {
	return e.tty
}

// ReadKey blocks for the next key press.
func (e *Editor) ReadKey() (Key, error) {
	return e.keys.ReadKey()
}

// keyReader decodes raw terminal input into keys.
type keyReader struct {
	r *bufio.Reader
}

func newKeyReader(r io.Reader) *keyReader {
	return &keyReader{r: bufio.NewReader(r)}
}

func (k *keyReader) ReadKey() (Key, error) {
	b, err := k.r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b {
	case 0:
		return Key{Name: KeyCtrlSpace}, nil
	case 3:
		return Key{Name: KeyCtrlC}, nil
	case 4:
		return Key{Name: KeyCtrlD}, nil
	case 7:
		return Key{Name: KeyCtrlG}, nil
	case 9:
		return Key{Name: KeyTab}, nil
	case 13, 10:
		return Key{Name: KeyEnter}, nil
	case 19:
		return Key{Name: KeyCtrlS}, nil
	case 127, 8:
		return Key{Name: KeyBackspace}, nil
	case 1: // Ctrl-A
		return Key{Name: KeyHome}, nil
	case 5: // Ctrl-E
		return Key{Name: KeyEnd}, nil
	case 27:
		return k.readEscape()
	}

	if b < 32 {
		// Unbound control character.
		return Key{}, nil
	}

	// Printable character; read the rest of a multi-byte sequence.
	ch := []byte{b}
	for i := 1; i < utf8RuneLen(b); i++ {
		next, err := k.r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		ch = append(ch, next)
	}
	if !utf8.Valid(ch) {
		return Key{}, nil
	}
	return Key{Text: string(ch)}, nil
}

// readEscape decodes CSI sequences. A lone escape with nothing buffered
// after it is the Escape key.
func (k *keyReader) readEscape() (Key, error) {
	if k.r.Buffered() == 0 {
		return Key{Name: KeyEscape}, nil
	}
	b, err := k.r.ReadByte()
	if err != nil || b != '[' {
		return Key{Name: KeyEscape}, err
	}
	b, err = k.r.ReadByte()
	if err != nil {
		return Key{}, err
	}
	switch b {
	case 'A':
		return Key{Name: KeyUp}, nil
	case 'B':
		return Key{Name: KeyDown}, nil
	case 'C':
		return Key{Name: KeyRight}, nil
	case 'D':
		return Key{Name: KeyLeft}, nil
	case 'H':
		return Key{Name: KeyHome}, nil
	case 'F':
		return Key{Name: KeyEnd}, nil
	case 'Z': // Shift-Tab
		return Key{}, nil
	case '1', '3', '4', '7', '8':
		// \x1b[3~ and friends
		if _, err := k.r.ReadByte(); err != nil {
			return Key{}, err
		}
		switch b {
		case '3':
			return Key{Name: KeyDelete}, nil
		case '1', '7':
			return Key{Name: KeyHome}, nil
		default:
			return Key{Name: KeyEnd}, nil
		}
	}
	return Key{}, nil
}

// utf8RuneLen returns the expected byte length of a UTF-8 sequence
// from its leading byte.
func utf8RuneLen(lead byte) int {
	if lead < 0xC0 {
		return 1
	}
	if lead < 0xE0 {
		return 2
	}
	if lead < 0xF0 {
		return 3
	}
	return 4
}
