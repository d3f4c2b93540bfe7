// Package aimode owns the AI-side of the terminal: the 🦙 line editor and
// the controller that runs agent turns against the wrapped shell.
package aimode

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// EventKind classifies what a chunk of input produced.
type EventKind int

const (
	EventSubmit EventKind = iota // Enter: Line carries the input
	EventExit                    // lone ESC, or Ctrl-D on an empty line
)

type Event struct {
	Kind EventKind
	Line string
}

// LineEditor is a minimal single-line editor for raw-mode input: cursor
// movement, backspace, kill-line. Every keypress redraws the whole line,
// which is cheap at interactive speed and keeps the cursor math trivial.
type LineEditor struct {
	out    io.Writer
	prompt string

	buf []rune
	cur int

	pending []byte // partial UTF-8 rune or escape sequence
}

func NewLineEditor(out io.Writer, prompt string) *LineEditor {
	return &LineEditor{out: out, prompt: prompt}
}

// Begin clears editor state and draws an empty prompt.
func (e *LineEditor) Begin() {
	e.buf = e.buf[:0]
	e.cur = 0
	e.pending = e.pending[:0]
	e.redraw()
}

// Feed consumes one raw input chunk and returns any completed events.
func (e *LineEditor) Feed(data []byte) []Event {
	var events []Event
	e.pending = append(e.pending, data...)

	for len(e.pending) > 0 {
		b := e.pending[0]

		if b == 0x1b {
			consumed, ev, done := e.handleEscape()
			if !consumed {
				return events // wait for the rest of the sequence
			}
			if done {
				events = append(events, ev)
			}
			continue
		}

		if b < 0x20 || b == 0x7f {
			e.pending = e.pending[1:]
			if ev, done := e.handleControl(b); done {
				events = append(events, ev)
			}
			continue
		}

		if !utf8.FullRune(e.pending) {
			return events // partial rune, wait for more bytes
		}
		r, size := utf8.DecodeRune(e.pending)
		e.pending = e.pending[size:]
		e.insert(r)
	}
	return events
}

// handleEscape resolves a pending ESC. A lone ESC at the end of a chunk is
// an exit request; ESC [ ... is a cursor key.
func (e *LineEditor) handleEscape() (consumed bool, ev Event, done bool) {
	if len(e.pending) == 1 {
		// Nothing follows in this chunk: a real Escape keypress.
		e.pending = e.pending[:0]
		return true, Event{Kind: EventExit}, true
	}
	if e.pending[1] != '[' && e.pending[1] != 'O' {
		// ESC followed by an unrelated byte; drop the ESC.
		e.pending = e.pending[1:]
		return true, Event{}, false
	}
	// CSI sequence: ESC [ params final, final in 0x40..0x7e.
	for i := 2; i < len(e.pending); i++ {
		fin := e.pending[i]
		if fin >= 0x40 && fin <= 0x7e {
			seq := e.pending[:i+1]
			e.pending = e.pending[i+1:]
			e.handleCursorKey(seq)
			return true, Event{}, false
		}
	}
	return false, Event{}, false
}

func (e *LineEditor) handleCursorKey(seq []byte) {
	switch seq[len(seq)-1] {
	case 'D': // left
		if e.cur > 0 {
			e.cur--
		}
	case 'C': // right
		if e.cur < len(e.buf) {
			e.cur++
		}
	case 'H': // home
		e.cur = 0
	case 'F': // end
		e.cur = len(e.buf)
	case '~': // Delete is ESC [ 3 ~
		if len(seq) >= 3 && seq[2] == '3' && e.cur < len(e.buf) {
			e.buf = append(e.buf[:e.cur], e.buf[e.cur+1:]...)
		}
	}
	e.redraw()
}

func (e *LineEditor) handleControl(b byte) (Event, bool) {
	switch b {
	case '\r', '\n':
		line := strings.TrimSpace(string(e.buf))
		e.buf = e.buf[:0]
		e.cur = 0
		fmt.Fprint(e.out, "\r\n")
		return Event{Kind: EventSubmit, Line: line}, true
	case 0x7f, 0x08: // backspace
		if e.cur > 0 {
			e.buf = append(e.buf[:e.cur-1], e.buf[e.cur:]...)
			e.cur--
			e.redraw()
		}
	case 0x15: // Ctrl-U kills the line
		e.buf = e.buf[:0]
		e.cur = 0
		e.redraw()
	case 0x01: // Ctrl-A
		e.cur = 0
		e.redraw()
	case 0x05: // Ctrl-E
		e.cur = len(e.buf)
		e.redraw()
	case 0x03: // Ctrl-C clears the line
		e.buf = e.buf[:0]
		e.cur = 0
		fmt.Fprint(e.out, "^C")
		e.redraw()
	case 0x04: // Ctrl-D on an empty line exits
		if len(e.buf) == 0 {
			return Event{Kind: EventExit}, true
		}
	}
	return Event{}, false
}

func (e *LineEditor) insert(r rune) {
	e.buf = append(e.buf, 0)
	copy(e.buf[e.cur+1:], e.buf[e.cur:])
	e.buf[e.cur] = r
	e.cur++
	e.redraw()
}

// Line returns the current buffer contents.
func (e *LineEditor) Line() string { return string(e.buf) }

func (e *LineEditor) redraw() {
	fmt.Fprintf(e.out, "\r\x1b[K%s%s", e.prompt, string(e.buf))
	if back := len(e.buf) - e.cur; back > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", back)
	}
}
