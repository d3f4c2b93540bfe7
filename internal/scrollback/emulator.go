package scrollback

import "unicode/utf8"

// emulator is a minimal vt102-style terminal model: a rows×cols grid, a
// cursor, and a bounded ring of rows that scrolled off the top. It interprets
// cursor movement and erase sequences so the reconstructed text matches what
// a person saw, instead of stripping control bytes blindly. Rendering
// attributes (SGR), scroll regions and alternate screens are ignored; only
// final text placement matters here.
type emulator struct {
	rows int
	cols int
	grid [][]rune

	curR int
	curC int
	// autowrap is deferred: printing in the last column arms wrapPending and
	// the wrap happens only if another printable arrives before CR/LF.
	wrapPending bool

	savedR int
	savedC int

	history     [][]rune
	historySize int

	state   parseState
	csiRaw  []byte
	oscEsc  bool
	pending []byte
}

type parseState int

const (
	stateGround parseState = iota
	stateEscape
	stateEscapeCharset
	stateCSI
	stateOSC
)

func newEmulator(rows, cols, historySize int) *emulator {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if historySize < 0 {
		historySize = 0
	}
	e := &emulator{rows: rows, cols: cols, historySize: historySize}
	e.grid = blankGrid(rows, cols)
	return e
}

func blankGrid(rows, cols int) [][]rune {
	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = blankRow(cols)
	}
	return grid
}

func blankRow(cols int) []rune {
	row := make([]rune, cols)
	for i := range row {
		row[i] = ' '
	}
	return row
}

// feed consumes a raw output chunk. Bytes must arrive in production order;
// the parser carries escape and UTF-8 state across chunk boundaries.
func (e *emulator) feed(data []byte) {
	buf := data
	if len(e.pending) > 0 {
		buf = append(e.pending, data...)
		e.pending = nil
	}
	i := 0
	for i < len(buf) {
		b := buf[i]
		switch e.state {
		case stateGround:
			if b == 0x1b {
				e.state = stateEscape
				i++
				continue
			}
			if b < 0x20 || b == 0x7f {
				e.control(b)
				i++
				continue
			}
			r, size := utf8.DecodeRune(buf[i:])
			if r == utf8.RuneError && size == 1 && !utf8.FullRune(buf[i:]) && len(buf)-i < utf8.UTFMax {
				// Partial rune at the end of the chunk, wait for the rest.
				e.pending = append([]byte(nil), buf[i:]...)
				return
			}
			e.print(r)
			i += size
		case stateEscape:
			e.escape(b)
			i++
		case stateEscapeCharset:
			e.state = stateGround
			i++
		case stateCSI:
			if b < 0x20 {
				e.control(b)
				i++
				continue
			}
			if b >= 0x40 && b <= 0x7e {
				e.csiDispatch(b)
				e.csiRaw = e.csiRaw[:0]
				e.state = stateGround
			} else {
				e.csiRaw = append(e.csiRaw, b)
			}
			i++
		case stateOSC:
			switch {
			case b == 0x07:
				e.state = stateGround
				e.oscEsc = false
			case e.oscEsc && b == '\\':
				e.state = stateGround
				e.oscEsc = false
			case b == 0x1b:
				e.oscEsc = true
			default:
				e.oscEsc = false
			}
			i++
		}
	}
}

func (e *emulator) control(b byte) {
	switch b {
	case '\r':
		e.curC = 0
		e.wrapPending = false
	case '\n', 0x0b, 0x0c:
		e.lineFeed()
	case '\b':
		if e.curC > 0 {
			e.curC--
		}
		e.wrapPending = false
	case '\t':
		next := (e.curC/8 + 1) * 8
		if next > e.cols-1 {
			next = e.cols - 1
		}
		e.curC = next
	}
}

func (e *emulator) escape(b byte) {
	switch b {
	case '[':
		e.state = stateCSI
		e.csiRaw = e.csiRaw[:0]
	case ']':
		e.state = stateOSC
		e.oscEsc = false
	case '(', ')', '*', '+', '#', '%':
		e.state = stateEscapeCharset
	case 'D':
		e.indexDown()
		e.state = stateGround
	case 'E':
		e.lineFeed()
		e.state = stateGround
	case 'M':
		e.reverseIndex()
		e.state = stateGround
	case '7':
		e.savedR, e.savedC = e.curR, e.curC
		e.state = stateGround
	case '8':
		e.curR, e.curC = clamp(e.savedR, 0, e.rows-1), clamp(e.savedC, 0, e.cols-1)
		e.state = stateGround
	case 'c':
		e.grid = blankGrid(e.rows, e.cols)
		e.curR, e.curC = 0, 0
		e.wrapPending = false
		e.state = stateGround
	default:
		e.state = stateGround
	}
}

func (e *emulator) print(r rune) {
	if e.wrapPending {
		e.wrapPending = false
		e.curC = 0
		e.indexDown()
	}
	e.grid[e.curR][e.curC] = r
	if e.curC == e.cols-1 {
		e.wrapPending = true
	} else {
		e.curC++
	}
}

// lineFeed implements newline with implied carriage return, matching how
// cooked-mode shell output behaves.
func (e *emulator) lineFeed() {
	e.curC = 0
	e.indexDown()
}

func (e *emulator) indexDown() {
	e.wrapPending = false
	if e.curR == e.rows-1 {
		e.scrollUp(1)
		return
	}
	e.curR++
}

func (e *emulator) reverseIndex() {
	e.wrapPending = false
	if e.curR > 0 {
		e.curR--
		return
	}
	// Scroll the grid down; the bottom row is lost.
	copy(e.grid[1:], e.grid[:e.rows-1])
	e.grid[0] = blankRow(e.cols)
}

// scrollUp moves n rows off the top of the grid into the history ring.
func (e *emulator) scrollUp(n int) {
	for ; n > 0; n-- {
		if e.historySize > 0 {
			if len(e.history) >= e.historySize {
				e.history = e.history[1:]
			}
			e.history = append(e.history, e.grid[0])
		}
		copy(e.grid, e.grid[1:])
		e.grid[e.rows-1] = blankRow(e.cols)
	}
}

func (e *emulator) scrollDown(n int) {
	for ; n > 0; n-- {
		copy(e.grid[1:], e.grid[:e.rows-1])
		e.grid[0] = blankRow(e.cols)
	}
}

func (e *emulator) csiDispatch(final byte) {
	params, private := parseCSIParams(e.csiRaw)
	if private {
		return
	}
	n := paramAt(params, 0, 1)
	switch final {
	case 'A':
		e.curR = clamp(e.curR-n, 0, e.rows-1)
	case 'B', 'e':
		e.curR = clamp(e.curR+n, 0, e.rows-1)
	case 'C', 'a':
		e.curC = clamp(e.curC+n, 0, e.cols-1)
		e.wrapPending = false
	case 'D':
		e.curC = clamp(e.curC-n, 0, e.cols-1)
		e.wrapPending = false
	case 'E':
		e.curR = clamp(e.curR+n, 0, e.rows-1)
		e.curC = 0
	case 'F':
		e.curR = clamp(e.curR-n, 0, e.rows-1)
		e.curC = 0
	case 'G', '`':
		e.curC = clamp(n-1, 0, e.cols-1)
		e.wrapPending = false
	case 'H', 'f':
		e.curR = clamp(paramAt(params, 0, 1)-1, 0, e.rows-1)
		e.curC = clamp(paramAt(params, 1, 1)-1, 0, e.cols-1)
		e.wrapPending = false
	case 'd':
		e.curR = clamp(n-1, 0, e.rows-1)
	case 'J':
		e.eraseDisplay(paramAt(params, 0, 0))
	case 'K':
		e.eraseLine(paramAt(params, 0, 0))
	case 'L':
		e.insertLines(n)
	case 'M':
		e.deleteLines(n)
	case 'P':
		e.deleteChars(n)
	case '@':
		e.insertChars(n)
	case 'X':
		e.eraseChars(n)
	case 'S':
		e.scrollUp(n)
	case 'T':
		e.scrollDown(n)
	}
}

func (e *emulator) eraseDisplay(mode int) {
	switch mode {
	case 0:
		e.eraseLine(0)
		for r := e.curR + 1; r < e.rows; r++ {
			e.grid[r] = blankRow(e.cols)
		}
	case 1:
		e.eraseLine(1)
		for r := 0; r < e.curR; r++ {
			e.grid[r] = blankRow(e.cols)
		}
	case 2, 3:
		e.grid = blankGrid(e.rows, e.cols)
	}
	e.wrapPending = false
}

func (e *emulator) eraseLine(mode int) {
	row := e.grid[e.curR]
	switch mode {
	case 0:
		for c := e.curC; c < e.cols; c++ {
			row[c] = ' '
		}
	case 1:
		for c := 0; c <= e.curC && c < e.cols; c++ {
			row[c] = ' '
		}
	case 2:
		e.grid[e.curR] = blankRow(e.cols)
	}
	e.wrapPending = false
}

func (e *emulator) insertLines(n int) {
	for ; n > 0; n-- {
		copy(e.grid[e.curR+1:], e.grid[e.curR:e.rows-1])
		e.grid[e.curR] = blankRow(e.cols)
	}
}

func (e *emulator) deleteLines(n int) {
	for ; n > 0; n-- {
		copy(e.grid[e.curR:], e.grid[e.curR+1:])
		e.grid[e.rows-1] = blankRow(e.cols)
	}
}

func (e *emulator) deleteChars(n int) {
	row := e.grid[e.curR]
	for ; n > 0; n-- {
		copy(row[e.curC:], row[e.curC+1:])
		row[e.cols-1] = ' '
	}
}

func (e *emulator) insertChars(n int) {
	row := e.grid[e.curR]
	for ; n > 0; n-- {
		copy(row[e.curC+1:], row[e.curC:e.cols-1])
		row[e.curC] = ' '
	}
}

func (e *emulator) eraseChars(n int) {
	row := e.grid[e.curR]
	for c := e.curC; c < e.curC+n && c < e.cols; c++ {
		row[c] = ' '
	}
}

// resize adjusts the live grid, top-aligned. Scrolled-off history is kept
// as captured.
func (e *emulator) resize(rows, cols int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	grid := make([][]rune, rows)
	for r := 0; r < rows; r++ {
		grid[r] = blankRow(cols)
		if r < e.rows {
			copy(grid[r], e.grid[r])
		}
	}
	e.grid = grid
	e.rows = rows
	e.cols = cols
	e.curR = clamp(e.curR, 0, rows-1)
	e.curC = clamp(e.curC, 0, cols-1)
	e.wrapPending = false
}

func (e *emulator) historyLines() []string {
	out := make([]string, 0, len(e.history))
	for _, row := range e.history {
		out = append(out, trimRow(row))
	}
	return out
}

func (e *emulator) screenLines() []string {
	out := make([]string, 0, e.rows)
	for _, row := range e.grid {
		out = append(out, trimRow(row))
	}
	return out
}

func trimRow(row []rune) string {
	end := len(row)
	for end > 0 && row[end-1] == ' ' {
		end--
	}
	return string(row[:end])
}

// parseCSIParams splits raw parameter bytes into ints. Private-mode
// sequences (prefixed ? > = <) are reported so the dispatcher can skip them.
func parseCSIParams(raw []byte) ([]int, bool) {
	if len(raw) > 0 {
		switch raw[0] {
		case '?', '>', '=', '<':
			return nil, true
		}
	}
	params := []int{}
	cur := 0
	seen := false
	for _, b := range raw {
		switch {
		case b >= '0' && b <= '9':
			cur = cur*10 + int(b-'0')
			seen = true
		case b == ';':
			params = append(params, cur)
			cur = 0
			seen = true
		default:
			// Intermediate bytes are ignored.
		}
	}
	if seen {
		params = append(params, cur)
	}
	return params, false
}

func paramAt(params []int, i, def int) int {
	if i >= len(params) || params[i] == 0 {
		return def
	}
	return params[i]
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
