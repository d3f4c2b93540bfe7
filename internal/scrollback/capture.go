package scrollback

import (
	"strings"
	"sync"
)

const DefaultHistorySize = 5000

// Capture feeds raw PTY output through the terminal emulator and produces
// compressed plain-text context for the agent. Feed and Resize are called on
// the PTY dispatch goroutine; Context may be called from the agent turn.
type Capture struct {
	mu  sync.Mutex
	emu *emulator
}

func NewCapture(rows, cols int) *Capture {
	return NewCaptureWithHistory(rows, cols, DefaultHistorySize)
}

func NewCaptureWithHistory(rows, cols, historySize int) *Capture {
	return &Capture{emu: newEmulator(rows, cols, historySize)}
}

// Feed consumes one output chunk. Chunks must be fed in arrival order; the
// emulator is stateful and reordering corrupts the reconstruction.
func (c *Capture) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emu.feed(data)
}

// Resize follows the terminal resize notification.
func (c *Capture) Resize(rows, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emu.resize(rows, cols)
}

// Context returns at most maxLines of compressed scrollback (history ring
// then visible screen), or "" when the terminal is effectively empty.
func (c *Capture) Context(maxLines int) string {
	if maxLines <= 0 {
		maxLines = 200
	}
	c.mu.Lock()
	lines := append(c.emu.historyLines(), c.emu.screenLines()...)
	c.mu.Unlock()

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	lines = compressLines(lines)
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
