package ptyshell

import (
	"sync"
	"time"
)

const (
	escByte = 0x1b

	// A lone ESC is flushed to the shell after this long.
	escFlushTimeout = 300 * time.Millisecond
	// After a double ESC, a shortcut byte must arrive within this window.
	shortcutTimeout = 200 * time.Millisecond
)

type gestureState int

const (
	gestureIdle gestureState = iota
	gestureEscPending
	gestureDoubleEsc
)

// TimerHandle is a stoppable pending timer.
type TimerHandle interface {
	Stop() bool
}

// TimerFactory schedules fn after d. Tests substitute a manual
// implementation so the state machine runs against controlled time.
type TimerFactory func(d time.Duration, fn func()) TimerHandle

func realTimerFactory(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}

// GestureConfig wires the detector's effects. Forward delivers bytes to the
// shell; EnterAIMode and Shortcuts consume the gesture.
type GestureConfig struct {
	Forward     func([]byte)
	EnterAIMode func()
	Shortcuts   map[byte]func()
	NewTimer    TimerFactory
}

// GestureDetector interprets raw stdin bytes: a double ESC (optionally
// followed by a shortcut byte) is consumed, everything else reaches the
// shell unmodified. Timer callbacks fire on their own goroutines, so all
// transitions take the mutex.
type GestureDetector struct {
	mu    sync.Mutex
	state gestureState
	timer TimerHandle
	gen   uint64

	forward     func([]byte)
	enterAIMode func()
	shortcuts   map[byte]func()
	newTimer    TimerFactory
}

func NewGestureDetector(cfg GestureConfig) *GestureDetector {
	if cfg.Forward == nil {
		cfg.Forward = func([]byte) {}
	}
	if cfg.EnterAIMode == nil {
		cfg.EnterAIMode = func() {}
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = realTimerFactory
	}
	return &GestureDetector{
		forward:     cfg.Forward,
		enterAIMode: cfg.EnterAIMode,
		shortcuts:   cfg.Shortcuts,
		newTimer:    cfg.NewTimer,
	}
}

// Feed processes one chunk of raw terminal input.
func (g *GestureDetector) Feed(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < len(data); i++ {
		b := data[i]
		switch g.state {
		case gestureIdle:
			if b == escByte {
				g.toEscPending()
				continue
			}
			g.forward([]byte{b})

		case gestureEscPending:
			g.stopTimer()
			if b == escByte {
				g.toDoubleEsc()
				continue
			}
			// Not a gesture: a real escape sequence (arrow keys etc.) arrives
			// as ESC plus the rest in the same chunk. Flush it all unconsumed.
			g.state = gestureIdle
			g.forward(append([]byte{escByte}, data[i:]...))
			return

		case gestureDoubleEsc:
			g.stopTimer()
			g.state = gestureIdle
			if fn, ok := g.shortcuts[b]; ok {
				g.mu.Unlock()
				fn()
				g.mu.Lock()
				continue
			}
			// Any other byte enters AI mode; the byte and the rest of the
			// chunk are dropped so AI mode starts with an empty line.
			g.mu.Unlock()
			g.enterAIMode()
			g.mu.Lock()
			return
		}
	}
}

func (g *GestureDetector) toEscPending() {
	g.state = gestureEscPending
	g.gen++
	gen := g.gen
	g.timer = g.newTimer(escFlushTimeout, func() { g.onEscTimeout(gen) })
}

func (g *GestureDetector) toDoubleEsc() {
	g.state = gestureDoubleEsc
	g.gen++
	gen := g.gen
	g.timer = g.newTimer(shortcutTimeout, func() { g.onShortcutTimeout(gen) })
}

// onEscTimeout fires when a single ESC was a genuine keypress.
func (g *GestureDetector) onEscTimeout(gen uint64) {
	g.mu.Lock()
	if g.gen != gen || g.state != gestureEscPending {
		g.mu.Unlock()
		return
	}
	g.state = gestureIdle
	g.timer = nil
	g.mu.Unlock()
	g.forward([]byte{escByte})
}

// onShortcutTimeout fires when a double ESC was not followed by a shortcut.
func (g *GestureDetector) onShortcutTimeout(gen uint64) {
	g.mu.Lock()
	if g.gen != gen || g.state != gestureDoubleEsc {
		g.mu.Unlock()
		return
	}
	g.state = gestureIdle
	g.timer = nil
	g.mu.Unlock()
	g.enterAIMode()
}

func (g *GestureDetector) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
}

// Reset drops any pending gesture without side effects.
func (g *GestureDetector) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimer()
	g.state = gestureIdle
}
