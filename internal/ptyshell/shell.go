package ptyshell

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const readChunkSize = 4096

// OutputObserver receives every PTY output chunk in arrival order, on the
// session's dispatch goroutine. Observers must not block.
type OutputObserver func(chunk []byte)

// Options configures a Shell. Zero values fall back to the caller's
// environment: $SHELL (or /bin/sh), os.Stdin and os.Stdout.
type Options struct {
	ShellPath string
	Stdin     *os.File
	Stdout    io.Writer
	Logger    *slog.Logger

	// EnterAIMode is invoked by the double-ESC gesture. Shortcuts maps a
	// post-gesture byte to its action.
	EnterAIMode func()
	Shortcuts   map[byte]func()

	// NewTimer overrides gesture timing in tests.
	NewTimer TimerFactory
}

// Shell owns the child shell process and proxies bytes between the
// controlling terminal and the PTY master. Exactly one instance runs per
// process; Run is the event loop and all observer callbacks fire on it.
type Shell struct {
	shellPath string
	stdin     *os.File
	stdout    io.Writer
	logger    *slog.Logger

	cmd  *exec.Cmd
	ptmx *os.File

	rawState *term.State
	winch    chan os.Signal

	gesture *GestureDetector

	mu              sync.Mutex
	observers       map[int]OutputObserver
	nextObserver    int
	resizeObservers []func(rows, cols int)
	aiMode          bool
	showOutput      bool
	aiInput         func([]byte)

	lineMode bool
	lineBuf  []byte
	lineCh   chan string

	running  bool
	cleaned  bool
	waitErr  error
	waitOnce sync.Once
}

// NewShell prepares a session; the child is not started until Start.
func NewShell(opts Options) *Shell {
	if opts.ShellPath == "" {
		opts.ShellPath = os.Getenv("SHELL")
	}
	if opts.ShellPath == "" {
		opts.ShellPath = "/bin/sh"
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Shell{
		shellPath: opts.ShellPath,
		stdin:     opts.Stdin,
		stdout:    opts.Stdout,
		logger:    opts.Logger,
		observers: map[int]OutputObserver{},
		lineCh:    make(chan string, 1),
	}
	s.gesture = NewGestureDetector(GestureConfig{
		Forward: func(b []byte) {
			if err := s.Write(b); err != nil {
				s.logger.Warn("pty write failed", "error", err)
			}
		},
		EnterAIMode: opts.EnterAIMode,
		Shortcuts:   opts.Shortcuts,
		NewTimer:    opts.NewTimer,
	})
	return s
}

// Start spawns the child shell on a PTY sized to the current terminal and
// switches the controlling terminal to raw mode. The child runs as a login
// shell with its nesting counter reset so rc files load as a fresh top-level
// session.
func (s *Shell) Start() error {
	ws, err := pty.GetsizeFull(s.stdin)
	if err != nil {
		ws = &pty.Winsize{Rows: 24, Cols: 80}
	}

	cmd := exec.Command(s.shellPath)
	cmd.Args = []string{"-" + filepath.Base(s.shellPath)}
	cmd.Env = append(os.Environ(), "SHLVL=0")

	ptmx, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return fmt.Errorf("failed to start shell %s: %w", s.shellPath, err)
	}
	s.cmd = cmd
	s.ptmx = ptmx
	s.running = true

	state, err := term.MakeRaw(int(s.stdin.Fd()))
	if err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	s.rawState = state

	s.winch = make(chan os.Signal, 1)
	signal.Notify(s.winch, syscall.SIGWINCH)

	s.logger.Info("shell started", "path", s.shellPath, "pid", cmd.Process.Pid,
		"rows", ws.Rows, "cols", ws.Cols)
	return nil
}

// Run is the session event loop: it multiplexes terminal input, PTY output,
// resize notifications and child exit, and returns when the child exits or
// the PTY master errors out.
func (s *Shell) Run() error {
	if s.ptmx == nil {
		return fmt.Errorf("shell not started")
	}

	stdinCh := readLoop(s.stdin)
	ptyCh := readLoop(s.ptmx)

	waitCh := make(chan error, 1)
	go func() { waitCh <- s.cmd.Wait() }()

	for {
		select {
		case chunk, ok := <-stdinCh:
			if !ok {
				s.logger.Info("stdin closed")
				s.running = false
				return nil
			}
			s.routeInput(chunk)
		case chunk, ok := <-ptyCh:
			if !ok {
				// Master read error: the child is gone or going.
				s.running = false
				s.waitOnce.Do(func() { s.waitErr = <-waitCh })
				return nil
			}
			s.handleOutput(chunk)
		case <-s.winch:
			s.handleResize()
		case err := <-waitCh:
			s.waitOnce.Do(func() { s.waitErr = err })
			s.running = false
			// Drain whatever final output is already buffered.
			for {
				select {
				case chunk, ok := <-ptyCh:
					if !ok {
						return nil
					}
					s.handleOutput(chunk)
				default:
					return nil
				}
			}
		}
	}
}

// readLoop pumps a descriptor into a channel; the channel closes on EOF or
// error.
func readLoop(r io.Reader) <-chan []byte {
	ch := make(chan []byte, 8)
	go func() {
		defer close(ch)
		for {
			buf := make([]byte, readChunkSize)
			n, err := r.Read(buf)
			if n > 0 {
				ch <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// routeInput dispatches one stdin chunk by mode: a pending line read wins,
// then AI mode's input handler, then the gesture detector for passthrough.
func (s *Shell) routeInput(chunk []byte) {
	s.mu.Lock()
	lineMode := s.lineMode
	aiMode := s.aiMode
	aiInput := s.aiInput
	s.mu.Unlock()

	switch {
	case lineMode:
		s.feedLine(chunk)
	case aiMode && aiInput != nil:
		aiInput(chunk)
	default:
		s.gesture.Feed(chunk)
	}
}

// handleOutput delivers a PTY output chunk to every observer in registration
// order, then echoes it to the real terminal unless suppressed.
func (s *Shell) handleOutput(chunk []byte) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	obs := make([]OutputObserver, 0, len(ids))
	for _, id := range ids {
		obs = append(obs, s.observers[id])
	}
	suppress := s.aiMode && !s.showOutput
	s.mu.Unlock()

	for _, fn := range obs {
		fn(chunk)
	}
	if !suppress {
		if _, err := s.stdout.Write(chunk); err != nil {
			s.logger.Warn("terminal write failed", "error", err)
		}
	}
}

func (s *Shell) handleResize() {
	ws, err := pty.GetsizeFull(s.stdin)
	if err != nil {
		s.logger.Warn("failed to query terminal size", "error", err)
		return
	}
	if err := pty.Setsize(s.ptmx, ws); err != nil {
		s.logger.Warn("failed to propagate size to pty", "error", err)
	}
	// The child is its own session leader, so pid doubles as pgid.
	if s.cmd != nil && s.cmd.Process != nil {
		_ = unix.Kill(-s.cmd.Process.Pid, unix.SIGWINCH)
	}

	s.mu.Lock()
	watchers := append([]func(rows, cols int){}, s.resizeObservers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(int(ws.Rows), int(ws.Cols))
	}
}

// Write injects bytes into the shell's input. This is the only sanctioned
// path for other components to reach the PTY.
func (s *Shell) Write(data []byte) error {
	if s.ptmx == nil {
		return fmt.Errorf("shell not started")
	}
	if _, err := s.ptmx.Write(data); err != nil {
		return fmt.Errorf("pty write: %w", err)
	}
	return nil
}

// AddOutputObserver registers fn and returns its unsubscribe function.
func (s *Shell) AddOutputObserver(fn OutputObserver) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// AddResizeObserver registers fn for terminal resize notifications.
func (s *Shell) AddResizeObserver(fn func(rows, cols int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeObservers = append(s.resizeObservers, fn)
}

// SetAIMode toggles AI mode. While active, stdin bypasses the gesture
// detector and PTY output is suppressed from the terminal (observers still
// see everything).
func (s *Shell) SetAIMode(active bool) {
	s.mu.Lock()
	s.aiMode = active
	s.showOutput = false
	s.mu.Unlock()
	s.gesture.Reset()
}

// SetAIInputHandler installs the handler that receives raw stdin bytes while
// AI mode is active.
func (s *Shell) SetAIInputHandler(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiInput = fn
}

// ShowPTYOutput lifts output suppression while a command runs visibly, and
// restores it after.
func (s *Shell) ShowPTYOutput(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showOutput = show
}

// ReadLine blocks until the user finishes one line of input. The event loop
// assembles and echoes the line; used for yes/no confirmation prompts while
// the terminal stays raw.
func (s *Shell) ReadLine() string {
	s.mu.Lock()
	s.lineMode = true
	s.lineBuf = s.lineBuf[:0]
	s.mu.Unlock()
	return <-s.lineCh
}

// feedLine assembles ReadLine input byte by byte, echoing as it goes.
func (s *Shell) feedLine(chunk []byte) {
	for _, b := range chunk {
		switch b {
		case '\r', '\n':
			io.WriteString(s.stdout, "\r\n")
			s.mu.Lock()
			line := string(s.lineBuf)
			s.lineBuf = s.lineBuf[:0]
			s.lineMode = false
			s.mu.Unlock()
			s.lineCh <- line
			return
		case 0x7f, 0x08:
			s.mu.Lock()
			if len(s.lineBuf) > 0 {
				s.lineBuf = s.lineBuf[:len(s.lineBuf)-1]
				io.WriteString(s.stdout, "\b \b")
			}
			s.mu.Unlock()
		case 0x03: // Ctrl-C declines
			io.WriteString(s.stdout, "\r\n")
			s.mu.Lock()
			s.lineBuf = s.lineBuf[:0]
			s.lineMode = false
			s.mu.Unlock()
			s.lineCh <- ""
			return
		default:
			if b >= 0x20 {
				s.mu.Lock()
				s.lineBuf = append(s.lineBuf, b)
				s.mu.Unlock()
				s.stdout.Write([]byte{b})
			}
		}
	}
}

// Running reports whether the child shell is still alive.
func (s *Shell) Running() bool {
	return s.running
}

// Pid returns the child shell's process id, or 0 before Start.
func (s *Shell) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Cleanup restores the terminal mode, closes the PTY master and reaps the
// child without blocking if it already exited. Safe to call more than once.
func (s *Shell) Cleanup() {
	if s.cleaned {
		return
	}
	s.cleaned = true

	if s.winch != nil {
		signal.Stop(s.winch)
	}
	if s.rawState != nil {
		if err := term.Restore(int(s.stdin.Fd()), s.rawState); err != nil {
			s.logger.Warn("failed to restore terminal mode", "error", err)
		}
	}
	if s.ptmx != nil {
		s.ptmx.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if s.running {
			_ = s.cmd.Process.Signal(syscall.SIGHUP)
		}
		go func() { s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() }) }()
	}
	s.logger.Info("shell session closed")
}
