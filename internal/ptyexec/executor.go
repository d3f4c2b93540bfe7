// Package ptyexec runs agent-issued commands inside the live wrapped shell,
// preserving its working directory, environment and aliases. Completion is
// detected by a marker line appended to the injected command, because the
// PTY gives back one continuous byte stream with no other framing.
package ptyexec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"llamsh/internal/ptyshell"
)

const (
	DefaultTimeout = 30 * time.Second

	// After an interrupt is injected, how long to wait for the shell to
	// settle before collecting partial output.
	interruptGrace = 200 * time.Millisecond

	// Command output is capped to the first and last halves of this many
	// bytes before being handed to the model.
	outputCap = 10000

	markerPrefix = "___LLAMSH_DONE_"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

// Shell is the slice of the PTY session the executor needs.
type Shell interface {
	Write(data []byte) error
	AddOutputObserver(fn ptyshell.OutputObserver) func()
	ShowPTYOutput(show bool)
	ReadLine() string
	Pid() int
}

// Result is a structured command outcome. Timeouts are results, not errors,
// so the model can react conversationally.
type Result struct {
	Output    string
	ExitCode  int
	TimedOut  bool
	Cancelled bool
}

// Format renders the result the way it is sent back as a tool message.
func (r Result) Format() string {
	if r.Cancelled {
		return "Command cancelled by user."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "stdout: %s\n", r.Output)
	fmt.Fprintf(&b, "exit_code: %d\n", r.ExitCode)
	fmt.Fprintf(&b, "timed_out: %v", r.TimedOut)
	if r.TimedOut {
		fmt.Fprintf(&b, "\nError: command timed out after %ds", int(DefaultTimeout.Seconds()))
	}
	return b.String()
}

// Options configures an Executor.
type Options struct {
	Shell   Shell
	Cwd     func() string // best-effort, for the confirmation prompt
	Prompt  io.Writer     // where the confirmation prompt is printed
	Logger  *slog.Logger
	Timeout time.Duration

	// SkipConfirm bypasses the interactive prompt. Only for tests.
	SkipConfirm bool
}

// Executor serializes in-shell command executions. Only one may be
// outstanding at a time; the agent loop never overlaps tool calls, and the
// mutex enforces it for everyone else.
type Executor struct {
	shell       Shell
	cwd         func() string
	prompt      io.Writer
	logger      *slog.Logger
	timeout     time.Duration
	skipConfirm bool

	mu      sync.Mutex
	counter uint64
	busy    atomic.Bool
}

// Busy reports whether a command is currently running in the shell. The
// interrupt handler uses it to decide between forwarding Ctrl-C into the
// PTY and cancelling the model stream.
func (e *Executor) Busy() bool {
	return e.busy.Load()
}

func New(opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Prompt == nil {
		opts.Prompt = io.Discard
	}
	if opts.Cwd == nil {
		opts.Cwd = func() string { return "" }
	}
	return &Executor{
		shell:       opts.Shell,
		cwd:         opts.Cwd,
		prompt:      opts.Prompt,
		logger:      opts.Logger,
		timeout:     opts.Timeout,
		skipConfirm: opts.SkipConfirm,
	}
}

// Execute runs command inside the live shell and blocks until the marker
// line is seen, the timeout fires, or ctx is cancelled. The user confirms
// first; declining returns a cancelled Result without touching the PTY.
func (e *Executor) Execute(ctx context.Context, command string) (Result, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{}, fmt.Errorf("empty command")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.skipConfirm && !e.confirm(command) {
		e.logger.Info("command declined", "command", command)
		return Result{Cancelled: true, ExitCode: -1}, nil
	}

	e.counter++
	marker := fmt.Sprintf("%s%x_%x", markerPrefix, e.shell.Pid(), e.counter)
	markerRe := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(marker) + `_(\d+)___\s*$`)

	// The semicolon guarantees the marker prints even when the command
	// fails; $? is sampled right after the command so it reflects its true
	// exit status.
	injected := fmt.Sprintf("%s; printf '\\n%s_%%d___\\n' $?\n", command, marker)

	scan := &markerScanner{re: markerRe, overlap: len(marker) + 16}
	done := make(chan scanMatch, 1)
	remove := e.shell.AddOutputObserver(func(chunk []byte) {
		if m, ok := scan.feed(chunk); ok {
			select {
			case done <- m:
			default:
			}
		}
	})
	defer remove()

	// Let the user watch the command run.
	e.shell.ShowPTYOutput(true)
	defer e.shell.ShowPTYOutput(false)

	if err := e.shell.Write([]byte(injected)); err != nil {
		return Result{}, fmt.Errorf("failed to inject command: %w", err)
	}
	e.busy.Store(true)
	defer e.busy.Store(false)
	e.logger.Info("command injected", "command", command, "marker", marker)

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case m := <-done:
		out := extractOutput(scan.textBefore(m), command)
		return Result{Output: capOutput(out), ExitCode: m.exitCode}, nil
	case <-timer.C:
		e.logger.Warn("command timed out", "command", command, "timeout", e.timeout)
		e.interruptAndSettle(done)
		out := extractOutput(scan.all(), command)
		return Result{Output: capOutput(out), ExitCode: -1, TimedOut: true}, nil
	case <-ctx.Done():
		e.interruptAndSettle(done)
		out := extractOutput(scan.all(), command)
		return Result{Output: capOutput(out), ExitCode: -1}, ctx.Err()
	}
}

// interruptAndSettle sends Ctrl-C into the PTY and gives the shell a short
// grace period to flush.
func (e *Executor) interruptAndSettle(done <-chan scanMatch) {
	if err := e.shell.Write([]byte{0x03}); err != nil {
		e.logger.Warn("failed to send interrupt", "error", err)
	}
	select {
	case <-done:
	case <-time.After(interruptGrace):
	}
}

func (e *Executor) confirm(command string) bool {
	yellow := color.New(color.FgYellow)
	dim := color.New(color.Faint)
	fmt.Fprint(e.prompt, "\r\n")
	yellow.Fprintf(e.prompt, "  $ %s\r\n", command)
	if dir := e.cwd(); dir != "" {
		dim.Fprintf(e.prompt, "  in %s\r\n", dir)
	}
	fmt.Fprint(e.prompt, "  Run this command? [y/N] ")
	answer := strings.ToLower(strings.TrimSpace(e.shell.ReadLine()))
	return answer == "y" || answer == "yes"
}

type scanMatch struct {
	start    int // byte offset of the marker line in the buffer
	exitCode int
}

// markerScanner accumulates output and scans incrementally: each feed only
// examines the unscanned suffix plus a small overlap window, so long-running
// commands stay linear in total output size.
type markerScanner struct {
	mu      sync.Mutex
	buf     []byte
	scanned int
	re      *regexp.Regexp
	overlap int
}

func (s *markerScanner) feed(chunk []byte) (scanMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, chunk...)
	start := s.scanned - s.overlap
	if start < 0 {
		start = 0
	}
	loc := s.re.FindSubmatchIndex(s.buf[start:])
	s.scanned = len(s.buf)
	if loc == nil {
		return scanMatch{}, false
	}
	code, err := strconv.Atoi(string(s.buf[start+loc[2] : start+loc[3]]))
	if err != nil {
		code = -1
	}
	return scanMatch{start: start + loc[0], exitCode: code}, true
}

func (s *markerScanner) textBefore(m scanMatch) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf[:m.start])
}

func (s *markerScanner) all() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf)
}

// extractOutput strips the echoed command line, ANSI noise and carriage
// returns from the raw capture.
func extractOutput(raw, command string) string {
	// Everything up to and including the first newline is the echo of the
	// injected line (long commands may wrap, which is tolerated as an
	// approximation).
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = raw[idx+1:]
	}
	raw = ansiRe.ReplaceAllString(raw, "")
	raw = strings.ReplaceAll(raw, "\r", "")
	return strings.TrimSpace(raw)
}

// capOutput bounds what is sent back to the model: first half, truncation
// note, last half.
func capOutput(out string) string {
	if len(out) <= outputCap {
		return out
	}
	half := outputCap / 2
	return out[:half] + "\n... (output truncated) ...\n" + out[len(out)-half:]
}
