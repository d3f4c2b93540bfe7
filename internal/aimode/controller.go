package aimode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"llamsh/internal/agent"
	"llamsh/internal/render"
)

const contextMaxLines = 200

// TurnRunner drives one agent turn; implemented by agent.Orchestrator.
type TurnRunner interface {
	RunTurn(ctx context.Context, input string, events agent.TurnEvents) error
	History() *agent.History
}

// ShellControl is the slice of the PTY session the controller needs.
type ShellControl interface {
	SetAIMode(active bool)
	SetAIInputHandler(fn func([]byte))
	Write(data []byte) error
}

// ContextSource provides the reconstructed scrollback.
type ContextSource interface {
	Context(maxLines int) string
}

// Options wires a Controller.
type Options struct {
	Shell   ShellControl
	Runner  TurnRunner
	Capture ContextSource
	Render  *render.Renderer
	Logger  *slog.Logger

	// PTYBusy reports whether an in-shell command is running; Ctrl-C is
	// forwarded into the PTY instead of cancelling the stream when it is.
	PTYBusy func() bool

	// Persist is called with the full history after every completed turn.
	Persist func(messages []agent.Message)
}

// Controller manages AI mode: entering and leaving it, editing the input
// line, running turns and routing interrupts. Input bytes arrive on the
// PTY session's event loop; turns run on their own goroutine so shell
// output keeps flowing while a command executes.
type Controller struct {
	shell   ShellControl
	runner  TurnRunner
	capture ContextSource
	render  *render.Renderer
	logger  *slog.Logger
	ptyBusy func() bool
	persist func([]agent.Message)

	editor *LineEditor

	mu          sync.Mutex
	active      bool
	turnRunning bool
	turnCancel  context.CancelFunc
	turnWG      sync.WaitGroup
}

func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PTYBusy == nil {
		opts.PTYBusy = func() bool { return false }
	}
	if opts.Persist == nil {
		opts.Persist = func([]agent.Message) {}
	}
	c := &Controller{
		shell:   opts.Shell,
		runner:  opts.Runner,
		capture: opts.Capture,
		render:  opts.Render,
		logger:  opts.Logger,
		ptyBusy: opts.PTYBusy,
		persist: opts.Persist,
	}
	c.editor = NewLineEditor(opts.Render.Writer(), opts.Render.Prompt())
	return c
}

// Enter switches the session into AI mode with an empty input line.
func (c *Controller) Enter() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()

	c.logger.Info("entering AI mode")
	c.shell.SetAIInputHandler(c.handleInput)
	c.shell.SetAIMode(true)
	c.render.Newline()
	c.editor.Begin()
}

// Explain is the double-ESC 'e' shortcut.
func (c *Controller) Explain() {
	c.enterAndSubmit("Explain the output of the last command in my terminal, briefly.")
}

// Fix is the double-ESC 'f' shortcut.
func (c *Controller) Fix() {
	c.enterAndSubmit("The last command in my terminal failed. Diagnose the error and suggest a fix. If the fix is a single safe command, run it with shell_exec.")
}

func (c *Controller) enterAndSubmit(input string) {
	c.Enter()
	c.mu.Lock()
	running := c.turnRunning
	c.mu.Unlock()
	if running {
		return
	}
	c.render.Text(input + "\n")
	c.startTurn(input)
}

// Active reports whether AI mode is engaged.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Interrupt handles Ctrl-C (whether from a signal or a keypress): forward
// it into the PTY while an in-shell command runs, otherwise cancel the
// in-flight turn.
func (c *Controller) Interrupt() {
	if c.ptyBusy() {
		if err := c.shell.Write([]byte{0x03}); err != nil {
			c.logger.Warn("failed to forward interrupt", "error", err)
		}
		return
	}
	c.mu.Lock()
	cancel := c.turnCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// handleInput receives raw stdin bytes while AI mode is active.
func (c *Controller) handleInput(data []byte) {
	c.mu.Lock()
	running := c.turnRunning
	c.mu.Unlock()

	if running {
		// Only Ctrl-C means anything while a turn is in flight.
		for _, b := range data {
			if b == 0x03 {
				c.Interrupt()
				return
			}
		}
		return
	}

	for _, ev := range c.editor.Feed(data) {
		switch ev.Kind {
		case EventSubmit:
			if ev.Line == "" {
				c.editor.Begin()
				continue
			}
			c.startTurn(ev.Line)
			return
		case EventExit:
			c.Exit()
			return
		}
	}
}

func (c *Controller) startTurn(input string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.turnRunning = true
	c.turnCancel = cancel
	c.mu.Unlock()

	c.turnWG.Add(1)
	go func() {
		defer c.turnWG.Done()
		defer cancel()
		c.runTurn(ctx, input)

		c.mu.Lock()
		c.turnRunning = false
		c.turnCancel = nil
		active := c.active
		c.mu.Unlock()

		if active {
			c.render.Newline()
			c.editor.Begin()
		}
	}()
}

func (c *Controller) runTurn(ctx context.Context, input string) {
	if c.capture != nil {
		if sc := c.capture.Context(contextMaxLines); sc != "" {
			c.runner.History().SetShellContext(sc)
		}
	}

	err := c.runner.RunTurn(ctx, input, agent.TurnEvents{
		OnText: c.render.Text,
		OnToolCall: func(name string, args map[string]any) {
			c.render.ToolCall(name, args)
		},
		OnToolResult: func(_, result string) {
			c.render.ToolResult(result)
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		c.render.Info("\n— interrupted —")
	default:
		c.logger.Warn("turn failed", "error", err)
		c.render.Error(err)
	}

	c.persist(c.runner.History().Messages())
	c.render.Newline()
}

// Exit leaves AI mode and hands the terminal back to the shell.
func (c *Controller) Exit() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel := c.turnCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Info("leaving AI mode")
	c.render.Info("— back to shell —")
	c.shell.SetAIMode(false)
}

// waitTurns blocks until no turn goroutine is in flight.
func (c *Controller) waitTurns() {
	c.turnWG.Wait()
}
