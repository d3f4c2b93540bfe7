package tools

import (
	"context"
	"fmt"
	"strings"

	"llamsh/internal/ptyexec"
)

// CommandRunner is the slice of the in-shell executor this tool needs.
type CommandRunner interface {
	Execute(ctx context.Context, command string) (ptyexec.Result, error)
}

type shellExecTool struct {
	runner CommandRunner
}

// NewShellExec returns the shell_exec tool: runs a command inside the
// user's live shell, so cd, environment changes and activated virtualenvs
// persist for the user afterwards. Confirmation happens inside the
// executor, on the real terminal.
func NewShellExec(runner CommandRunner) Tool { return shellExecTool{runner: runner} }

func (shellExecTool) Name() string { return "shell_exec" }

func (shellExecTool) Description() string {
	return "Run a command inside the user's live interactive shell. State changes (cd, exports, venv activation) persist. The user confirms before execution and watches the output."
}

func (shellExecTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"command": map[string]any{"type": "string", "description": "Shell command to run in the live shell"},
	}, "command")
}

func (t shellExecTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return "", fmt.Errorf("command is required")
	}
	res, err := t.runner.Execute(ctx, command)
	if err != nil {
		return "", fmt.Errorf("in-shell execution failed: %w", err)
	}
	return res.Format(), nil
}
