package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	bashTimeout   = 30 * time.Second
	bashOutputCap = 10000
)

type bashTool struct {
	confirm Confirm
}

// NewBash returns the bash tool: a one-shot subprocess that does not touch
// the wrapped shell's state. For commands whose effect on the live shell
// matters (cd, exports, venvs), shell_exec is the right tool.
func NewBash(confirm Confirm) Tool { return bashTool{confirm: confirm} }

func (bashTool) Name() string { return "bash" }

func (bashTool) Description() string {
	return "Run a command in a fresh subprocess and return its combined output and exit code. Does not affect the interactive shell's state."
}

func (bashTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"command": map[string]any{"type": "string", "description": "Shell command to run"},
	}, "command")
}

func (t bashTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return "", fmt.Errorf("command is required")
	}
	if t.confirm != nil && !t.confirm(fmt.Sprintf("Run in a subprocess?\n  $ %s", command)) {
		return "Command cancelled by user.", nil
	}

	ctx, cancel := context.WithTimeout(ctx, bashTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()

	exitCode := 0
	timedOut := ctx.Err() == context.DeadlineExceeded
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if timedOut {
			exitCode = -1
		} else {
			return "", fmt.Errorf("cannot run command: %w", err)
		}
	}

	text := strings.TrimSpace(string(out))
	if len(text) > bashOutputCap {
		half := bashOutputCap / 2
		text = text[:half] + "\n... (output truncated) ...\n" + text[len(text)-half:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "stdout: %s\n", text)
	fmt.Fprintf(&b, "exit_code: %d\n", exitCode)
	fmt.Fprintf(&b, "timed_out: %v", timedOut)
	return b.String(), nil
}
