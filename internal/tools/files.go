package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/bmatcuk/doublestar/v4"
)

const (
	maxReadBytes   = 100 * 1024
	maxListEntries = 200
)

// Confirm asks the user to approve a destructive action; the prompt text
// includes whatever preview the tool built.
type Confirm func(prompt string) bool

type readFileTool struct{}

// NewReadFile returns the read_file tool.
func NewReadFile() Tool { return readFileTool{} }

func (readFileTool) Name() string { return "read_file" }

func (readFileTool) Description() string {
	return "Read the contents of a text file. Returns at most 100KB."
}

func (readFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path": map[string]any{"type": "string", "description": "Path to the file to read"},
	}, "path")
}

func (readFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path := strings.TrimSpace(stringArg(args, "path"))
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	n := len(data)
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%s appears to be a binary file", path)
	}
	if n > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (file truncated at 100KB) ...", nil
	}
	return string(data), nil
}

type writeFileTool struct {
	confirm Confirm
}

// NewWriteFile returns the write_file tool. Every write is previewed as a
// unified diff and requires user confirmation.
func NewWriteFile(confirm Confirm) Tool { return writeFileTool{confirm: confirm} }

func (writeFileTool) Name() string { return "write_file" }

func (writeFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed. The user reviews a diff before the write happens."
}

func (writeFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":    map[string]any{"type": "string", "description": "Path to the file to write"},
		"content": map[string]any{"type": "string", "description": "Full new content of the file"},
	}, "path", "content")
}

func (t writeFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path := strings.TrimSpace(stringArg(args, "path"))
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return "", fmt.Errorf("content is required")
	}

	old := ""
	if existing, err := os.ReadFile(path); err == nil {
		old = string(existing)
	}
	diff := udiff.Unified(path, path, old, content)
	if diff == "" {
		return fmt.Sprintf("%s already has the requested content.", path), nil
	}

	if t.confirm != nil {
		prompt := fmt.Sprintf("Write %s?\n%s", path, diff)
		if !t.confirm(prompt) {
			return "Write cancelled by user.", nil
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s.", len(content), path), nil
}

type listFilesTool struct{}

// NewListFiles returns the list_files tool.
func NewListFiles() Tool { return listFilesTool{} }

func (listFilesTool) Name() string { return "list_files" }

func (listFilesTool) Description() string {
	return "List files under a directory matching a glob pattern (** is supported). Directories end with /."
}

func (listFilesTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":    map[string]any{"type": "string", "description": "Directory to list, defaults to ."},
		"pattern": map[string]any{"type": "string", "description": "Glob pattern, defaults to *"},
	})
}

func (listFilesTool) Execute(_ context.Context, args map[string]any) (string, error) {
	root := strings.TrimSpace(stringArg(args, "path"))
	if root == "" {
		root = "."
	}
	pattern := strings.TrimSpace(stringArg(args, "pattern"))
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return "", fmt.Errorf("invalid pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return "", fmt.Errorf("cannot list %s: %w", root, err)
	}
	sort.Strings(matches)

	truncated := false
	if len(matches) > maxListEntries {
		matches = matches[:maxListEntries]
		truncated = true
	}

	var b strings.Builder
	for _, m := range matches {
		line := m
		if info, err := fs.Stat(os.DirFS(root), m); err == nil && info.IsDir() {
			line += "/"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&b, "... (list truncated at %d entries) ...\n", maxListEntries)
	}
	if b.Len() == 0 {
		return "No matches.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
