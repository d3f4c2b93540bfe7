// Package render draws llamsh's own UI: the banner, streamed agent text
// and tool activity. The terminal is in raw mode while we own it, so every
// newline must go out as \r\n.
package render

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/fatih/color"
)

const llama = `
   ▗▖
  ▗▛▜▖   ┬  ┬  ┌─┐ ┌┬┐ ┌─┐ ┬ ┬
  ▐▌▐▌   │  │  ├─┤ │││ └─┐ ├─┤
  ▝▙▟▘   ┴─┘┴─┘┴ ┴ ┴ ┴ └─┘ ┴ ┴
`

var taglines = []string{
	"your shell, now with opinions",
	"double-tap ESC to summon the llama",
	"it's in your terminal, reading your scrollback",
	"no prompt survives contact with the llama",
	"same shell, extra brain",
}

// Renderer writes llamsh UI to the real terminal.
type Renderer struct {
	out io.Writer

	heading *color.Color
	dim     *color.Color
	tool    *color.Color
	errc    *color.Color
	prompt  *color.Color
}

func New(out io.Writer) *Renderer {
	return &Renderer{
		out:     out,
		heading: color.New(color.FgMagenta, color.Bold),
		dim:     color.New(color.Faint),
		tool:    color.New(color.FgCyan),
		errc:    color.New(color.FgRed, color.Bold),
		prompt:  color.New(color.FgMagenta, color.Bold),
	}
}

// Writer exposes the underlying terminal writer for components that draw
// their own control sequences, like the line editor.
func (r *Renderer) Writer() io.Writer { return r.out }

// crlf prepares text for a raw-mode terminal.
func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// Banner prints the startup header with a rotating tagline.
func (r *Renderer) Banner(model, baseURL, mood string) {
	r.heading.Fprint(r.out, crlf(llama))
	r.dim.Fprintf(r.out, "  %s\r\n", taglines[rand.Intn(len(taglines))])
	fmt.Fprintf(r.out, "  model %s at %s", model, baseURL)
	if mood != "" && mood != "default" {
		fmt.Fprintf(r.out, "  (mood: %s)", mood)
	}
	fmt.Fprint(r.out, "\r\n")
	r.dim.Fprint(r.out, "  ESC ESC for AI mode, ESC ESC e/f for explain/fix\r\n\r\n")
}

// Prompt returns the AI-mode input prompt.
func (r *Renderer) Prompt() string {
	return r.prompt.Sprint("🦙> ")
}

// Text writes one streamed content fragment.
func (r *Renderer) Text(fragment string) {
	fmt.Fprint(r.out, crlf(fragment))
}

// ToolCall announces a tool invocation.
func (r *Renderer) ToolCall(name string, args map[string]any) {
	summary := summarizeArgs(args)
	if summary != "" {
		r.tool.Fprintf(r.out, "\r\n→ %s %s\r\n", name, summary)
		return
	}
	r.tool.Fprintf(r.out, "\r\n→ %s\r\n", name)
}

// ToolResult shows a short preview of what the tool returned.
func (r *Renderer) ToolResult(result string) {
	preview := strings.TrimSpace(result)
	if idx := strings.IndexByte(preview, '\n'); idx >= 0 {
		preview = preview[:idx] + " ..."
	}
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	r.dim.Fprintf(r.out, "  %s\r\n", crlf(preview))
}

// Error renders a user-facing failure.
func (r *Renderer) Error(err error) {
	r.errc.Fprintf(r.out, "\r\n%v\r\n", err)
}

// Info renders a dim status line.
func (r *Renderer) Info(msg string) {
	r.dim.Fprintf(r.out, "%s\r\n", crlf(msg))
}

// Newline moves to a fresh line.
func (r *Renderer) Newline() {
	fmt.Fprint(r.out, "\r\n")
}

func summarizeArgs(args map[string]any) string {
	for _, key := range []string{"command", "path", "pattern"} {
		if v, ok := args[key].(string); ok && v != "" {
			if len(v) > 80 {
				v = v[:80] + "..."
			}
			return v
		}
	}
	return ""
}
