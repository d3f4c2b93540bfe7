package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// ToolRunner executes named tool capabilities. Run never returns an error:
// failures come back as text so the model can react to them.
type ToolRunner interface {
	Schemas() []ToolSchema
	Run(ctx context.Context, name string, args map[string]any) string
}

// TurnEvents surfaces progress to the UI layer. All callbacks are optional
// and fire on the turn's goroutine.
type TurnEvents struct {
	OnText       func(fragment string)
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name, result string)
}

// Orchestrator drives the tool-calling loop: stream a completion, execute
// any tool calls, feed the results back, repeat until a round produces no
// tool calls.
type Orchestrator struct {
	client  StreamClient
	tools   ToolRunner
	history *History
	logger  *slog.Logger
}

func NewOrchestrator(client StreamClient, tools ToolRunner, history *History, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{client: client, tools: tools, history: history, logger: logger}
}

func (o *Orchestrator) History() *History { return o.history }

// RunTurn processes one user input to completion. A turn may span several
// rounds when tool calls chain. On a transport failure the pending user
// message is rolled back so a retry does not corrupt history; on
// cancellation any text already streamed is committed before returning.
func (o *Orchestrator) RunTurn(ctx context.Context, userInput string, events TurnEvents) error {
	mark := o.history.Len()
	o.history.AddUser(userInput)

	for {
		acc := newToolCallAccumulator()
		var text strings.Builder

		req := ChatRequest{Messages: o.history.Messages()}
		if o.tools != nil {
			req.Tools = o.tools.Schemas()
		}
		err := o.client.Stream(ctx, req, func(d Delta) {
			if d.Content != "" {
				text.WriteString(d.Content)
				if events.OnText != nil {
					events.OnText(d.Content)
				}
			}
			acc.add(d.ToolCalls)
		})
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) {
				o.history.Rewind(mark)
				return err
			}
			if errors.Is(err, context.Canceled) {
				// Keep what the model already said.
				if text.Len() > 0 {
					o.history.AddAssistant(text.String())
				}
				return err
			}
			return err
		}

		calls := acc.finalize()
		if len(calls) == 0 {
			o.history.AddAssistant(text.String())
			return nil
		}
		o.history.AddAssistantToolCalls(text.String(), calls)

		for _, call := range calls {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			args := parseToolArgs(call.Function.Arguments, o.logger)
			if events.OnToolCall != nil {
				events.OnToolCall(call.Function.Name, args)
			}
			result := o.runTool(ctx, call.Function.Name, args)
			if events.OnToolResult != nil {
				events.OnToolResult(call.Function.Name, result)
			}
			o.history.AddToolResult(call.ID, result)
		}
	}
}

func (o *Orchestrator) runTool(ctx context.Context, name string, args map[string]any) string {
	if o.tools == nil {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	o.logger.Info("executing tool", "tool", name)
	return o.tools.Run(ctx, name, args)
}

// parseToolArgs decodes a tool call's argument JSON. Malformed arguments
// degrade to an empty set and the tool is still invoked.
func parseToolArgs(raw string, logger *slog.Logger) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Warn("malformed tool arguments, using empty set", "error", err)
		return map[string]any{}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args
}

// toolCallAccumulator merges streamed tool-call fragments per index. A
// single call's name and arguments may arrive split across many chunks;
// fields are concatenated in arrival order, never overwritten.
type toolCallAccumulator struct {
	pending map[int]*pendingToolCall
}

type pendingToolCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{pending: map[int]*pendingToolCall{}}
}

func (a *toolCallAccumulator) add(deltas []ToolCallDelta) {
	for _, d := range deltas {
		p, ok := a.pending[d.Index]
		if !ok {
			p = &pendingToolCall{}
			a.pending[d.Index] = p
		}
		if d.ID != "" {
			p.id = d.ID
		}
		p.name.WriteString(d.Name)
		p.args.WriteString(d.Arguments)
	}
}

// finalize converts the accumulated fragments into immutable tool-call
// records ordered by stream index.
func (a *toolCallAccumulator) finalize() []ToolCall {
	if len(a.pending) == 0 {
		return nil
	}
	indices := make([]int, 0, len(a.pending))
	for idx := range a.pending {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]ToolCall, 0, len(indices))
	for _, idx := range indices {
		p := a.pending[idx]
		calls = append(calls, ToolCall{
			ID:   p.id,
			Type: "function",
			Function: ToolFunction{
				Name:      p.name.String(),
				Arguments: p.args.String(),
			},
		})
	}
	return calls
}
