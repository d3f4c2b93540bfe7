// Package tools implements the agent's tool capabilities: filesystem
// access, subprocess commands and in-shell execution. Tools never return Go
// errors to the model; failures are rendered as text so the model can
// react.
package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"llamsh/internal/agent"
)

// Tool is one capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the registered tools and implements agent.ToolRunner.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{tools: map[string]Tool{}, logger: logger}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Schemas returns the function-calling descriptions, sorted by name so the
// request body is deterministic.
func (r *Registry) Schemas() []agent.ToolSchema {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]agent.ToolSchema, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		schemas = append(schemas, agent.ToolSchema{
			Type: "function",
			Function: agent.FunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return schemas
}

// Run executes the named tool. Unknown tools and execution failures come
// back as error text, never as a Go error.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	out, err := t.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}

// stringArg reads a string argument, tolerating absence.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// objectSchema builds a JSON-schema object with the given properties and
// required names.
func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
