package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubTool struct {
	name string
	out  string
	err  error
}

func (s stubTool) Name() string                { return s.name }
func (s stubTool) Description() string         { return "stub" }
func (s stubTool) Parameters() map[string]any  { return objectSchema(map[string]any{}) }
func (s stubTool) Execute(context.Context, map[string]any) (string, error) {
	return s.out, s.err
}

func TestRegistry_SchemasSortedByName(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(stubTool{name: "zeta"})
	r.Register(stubTool{name: "alpha"})
	r.Register(stubTool{name: "mid"})

	schemas := r.Schemas()
	got := []string{}
	for _, s := range schemas {
		got = append(got, s.Function.Name)
	}
	if strings.Join(got, ",") != "alpha,mid,zeta" {
		t.Fatalf("schemas not sorted: %v", got)
	}
	if schemas[0].Type != "function" {
		t.Fatalf("schema type wrong: %+v", schemas[0])
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	out := r.Run(context.Background(), "nope", nil)
	if !strings.Contains(out, `unknown tool "nope"`) {
		t.Fatalf("got %q", out)
	}
}

func TestRegistry_ErrorsBecomeText(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(stubTool{name: "boom", err: errors.New("it broke")})
	out := r.Run(context.Background(), "boom", nil)
	if out != "Error: it broke" {
		t.Fatalf("got %q", out)
	}
}

func TestRegistry_SuccessPassthrough(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(stubTool{name: "ok", out: "result text"})
	if out := r.Run(context.Background(), "ok", map[string]any{"k": "v"}); out != "result text" {
		t.Fatalf("got %q", out)
	}
}
