package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseServer(t *testing.T, lines []string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
}

func collectDeltas(t *testing.T, baseURL string, req ChatRequest) ([]Delta, error) {
	t.Helper()
	c := NewClient(ClientOptions{BaseURL: baseURL, Model: "test-model", APIKey: "sk-test"})
	var out []Delta
	err := c.Stream(context.Background(), req, func(d Delta) { out = append(out, d) })
	return out, err
}

func TestStream_ContentDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}, nil)
	defer srv.Close()

	deltas, err := collectDeltas(t, srv.URL, ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var text strings.Builder
	for _, d := range deltas {
		text.WriteString(d.Content)
	}
	if text.String() != "Hello" {
		t.Fatalf("got %q", text.String())
	}
	if deltas[len(deltas)-1].FinishReason != "stop" {
		t.Fatalf("finish reason lost: %+v", deltas)
	}
}

func TestStream_MalformedChunkSkipped(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {garbage not json`,
		`data: {"no_choices_here":true}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: [DONE]`,
	}, nil)
	defer srv.Close()

	deltas, err := collectDeltas(t, srv.URL, ChatRequest{})
	if err != nil {
		t.Fatalf("malformed chunk must not abort the stream: %v", err)
	}
	var text strings.Builder
	for _, d := range deltas {
		text.WriteString(d.Content)
	}
	if text.String() != "ab" {
		t.Fatalf("got %q", text.String())
	}
}

func TestStream_ToolCallFragments(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"get_"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"weather","arguments":"{\"q\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}`,
		`data: [DONE]`,
	}, nil)
	defer srv.Close()

	deltas, err := collectDeltas(t, srv.URL, ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acc := newToolCallAccumulator()
	for _, d := range deltas {
		acc.add(d.ToolCalls)
	}
	calls := acc.finalize()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %+v", calls)
	}
	if calls[0].ID != "call_9" || calls[0].Function.Name != "get_weather" ||
		calls[0].Function.Arguments != `{"q":1}` {
		t.Fatalf("fragment assembly wrong: %+v", calls[0])
	}
}

func TestStream_RequestShape(t *testing.T) {
	var gotAuth, gotPath string
	srv := sseServer(t, []string{`data: [DONE]`}, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
	})
	defer srv.Close()

	temp := 0.2
	_, err := collectDeltas(t, srv.URL, ChatRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header wrong: %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path wrong: %q", gotPath)
	}
}

func TestStream_HTTPErrorCategories(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, "authentication failed"},
		{http.StatusForbidden, "authentication failed"},
		{http.StatusNotFound, "endpoint not found"},
		{http.StatusInternalServerError, "server error"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := collectDeltas(t, srv.URL, ChatRequest{})
		srv.Close()

		var he *HTTPError
		if !errors.As(err, &he) {
			t.Fatalf("status %d: expected HTTPError, got %v", tc.status, err)
		}
		if he.Status != tc.status || !strings.Contains(he.Error(), tc.want) {
			t.Fatalf("status %d: message %q", tc.status, he.Error())
		}
	}
}

func TestStream_ConnectionRefusedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // now nothing listens there

	_, err := collectDeltas(t, srv.URL, ChatRequest{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestStream_CancellationReturnsContextError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(ClientOptions{BaseURL: srv.URL, Model: "m"})
	var saw int
	err := c.Stream(ctx, ChatRequest{}, func(d Delta) {
		saw++
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if saw == 0 {
		t.Fatal("delta before cancellation must be delivered")
	}
}
