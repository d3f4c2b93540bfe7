package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	chatCompletionsPath = "/v1/chat/completions"

	// A single SSE line can carry a large delta; size the scanner
	// accordingly.
	maxStreamLineBytes = 1 << 20
)

// TransportError wraps connection-level failures (refused, reset, DNS).
// These are recoverable: the caller rolls back the pending user message so
// the user can simply retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("connection failed: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-200 response from the server.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return fmt.Sprintf("authentication failed (HTTP %d): check your API key", e.Status)
	case e.Status == http.StatusNotFound:
		return fmt.Sprintf("endpoint not found (HTTP %d): check the base URL and model name", e.Status)
	case e.Status >= 500:
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("unexpected HTTP %d: %s", e.Status, e.Body)
	}
}

// ToolCallDelta is one streamed tool-call fragment. Name and Arguments are
// partial strings to be concatenated per index.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta is one decoded stream chunk.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ToolSchema is the function-calling tool description sent with a request.
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is one streaming completion request.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolSchema
	Temperature *float64
}

// StreamClient is what the orchestrator needs from a chat backend.
type StreamClient interface {
	Stream(ctx context.Context, req ChatRequest, fn func(Delta)) error
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client streams chat completions from any OpenAI-compatible server.
// Malformed stream chunks are skipped, not fatal: local servers under load
// emit the occasional garbage line and the stream is still usable.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		// No overall timeout: streams legitimately run for minutes. The
		// dial timeout is what catches dead servers.
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
}

func (c *Client) Model() string { return c.model }

type chatPayload struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Stream      bool         `json:"stream"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

// Stream issues one streaming completion request and invokes fn for every
// decoded delta in arrival order. It returns when the server sends [DONE],
// the stream ends, or ctx is cancelled (in which case ctx.Err() is
// returned and fn has already seen every chunk that arrived).
func (c *Client) Stream(ctx context.Context, req ChatRequest, fn func(Delta)) error {
	body, err := json.Marshal(chatPayload{
		Model:       c.model,
		Messages:    req.Messages,
		Stream:      true,
		Tools:       req.Tools,
		Temperature: req.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}
		delta, ok := c.parseChunk(payload)
		if !ok {
			continue
		}
		fn(delta)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		return &TransportError{Err: err}
	}
	return nil
}

// parseChunk decodes one data payload. Anything malformed is reported as
// not-ok and skipped by the caller.
func (c *Client) parseChunk(payload string) (Delta, bool) {
	if !gjson.Valid(payload) {
		c.logger.Warn("skipping malformed stream chunk", "payload", truncateForLog(payload))
		return Delta{}, false
	}
	choice := gjson.Get(payload, "choices.0")
	if !choice.Exists() {
		return Delta{}, false
	}

	var d Delta
	d.Content = choice.Get("delta.content").String()
	d.FinishReason = choice.Get("finish_reason").String()
	choice.Get("delta.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		d.ToolCalls = append(d.ToolCalls, ToolCallDelta{
			Index:     int(tc.Get("index").Int()),
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
		return true
	})
	return d, true
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
